// Package errs defines the error kinds produced while building the project
// graph and migrating files.
//
// Every kind wraps its cause, so callers classify with errors.As and still
// reach the underlying error with errors.Is.
package errs

import (
	"errors"
	"fmt"
)

// ParseError reports a file that could not be parsed. The file is skipped.
type ParseError struct {
	Path  string
	Cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// MatchConfigError reports a malformed rule clause. The rule is skipped and
// matching falls through to later rules.
type MatchConfigError struct {
	Spec      string // "package/component"
	RuleOrder int
	Clause    int
	Reason    string
}

func (e *MatchConfigError) Error() string {
	return fmt.Sprintf("rule %d of %s: clause %d: %s", e.RuleOrder, e.Spec, e.Clause, e.Reason)
}

// TransformationError reports a property or import mutation that could not
// be applied. It is recorded against one component; the rest of the file is
// still attempted.
type TransformationError struct {
	Path      string
	Component string
	Op        string
	Cause     error
}

func (e *TransformationError) Error() string {
	return fmt.Sprintf("%s %s in %s: %v", e.Op, e.Component, e.Path, e.Cause)
}

func (e *TransformationError) Unwrap() error { return e.Cause }

// SerializationError reports that edited text could not be produced. The
// whole file fails and nothing is written.
type SerializationError struct {
	Path  string
	Cause error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialize %s: %v", e.Path, e.Cause)
}

func (e *SerializationError) Unwrap() error { return e.Cause }

// IOError wraps a filesystem failure with the operation and path.
type IOError struct {
	Op    string
	Path  string
	Cause error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Cause)
}

func (e *IOError) Unwrap() error { return e.Cause }

// NewIOError returns nil when cause is nil.
func NewIOError(op, path string, cause error) error {
	if cause == nil {
		return nil
	}
	return &IOError{Op: op, Path: path, Cause: cause}
}

// IsRetryable reports whether err is worth another attempt. Only I/O failures
// are transient; everything else is a pure function of the input text.
func IsRetryable(err error) bool {
	var ioErr *IOError
	return errors.As(err, &ioErr)
}

// Kind returns a short label for err, used in run summaries.
func Kind(err error) string {
	var (
		parseErr *ParseError
		matchErr *MatchConfigError
		transErr *TransformationError
		serErr   *SerializationError
		ioErr    *IOError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &parseErr):
		return "parse"
	case errors.As(err, &matchErr):
		return "match-config"
	case errors.As(err, &transErr):
		return "transformation"
	case errors.As(err, &serErr):
		return "serialization"
	case errors.As(err, &ioErr):
		return "io"
	default:
		return "error"
	}
}
