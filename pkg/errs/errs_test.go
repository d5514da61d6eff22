package errs

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	cause := errors.New("boom")

	assert.Equal(t, "", Kind(nil))
	assert.Equal(t, "parse", Kind(&ParseError{Path: "a.tsx", Cause: cause}))
	assert.Equal(t, "match-config", Kind(&MatchConfigError{Spec: "old/Button", Reason: "bad"}))
	assert.Equal(t, "transformation", Kind(&TransformationError{Path: "a.tsx", Op: "rename", Cause: cause}))
	assert.Equal(t, "serialization", Kind(&SerializationError{Path: "a.tsx", Cause: cause}))
	assert.Equal(t, "io", Kind(fmt.Errorf("wrapped: %w", &IOError{Op: "write", Path: "a.tsx", Cause: cause})))
	assert.Equal(t, "error", Kind(cause))
}

func TestIOErrorUnwrap(t *testing.T) {
	err := NewIOError("read", "missing.tsx", fs.ErrNotExist)

	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, "read missing.tsx: file does not exist", err.Error())
	assert.Nil(t, NewIOError("read", "x", nil))
}

func TestOnlyIOErrorsAreRetryable(t *testing.T) {
	assert.False(t, IsRetryable(&SerializationError{Path: "a.tsx", Cause: errors.New("overlap")}))
	assert.False(t, IsRetryable(errors.New("plain")))
}
