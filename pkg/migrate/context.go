// Package migrate turns a project graph and a rule set into per-file
// migration plans and runs them through a bounded concurrent pipeline.
package migrate

import (
	"errors"
	"log/slog"

	"github.com/gnana997/migr8/pkg/graph"
	"github.com/gnana997/migr8/pkg/parser"
	"github.com/gnana997/migr8/pkg/parser/queries"
	"github.com/gnana997/migr8/pkg/rules"
)

// Context carries the shared, read-only state of one run. It is built once
// at startup and passed by reference; nothing in this package keeps global
// state.
type Context struct {
	Root    string
	Rules   *rules.RuleSet
	Graph   *graph.ProjectGraph
	Parser  *parser.ParserManager
	Queries *queries.QueryManager
	Logger  *slog.Logger

	// ValidateSyntax re-parses emitted text and downgrades files with
	// syntax errors to SucceededWithWarning.
	ValidateSyntax bool
}

// Validate reports missing collaborators.
func (c *Context) Validate() error {
	var problems []error
	if c.Rules == nil {
		problems = append(problems, errors.New("context: rule set is required"))
	}
	if c.Graph == nil {
		problems = append(problems, errors.New("context: project graph is required"))
	}
	if c.Parser == nil {
		problems = append(problems, errors.New("context: parser manager is required"))
	}
	if c.Queries == nil {
		problems = append(problems, errors.New("context: query manager is required"))
	}
	return errors.Join(problems...)
}

func (c *Context) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}
