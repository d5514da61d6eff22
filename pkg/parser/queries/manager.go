// Package queries compiles the tree-sitter queries migr8 runs (imports,
// markup elements, identifier references) and executes them against parsed
// trees.
package queries

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	ts "github.com/tree-sitter/go-tree-sitter"

	"github.com/gnana997/migr8/pkg/parser"
	"github.com/gnana997/migr8/pkg/parser/queries/imports"
	"github.com/gnana997/migr8/pkg/parser/queries/jsx"
)

// QueryType identifies which query to execute.
type QueryType int

const (
	// QueryTypeImports matches import declarations and their sources.
	QueryTypeImports QueryType = iota
	// QueryTypeElements matches named markup elements.
	QueryTypeElements
	// QueryTypeReferences matches identifier reads.
	QueryTypeReferences
)

var queryNames = map[QueryType]string{
	QueryTypeImports:    "imports",
	QueryTypeElements:   "elements",
	QueryTypeReferences: "references",
}

func (qt QueryType) String() string {
	if name, ok := queryNames[qt]; ok {
		return name
	}
	return "unknown"
}

// source returns the query text of qt for grammar.
func (qt QueryType) source(grammar parser.Grammar) (string, error) {
	if grammar.Lang == parser.LanguageUnknown {
		return "", fmt.Errorf("unsupported language for %s queries: %s", qt, grammar)
	}
	switch qt {
	case QueryTypeImports:
		return imports.Query, nil
	case QueryTypeElements:
		if !grammar.SupportsJSX() {
			return "", fmt.Errorf("grammar %s has no markup nodes", grammar)
		}
		return jsx.ElementQuery, nil
	case QueryTypeReferences:
		return jsx.ReferenceQuery, nil
	}
	return "", fmt.Errorf("unknown query type: %d", qt)
}

// Queries compiled for one grammar cannot run on trees from another, so TSX
// and plain TypeScript get separate entries.
type queryKey struct {
	grammar parser.Grammar
	qtype   QueryType
}

// QueryManager compiles each (grammar, query) pair once and shares the
// compiled query between goroutines. Matches are collected eagerly, so the
// cursor never outlives a call.
//
//	qm := NewQueryManager(pm, logger)
//	defer qm.Close()
//
//	matches, err := qm.Run(tree, grammar, QueryTypeElements, source)
type QueryManager struct {
	pm     *parser.ParserManager
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[queryKey]*ts.Query
}

// NewQueryManager creates a query manager. A nil logger uses slog.Default().
func NewQueryManager(pm *parser.ParserManager, logger *slog.Logger) *QueryManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryManager{
		pm:     pm,
		logger: logger,
		cache:  make(map[queryKey]*ts.Query),
	}
}

// GetQuery returns the compiled query of type qtype for grammar, compiling
// it on first use.
func (qm *QueryManager) GetQuery(grammar parser.Grammar, qtype QueryType) (*ts.Query, error) {
	key := queryKey{grammar: grammar, qtype: qtype}

	qm.mu.RLock()
	query, ok := qm.cache[key]
	qm.mu.RUnlock()
	if ok {
		return query, nil
	}

	qm.mu.Lock()
	defer qm.mu.Unlock()
	if query, ok := qm.cache[key]; ok {
		return query, nil
	}

	src, err := qtype.source(grammar)
	if err != nil {
		return nil, err
	}
	langPtr, err := qm.pm.GetLanguagePointer(grammar)
	if err != nil {
		return nil, fmt.Errorf("language for %s: %w", grammar, err)
	}
	query, qerr := ts.NewQuery(ts.NewLanguage(langPtr), src)
	if qerr != nil {
		return nil, fmt.Errorf("compile %s query for %s: %s", qtype, grammar, qerr.Message)
	}

	qm.cache[key] = query
	qm.logger.Debug("compiled query", "grammar", grammar.String(), "type", qtype.String())
	return query, nil
}

// Run executes the qtype query for grammar on tree.
func (qm *QueryManager) Run(tree *ts.Tree, grammar parser.Grammar, qtype QueryType, source []byte) ([]QueryMatch, error) {
	query, err := qm.GetQuery(grammar, qtype)
	if err != nil {
		return nil, err
	}
	return Execute(tree, query, source)
}

// Execute runs query over tree. The returned nodes borrow from tree and are
// only valid until it is closed.
func Execute(tree *ts.Tree, query *ts.Query, source []byte) ([]QueryMatch, error) {
	if tree == nil || query == nil {
		return nil, errors.New("query execution needs a tree and a query")
	}

	cursor := ts.NewQueryCursor()
	defer cursor.Close()

	names := query.CaptureNames()
	iter := cursor.Matches(query, tree.RootNode(), source)

	var matches []QueryMatch
	for m := iter.Next(); m != nil; m = iter.Next() {
		qm := QueryMatch{Pattern: uint(m.PatternIndex)}
		for _, c := range m.Captures {
			node := c.Node
			start := node.StartPosition()
			capture := QueryCapture{
				Node:   &node,
				Text:   node.Utf8Text(source),
				Line:   int(start.Row) + 1,
				Column: int(start.Column) + 1,
			}
			if int(c.Index) < len(names) {
				capture.Name = names[c.Index]
			}
			qm.Captures = append(qm.Captures, capture)
		}
		matches = append(matches, qm)
	}
	return matches, nil
}

// Close frees every compiled query. The manager is unusable afterwards.
func (qm *QueryManager) Close() error {
	qm.mu.Lock()
	defer qm.mu.Unlock()

	qm.logger.Debug("closing QueryManager", "queries_compiled", len(qm.cache))
	for _, query := range qm.cache {
		query.Close()
	}
	clear(qm.cache)
	return nil
}

// QueryMatch is one match of one query pattern.
type QueryMatch struct {
	Pattern  uint
	Captures []QueryCapture
}

// Capture returns the first capture named name (e.g. "jsx.name"), or nil.
func (m QueryMatch) Capture(name string) *QueryCapture {
	for i := range m.Captures {
		if m.Captures[i].Name == name {
			return &m.Captures[i]
		}
	}
	return nil
}

// QueryCapture is one captured node. Line and Column are 1-based.
type QueryCapture struct {
	Name   string
	Node   *ts.Node
	Text   string
	Line   int
	Column int
}
