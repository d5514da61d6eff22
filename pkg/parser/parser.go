package parser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"unsafe"

	ts "github.com/tree-sitter/go-tree-sitter"
	ts_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	ts_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"github.com/gnana997/migr8/pkg/util"
)

// ParserManager manages tree-sitter parsers for the JavaScript, TypeScript
// and TSX grammars with lazy initialization and thread-safe concurrent access.
//
// Memory Management:
//   - Parser pools are created lazily on first use per grammar
//   - ParserManager owns parser pool instances and must be closed via Close()
//   - Callers own Tree instances and must call tree.Close() after use
//
// Thread Safety:
//   - Each grammar has its own pool, so graph building and migration workers
//     parse concurrently without sharing a parser
//   - Pool creation is synchronized with write locks
//
// Example:
//
//	manager := NewParserManager(logger)
//	defer manager.Close()
//
//	tree, err := manager.ParseFile(source, "src/App.tsx")
//	if err != nil {
//	    return err
//	}
//	defer tree.Close()
type ParserManager struct {
	// pools stores parser pools per grammar (lazily initialized)
	pools map[Grammar]*parserPool

	// mutex guards the pools map
	mutex sync.RWMutex

	logger *slog.Logger

	// poolSize overrides the CPU-derived pool size when positive
	poolSize int

	parsesCalled atomic.Int64
	parseErrors  atomic.Int64
}

// NewParserManager creates a new ParserManager instance.
//
// The returned manager must be closed via Close() to free resources.
func NewParserManager(logger *slog.Logger) *ParserManager {
	return NewParserManagerWithPoolSize(logger, 0)
}

// NewParserManagerWithPoolSize is NewParserManager with an explicit number of
// parsers per grammar. Zero selects the CPU-derived default, which matches
// the migration worker count so workers never wait on a parser.
func NewParserManagerWithPoolSize(logger *slog.Logger, poolSize int) *ParserManager {
	if logger == nil {
		logger = slog.Default()
	}

	return &ParserManager{
		pools:    make(map[Grammar]*parserPool),
		logger:   logger,
		poolSize: poolSize,
	}
}

// Parse parses source with the given grammar, waiting as long as it takes
// for a free parser.
func (pm *ParserManager) Parse(source []byte, grammar Grammar) (*ts.Tree, error) {
	return pm.ParseContext(context.Background(), source, grammar)
}

// ParseContext parses source with the given grammar. It gives up with
// ctx.Err() if ctx ends while every parser for the grammar is busy.
//
// Returns a Tree that MUST be closed by the caller via tree.Close().
// Trees containing syntax errors are still returned: tree-sitter recovers
// and the well-formed parts remain usable. Use HasSyntaxErrors to check.
func (pm *ParserManager) ParseContext(ctx context.Context, source []byte, grammar Grammar) (*ts.Tree, error) {
	if grammar.Lang == LanguageUnknown {
		return nil, fmt.Errorf("cannot parse unknown language")
	}

	pm.parsesCalled.Add(1)

	pool, err := pm.getOrCreatePool(grammar)
	if err != nil {
		return nil, fmt.Errorf("failed to get pool for %s: %w", grammar, err)
	}

	parser, err := pool.acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire parser: %w", err)
	}
	tree := parser.Parse(source, nil)
	pool.release(parser)

	if tree == nil {
		return nil, fmt.Errorf("parser returned no tree for %s source", grammar)
	}
	if tree.RootNode().HasError() {
		pm.parseErrors.Add(1)
		pm.logger.Debug("parse tree contains errors", "grammar", grammar.String())
	}
	return tree, nil
}

// ParseFile detects the grammar from filePath and parses source.
//
// Returns a Tree that MUST be closed by the caller via tree.Close().
func (pm *ParserManager) ParseFile(source []byte, filePath string) (*ts.Tree, error) {
	grammar := DetectGrammar(filePath)
	if grammar.Lang == LanguageUnknown {
		return nil, fmt.Errorf("unsupported file extension: %s", filePath)
	}
	return pm.Parse(source, grammar)
}

// HasSyntaxErrors parses source with the grammar for filePath and reports
// whether tree-sitter had to recover from errors. The tree is discarded.
func (pm *ParserManager) HasSyntaxErrors(source []byte, filePath string) (bool, error) {
	tree, err := pm.ParseFile(source, filePath)
	if err != nil {
		return false, err
	}
	defer tree.Close()
	return tree.RootNode().HasError(), nil
}

// Close releases all parser pool resources.
//
// MUST be called when ParserManager is no longer needed.
// After Close(), the ParserManager cannot be used.
func (pm *ParserManager) Close() error {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()

	pm.logger.Debug("closing ParserManager",
		"parses_called", pm.parsesCalled.Load(),
		"parse_errors", pm.parseErrors.Load())

	for _, pool := range pm.pools {
		pool.close()
	}
	pm.pools = make(map[Grammar]*parserPool)

	return nil
}

// getOrCreatePool returns an existing parser pool or creates a new one.
// Thread-safe using double-checked locking pattern.
func (pm *ParserManager) getOrCreatePool(grammar Grammar) (*parserPool, error) {
	pm.mutex.RLock()
	pool, exists := pm.pools[grammar]
	pm.mutex.RUnlock()

	if exists {
		return pool, nil
	}

	pm.mutex.Lock()
	defer pm.mutex.Unlock()

	if pool, exists = pm.pools[grammar]; exists {
		return pool, nil
	}

	langPtr, err := pm.GetLanguagePointer(grammar)
	if err != nil {
		return nil, err
	}

	poolSize := util.GetOptimalPoolSizeWithOverride(pm.poolSize)
	pool = newParserPool(grammar, langPtr, poolSize, pm.logger)
	pm.pools[grammar] = pool

	pm.logger.Debug("created new parser pool",
		"grammar", grammar.String(),
		"maxSize", poolSize)

	return pool, nil
}

// GetLanguagePointer returns the tree-sitter language for grammar.
//
// Used by QueryManager to compile queries against the same grammar the
// trees were parsed with.
func (pm *ParserManager) GetLanguagePointer(grammar Grammar) (unsafe.Pointer, error) {
	switch grammar.Lang {
	case LanguageTypeScript:
		if grammar.IsTSX {
			return ts_typescript.LanguageTSX(), nil
		}
		return ts_typescript.LanguageTypescript(), nil

	case LanguageJavaScript:
		return ts_javascript.Language(), nil

	default:
		return nil, fmt.Errorf("unsupported language: %s", grammar.Lang.String())
	}
}

// GetStats returns parser usage statistics.
func (pm *ParserManager) GetStats() ParserStats {
	pm.mutex.RLock()
	defer pm.mutex.RUnlock()

	var stats ParserStats
	for _, pool := range pm.pools {
		stats.ParsersCreated += int(pool.created.Load())
		stats.PoolWaits += int(pool.waits.Load())
	}
	stats.ParsesCalled = int(pm.parsesCalled.Load())
	stats.ParseErrors = int(pm.parseErrors.Load())
	return stats
}

// ParserStats contains parser usage statistics.
type ParserStats struct {
	ParsersCreated int
	ParsesCalled   int
	ParseErrors    int

	// PoolWaits counts acquisitions that found every parser busy.
	PoolWaits int
}
