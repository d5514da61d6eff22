package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"unsafe"

	ts "github.com/tree-sitter/go-tree-sitter"
)

var errPoolClosed = errors.New("parser pool closed")

// parserPool lends parsers for one grammar. At most maxSize parsers ever
// exist; when all are lent out, acquire waits for a release or for its
// context.
//
// slots holds one token per parser that may still be created, so creation
// needs no lock: taking a token is the right to build a parser.
type parserPool struct {
	grammar Grammar
	lang    *ts.Language
	idle    chan *ts.Parser
	slots   chan struct{}
	logger  *slog.Logger

	created atomic.Int64
	waits   atomic.Int64

	mu     sync.Mutex
	closed bool
}

func newParserPool(grammar Grammar, langPtr unsafe.Pointer, maxSize int, logger *slog.Logger) *parserPool {
	slots := make(chan struct{}, maxSize)
	for range maxSize {
		slots <- struct{}{}
	}
	return &parserPool{
		grammar: grammar,
		lang:    ts.NewLanguage(langPtr),
		idle:    make(chan *ts.Parser, maxSize),
		slots:   slots,
		logger:  logger,
	}
}

// acquire prefers an idle parser, then a new one, then waits.
func (p *parserPool) acquire(ctx context.Context) (*ts.Parser, error) {
	select {
	case parser, ok := <-p.idle:
		return idleParser(parser, ok)
	default:
	}

	select {
	case parser, ok := <-p.idle:
		return idleParser(parser, ok)
	case <-p.slots:
		return p.create()
	default:
	}

	p.waits.Add(1)
	select {
	case parser, ok := <-p.idle:
		return idleParser(parser, ok)
	case <-p.slots:
		return p.create()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func idleParser(parser *ts.Parser, ok bool) (*ts.Parser, error) {
	if !ok {
		return nil, errPoolClosed
	}
	return parser, nil
}

// create builds a parser for a slot token the caller already holds. The
// token goes back if construction fails.
func (p *parserPool) create() (*ts.Parser, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, errPoolClosed
	}

	parser := ts.NewParser()
	if parser == nil {
		p.slots <- struct{}{}
		return nil, fmt.Errorf("failed to create parser")
	}
	if err := parser.SetLanguage(p.lang); err != nil {
		parser.Close()
		p.slots <- struct{}{}
		return nil, fmt.Errorf("failed to set language: %w", err)
	}

	n := p.created.Add(1)
	p.logger.Debug("created parser in pool", "grammar", p.grammar.String(), "pool_size", n)
	return parser, nil
}

// release hands parser back. After close it is freed instead.
func (p *parserPool) release(parser *ts.Parser) {
	if parser == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		parser.Close()
		return
	}
	select {
	case p.idle <- parser:
	default:
		parser.Close()
		p.logger.Warn("parser pool full, closing excess parser", "grammar", p.grammar.String())
	}
}

// close frees idle parsers and wakes every waiter with errPoolClosed.
// Parsers still lent out are freed by their release.
func (p *parserPool) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.idle)

	count := 0
	for parser := range p.idle {
		parser.Close()
		count++
	}
	p.logger.Debug("closed parser pool", "grammar", p.grammar.String(), "parsers_closed", count)
}
