package graph

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	ts "github.com/tree-sitter/go-tree-sitter"
	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"

	"github.com/gnana997/migr8/pkg/errs"
	"github.com/gnana997/migr8/pkg/parser"
	"github.com/gnana997/migr8/pkg/parser/queries"
	"github.com/gnana997/migr8/pkg/util"
)

// BuildOptions configures one graph build.
type BuildOptions struct {
	// Root is the directory to scan.
	Root string

	// Targets are the tracked (package, component) pairs.
	Targets []Target

	// Include and Exclude are doublestar globs relative to Root.
	Include []string
	Exclude []string

	// LargeCodebase enables the Prefilter before parsing.
	LargeCodebase bool

	// MaxFileSize is the prefilter's size ceiling in bytes.
	MaxFileSize int64

	// Workers bounds parse/extract parallelism. Zero uses the CPU default.
	Workers int

	// TreeCacheSize bounds retained trees. Zero uses DefaultTreeCacheSize.
	TreeCacheSize int
}

// DefaultBuildOptions returns options for scanning root with the default
// globs.
func DefaultBuildOptions(root string, targets []Target) BuildOptions {
	return BuildOptions{
		Root:    root,
		Targets: targets,
		Include: DefaultInclude,
		Exclude: DefaultExclude,
	}
}

// Builder drives extraction across a file set.
type Builder struct {
	pm     *parser.ParserManager
	ext    *Extractor
	logger *slog.Logger
}

// NewBuilder creates a builder sharing pm and qm with the rest of the run.
func NewBuilder(pm *parser.ParserManager, qm *queries.QueryManager, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{pm: pm, ext: NewExtractor(qm, logger), logger: logger}
}

// Extractor returns the builder's extractor.
func (b *Builder) Extractor() *Extractor { return b.ext }

type fileResult struct {
	file    *File
	tree    *ts.Tree
	skipped string
	err     error
}

// Build scans opts.Root and returns the project graph.
//
// Only setup problems (bad root, bad globs, cancellation) are returned as
// errors. A file that cannot be read or parsed is recorded as a warning and
// skipped.
func (b *Builder) Build(ctx context.Context, opts BuildOptions) (*ProjectGraph, error) {
	totalStart := time.Now()
	stats := BuildStats{}

	absRoot, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path: %w", err)
	}

	discoveryStart := time.Now()
	files, err := DiscoverFiles(absRoot, opts.Include, opts.Exclude)
	if err != nil {
		return nil, fmt.Errorf("discovery failed: %w", err)
	}
	stats.FilesDiscovered = len(files)
	stats.DiscoveryTimeMs = time.Since(discoveryStart).Milliseconds()
	b.logger.Info("discovery complete", "files", len(files), "ms", stats.DiscoveryTimeMs)

	trees, err := NewTreeCache(opts.TreeCacheSize, b.logger)
	if err != nil {
		return nil, err
	}
	tracker := NewTracker(opts.Targets)
	g := newProjectGraph(absRoot, tracker, trees)

	var prefilter *Prefilter
	if opts.LargeCodebase {
		prefilter = &Prefilter{MaxFileSize: opts.MaxFileSize, Packages: tracker.Packages()}
		b.logger.Info("large-codebase prefilter enabled; files it skips are not scanned for usages")
	}

	ids := make([]FileID, len(files))
	for i, path := range files {
		ids[i] = g.reserveID(path)
	}

	extractStart := time.Now()
	results := make([]fileResult, len(files))

	workers := util.GetOptimalPoolSizeWithOverride(opts.Workers)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i, path := range files {
		if egCtx.Err() != nil {
			break
		}
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			rel := g.Rel(path)
			if prefilter != nil {
				if skip, reason := prefilter.Skip(path, rel); skip {
					results[i] = fileResult{skipped: reason}
					return nil
				}
			}
			file, tree, err := b.LoadFile(ids[i], path, rel, tracker)
			results[i] = fileResult{file: file, tree: tree, err: err}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		closeResults(results)
		trees.Close()
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		closeResults(results)
		trees.Close()
		return nil, err
	}

	for i, r := range results {
		switch {
		case r.skipped != "":
			stats.FilesPrefiltered++
			b.logger.Debug("prefilter skipped file", "file", files[i], "reason", r.skipped)
		case r.err != nil:
			stats.FilesFailed++
			g.addWarning(Warning{Path: files[i], Err: r.err, Msg: r.err.Error()})
			b.logger.Warn("skipping file", "file", files[i], "error", r.err)
		default:
			stats.FilesParsed++
			if len(r.file.Bindings) == 0 {
				r.tree.Close()
				continue
			}
			stats.Bindings += len(r.file.Bindings)
			stats.Usages += len(r.file.Usages)
			if len(r.file.Usages) > 0 {
				stats.FilesWithUsages++
			}
			g.Upsert(r.file, r.tree)
		}
	}
	stats.ExtractTimeMs = time.Since(extractStart).Milliseconds()
	stats.TotalTimeMs = time.Since(totalStart).Milliseconds()

	g.mu.Lock()
	g.stats = stats
	g.mu.Unlock()

	b.logger.Info("graph build complete",
		"parsed", stats.FilesParsed,
		"failed", stats.FilesFailed,
		"prefiltered", stats.FilesPrefiltered,
		"bindings", stats.Bindings,
		"usages", stats.Usages,
		"ms", stats.TotalTimeMs)

	return g, nil
}

// LoadFile reads, parses and extracts one file. The returned tree belongs to
// the caller. Syntax errors are reported as a ParseError so that files
// tree-sitter had to recover are never rewritten.
func (b *Builder) LoadFile(id FileID, absPath, relPath string, tracker *Tracker) (*File, *ts.Tree, error) {
	source, err := os.ReadFile(absPath)
	if err != nil {
		return nil, nil, errs.NewIOError("read", absPath, err)
	}
	return b.load(id, absPath, relPath, source, tracker)
}

func (b *Builder) load(id FileID, absPath, relPath string, source []byte, tracker *Tracker) (*File, *ts.Tree, error) {
	file := &File{
		ID:      id,
		Path:    absPath,
		RelPath: relPath,
		Grammar: parser.DetectGrammar(absPath),
		Source:  source,
		Hash:    xxh3.Hash(source),
	}

	tree, err := b.pm.Parse(source, file.Grammar)
	if err != nil {
		return nil, nil, &errs.ParseError{Path: absPath, Cause: err}
	}
	if tree.RootNode().HasError() {
		tree.Close()
		return nil, nil, &errs.ParseError{Path: absPath, Cause: fmt.Errorf("syntax errors in source")}
	}

	if err := b.ext.Extract(tree, file, tracker); err != nil {
		tree.Close()
		return nil, nil, &errs.ParseError{Path: absPath, Cause: fmt.Errorf("extract: %w", err)}
	}
	return file, tree, nil
}

// Refresh re-reads path and updates g in place. Used by the watcher.
// changed is false when the file's bytes match what g already holds, in
// which case nothing is reparsed.
func (b *Builder) Refresh(g *ProjectGraph, path string) (changed bool, err error) {
	abs := g.abs(path)
	source, err := os.ReadFile(abs)
	if err != nil {
		err = errs.NewIOError("read", abs, err)
		g.Remove(abs)
		g.addWarning(Warning{Path: abs, Err: err, Msg: err.Error()})
		return true, err
	}
	if prev, ok := g.File(abs); ok && prev.Hash == xxh3.Hash(source) {
		return false, nil
	}

	id := g.reserveID(abs)
	file, tree, err := b.load(id, abs, g.Rel(abs), source, g.Tracker)
	if err != nil {
		g.Remove(abs)
		g.addWarning(Warning{Path: abs, Err: err, Msg: err.Error()})
		return true, err
	}
	if len(file.Bindings) == 0 {
		tree.Close()
		g.Remove(abs)
		return true, nil
	}
	g.Upsert(file, tree)
	return true, nil
}

func closeResults(results []fileResult) {
	for _, r := range results {
		if r.tree != nil {
			r.tree.Close()
		}
	}
}
