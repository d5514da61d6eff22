package migrate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/gnana997/migr8/pkg/errs"
	"github.com/gnana997/migr8/pkg/util"
)

// ErrConcurrentModification is returned when a file changed on disk between
// planning and writing. It is never retried.
var ErrConcurrentModification = errors.New("file modified during migration")

// Mode selects whether a run writes files.
type Mode int

const (
	ModeDryRun Mode = iota
	ModeWrite
)

func (m Mode) String() string {
	if m == ModeWrite {
		return "yolo"
	}
	return "dry-run"
}

// MarshalText encodes the mode by name.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Progress is reported once per finished file. Completed increases by one
// with every report.
type Progress struct {
	Completed int
	Total     int
	Path      string
	State     FileState
}

// PipelineOptions configures a Pipeline.
type PipelineOptions struct {
	// Concurrency bounds simultaneous tasks. Zero picks a CPU-derived
	// default capped at util.MaxPoolSize.
	Concurrency int

	// Runs with more than BatchThreshold files are processed in batches of
	// BatchSize, with a memory check between batches.
	BatchThreshold int
	BatchSize      int

	// MemoryLimitPercent is the system memory use above which the pipeline
	// collects garbage before the next batch. Zero disables the check.
	MemoryLimitPercent float64

	// ForceGC collects garbage between every batch.
	ForceGC bool

	MaxRetries     int
	RetryBaseDelay time.Duration

	Mode Mode

	// OnProgress is called serially, never concurrently with itself.
	OnProgress func(Progress)
}

// DefaultPipelineOptions returns the defaults for a dry run.
func DefaultPipelineOptions() PipelineOptions {
	return PipelineOptions{
		BatchThreshold:     200,
		BatchSize:          50,
		MemoryLimitPercent: 85,
		MaxRetries:         2,
		RetryBaseDelay:     100 * time.Millisecond,
		Mode:               ModeDryRun,
	}
}

// RunResult is the outcome of one pipeline run. Results are in input order.
type RunResult struct {
	Results  []*FileResult
	Summary  RunSummary
	Mode     Mode
	Batches  int
	Duration time.Duration
}

// Pipeline runs a FileProcessor over many files with bounded concurrency.
type Pipeline struct {
	proc   FileProcessor
	opts   PipelineOptions
	logger *slog.Logger

	memUsage func() (float64, error)

	mu        sync.Mutex
	completed int
	total     int
}

// NewPipeline creates a pipeline. A nil logger uses slog.Default().
func NewPipeline(proc FileProcessor, opts PipelineOptions, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultPipelineOptions()
	if opts.BatchThreshold <= 0 {
		opts.BatchThreshold = def.BatchThreshold
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = def.RetryBaseDelay
	}
	opts.Concurrency = util.GetOptimalPoolSizeWithOverride(opts.Concurrency)
	return &Pipeline{
		proc:     proc,
		opts:     opts,
		logger:   logger,
		memUsage: virtualMemoryUsed,
	}
}

// Concurrency returns the effective concurrency limit.
func (p *Pipeline) Concurrency() int { return p.opts.Concurrency }

// Run processes inputs. It returns an error only when inputs are unusable;
// per-file failures are recorded in the results. Cancelling ctx stops new
// tasks from starting; files never started are reported as Skipped.
func (p *Pipeline) Run(ctx context.Context, inputs []FileInput) (*RunResult, error) {
	if err := checkDistinct(inputs); err != nil {
		return nil, err
	}
	start := time.Now()

	p.mu.Lock()
	p.completed = 0
	p.total = len(inputs)
	p.mu.Unlock()

	results := make([]*FileResult, len(inputs))
	sem := semaphore.NewWeighted(int64(p.opts.Concurrency))
	run := &RunResult{Results: results, Mode: p.opts.Mode}

	if len(inputs) <= p.opts.BatchThreshold {
		p.logger.Debug("pipeline streaming", "files", len(inputs), "concurrency", p.opts.Concurrency)
		p.runRange(ctx, sem, inputs, results, 0, len(inputs))
	} else {
		p.logger.Debug("pipeline batching", "files", len(inputs), "batch_size", p.opts.BatchSize, "concurrency", p.opts.Concurrency)
		for lo := 0; lo < len(inputs); lo += p.opts.BatchSize {
			hi := min(lo+p.opts.BatchSize, len(inputs))
			if run.Batches > 0 {
				p.relieveMemory()
			}
			run.Batches++
			p.runRange(ctx, sem, inputs, results, lo, hi)
		}
	}

	run.Duration = time.Since(start)
	run.Summary = Summarize(results, nil)
	p.logger.Info("pipeline complete",
		"files", len(inputs),
		"succeeded", run.Summary.Succeeded,
		"failed", run.Summary.Failed,
		"skipped", run.Summary.Skipped,
		"ms", run.Duration.Milliseconds())
	return run, nil
}

// runRange runs inputs[lo:hi] and waits for all of them.
func (p *Pipeline) runRange(ctx context.Context, sem *semaphore.Weighted, inputs []FileInput, results []*FileResult, lo, hi int) {
	var g errgroup.Group
	for i := lo; i < hi; i++ {
		if err := sem.Acquire(ctx, 1); err != nil {
			for j := i; j < hi; j++ {
				results[j] = skipped(inputs[j], err)
				p.report(results[j])
			}
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			res := p.runTask(ctx, inputs[i])
			results[i] = res
			p.report(res)
			return nil
		})
	}
	_ = g.Wait()
}

// runTask processes one file, retrying transient failures with exponential
// backoff. Every attempt starts from the original input.
func (p *Pipeline) runTask(ctx context.Context, in FileInput) *FileResult {
	for attempt := 0; ; attempt++ {
		res := p.attempt(ctx, in)
		res.Attempts = attempt + 1

		err := res.Err()
		if res.State != StateFailed || attempt >= p.opts.MaxRetries || !retryable(err) {
			if res.State == StateFailed {
				p.logger.Warn("file failed", "file", in.RelPath, "attempts", res.Attempts, "error", err)
			}
			return res
		}

		delay := p.opts.RetryBaseDelay << attempt
		p.logger.Debug("retrying file", "file", in.RelPath, "attempt", attempt+1, "delay", delay, "error", err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return res
		case <-timer.C:
		}
	}
}

func (p *Pipeline) attempt(ctx context.Context, in FileInput) *FileResult {
	res := p.proc.Process(ctx, in)
	if res == nil {
		res = &FileResult{Path: in.Path, RelPath: in.RelPath, Original: in.Source}
		return res.fail(fmt.Errorf("processor returned no result"))
	}
	if p.opts.Mode != ModeWrite || res.State != StateSucceeded || !res.Changed() {
		return res
	}
	if err := writeResult(in, res.Output); err != nil {
		return res.fail(err)
	}
	res.Written = true
	return res
}

// writeResult atomically replaces in.Path with data, provided the file on
// disk still holds the text the plan was made from.
func writeResult(in FileInput, data []byte) error {
	current, err := os.ReadFile(in.Path)
	if err != nil {
		return errs.NewIOError("read", in.Path, err)
	}
	if !bytes.Equal(current, in.Source) {
		return &errs.IOError{Op: "write", Path: in.Path, Cause: ErrConcurrentModification}
	}
	// The existing permission bits are kept; 0o644 only applies if the file
	// vanished in between.
	return util.WriteFileAtomic(in.Path, data, 0o644)
}

func retryable(err error) bool {
	return errs.IsRetryable(err) && !errors.Is(err, ErrConcurrentModification)
}

func (p *Pipeline) report(res *FileResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed++
	if p.opts.OnProgress != nil {
		p.opts.OnProgress(Progress{Completed: p.completed, Total: p.total, Path: res.Path, State: res.State})
	}
}

// relieveMemory runs between batches.
func (p *Pipeline) relieveMemory() {
	if p.opts.MemoryLimitPercent > 0 {
		used, err := p.memUsage()
		switch {
		case err != nil:
			p.logger.Debug("memory check failed", "error", err)
		case used > p.opts.MemoryLimitPercent:
			p.logger.Warn("memory pressure between batches", "used_percent", used, "limit_percent", p.opts.MemoryLimitPercent)
			runtime.GC()
			debug.FreeOSMemory()
			return
		}
	}
	if p.opts.ForceGC {
		runtime.GC()
	}
}

func virtualMemoryUsed() (float64, error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return v.UsedPercent, nil
}

func skipped(in FileInput, cause error) *FileResult {
	return &FileResult{
		Path:     in.Path,
		RelPath:  in.RelPath,
		State:    StateSkipped,
		Original: in.Source,
		Errors:   []error{cause},
	}
}

func checkDistinct(inputs []FileInput) error {
	seen := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		if in.Path == "" {
			return errors.New("pipeline: input with empty path")
		}
		if seen[in.Path] {
			return fmt.Errorf("pipeline: %s scheduled more than once", in.Path)
		}
		seen[in.Path] = true
	}
	return nil
}
