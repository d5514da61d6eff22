package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/gnana997/migr8/pkg/backup"
	"github.com/gnana997/migr8/pkg/migrate"
	"github.com/gnana997/migr8/pkg/report"
	"github.com/gnana997/migr8/pkg/rules"
)

type migrateOptions struct {
	dryRun     bool
	yolo       bool
	skipBackup bool
	showDiff   bool
	fromReport bool
	color      string
}

func newMigrateCmd() *cobra.Command {
	var opts migrateOptions

	cmd := &cobra.Command{
		Use:   "migrate [root]",
		Short: "Apply the rule file to every tracked usage",
		Long: `Load the rule file, rebuild the project graph for the packages it
names, and run every affected file through the migration pipeline.

The default is a dry run that prints the plan and diffs. --yolo writes
the changed files, after backing up every input unless --skip-backup is
given. Per-file failures are listed in the summary and do not change the
exit code.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.dryRun && opts.yolo {
				return errors.New("--dry-run and --yolo are mutually exclusive")
			}
			if _, err := useColor(cmd.OutOrStdout(), opts.color); err != nil {
				return err
			}
			a, err := newApp(cmd, args)
			if err != nil {
				return err
			}
			defer a.close()
			return runMigrate(cmd, a, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "print the plan without writing (default)")
	cmd.Flags().BoolVar(&opts.yolo, "yolo", false, "write changed files")
	cmd.Flags().BoolVar(&opts.skipBackup, "skip-backup", false, "do not back up files before writing")
	cmd.Flags().BoolVar(&opts.showDiff, "diff", false, "print diffs in --yolo mode too")
	cmd.Flags().BoolVar(&opts.fromReport, "from-report", false, "take usage sites from the saved props summary instead of the fresh graph")
	cmd.Flags().StringVar(&opts.color, "color", "auto", "color the plan: auto, always or never")
	cmd.Flags().String("rules", "", "rule file (default <report dir>/migr8-rules.json)")
	cmd.Flags().IntP("concurrency", "c", 0, "files processed at once (default derived from CPU count)")
	cmd.Flags().Int("max-retries", 0, "retries for transient I/O failures")
	cmd.Flags().Bool("validate-syntax", false, "re-parse emitted code and flag syntax errors")
	cmd.Flags().StringSlice("include", nil, "include globs relative to root")
	cmd.Flags().StringSlice("exclude", nil, "exclude globs relative to root")
	cmd.Flags().Bool("large-codebase", false, "skip files that never mention a tracked package before parsing")
	return cmd
}

func runMigrate(cmd *cobra.Command, a *app, opts migrateOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	rs, err := rules.LoadFromFile(a.cfg.RulesFile)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	if len(rs.Specs()) == 0 {
		fmt.Fprintln(out, "No migration rules; nothing to do.")
		return nil
	}

	g, _, err := a.buildGraph(ctx, rs.Targets())
	if err != nil {
		return err
	}
	defer g.Close()

	mctx := &migrate.Context{
		Root:           a.root,
		Rules:          rs,
		Graph:          g,
		Parser:         a.pm,
		Queries:        a.qm,
		Logger:         a.logger,
		ValidateSyntax: a.cfg.ValidateSyntax,
	}
	if err := mctx.Validate(); err != nil {
		return err
	}

	agg := migrate.NewAggregator(mctx)
	var plan *migrate.Aggregation
	if opts.fromReport {
		summary, err := report.LoadPropsSummary(a.cfg.ReportDir)
		if err != nil {
			return fmt.Errorf("%w (run migr8 build first)", err)
		}
		plan = agg.FromSummary(summary)
	} else {
		plan = agg.FromGraph()
	}
	if len(plan.Inputs) == 0 {
		fmt.Fprintln(out, "No files to migrate.")
		printInvalid(out, plan.Invalid)
		return nil
	}

	popts := migrate.DefaultPipelineOptions()
	popts.Concurrency = a.cfg.Concurrency
	if a.cfg.BatchThreshold > 0 {
		popts.BatchThreshold = a.cfg.BatchThreshold
	}
	if a.cfg.BatchSize > 0 {
		popts.BatchSize = a.cfg.BatchSize
	}
	if a.cfg.MaxRetries != 0 {
		popts.MaxRetries = max(a.cfg.MaxRetries, 0)
	}
	if a.cfg.RetryBaseDelay > 0 {
		popts.RetryBaseDelay = a.cfg.RetryBaseDelay
	}
	popts.OnProgress = func(p migrate.Progress) {
		a.logger.Debug("file done", "completed", p.Completed, "total", p.Total, "file", p.Path, "state", p.State)
	}
	if opts.yolo {
		popts.Mode = migrate.ModeWrite
	}

	var (
		svc      *backup.Service
		manifest *backup.Manifest
	)
	if opts.yolo && !opts.skipBackup {
		svc = backup.NewService(a.root, a.cfg.BackupDir, a.logger)
		paths := make([]string, 0, len(plan.Inputs))
		for _, in := range plan.Inputs {
			paths = append(paths, in.Path)
		}
		manifest, err = svc.CreateBackup(paths, "migrate "+a.cfg.RulesFile)
		if err != nil {
			return fmt.Errorf("backup before writing: %w", err)
		}
	}

	run, err := migrate.NewPipeline(migrate.NewProcessor(mctx), popts, a.logger).Run(ctx, plan.Inputs)
	if err != nil {
		return err
	}
	run.Summary = migrate.Summarize(run.Results, plan.Invalid)

	if manifest != nil {
		written := make(map[string][]byte)
		for _, r := range run.Results {
			if r.Written {
				written[r.Path] = r.Output
			}
		}
		if err := svc.Finalize(manifest.ID, written); err != nil {
			a.logger.Warn("failed to record written files in backup", "id", manifest.ID, "error", err)
		}
	}

	color, _ := useColor(out, opts.color)
	report.FormatPlan(out, run.Results, report.PlanOptions{
		ShowDiff: !opts.yolo || opts.showDiff,
		Color:    color,
	})
	report.FormatSummary(out, run)
	if manifest != nil {
		fmt.Fprintf(out, "\nBackup %s  (migr8 backups restore %s)\n", manifest.ID, manifest.ID)
	}
	return nil
}

// useColor resolves a --color mode for w. auto colors only a terminal and
// honors NO_COLOR.
func useColor(w io.Writer, mode string) (bool, error) {
	switch mode {
	case "always":
		return true, nil
	case "never":
		return false, nil
	case "auto", "":
		if os.Getenv("NO_COLOR") != "" {
			return false, nil
		}
		f, ok := w.(*os.File)
		return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())), nil
	}
	return false, fmt.Errorf("invalid --color %q: want auto, always or never", mode)
}

func printInvalid(w io.Writer, invalid []migrate.InvalidInput) {
	for _, inv := range invalid {
		fmt.Fprintf(w, "  %s: %s\n", inv.Path, strings.Join(inv.Reasons, "; "))
	}
}
