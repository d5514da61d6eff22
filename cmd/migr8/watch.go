package main

import (
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/gnana997/migr8/pkg/graph"
	"github.com/gnana997/migr8/pkg/report"
)

func newWatchCmd() *cobra.Command {
	var debounceMs int

	cmd := &cobra.Command{
		Use:   "watch [root]",
		Short: "Keep the usage reports current while files change",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, args)
			if err != nil {
				return err
			}
			defer a.close()

			targets, err := parseTargets(a.cfg.Packages)
			if err != nil {
				return err
			}
			g, b, err := a.buildGraph(cmd.Context(), targets)
			if err != nil {
				return err
			}
			defer g.Close()

			out := cmd.OutOrStdout()
			var mu sync.Mutex
			save := func() error {
				mu.Lock()
				defer mu.Unlock()
				summary := graph.Summarize(g)
				return report.Save(a.cfg.ReportDir, report.BuildUsageReport(g, summary), summary)
			}
			if err := save(); err != nil {
				return err
			}
			fmt.Fprintf(out, "Watching %s (%d usages)\n", a.root, g.Stats().Usages)

			bopts := a.buildOptions(targets)
			w, err := graph.NewWatcher(b, g, graph.WatchOptions{
				DebounceMs: debounceMs,
				Include:    bopts.Include,
				Exclude:    bopts.Exclude,
				OnChange: func(path string, err error) {
					if err != nil {
						a.logger.Warn("refresh failed", "file", path, "error", err)
						return
					}
					if err := save(); err != nil {
						a.logger.Warn("failed to save reports", "error", err)
						return
					}
					a.logger.Info("reports updated", "file", g.Rel(path))
				},
			}, a.logger)
			if err != nil {
				return err
			}
			if err := w.Start(); err != nil {
				return err
			}
			defer w.Stop()

			<-cmd.Context().Done()
			return nil
		},
	}

	cmd.Flags().StringSliceP("package", "p", nil, "package to track, optionally as pkg:Component (repeatable)")
	cmd.Flags().StringSlice("include", nil, "include globs relative to root")
	cmd.Flags().StringSlice("exclude", nil, "exclude globs relative to root")
	cmd.Flags().IntVar(&debounceMs, "debounce", 200, "milliseconds to wait for a file to settle")
	return cmd
}
