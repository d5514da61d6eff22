package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gnana997/migr8/pkg/graph"
	"github.com/gnana997/migr8/pkg/report"
	"github.com/gnana997/migr8/pkg/rules"
)

func newBuildCmd() *cobra.Command {
	var showProps bool

	cmd := &cobra.Command{
		Use:   "build [root]",
		Short: "Scan the project and write usage reports",
		Long: `Build the project graph for the tracked packages and write
usage-report.json and props-summary.json into the report directory.
A rules template is written next to them when none exists yet.

Packages are given as "pkg" (every component imported from it) or
"pkg:Component".`,
		Args: cobra.MaximumNArgs(1),
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
			g, _, err := a.buildGraph(cmd.Context(), targets)
			if err != nil {
				return err
			}
			defer g.Close()

			summary := graph.Summarize(g)
			rep := report.BuildUsageReport(g, summary)
			if err := report.Save(a.cfg.ReportDir, rep, summary); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			report.FormatBuild(out, rep)
			if showProps {
				fmt.Fprintln(out)
				report.FormatProps(out, summary)
			}
			fmt.Fprintf(out, "\nReports written to %s\n", a.cfg.ReportDir)

			created, err := scaffoldRules(a.cfg.RulesFile, summary, a.root)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(out, "Rules template written to %s\n", a.cfg.RulesFile)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceP("package", "p", nil, "package to track, optionally as pkg:Component (repeatable)")
	cmd.Flags().StringSlice("include", nil, "include globs relative to root")
	cmd.Flags().StringSlice("exclude", nil, "exclude globs relative to root")
	cmd.Flags().Bool("large-codebase", false, "skip files that never mention a tracked package before parsing")
	cmd.Flags().String("rules", "", "rules file to scaffold when missing")
	cmd.Flags().BoolVar(&showProps, "props", false, "print the property names seen per component")
	return cmd
}

// scaffoldRules writes a starter rule file at path unless one exists or
// nothing was found to migrate.
func scaffoldRules(path string, summary *graph.UsageSummary, root string) (bool, error) {
	if summary.Count() == 0 {
		return false, nil
	}
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, err
	}
	if err := rules.Scaffold(summary, root).Save(path); err != nil {
		return false, fmt.Errorf("write rules template: %w", err)
	}
	return true, nil
}
