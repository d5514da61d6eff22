package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gnana997/migr8/pkg/graph"
	"github.com/gnana997/migr8/pkg/parser"
	"github.com/gnana997/migr8/pkg/parser/queries"
	"github.com/gnana997/migr8/pkg/util"
)

// app holds what every command needs: the resolved root and config, the
// logger, and the shared parser and query managers.
type app struct {
	root   string
	cfg    *Config
	logger *slog.Logger
	pm     *parser.ParserManager
	qm     *queries.QueryManager
}

// newApp resolves configuration and starts the shared services. Callers must
// call close.
func newApp(cmd *cobra.Command, args []string) (*app, error) {
	root, cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cmd, cfg)
	pm := parser.NewParserManager(logger)
	return &app{
		root:   root,
		cfg:    cfg,
		logger: logger,
		pm:     pm,
		qm:     queries.NewQueryManager(pm, logger),
	}, nil
}

// resolveConfig applies flag > env > config file > default.
func resolveConfig(cmd *cobra.Command, args []string) (string, *Config, error) {
	root, err := resolveRoot(args)
	if err != nil {
		return "", nil, err
	}
	if err := loadDotenv(root); err != nil {
		return "", nil, err
	}
	cfg, err := loadConfig(root)
	if err != nil {
		return "", nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return "", nil, err
	}
	if err := cfg.applyFlags(cmd); err != nil {
		return "", nil, err
	}
	cfg.resolvePaths(root)
	if err := graph.ValidatePatterns(cfg.Include, cfg.Exclude); err != nil {
		return "", nil, err
	}
	return root, cfg, nil
}

// newLogger writes to the command's stderr so stdout carries only reports.
func newLogger(cmd *cobra.Command, cfg *Config) *slog.Logger {
	logCfg := util.DefaultLoggerConfig()
	if cfg.LogLevel != "" {
		logCfg.Level = util.ParseLogLevel(cfg.LogLevel)
	}
	if cfg.LogFormat != "" {
		logCfg.Format = util.ParseLogFormat(cfg.LogFormat)
	}
	logCfg.Output = cmd.ErrOrStderr()
	return util.NewLogger(logCfg)
}

func (a *app) close() {
	a.qm.Close()
	a.pm.Close()
}

func (a *app) buildOptions(targets []graph.Target) graph.BuildOptions {
	opts := graph.DefaultBuildOptions(a.root, targets)
	if len(a.cfg.Include) > 0 {
		opts.Include = a.cfg.Include
	}
	if len(a.cfg.Exclude) > 0 {
		opts.Exclude = a.cfg.Exclude
	}
	opts.LargeCodebase = a.cfg.LargeCodebase
	opts.MaxFileSize = a.cfg.MaxFileSize
	opts.Workers = a.cfg.Concurrency
	return opts
}

// buildGraph scans the project for targets. The graph must be closed by the
// caller.
func (a *app) buildGraph(ctx context.Context, targets []graph.Target) (*graph.ProjectGraph, *graph.Builder, error) {
	b := graph.NewBuilder(a.pm, a.qm, a.logger)
	g, err := b.Build(ctx, a.buildOptions(targets))
	if err != nil {
		return nil, nil, fmt.Errorf("build project graph: %w", err)
	}
	return g, b, nil
}

// parseTargets reads "package" or "package:Component" entries. The component
// is split at the last colon so scoped packages work unchanged.
func parseTargets(entries []string) ([]graph.Target, error) {
	var targets []graph.Target
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		t := graph.Target{Package: e}
		if i := strings.LastIndex(e, ":"); i >= 0 {
			t = graph.Target{Package: e[:i], Component: e[i+1:]}
		}
		if t.Package == "" {
			return nil, fmt.Errorf("invalid package %q", e)
		}
		targets = append(targets, t)
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("no packages to track: pass --package or set packages in %s", configFile)
	}
	return targets, nil
}
