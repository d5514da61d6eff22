// Package report persists the usage reports produced by a graph build and
// renders migration plans and run summaries for the terminal.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gnana997/migr8/pkg/graph"
	"github.com/gnana997/migr8/pkg/util"
)

// File names inside the report directory.
const (
	UsageReportFile  = "usage-report.json"
	PropsSummaryFile = "props-summary.json"
	RulesFile        = "migr8-rules.json"
)

// DefaultDir is the report directory relative to the project root.
const DefaultDir = ".migr8"

// PackageUsage groups one package's usage records by file.
type PackageUsage struct {
	Components []string                       `json:"components"`
	Usages     int                            `json:"usages"`
	Files      map[string][]graph.UsageRecord `json:"files"`
}

// UsageReport is the global usage report: package → file → usages.
type UsageReport struct {
	Root        string                   `json:"root"`
	GeneratedAt time.Time                `json:"generated_at"`
	Packages    map[string]*PackageUsage `json:"packages"`
	Stats       graph.BuildStats         `json:"stats"`
	Warnings    []graph.Warning          `json:"warnings,omitempty"`
}

// BuildUsageReport reduces g and its summary into a UsageReport.
func BuildUsageReport(g *graph.ProjectGraph, summary *graph.UsageSummary) *UsageReport {
	rep := &UsageReport{
		Root:        g.Root,
		GeneratedAt: time.Now().UTC(),
		Packages:    make(map[string]*PackageUsage),
		Stats:       g.Stats(),
		Warnings:    g.Warnings(),
	}
	for _, pkg := range summary.PackageNames() {
		pu := &PackageUsage{Files: make(map[string][]graph.UsageRecord)}
		for _, comp := range summary.Components(pkg) {
			pu.Components = append(pu.Components, comp)
			for _, rec := range summary.Usages(pkg, comp) {
				pu.Files[rec.File] = append(pu.Files[rec.File], rec)
				pu.Usages++
			}
		}
		for _, recs := range pu.Files {
			sort.SliceStable(recs, func(i, j int) bool { return recs[i].Start < recs[j].Start })
		}
		rep.Packages[pkg] = pu
	}
	return rep
}

// Save writes both reports into dir, creating it if needed. Each file is
// replaced atomically.
func Save(dir string, rep *UsageReport, summary *graph.UsageSummary) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	if err := writeJSON(filepath.Join(dir, UsageReportFile), rep); err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, PropsSummaryFile), summary)
}

// LoadUsageReport reads the usage report from dir.
func LoadUsageReport(dir string) (*UsageReport, error) {
	var rep UsageReport
	if err := readJSON(filepath.Join(dir, UsageReportFile), &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

// LoadPropsSummary reads the component props summary from dir.
func LoadPropsSummary(dir string) (*graph.UsageSummary, error) {
	var s graph.UsageSummary
	if err := readJSON(filepath.Join(dir, PropsSummaryFile), &s); err != nil {
		return nil, err
	}
	if s.Packages == nil {
		s.Packages = make(map[string]map[string][]graph.UsageRecord)
	}
	return &s, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	return util.WriteFileAtomic(path, append(data, '\n'), 0o644)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}
