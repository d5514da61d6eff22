package migrate

import (
	"fmt"
	"sort"

	"github.com/gnana997/migr8/pkg/graph"
	"github.com/gnana997/migr8/pkg/parser"
	"github.com/gnana997/migr8/pkg/rules"
)

// ComponentInput is one (component, package) pair in a file with all of its
// usage sites.
type ComponentInput struct {
	Component string
	Package   string
	Spec      *rules.MigrationSpec
	Usages    []graph.ComponentUsage
}

// FileInput is everything the processor needs for one file. Inputs are
// disjoint: no two share a path.
type FileInput struct {
	Path       string
	RelPath    string
	Grammar    parser.Grammar
	Source     []byte
	File       *graph.File
	Components []ComponentInput

	// Warnings name components dropped from the input because no rule
	// applies to them. The processor carries them into its result.
	Warnings []string
}

// UsageCount returns the number of usage sites across components.
func (in *FileInput) UsageCount() int {
	n := 0
	for _, c := range in.Components {
		n += len(c.Usages)
	}
	return n
}

// InvalidInput is a file that failed validation, with every reason found.
type InvalidInput struct {
	Path    string   `json:"path"`
	Reasons []string `json:"reasons"`
}

// Aggregation is the aggregator's output.
type Aggregation struct {
	Inputs  []FileInput
	Invalid []InvalidInput
}

// Aggregator groups usages into one FileInput per file.
type Aggregator struct {
	ctx *Context
}

// NewAggregator creates an aggregator over ctx's graph and rules.
func NewAggregator(ctx *Context) *Aggregator {
	return &Aggregator{ctx: ctx}
}

// FromGraph aggregates every usage in the graph that has a rule spec.
func (a *Aggregator) FromGraph() *Aggregation {
	mapping := make(map[string][]graph.ComponentUsage)
	for _, f := range a.ctx.Graph.Files() {
		mapping[f.Path] = append(mapping[f.Path], f.Usages...)
	}
	return a.FromMapping(mapping)
}

// FromSummary aggregates the usages listed in a usage summary, resolving
// each record against the graph by file and span.
func (a *Aggregator) FromSummary(summary *graph.UsageSummary) *Aggregation {
	mapping := make(map[string][]graph.ComponentUsage)
	var invalid []InvalidInput
	missing := make(map[string][]string)

	for _, pkg := range summary.PackageNames() {
		for _, comp := range summary.Components(pkg) {
			for _, rec := range summary.Usages(pkg, comp) {
				f, ok := a.ctx.Graph.File(rec.File)
				if !ok {
					missing[rec.File] = append(missing[rec.File], fmt.Sprintf("%s usage at %s: file not in project graph", comp, rec.Position))
					continue
				}
				u, ok := findUsage(f, pkg, comp, rec.Start, rec.End)
				if !ok {
					missing[f.Path] = append(missing[f.Path], fmt.Sprintf("%s usage at %s: no matching usage site", comp, rec.Position))
					continue
				}
				mapping[f.Path] = append(mapping[f.Path], u)
			}
		}
	}

	agg := a.FromMapping(mapping)
	for path, reasons := range missing {
		invalid = append(invalid, InvalidInput{Path: path, Reasons: reasons})
	}
	agg.Invalid = append(agg.Invalid, invalid...)
	sortInvalid(agg.Invalid)
	return agg
}

func findUsage(f *graph.File, pkg, comp string, start, end uint) (graph.ComponentUsage, bool) {
	for _, u := range f.Usages {
		if u.Package == pkg && u.Component == comp && u.Site.Start == start && u.Site.End == end {
			return u, true
		}
	}
	return graph.ComponentUsage{}, false
}

// FromMapping aggregates a prebuilt file → usages mapping. Duplicate usage
// sites are collapsed, and components are merged by (component, package).
func (a *Aggregator) FromMapping(mapping map[string][]graph.ComponentUsage) *Aggregation {
	paths := make([]string, 0, len(mapping))
	for p := range mapping {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	agg := &Aggregation{}
	for _, path := range paths {
		in, reasons := a.buildInput(path, mapping[path])
		if len(reasons) > 0 {
			agg.Invalid = append(agg.Invalid, InvalidInput{Path: path, Reasons: reasons})
			continue
		}
		agg.Inputs = append(agg.Inputs, in)
	}
	sortInvalid(agg.Invalid)
	return agg
}

type componentKey struct {
	component string
	pkg       string
}

func (a *Aggregator) buildInput(path string, usages []graph.ComponentUsage) (FileInput, []string) {
	var reasons []string
	if path == "" {
		return FileInput{}, []string{"file path is empty"}
	}

	f, ok := a.ctx.Graph.File(path)
	if !ok {
		return FileInput{}, []string{"file not in project graph"}
	}
	in := FileInput{Path: f.Path, RelPath: f.RelPath, Grammar: f.Grammar, Source: f.Source, File: f}
	if f.Source == nil {
		reasons = append(reasons, "original text missing")
	}
	if !a.ctx.Graph.HasTree(f.Path) && !f.Grammar.SupportsJSX() {
		reasons = append(reasons, "no parsed tree and grammar cannot hold markup")
	}

	index := make(map[componentKey]int)
	seen := make(map[[2]uint]bool)
	for _, u := range usages {
		span := [2]uint{u.Site.Start, u.Site.End}
		if seen[span] {
			continue
		}
		seen[span] = true

		key := componentKey{component: u.Component, pkg: u.Package}
		i, ok := index[key]
		if !ok {
			spec, _ := a.ctx.Rules.SpecFor(u.Package, u.Component)
			in.Components = append(in.Components, ComponentInput{Component: u.Component, Package: u.Package, Spec: spec})
			i = len(in.Components) - 1
			index[key] = i
		}
		in.Components[i].Usages = append(in.Components[i].Usages, u)
	}

	if len(in.Components) == 0 {
		reasons = append(reasons, "no component usages")
	}
	var dropped []string
	kept := in.Components[:0]
	for _, c := range in.Components {
		if c.Spec == nil || len(c.Spec.Rules) == 0 {
			dropped = append(dropped, fmt.Sprintf("%s from %q: no rules", c.Component, c.Package))
			continue
		}
		sort.Slice(c.Usages, func(i, j int) bool { return c.Usages[i].Site.Start < c.Usages[j].Site.Start })
		kept = append(kept, c)
	}
	in.Components = kept

	// A file is only invalid when nothing in it can be migrated. Components
	// without rules are dropped from an otherwise valid input and reported
	// as warnings.
	if len(in.Components) > 0 && f.Source != nil {
		in.Warnings = dropped
		return in, nil
	}
	return in, append(reasons, dropped...)
}

func sortInvalid(invalid []InvalidInput) {
	sort.Slice(invalid, func(i, j int) bool { return invalid[i].Path < invalid[j].Path })
}
