// Package rules loads migration rule files and matches usage properties
// against their ordered rule lists.
package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/gnana997/migr8/pkg/graph"
	"github.com/gnana997/migr8/pkg/util"
)

// RuleSet is a validated rule file with its lookup index.
type RuleSet struct {
	File *RuleFile
	Path string

	bySpec map[graph.Target]*MigrationSpec
}

var validImportTypes = map[string]bool{
	"":        true,
	"named":   true,
	"default": true,
}

// Validate checks the rule file for internal consistency.
// Returns a slice of validation errors (empty slice if valid). Malformed
// match clauses are not reported here; they surface as MatchConfigErrors
// when the rule is evaluated.
func (f *RuleFile) Validate() []error {
	var problems []error
	seen := make(map[graph.Target]bool, len(f.Specs))

	for i := range f.Specs {
		spec := &f.Specs[i]
		if spec.Package == "" {
			problems = append(problems, fmt.Errorf("migr8rules[%d]: package is required", i))
			continue
		}
		if spec.Component == "" {
			problems = append(problems, fmt.Errorf("migr8rules[%d]: component is required", i))
			continue
		}
		if seen[spec.Target()] {
			problems = append(problems, fmt.Errorf("spec %q: duplicate package/component", spec.Key()))
			continue
		}
		seen[spec.Target()] = true

		if !validImportTypes[spec.ImportType] && !IsPlaceholder(spec.ImportType) {
			problems = append(problems, fmt.Errorf("spec %q: invalid importType %q (must be named/default)", spec.Key(), spec.ImportType))
		}
		if !validImportTypes[spec.ImportTo.ImportType] && !IsPlaceholder(spec.ImportTo.ImportType) {
			problems = append(problems, fmt.Errorf("spec %q: invalid importTo.importType %q (must be named/default)", spec.Key(), spec.ImportTo.ImportType))
		}
		if spec.ImportLegEnabled() && spec.TargetPackage() == "" {
			problems = append(problems, fmt.Errorf("spec %q: importTo.importStm has no module specifier", spec.Key()))
		}

		for j := range spec.Rules {
			problems = append(problems, validateRule(spec, j)...)
		}
	}
	return problems
}

func validateRule(spec *MigrationSpec, j int) []error {
	var problems []error
	rule := &spec.Rules[j]
	where := fmt.Sprintf("spec %q rules[%d]", spec.Key(), j)

	for k, name := range rule.Remove {
		if name == "" {
			problems = append(problems, fmt.Errorf("%s remove[%d]: name is required", where, k))
		}
	}
	if rule.Rename != nil {
		for _, p := range rule.Rename.Pairs {
			if p.From == "" || p.To == "" {
				problems = append(problems, fmt.Errorf("%s rename: empty name in %q -> %q", where, p.From, p.To))
			}
		}
	}
	if rule.Set != nil {
		for _, a := range rule.Set.Entries {
			if a.Name == "" {
				problems = append(problems, fmt.Errorf("%s set: name is required", where))
			}
		}
	}
	if r := rule.ReplaceWith; r != nil {
		if r.Name == "" {
			problems = append(problems, fmt.Errorf("%s replaceWith: name is required", where))
		}
		if r.ChildSlot != nil && r.ChildSlot.Name == "" {
			problems = append(problems, fmt.Errorf("%s replaceWith.childSlot: name is required", where))
		}
	}
	return problems
}

// BuildIndex creates the (package, component) lookup.
// Should be called after Validate() passes.
func (f *RuleFile) BuildIndex() map[graph.Target]*MigrationSpec {
	idx := make(map[graph.Target]*MigrationSpec, len(f.Specs))
	for i := range f.Specs {
		idx[f.Specs[i].Target()] = &f.Specs[i]
	}
	return idx
}

// LoadFromFile loads a rule file from JSON, validates it and builds the
// index.
func LoadFromFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}
	rs, err := LoadFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	rs.Path = path
	return rs, nil
}

// LoadFromBytes parses a rule file from raw JSON bytes, validates it and
// builds the index.
func LoadFromBytes(data []byte) (*RuleSet, error) {
	var file RuleFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rule file JSON: %w", err)
	}
	if problems := file.Validate(); len(problems) > 0 {
		return nil, fmt.Errorf("rule file validation failed: %w", errors.Join(problems...))
	}
	return &RuleSet{File: &file, bySpec: file.BuildIndex()}, nil
}

// New wraps an in-memory rule file. It runs the same validation as
// LoadFromBytes.
func New(file *RuleFile) (*RuleSet, error) {
	if problems := file.Validate(); len(problems) > 0 {
		return nil, fmt.Errorf("rule file validation failed: %w", errors.Join(problems...))
	}
	return &RuleSet{File: file, bySpec: file.BuildIndex()}, nil
}

// Specs returns the specs in file order.
func (rs *RuleSet) Specs() []*MigrationSpec {
	out := make([]*MigrationSpec, len(rs.File.Specs))
	for i := range rs.File.Specs {
		out[i] = &rs.File.Specs[i]
	}
	return out
}

// SpecFor returns the spec for (pkg, component).
func (rs *RuleSet) SpecFor(pkg, component string) (*MigrationSpec, bool) {
	spec, ok := rs.bySpec[graph.Target{Package: pkg, Component: component}]
	return spec, ok
}

// Targets returns the tracked pairs for a graph build.
func (rs *RuleSet) Targets() []graph.Target {
	out := make([]graph.Target, 0, len(rs.File.Specs))
	for i := range rs.File.Specs {
		out = append(out, rs.File.Specs[i].Target())
	}
	return out
}

// RuleCount returns the total number of rules across specs.
func (rs *RuleSet) RuleCount() int {
	n := 0
	for i := range rs.File.Specs {
		n += len(rs.File.Specs[i].Rules)
	}
	return n
}

// Scaffold generates a starter rule file from a usage summary: one spec per
// (package, component) with placeholder import targets and a single
// catch-all rule. Authors fill in the TODO: values and add specific rules
// above the catch-all.
func Scaffold(summary *graph.UsageSummary, root string) *RuleFile {
	file := &RuleFile{Lookup: Lookup{RootPath: root}}
	seenComponents := make(map[string]bool)
	for _, pkg := range summary.PackageNames() {
		file.Lookup.Packages = append(file.Lookup.Packages, pkg)
		for _, comp := range summary.Components(pkg) {
			if !seenComponents[comp] {
				seenComponents[comp] = true
				file.Lookup.Components = append(file.Lookup.Components, comp)
			}
			file.Specs = append(file.Specs, MigrationSpec{
				Package:    pkg,
				Component:  comp,
				ImportType: "named",
				ImportTo: ImportTarget{
					Statement:  PlaceholderPrefix + " import { " + comp + " } from \"<target package>\"",
					ImportType: PlaceholderPrefix + " named|default",
					Component:  PlaceholderPrefix + " " + comp,
				},
				Rules: []MigrationRule{{Order: 1, Match: []Clause{}}},
			})
		}
	}
	return file
}

// Save writes the rule file as indented JSON.
func (f *RuleFile) Save(path string) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode rule file: %w", err)
	}
	return util.WriteFileAtomic(path, append(data, '\n'), 0o644)
}
