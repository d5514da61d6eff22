package rules

import (
	"regexp"
	"strings"

	"github.com/gnana997/migr8/pkg/graph"
)

// PlaceholderPrefix marks a value the rule author has not filled in yet.
const PlaceholderPrefix = "TODO:"

// IsPlaceholder reports whether s is a TODO: placeholder.
func IsPlaceholder(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), PlaceholderPrefix)
}

// RuleFile is the on-disk migration rule document.
type RuleFile struct {
	Lookup Lookup          `json:"lookup"`
	Specs  []MigrationSpec `json:"migr8rules"`
}

// Lookup records what the rule file was generated from.
type Lookup struct {
	RootPath   string   `json:"rootPath"`
	Packages   []string `json:"packages"`
	Components []string `json:"components"`
}

// MigrationSpec describes one source component to migrate and its ordered
// rule list.
type MigrationSpec struct {
	Package    string          `json:"package"`
	Component  string          `json:"component"`
	ImportType string          `json:"importType"`
	ImportTo   ImportTarget    `json:"importTo"`
	Rules      []MigrationRule `json:"rules"`
}

// ImportTarget is where migrated usages should import from.
type ImportTarget struct {
	Statement  string `json:"importStm"`
	ImportType string `json:"importType"`
	Component  string `json:"component"`
}

// MigrationRule is one entry of a spec's rule list. Rules are tried in list
// order; Order is provenance only.
type MigrationRule struct {
	Order       int          `json:"order"`
	Match       []Clause     `json:"match"`
	Set         *Assignments `json:"set,omitempty"`
	Remove      []string     `json:"remove,omitempty"`
	Rename      *Renames     `json:"rename,omitempty"`
	ReplaceWith *Replacement `json:"replaceWith,omitempty"`
}

// Clause is one condition object. Keys starting with "!" make the clause
// negative.
type Clause map[string]any

// Replacement swaps a whole usage site for a new element.
//
//	{"name": "Stack", "props": {"gap": 2}, "keep": ["onClick"],
//	 "childSlot": {"name": "Stack.Item", "props": {}}}
type Replacement struct {
	Name      string       `json:"name"`
	Props     *Assignments `json:"props,omitempty"`
	Keep      []string     `json:"keep,omitempty"`
	ChildSlot *ChildSlot   `json:"childSlot,omitempty"`
}

// ChildSlot wraps the original children of a replaced element.
type ChildSlot struct {
	Name  string       `json:"name"`
	Props *Assignments `json:"props,omitempty"`
}

// Key returns "package/component".
func (s *MigrationSpec) Key() string {
	return s.Package + "/" + s.Component
}

// Target returns the tracked pair this spec applies to.
func (s *MigrationSpec) Target() graph.Target {
	return graph.Target{Package: s.Package, Component: s.Component}
}

// HasPlaceholderTarget reports whether any part of the import target is
// still a TODO: placeholder.
func (s *MigrationSpec) HasPlaceholderTarget() bool {
	return IsPlaceholder(s.ImportType) ||
		IsPlaceholder(s.ImportTo.Statement) ||
		IsPlaceholder(s.ImportTo.ImportType) ||
		IsPlaceholder(s.ImportTo.Component)
}

// ImportLegEnabled reports whether imports and replacements should be
// rewritten. Property-only rules apply either way.
func (s *MigrationSpec) ImportLegEnabled() bool {
	return !s.HasPlaceholderTarget() && strings.TrimSpace(s.ImportTo.Statement) != ""
}

// TargetComponent is the component name usages carry after migration.
func (s *MigrationSpec) TargetComponent() string {
	if s.ImportTo.Component != "" && !IsPlaceholder(s.ImportTo.Component) {
		return s.ImportTo.Component
	}
	return s.Component
}

var fromClause = regexp.MustCompile(`from\s*['"]([^'"]+)['"]`)

// TargetPackage extracts the module specifier from the target import
// statement, or "" when it has none.
func (s *MigrationSpec) TargetPackage() string {
	m := fromClause.FindStringSubmatch(s.ImportTo.Statement)
	if m == nil {
		return ""
	}
	return m[1]
}

// IsNoop reports whether the rule changes nothing when it matches.
func (r *MigrationRule) IsNoop() bool {
	return r.ReplaceWith == nil && len(r.Remove) == 0 && r.Set.Len() == 0 && r.Rename.Len() == 0
}
