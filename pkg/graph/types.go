package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gnana997/migr8/pkg/parser"
)

// FileID indexes a file in the graph's arena. IDs are stable for the
// lifetime of one graph.
type FileID int

// NodeRef identifies a syntax node by file and byte span instead of by
// pointer, so graph records stay valid across re-parses of the same text.
type NodeRef struct {
	File  FileID `json:"file"`
	Start uint   `json:"start"`
	End   uint   `json:"end"`
	Kind  string `json:"kind"`
}

// Span returns the byte range.
func (r NodeRef) Span() (uint, uint) { return r.Start, r.End }

// ImportKind is the syntactic form of an import binding.
type ImportKind int

const (
	ImportDefault ImportKind = iota
	ImportNamed
	ImportNamespace
)

func (k ImportKind) String() string {
	switch k {
	case ImportDefault:
		return "default"
	case ImportNamed:
		return "named"
	case ImportNamespace:
		return "namespace"
	default:
		return "unknown"
	}
}

// ParseImportKind accepts "default", "named" and "namespace".
func ParseImportKind(s string) (ImportKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "default":
		return ImportDefault, nil
	case "named", "":
		return ImportNamed, nil
	case "namespace":
		return ImportNamespace, nil
	default:
		return 0, fmt.Errorf("unknown import kind %q", s)
	}
}

// ImportBinding maps a local identifier in one file to a package export.
type ImportBinding struct {
	FilePath     string     `json:"file"`
	Package      string     `json:"package"`
	LocalName    string     `json:"local"`
	ImportedName string     `json:"imported"` // "default" for default imports, "*" for namespaces
	Kind         ImportKind `json:"kind"`
	Site         NodeRef    `json:"site"`      // specifier, default identifier or namespace_import
	Statement    NodeRef    `json:"statement"` // enclosing import_statement
}

// Component returns the tracked component name this binding stands for.
// Default imports (including { default as X }) are identified by their
// local name; namespace bindings have no single component.
func (b ImportBinding) Component() string {
	switch b.Kind {
	case ImportNamed:
		if b.ImportedName == "default" {
			return b.LocalName
		}
		return b.ImportedName
	case ImportDefault:
		return b.LocalName
	default:
		return ""
	}
}

// Position is a 1-based line and column.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

func (p Position) String() string { return fmt.Sprintf("%d:%d", p.Line, p.Column) }

// ComponentUsage is one usage site of a tracked component.
type ComponentUsage struct {
	FilePath  string `json:"file"`
	Component string `json:"component"`
	Package   string `json:"package"`
	Tag       string `json:"tag"` // as written, e.g. "Btn" or "UI.Button"

	// Properties excludes IgnoredProperties and spread attributes.
	Properties *Properties `json:"properties"`
	Position   Position    `json:"position"`
	Site       NodeRef     `json:"site"`

	// Binding indexes File.Bindings; the binding must be looked up through
	// the owning file rather than held directly.
	Binding int `json:"binding"`
}

// Target is one tracked (package, component) pair. An empty Component
// tracks every component imported from Package.
type Target struct {
	Package   string `json:"package"`
	Component string `json:"component"`
}

// Tracker answers whether an import or usage is of interest.
type Tracker struct {
	packages map[string]map[string]bool
}

// NewTracker indexes targets.
func NewTracker(targets []Target) *Tracker {
	t := &Tracker{packages: make(map[string]map[string]bool)}
	for _, target := range targets {
		comps, ok := t.packages[target.Package]
		if !ok {
			comps = make(map[string]bool)
			t.packages[target.Package] = comps
		}
		if target.Component == "" {
			comps["*"] = true
		} else {
			comps[target.Component] = true
		}
	}
	return t
}

// TracksPackage reports whether any component of pkg is tracked.
func (t *Tracker) TracksPackage(pkg string) bool {
	_, ok := t.packages[pkg]
	return ok
}

// Tracks reports whether (pkg, component) is tracked.
func (t *Tracker) Tracks(pkg, component string) bool {
	comps, ok := t.packages[pkg]
	if !ok || component == "" {
		return false
	}
	return comps["*"] || comps[component]
}

// Packages returns tracked package names, sorted.
func (t *Tracker) Packages() []string {
	out := make([]string, 0, len(t.packages))
	for pkg := range t.packages {
		out = append(out, pkg)
	}
	sort.Strings(out)
	return out
}

// File is one parsed source file in the arena.
type File struct {
	ID       FileID
	Path     string // absolute
	RelPath  string // slash-separated, relative to the graph root
	Grammar  parser.Grammar
	Source   []byte
	Hash     uint64 // xxh3 of Source
	Bindings []ImportBinding
	Usages   []ComponentUsage
}

// BindingFor returns the binding a usage resolved through.
func (f *File) BindingFor(u ComponentUsage) (ImportBinding, bool) {
	if u.Binding < 0 || u.Binding >= len(f.Bindings) {
		return ImportBinding{}, false
	}
	return f.Bindings[u.Binding], true
}

// Warning is a non-fatal problem found while building the graph.
type Warning struct {
	Path string `json:"path"`
	Err  error  `json:"-"`
	Msg  string `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Path, w.Msg)
}

// BuildStats summarizes one graph build.
type BuildStats struct {
	FilesDiscovered  int   `json:"files_discovered"`
	FilesPrefiltered int   `json:"files_prefiltered"`
	FilesParsed      int   `json:"files_parsed"`
	FilesFailed      int   `json:"files_failed"`
	FilesWithUsages  int   `json:"files_with_usages"`
	Bindings         int   `json:"bindings"`
	Usages           int   `json:"usages"`
	DiscoveryTimeMs  int64 `json:"discovery_ms"`
	ExtractTimeMs    int64 `json:"extract_ms"`
	TotalTimeMs      int64 `json:"total_ms"`
}
