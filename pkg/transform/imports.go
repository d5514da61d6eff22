package transform

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	ts "github.com/tree-sitter/go-tree-sitter"

	"github.com/gnana997/migr8/pkg/graph"
	"github.com/gnana997/migr8/pkg/parser"
	"github.com/gnana997/migr8/pkg/parser/queries"
	"github.com/gnana997/migr8/pkg/rules"
)

// ImportChangeKind tags an ImportChange.
type ImportChangeKind string

const (
	ImportAdd    ImportChangeKind = "add"
	ImportRemove ImportChangeKind = "remove"
	ImportPrune  ImportChangeKind = "prune"
	ImportKeep   ImportChangeKind = "keep"
)

// ImportChange records one import rewrite, or a removal that was withheld.
type ImportChange struct {
	Kind    ImportChangeKind `json:"kind"`
	Package string           `json:"package"`
	Name    string           `json:"name,omitempty"` // local name, or statement text for adds
	Line    int              `json:"line"`
	Reason  string           `json:"reason,omitempty"`
}

// BindingUse counts how many usages resolved through a binding and how many
// of them were migrated.
type BindingUse struct {
	Binding  graph.ImportBinding
	Total    int
	Migrated int
}

// ImportIntent asks for one spec's imports to be rewritten in a file.
type ImportIntent struct {
	Spec *rules.MigrationSpec
	Uses []BindingUse
}

// ImportRewriter moves migrated components from their source import to the
// target import.
//
// Work happens in two passes. Plan collects every removal and addition
// against the unmodified tree; Commit turns them into edits, pruning
// declarations left empty. Nothing is edited while the tree is being read.
type ImportRewriter struct {
	qm     *queries.QueryManager
	logger *slog.Logger
}

// NewImportRewriter creates a rewriter that uses qm for reference lookups.
func NewImportRewriter(qm *queries.QueryManager, logger *slog.Logger) *ImportRewriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImportRewriter{qm: qm, logger: logger}
}

type importDecl struct {
	node      *ts.Node
	pkg       string
	defaultID *ts.Node
	namespace *ts.Node
	named     *ts.Node
	specs     []*ts.Node
	typeOnly  bool
}

// ImportPlan is the collected intent for one file.
type ImportPlan struct {
	decls    []*importDecl
	removals map[uint]bool // Site.Start of bindings to drop
	adds     []string
	addPkgs  []string
	changes  []ImportChange
	warnings []string
	src      []byte
	root     *ts.Node
}

// Changes returns the recorded changes, including withheld removals.
func (p *ImportPlan) Changes() []ImportChange { return p.changes }

// Warnings returns human-readable notes about withheld rewrites.
func (p *ImportPlan) Warnings() []string { return p.warnings }

// Plan collects the import rewrites for intents. excluded holds the start
// offsets of identifiers that will no longer refer to the old binding once
// the file is rewritten: the tag names of migrated usage sites.
func (r *ImportRewriter) Plan(tree *ts.Tree, grammar parser.Grammar, src []byte, intents []ImportIntent, excluded map[uint]bool) (*ImportPlan, error) {
	root := tree.RootNode()
	plan := &ImportPlan{
		decls:    scanImports(root, src),
		removals: make(map[uint]bool),
		src:      src,
		root:     root,
	}

	refs, err := r.references(tree, grammar, src, plan.decls, excluded)
	if err != nil {
		return nil, err
	}

	for _, intent := range intents {
		spec := intent.Spec
		migrated := 0
		for _, use := range intent.Uses {
			migrated += use.Migrated
		}
		if migrated == 0 || !spec.ImportLegEnabled() {
			continue
		}

		keptLocals := make(map[string]bool)
		for _, use := range intent.Uses {
			b := use.Binding
			reason := ""
			switch {
			case b.Kind == graph.ImportNamespace:
				reason = fmt.Sprintf("namespace import %s is kept", b.LocalName)
			case use.Migrated < use.Total:
				reason = fmt.Sprintf("%d of %d usages of %s were not migrated", use.Total-use.Migrated, use.Total, b.LocalName)
			case refs[b.LocalName] > 0:
				reason = fmt.Sprintf("%s is still referenced %d time(s)", b.LocalName, refs[b.LocalName])
			}
			line := lineAt(src, b.Site.Start)
			if reason != "" {
				keptLocals[b.LocalName] = true
				plan.changes = append(plan.changes, ImportChange{Kind: ImportKeep, Package: b.Package, Name: b.LocalName, Line: line, Reason: reason})
				plan.warnings = append(plan.warnings, fmt.Sprintf("import of %s from %q kept: %s", b.LocalName, b.Package, reason))
				continue
			}
			if !plan.removals[b.Site.Start] {
				plan.removals[b.Site.Start] = true
				plan.changes = append(plan.changes, ImportChange{Kind: ImportRemove, Package: b.Package, Name: b.LocalName, Line: line})
			}
		}

		target := spec.TargetComponent()
		if keptLocals[target] {
			plan.warnings = append(plan.warnings, fmt.Sprintf("target import %q skipped: %s is still bound to %q", spec.ImportTo.Statement, target, spec.Package))
			continue
		}
		plan.addTarget(spec)
	}
	return plan, nil
}

func (p *ImportPlan) addTarget(spec *rules.MigrationSpec) {
	pkg := spec.TargetPackage()
	comp := spec.TargetComponent()
	isDefault := spec.ImportTo.ImportType == "default"

	for _, d := range p.decls {
		if d.pkg != pkg || d.typeOnly {
			continue
		}
		if isDefault {
			if d.defaultID != nil && d.defaultID.Utf8Text(p.src) == comp {
				return
			}
			continue
		}
		for _, s := range d.specs {
			if p.removals[s.StartByte()] {
				continue
			}
			if name := s.ChildByFieldName("name"); name != nil && name.Utf8Text(p.src) == comp {
				return
			}
		}
	}

	stmt := strings.TrimSpace(spec.ImportTo.Statement)
	for _, queued := range p.adds {
		if queued == stmt {
			return
		}
	}
	p.adds = append(p.adds, stmt)
	p.addPkgs = append(p.addPkgs, pkg)
}

// Commit queues the planned edits on doc.
func (p *ImportPlan) Commit(doc *Document) {
	for _, d := range p.decls {
		p.commitDecl(doc, d)
	}
	if len(p.adds) == 0 {
		return
	}

	at, prefix, suffix := p.insertionPoint()
	doc.Insert(at, prefix+strings.Join(p.adds, "\n")+suffix)
	line := lineAt(p.src, at)
	for i, stmt := range p.adds {
		p.changes = append(p.changes, ImportChange{Kind: ImportAdd, Package: p.addPkgs[i], Name: stmt, Line: line})
	}
}

func (p *ImportPlan) commitDecl(doc *Document, d *importDecl) {
	removedDefault := d.defaultID != nil && p.removals[d.defaultID.StartByte()]
	removedSpecs := make([]bool, len(d.specs))
	anySpec, keptSpecs := false, 0
	for i, s := range d.specs {
		removedSpecs[i] = p.removals[s.StartByte()]
		if removedSpecs[i] {
			anySpec = true
		} else {
			keptSpecs++
		}
	}
	if !removedDefault && !anySpec {
		return
	}

	keepsDefault := d.defaultID != nil && !removedDefault
	if !keepsDefault && keptSpecs == 0 && d.namespace == nil {
		end := d.node.EndByte()
		if int(end) < len(p.src) && p.src[end] == '\n' {
			end++
		} else if int(end)+1 < len(p.src) && p.src[end] == '\r' && p.src[end+1] == '\n' {
			end += 2
		}
		doc.Delete(d.node.StartByte(), end)
		p.changes = append(p.changes, ImportChange{Kind: ImportPrune, Package: d.pkg, Line: lineAt(p.src, d.node.StartByte())})
		return
	}

	if anySpec {
		if keptSpecs == 0 {
			// Only the default binding survives: drop ", { ... }".
			doc.Delete(d.defaultID.EndByte(), d.named.EndByte())
		} else {
			deleteSpecifierRuns(doc, d.specs, removedSpecs)
		}
	}
	if removedDefault {
		// "Card, { X }" -> "{ X }", "Card, * as NS" -> "* as NS"
		if next := d.defaultID.NextNamedSibling(); next != nil {
			doc.Delete(d.defaultID.StartByte(), next.StartByte())
		}
	}
}

// deleteSpecifierRuns removes each maximal run of removed specifiers along
// with one adjacent separator.
func deleteSpecifierRuns(doc *Document, specs []*ts.Node, removed []bool) {
	n := len(specs)
	for i := 0; i < n; {
		if !removed[i] {
			i++
			continue
		}
		j := i
		for j+1 < n && removed[j+1] {
			j++
		}
		if j+1 < n {
			doc.Delete(specs[i].StartByte(), specs[j+1].StartByte())
		} else {
			doc.Delete(specs[i-1].EndByte(), specs[j].EndByte())
		}
		i = j + 1
	}
}

// insertionPoint places new imports before the first import, or after a
// directive prologue ("use client") or hashbang when there are none.
func (p *ImportPlan) insertionPoint() (uint, string, string) {
	if len(p.decls) > 0 {
		return p.decls[0].node.StartByte(), "", "\n"
	}
	var after *ts.Node
	for i := uint(0); i < p.root.NamedChildCount(); i++ {
		child := p.root.NamedChild(i)
		if child.Kind() == "hash_bang_line" || isDirective(child) {
			after = child
			continue
		}
		if child.Kind() == "comment" && after == nil {
			continue
		}
		break
	}
	if after != nil {
		return after.EndByte(), "\n", ""
	}
	return 0, "", "\n"
}

func isDirective(node *ts.Node) bool {
	if node.Kind() != "expression_statement" {
		return false
	}
	first := node.NamedChild(0)
	return first != nil && first.Kind() == "string"
}

// references counts, per identifier text, reads that are outside import
// declarations and not in excluded.
func (r *ImportRewriter) references(tree *ts.Tree, grammar parser.Grammar, src []byte, decls []*importDecl, excluded map[uint]bool) (map[string]int, error) {
	matches, err := r.qm.Run(tree, grammar, queries.QueryTypeReferences, src)
	if err != nil {
		return nil, fmt.Errorf("reference query: %w", err)
	}
	ranges := make([][2]uint, len(decls))
	for i, d := range decls {
		ranges[i] = [2]uint{d.node.StartByte(), d.node.EndByte()}
	}
	inImport := func(pos uint) bool {
		k := sort.Search(len(ranges), func(i int) bool { return ranges[i][1] > pos })
		return k < len(ranges) && ranges[k][0] <= pos
	}

	counts := make(map[string]int)
	for _, m := range matches {
		for _, c := range m.Captures {
			start := c.Node.StartByte()
			if excluded[start] || inImport(start) {
				continue
			}
			counts[c.Text]++
		}
	}
	return counts, nil
}

// scanImports reads the top-level import declarations in source order.
func scanImports(root *ts.Node, src []byte) []*importDecl {
	var decls []*importDecl
	for i := uint(0); i < root.NamedChildCount(); i++ {
		stmt := root.NamedChild(i)
		if stmt.Kind() != "import_statement" {
			continue
		}
		d := &importDecl{node: stmt}
		if source := stmt.ChildByFieldName("source"); source != nil {
			d.pkg = strings.Trim(source.Utf8Text(src), `"'`)
		}
		for j := uint(0); j < stmt.ChildCount(); j++ {
			switch c := stmt.Child(j); c.Kind() {
			case "type", "typeof":
				d.typeOnly = true
			case "import_clause":
				readClause(d, c)
			}
		}
		decls = append(decls, d)
	}
	return decls
}

func readClause(d *importDecl, clause *ts.Node) {
	for k := uint(0); k < clause.ChildCount(); k++ {
		c := clause.Child(k)
		switch c.Kind() {
		case "identifier":
			d.defaultID = c
		case "namespace_import":
			d.namespace = c
		case "named_imports":
			d.named = c
			for m := uint(0); m < c.ChildCount(); m++ {
				if s := c.Child(m); s.Kind() == "import_specifier" {
					d.specs = append(d.specs, s)
				}
			}
		}
	}
}

func lineAt(src []byte, pos uint) int {
	if int(pos) > len(src) {
		pos = uint(len(src))
	}
	return strings.Count(string(src[:pos]), "\n") + 1
}
