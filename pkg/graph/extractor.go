package graph

import (
	"fmt"
	"log/slog"
	"sort"

	ts "github.com/tree-sitter/go-tree-sitter"

	"github.com/gnana997/migr8/pkg/parser/queries"
)

// Extractor pulls tracked import bindings and usage sites out of one parsed
// file. It holds no per-file state and is safe for concurrent use.
type Extractor struct {
	qm     *queries.QueryManager
	logger *slog.Logger
}

// NewExtractor creates an extractor backed by qm's compiled queries.
func NewExtractor(qm *queries.QueryManager, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{qm: qm, logger: logger}
}

// Extract fills file.Bindings and file.Usages from tree.
func (e *Extractor) Extract(tree *ts.Tree, file *File, tracker *Tracker) error {
	bindings, err := e.ExtractImports(tree, file, tracker)
	if err != nil {
		return err
	}
	file.Bindings = bindings
	if len(bindings) == 0 {
		file.Usages = nil
		return nil
	}

	usages, err := e.ExtractUsages(tree, file, tracker)
	if err != nil {
		return err
	}
	file.Usages = usages
	return nil
}

// ExtractImports returns the bindings in file whose package and component
// are tracked. Type-only imports are skipped.
func (e *Extractor) ExtractImports(tree *ts.Tree, file *File, tracker *Tracker) ([]ImportBinding, error) {
	matches, err := e.qm.Run(tree, file.Grammar, queries.QueryTypeImports, file.Source)
	if err != nil {
		return nil, fmt.Errorf("import query: %w", err)
	}

	var bindings []ImportBinding
	for _, m := range matches {
		stmtCap := m.Capture("import.statement")
		srcCap := m.Capture("import.source")
		if stmtCap == nil || srcCap == nil {
			continue
		}
		pkg := srcCap.Text
		if !tracker.TracksPackage(pkg) {
			continue
		}
		stmt := stmtCap.Node
		if hasChildOfKind(stmt, "type") || hasChildOfKind(stmt, "typeof") {
			continue
		}
		clause := childOfKind(stmt, "import_clause")
		if clause == nil {
			continue
		}

		base := ImportBinding{
			FilePath:  file.Path,
			Package:   pkg,
			Statement: RefOf(file.ID, stmt),
		}
		bindings = append(bindings, e.clauseBindings(clause, base, file, tracker)...)
	}
	return bindings, nil
}

func (e *Extractor) clauseBindings(clause *ts.Node, base ImportBinding, file *File, tracker *Tracker) []ImportBinding {
	var out []ImportBinding
	src := file.Source

	for i := uint(0); i < clause.ChildCount(); i++ {
		child := clause.Child(i)
		switch child.Kind() {
		case "identifier":
			// import Button from "..."
			local := child.Utf8Text(src)
			if tracker.Tracks(base.Package, local) {
				b := base
				b.Kind = ImportDefault
				b.LocalName = local
				b.ImportedName = "default"
				b.Site = RefOf(file.ID, child)
				out = append(out, b)
			}

		case "namespace_import":
			// import * as UI from "..."
			id := childOfKind(child, "identifier")
			if id == nil {
				continue
			}
			b := base
			b.Kind = ImportNamespace
			b.LocalName = id.Utf8Text(src)
			b.ImportedName = "*"
			b.Site = RefOf(file.ID, child)
			out = append(out, b)

		case "named_imports":
			for j := uint(0); j < child.ChildCount(); j++ {
				spec := child.Child(j)
				if spec.Kind() != "import_specifier" || hasChildOfKind(spec, "type") || hasChildOfKind(spec, "typeof") {
					continue
				}
				nameNode := spec.ChildByFieldName("name")
				if nameNode == nil {
					continue
				}
				imported := nameNode.Utf8Text(src)
				if nameNode.Kind() == "string" {
					imported = stringContent(nameNode, src)
				}
				local := imported
				if alias := spec.ChildByFieldName("alias"); alias != nil {
					local = alias.Utf8Text(src)
				}
				if imported == "default" {
					// import { default as Button } from "..."
					if !tracker.Tracks(base.Package, local) {
						continue
					}
				} else if !tracker.Tracks(base.Package, imported) {
					continue
				}
				b := base
				b.Kind = ImportNamed
				b.LocalName = local
				b.ImportedName = imported
				b.Site = RefOf(file.ID, spec)
				out = append(out, b)
			}
		}
	}
	return out
}

// ExtractUsages returns usage sites in file whose tag resolves through
// file.Bindings to a tracked component. Unresolved tags are dropped.
func (e *Extractor) ExtractUsages(tree *ts.Tree, file *File, tracker *Tracker) ([]ComponentUsage, error) {
	if !file.Grammar.SupportsJSX() || len(file.Bindings) == 0 {
		return nil, nil
	}

	matches, err := e.qm.Run(tree, file.Grammar, queries.QueryTypeElements, file.Source)
	if err != nil {
		return nil, fmt.Errorf("element query: %w", err)
	}

	locals := make(map[string]int)
	namespaces := make(map[string]int)
	for i, b := range file.Bindings {
		if b.Kind == ImportNamespace {
			namespaces[b.LocalName] = i
		} else {
			locals[b.LocalName] = i
		}
	}

	var usages []ComponentUsage
	for _, m := range matches {
		elemCap := m.Capture("jsx.element")
		nameCap := m.Capture("jsx.name")
		if elemCap == nil || nameCap == nil {
			continue
		}

		idx, component, ok := resolveTag(nameCap.Node, file.Source, locals, namespaces)
		if !ok {
			continue
		}
		binding := file.Bindings[idx]
		if component == "" {
			component = binding.Component()
		}
		if !tracker.Tracks(binding.Package, component) {
			continue
		}

		element := elemCap.Node
		props := NewProperties()
		for _, attr := range ReadAttributes(OpeningElement(element), file.Source) {
			if attr.Spread || IsIgnoredProperty(attr.Name) {
				continue
			}
			props.Set(attr.Name, attr.Value)
		}

		start := element.StartPosition()
		usages = append(usages, ComponentUsage{
			FilePath:   file.Path,
			Component:  component,
			Package:    binding.Package,
			Tag:        nameCap.Text,
			Properties: props,
			Position:   Position{Line: int(start.Row) + 1, Column: int(start.Column) + 1},
			Site:       RefOf(file.ID, element),
			Binding:    idx,
		})
	}

	sort.SliceStable(usages, func(i, j int) bool { return usages[i].Site.Start < usages[j].Site.Start })
	return usages, nil
}

// resolveTag maps a tag name node to a binding index and component name.
// Plain identifiers resolve through default and named bindings; one-level
// member tags (<UI.Button>) resolve through namespace bindings.
func resolveTag(name *ts.Node, source []byte, locals, namespaces map[string]int) (int, string, bool) {
	switch name.Kind() {
	case "identifier":
		idx, ok := locals[name.Utf8Text(source)]
		if !ok {
			return 0, "", false
		}
		return idx, "", true
	case "member_expression", "nested_identifier":
		if name.NamedChildCount() != 2 {
			return 0, "", false
		}
		object := name.NamedChild(0)
		property := name.NamedChild(1)
		if object.Kind() != "identifier" {
			return 0, "", false
		}
		idx, ok := namespaces[object.Utf8Text(source)]
		if !ok {
			return 0, "", false
		}
		return idx, property.Utf8Text(source), true
	}
	return 0, "", false
}
