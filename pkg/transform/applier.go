package transform

import (
	"fmt"
	"strings"

	ts "github.com/tree-sitter/go-tree-sitter"

	"github.com/gnana997/migr8/pkg/errs"
	"github.com/gnana997/migr8/pkg/graph"
	"github.com/gnana997/migr8/pkg/rules"
)

// ChangeKind tags a PropChange.
type ChangeKind string

const (
	ChangeAdd     ChangeKind = "add"
	ChangeRemove  ChangeKind = "remove"
	ChangeRename  ChangeKind = "rename"
	ChangeUpdate  ChangeKind = "update"
	ChangeReplace ChangeKind = "replaceComponent"
)

// PropChange records one mutation at a usage site. Values are source text.
type PropChange struct {
	Kind     ChangeKind `json:"kind"`
	OldName  string     `json:"old_name,omitempty"`
	NewName  string     `json:"new_name,omitempty"`
	OldValue string     `json:"old_value,omitempty"`
	NewValue string     `json:"new_value,omitempty"`
	Line     int        `json:"line"`
}

// SiteOptions describes how one usage site may be rewritten.
type SiteOptions struct {
	// Path and Component identify the site in errors.
	Path      string
	Component string

	// NewTag renames the element's tag when non-empty and different.
	NewTag string

	// AllowReplace permits replaceWith rules. It is false while the spec's
	// import target is still a placeholder.
	AllowReplace bool
}

// SiteResult is the outcome of applying one rule to one site.
type SiteResult struct {
	Changes []PropChange

	// OldTag and NewTag are set when the tag was renamed.
	OldTag string
	NewTag string

	Replaced bool

	// Migrated reports that the site now belongs to the target import.
	Migrated bool

	Warnings []string
	Err      error
}

type slot struct {
	attr    *graph.Attribute // nil for attributes added by set
	name    string
	value   graph.PropertyValue
	removed bool
	renamed bool
	render  *string
}

// ApplyRule queues the edits rule makes at element. Operations run in the
// order remove, rename, set. A site whose operations fail is left untouched
// and the failure is returned in SiteResult.Err.
func ApplyRule(doc *Document, element *ts.Node, rule *rules.MigrationRule, opts SiteOptions) SiteResult {
	var res SiteResult
	if rule == nil || rule.IsNoop() {
		return res
	}
	fail := func(op string, cause error) SiteResult {
		return SiteResult{Err: &errs.TransformationError{Path: opts.Path, Component: opts.Component, Op: op, Cause: cause}}
	}

	opening := graph.OpeningElement(element)
	if opening == nil {
		return fail("locate", fmt.Errorf("%s at byte %d is not an element", element.Kind(), element.StartByte()))
	}
	src := doc.Source()

	if rule.ReplaceWith != nil {
		if !opts.AllowReplace {
			res.Warnings = append(res.Warnings, fmt.Sprintf("line %d: replaceWith skipped, import target is a placeholder", lineOf(element)))
			return res
		}
		change, err := replaceElement(doc, element, opening, rule.ReplaceWith)
		if err != nil {
			return fail("replaceWith", err)
		}
		res.Changes = append(res.Changes, change)
		res.Replaced = true
		res.Migrated = true
		return res
	}

	attrs := graph.ReadAttributes(opening, src)
	slots := make([]*slot, 0, len(attrs)+rule.Set.Len())
	for i := range attrs {
		slots = append(slots, &slot{attr: &attrs[i], name: attrs[i].Name, value: attrs[i].Value})
	}
	find := func(name string) *slot {
		for _, s := range slots {
			if !s.removed && s.name == name && (s.attr == nil || !s.attr.Spread) {
				return s
			}
		}
		return nil
	}

	for _, name := range rule.Remove {
		s := find(name)
		if s == nil {
			continue
		}
		s.removed = true
		res.Changes = append(res.Changes, PropChange{
			Kind: ChangeRemove, OldName: name, OldValue: s.sourceValue(src), Line: lineOf(s.attr.Node),
		})
	}

	if rule.Rename != nil {
		for _, p := range rule.Rename.Pairs {
			s := find(p.From)
			if s == nil || p.From == p.To {
				continue
			}
			if find(p.To) != nil {
				return fail("rename", fmt.Errorf("%s -> %s: target property already present", p.From, p.To))
			}
			s.name = p.To
			s.renamed = true
			res.Changes = append(res.Changes, PropChange{
				Kind: ChangeRename, OldName: p.From, NewName: p.To, OldValue: s.sourceValue(src), NewValue: s.sourceValue(src), Line: lineOf(s.attr.Node),
			})
		}
	}

	if rule.Set != nil {
		for _, a := range rule.Set.Entries {
			want := AssignedValue(a.Value)
			rendered := RenderValue(a.Value)
			if s := find(a.Name); s != nil {
				if sameValue(s.value, want) {
					continue
				}
				old := s.sourceValue(src)
				s.value = want
				s.render = &rendered
				line := lineOf(opening)
				if s.attr != nil {
					line = lineOf(s.attr.Node)
				}
				res.Changes = append(res.Changes, PropChange{
					Kind: ChangeUpdate, OldName: a.Name, NewName: a.Name, OldValue: old, NewValue: rendered, Line: line,
				})
				continue
			}
			slots = append(slots, &slot{name: a.Name, value: want, render: &rendered})
			res.Changes = append(res.Changes, PropChange{
				Kind: ChangeAdd, NewName: a.Name, NewValue: rendered, Line: lineOf(opening),
			})
		}
	}

	// All operations succeeded; queue the edits.
	var added []*slot
	for _, s := range slots {
		if s.attr == nil {
			added = append(added, s)
			continue
		}
		a := s.attr
		if s.removed {
			doc.Delete(prevEnd(a.Node), a.Node.EndByte())
			continue
		}
		if s.renamed {
			doc.Replace(a.NameNode.StartByte(), a.NameNode.EndByte(), s.name)
		}
		if s.render != nil {
			if a.ValueNode != nil {
				doc.Replace(a.ValueNode.StartByte(), a.ValueNode.EndByte(), *s.render)
			} else {
				doc.Insert(a.NameNode.EndByte(), "="+*s.render)
			}
		}
	}
	if len(added) > 0 {
		at, sep := insertionPoint(opening, attrs, src)
		var b strings.Builder
		for _, s := range added {
			b.WriteString(sep)
			b.WriteString(s.name)
			b.WriteByte('=')
			b.WriteString(*s.render)
		}
		doc.Insert(at, b.String())
	}

	if opts.NewTag != "" {
		if oldTag, ok := renameTag(doc, element, opts.NewTag); ok {
			res.OldTag = oldTag
			res.NewTag = opts.NewTag
		}
	}
	res.Migrated = true
	return res
}

func (s *slot) sourceValue(src []byte) string {
	if s.attr == nil {
		if s.render != nil {
			return *s.render
		}
		return ""
	}
	if s.attr.ValueNode == nil {
		return "{true}"
	}
	return s.attr.ValueNode.Utf8Text(src)
}

// renameTag rewrites the opening and closing tag names of element.
func renameTag(doc *Document, element *ts.Node, newTag string) (string, bool) {
	name := graph.TagNameNode(graph.OpeningElement(element))
	if name == nil {
		return "", false
	}
	oldTag := name.Utf8Text(doc.Source())
	if oldTag == newTag {
		return "", false
	}
	doc.Replace(name.StartByte(), name.EndByte(), newTag)
	if closing := graph.ClosingElement(element); closing != nil {
		if cname := graph.TagNameNode(closing); cname != nil {
			doc.Replace(cname.StartByte(), cname.EndByte(), newTag)
		}
	}
	return oldTag, true
}

// replaceElement swaps element for the replacement root. The original
// children are kept in place: only the opening and closing tags are
// replaced, so edits queued inside the children still apply.
func replaceElement(doc *Document, element, opening *ts.Node, spec *rules.Replacement) (PropChange, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return PropChange{}, fmt.Errorf("replacement has no element name")
	}
	src := doc.Source()
	oldTag := ""
	if name := graph.TagNameNode(opening); name != nil {
		oldTag = name.Utf8Text(src)
	}

	var parts []string
	overridden := make(map[string]bool, spec.Props.Len())
	if spec.Props != nil {
		for _, a := range spec.Props.Entries {
			overridden[a.Name] = true
		}
	}
	for _, a := range graph.ReadAttributes(opening, src) {
		if containsName(spec.Keep, a.Name) && !overridden[a.Name] {
			parts = append(parts, a.Node.Utf8Text(src))
		}
	}
	parts = append(parts, renderAssignments(spec.Props)...)

	head := "<" + spec.Name + joinAttrs(parts)
	change := PropChange{Kind: ChangeReplace, OldName: oldTag, NewName: spec.Name, Line: lineOf(element)}

	closing := graph.ClosingElement(element)
	if element.Kind() == "jsx_self_closing_element" || closing == nil || opening.EndByte() == closing.StartByte() {
		doc.Replace(element.StartByte(), element.EndByte(), head+" />")
		return change, nil
	}

	tail := "</" + spec.Name + ">"
	head += ">"
	if cs := spec.ChildSlot; cs != nil {
		head += "<" + cs.Name + joinAttrs(renderAssignments(cs.Props)) + ">"
		tail = "</" + cs.Name + ">" + tail
	}
	doc.Replace(element.StartByte(), opening.EndByte(), head)
	doc.Replace(closing.StartByte(), element.EndByte(), tail)
	return change, nil
}

func renderAssignments(a *rules.Assignments) []string {
	if a == nil {
		return nil
	}
	out := make([]string, 0, len(a.Entries))
	for _, e := range a.Entries {
		out = append(out, e.Name+"="+RenderValue(e.Value))
	}
	return out
}

func joinAttrs(parts []string) string {
	if len(parts) == 0 {
		return ""
	}
	return " " + strings.Join(parts, " ")
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// prevEnd returns where the whitespace before node begins.
func prevEnd(node *ts.Node) uint {
	if prev := node.PrevSibling(); prev != nil {
		return prev.EndByte()
	}
	return node.StartByte()
}

// insertionPoint returns where new attributes go and the separator to put
// before each one. Multi-line attribute lists get one attribute per line at
// the indentation of the last attribute.
func insertionPoint(opening *ts.Node, attrs []graph.Attribute, src []byte) (uint, string) {
	name := graph.TagNameNode(opening)
	if len(attrs) == 0 {
		if name == nil {
			return opening.StartByte() + 1, " "
		}
		end := name.EndByte()
		// Skip type arguments: <Select<Option> ...>
		if next := name.NextSibling(); next != nil && next.Kind() == "type_arguments" {
			end = next.EndByte()
		}
		return end, " "
	}

	last := attrs[len(attrs)-1].Node
	if name != nil && last.StartPosition().Row > name.StartPosition().Row {
		if indent, ok := lineIndent(src, last.StartByte()); ok {
			return last.EndByte(), "\n" + indent
		}
	}
	return last.EndByte(), " "
}

// lineIndent returns the whitespace between the start of the line and pos
// when nothing else precedes pos on that line.
func lineIndent(src []byte, pos uint) (string, bool) {
	i := int(pos)
	for i > 0 && src[i-1] != '\n' {
		i--
	}
	indent := string(src[i:pos])
	if strings.TrimLeft(indent, " \t") != "" {
		return "", false
	}
	return indent, true
}

func lineOf(node *ts.Node) int {
	return int(node.StartPosition().Row) + 1
}
