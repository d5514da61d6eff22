package migrate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	ts "github.com/tree-sitter/go-tree-sitter"

	"github.com/gnana997/migr8/pkg/errs"
	"github.com/gnana997/migr8/pkg/graph"
	"github.com/gnana997/migr8/pkg/transform"
)

// FileState is the lifecycle state of one file in a run.
type FileState int

const (
	StatePending FileState = iota
	StateProcessing
	StateSucceeded
	StateSucceededWithWarning
	StateFailed
	StateSkipped
)

var fileStateNames = map[FileState]string{
	StatePending:              "pending",
	StateProcessing:           "processing",
	StateSucceeded:            "succeeded",
	StateSucceededWithWarning: "succeeded-with-warning",
	StateFailed:               "failed",
	StateSkipped:              "skipped",
}

func (s FileState) String() string {
	if name, ok := fileStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("FileState(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s FileState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether s is a final state.
func (s FileState) Terminal() bool {
	return s >= StateSucceeded
}

// AppliedRule records which rule rewrote which usage site.
type AppliedRule struct {
	Component string `json:"component"`
	Package   string `json:"package"`
	RuleOrder int    `json:"rule_order"`
	Line      int    `json:"line"`
	Replaced  bool   `json:"replaced,omitempty"`
}

// TagRename records a tag renamed at one usage site.
type TagRename struct {
	From string `json:"from"`
	To   string `json:"to"`
	Line int    `json:"line"`
}

// ComponentTransformation is the record for one (component, package) pair
// in a file.
type ComponentTransformation struct {
	Component   string                 `json:"component"`
	Package     string                 `json:"package"`
	Usages      int                    `json:"usages"`
	Migrated    int                    `json:"migrated"`
	PropChanges []transform.PropChange `json:"prop_changes,omitempty"`
	Tags        []TagRename            `json:"tags,omitempty"`
	Errors      []string               `json:"errors,omitempty"`
}

// FileStats are derived from the recorded change lists and a length and
// line-count comparison of the texts.
type FileStats struct {
	ComponentsChanged  int `json:"components_changed"`
	ComponentsReplaced int `json:"components_replaced"`
	PropsAdded         int `json:"props_added"`
	PropsRemoved       int `json:"props_removed"`
	PropsRenamed       int `json:"props_renamed"`
	PropsModified      int `json:"props_modified"`
	TagsRenamed        int `json:"tags_renamed"`
	ImportsAdded       int `json:"imports_added"`
	ImportsRemoved     int `json:"imports_removed"`
	LinesBefore        int `json:"lines_before"`
	LinesAfter         int `json:"lines_after"`
	LineDelta          int `json:"line_delta"`
	CharDelta          int `json:"char_delta"`
}

// Changes is the total number of recorded mutations.
func (s FileStats) Changes() int {
	return s.ComponentsReplaced + s.PropsAdded + s.PropsRemoved + s.PropsRenamed +
		s.PropsModified + s.TagsRenamed + s.ImportsAdded + s.ImportsRemoved
}

// FileResult is the outcome of processing one file.
type FileResult struct {
	Path          string                    `json:"path"`
	RelPath       string                    `json:"rel_path"`
	State         FileState                 `json:"state"`
	Original      []byte                    `json:"-"`
	Output        []byte                    `json:"-"`
	Components    []ComponentTransformation `json:"components,omitempty"`
	ImportChanges []transform.ImportChange  `json:"import_changes,omitempty"`
	AppliedRules  []AppliedRule             `json:"applied_rules,omitempty"`
	Stats         FileStats                 `json:"stats"`
	Diff          string                    `json:"diff,omitempty"`
	Errors        []error                   `json:"-"`
	Warnings      []string                  `json:"warnings,omitempty"`
	Attempts      int                       `json:"attempts"`
	Written       bool                      `json:"written"`
	Duration      time.Duration             `json:"duration"`
}

// Changed reports whether the output differs from the original text.
func (r *FileResult) Changed() bool {
	return r.Output != nil && !bytes.Equal(r.Original, r.Output)
}

// Err joins the recorded errors.
func (r *FileResult) Err() error {
	return errors.Join(r.Errors...)
}

// Reason is a one-line description of why the file did not fully succeed.
func (r *FileResult) Reason() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return fmt.Sprintf("%s: %v", errs.Kind(r.Errors[0]), r.Errors[0])
}

func (r *FileResult) fail(err error) *FileResult {
	r.Errors = append(r.Errors, err)
	r.State = StateFailed
	r.Output = nil
	r.Diff = ""
	return r
}

// FileProcessor turns one FileInput into a FileResult. Implementations must
// be safe for concurrent use on distinct inputs and must not mutate in.
type FileProcessor interface {
	Process(ctx context.Context, in FileInput) *FileResult
}

// Processor is the FileProcessor that applies rule sets.
type Processor struct {
	ctx     *Context
	imports *transform.ImportRewriter
	logger  *slog.Logger
}

// NewProcessor creates a processor over ctx.
func NewProcessor(ctx *Context) *Processor {
	logger := ctx.logger()
	return &Processor{
		ctx:     ctx,
		imports: transform.NewImportRewriter(ctx.Queries, logger),
		logger:  logger,
	}
}

// Process migrates one file in memory. It never touches the disk and always
// starts from in.Source, so it can be repeated.
func (p *Processor) Process(ctx context.Context, in FileInput) *FileResult {
	start := time.Now()
	res := &FileResult{
		Path:     in.Path,
		RelPath:  in.RelPath,
		State:    StateProcessing,
		Original: in.Source,
		Warnings: append([]string(nil), in.Warnings...),
	}
	defer func() { res.Duration = time.Since(start) }()

	if err := ctx.Err(); err != nil {
		res.State = StateSkipped
		res.Errors = append(res.Errors, err)
		return res
	}

	tree, err := p.tree(ctx, in)
	if err != nil {
		return res.fail(err)
	}
	defer tree.Close()
	root := tree.RootNode()

	doc := transform.NewDocument(in.Source)
	excluded := make(map[uint]bool)
	var intents []transform.ImportIntent

	runs := make([]*componentRun, len(in.Components))
	for i, comp := range in.Components {
		runs[i] = newComponentRun(in, comp)
	}
	for _, site := range siteOrder(in.Components) {
		run := runs[site.comp]
		p.processSite(in, root, doc, run, run.comp.Usages[site.usage], res, excluded)
	}
	for _, run := range runs {
		uses := run.bindingUses()
		res.Components = append(res.Components, run.ct)
		if len(uses) > 0 {
			intents = append(intents, transform.ImportIntent{Spec: run.comp.Spec, Uses: uses})
		}
	}

	plan, err := p.imports.Plan(tree, in.Grammar, in.Source, intents, excluded)
	if err != nil {
		return res.fail(&errs.TransformationError{Path: in.Path, Component: "imports", Op: "plan", Cause: err})
	}
	plan.Commit(doc)
	res.ImportChanges = plan.Changes()
	res.Warnings = append(res.Warnings, plan.Warnings()...)

	out, err := doc.Render()
	if err != nil {
		return res.fail(&errs.SerializationError{Path: in.Path, Cause: err})
	}
	res.Output = out

	state := StateSucceeded
	if len(res.Errors) > 0 {
		state = StateSucceededWithWarning
	}
	if p.ctx.ValidateSyntax && res.Changed() && !root.HasError() {
		bad, err := p.ctx.Parser.HasSyntaxErrors(out, in.Path)
		switch {
		case err != nil:
			res.Warnings = append(res.Warnings, fmt.Sprintf("syntax check failed: %v", err))
			state = StateSucceededWithWarning
		case bad:
			res.Warnings = append(res.Warnings, "emitted text has syntax errors")
			state = StateSucceededWithWarning
		}
	}

	res.Stats = computeStats(res)
	diff, err := UnifiedDiff(in.RelPath, in.Source, out)
	if err != nil {
		return res.fail(&errs.SerializationError{Path: in.Path, Cause: fmt.Errorf("diff: %w", err)})
	}
	res.Diff = diff
	res.State = state
	return res
}

// tree returns a private tree for in.Source: the graph's retained tree when
// it still matches, otherwise a fresh parse.
func (p *Processor) tree(ctx context.Context, in FileInput) (*ts.Tree, error) {
	if in.File != nil && bytes.Equal(in.File.Source, in.Source) {
		if tree, ok := p.ctx.Graph.Tree(in.Path); ok {
			return tree, nil
		}
	}
	tree, err := p.ctx.Parser.ParseContext(ctx, in.Source, in.Grammar)
	if err != nil {
		return nil, &errs.ParseError{Path: in.Path, Cause: err}
	}
	return tree, nil
}

// componentRun collects the per-component record while sites of every
// component are processed in document order.
type componentRun struct {
	comp ComponentInput
	ct   ComponentTransformation
	opts transform.SiteOptions
	uses map[int]*transform.BindingUse
}

func newComponentRun(in FileInput, comp ComponentInput) *componentRun {
	spec := comp.Spec
	newTag := ""
	if spec.ImportLegEnabled() {
		newTag = spec.TargetComponent()
	}
	return &componentRun{
		comp: comp,
		ct:   ComponentTransformation{Component: comp.Component, Package: comp.Package, Usages: len(comp.Usages)},
		opts: transform.SiteOptions{
			Path:         in.Path,
			Component:    comp.Component,
			NewTag:       newTag,
			AllowReplace: !spec.HasPlaceholderTarget(),
		},
		uses: make(map[int]*transform.BindingUse),
	}
}

func (r *componentRun) bindingUses() []transform.BindingUse {
	keys := make([]int, 0, len(r.uses))
	for k := range r.uses {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	out := make([]transform.BindingUse, 0, len(keys))
	for _, k := range keys {
		out = append(out, *r.uses[k])
	}
	return out
}

type siteRef struct {
	comp, usage int
	start, end  uint
}

// siteOrder lists every usage site by start offset, enclosing sites before
// the sites nested in them.
func siteOrder(comps []ComponentInput) []siteRef {
	var sites []siteRef
	for i, comp := range comps {
		for j, u := range comp.Usages {
			sites = append(sites, siteRef{comp: i, usage: j, start: u.Site.Start, end: u.Site.End})
		}
	}
	sort.SliceStable(sites, func(a, b int) bool {
		if sites[a].start != sites[b].start {
			return sites[a].start < sites[b].start
		}
		return sites[a].end > sites[b].end
	})
	return sites
}

func (p *Processor) processSite(in FileInput, root *ts.Node, doc *transform.Document, run *componentRun, u graph.ComponentUsage, res *FileResult, excluded map[uint]bool) {
	spec := run.comp.Spec
	ct := &run.ct

	var use *transform.BindingUse
	if in.File != nil {
		if b, ok := in.File.BindingFor(u); ok {
			use = run.uses[u.Binding]
			if use == nil {
				use = &transform.BindingUse{Binding: b, Total: bindingUsages(in.File, u.Binding)}
				run.uses[u.Binding] = use
			}
		}
	}

	rule, matchErrs := spec.FirstMatch(u.Properties)
	for _, err := range matchErrs {
		res.Warnings = append(res.Warnings, err.Error())
	}
	if rule == nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("line %d: no rule matched %s", u.Position.Line, u.Tag))
		return
	}

	element := graph.FindNode(root, u.Site)
	if element == nil {
		err := &errs.TransformationError{Path: in.Path, Component: run.comp.Component, Op: "locate", Cause: fmt.Errorf("usage site at %s not found", u.Position)}
		res.Errors = append(res.Errors, err)
		ct.Errors = append(ct.Errors, err.Error())
		return
	}

	mark := doc.Mark()
	sr := transform.ApplyRule(doc, element, rule, run.opts)
	if sr.Err != nil {
		doc.Rollback(mark)
		res.Warnings = append(res.Warnings, sr.Warnings...)
		res.Errors = append(res.Errors, sr.Err)
		ct.Errors = append(ct.Errors, sr.Err.Error())
		p.logger.Warn("usage site left unchanged", "file", in.RelPath, "line", u.Position.Line, "error", sr.Err)
		return
	}
	if prev, ok := doc.Overlapping(mark); ok {
		doc.Rollback(mark)
		if prev.Start <= element.StartByte() && element.EndByte() <= prev.End {
			if strings.Contains(prev.Text, element.Utf8Text(in.Source)) {
				res.Warnings = append(res.Warnings, fmt.Sprintf("line %d: %s left unchanged, an enclosing usage copies it as is", u.Position.Line, u.Tag))
				return
			}
			// The enclosing site deletes or overwrites the text holding
			// this element, so its binding reference goes with it.
			res.Warnings = append(res.Warnings, fmt.Sprintf("line %d: %s dropped, an enclosing usage rewrites the property holding it", u.Position.Line, u.Tag))
			if use != nil {
				use.Migrated++
			}
			excludeTagNames(element, excluded)
			return
		}
		err := &errs.TransformationError{Path: in.Path, Component: run.comp.Component, Op: "apply",
			Cause: fmt.Errorf("edits at line %d overlap edit [%d,%d)", u.Position.Line, prev.Start, prev.End)}
		res.Errors = append(res.Errors, err)
		ct.Errors = append(ct.Errors, err.Error())
		return
	}
	res.Warnings = append(res.Warnings, sr.Warnings...)
	if !sr.Migrated {
		return
	}

	ct.Migrated++
	if use != nil {
		use.Migrated++
	}
	excludeTagNames(element, excluded)
	ct.PropChanges = append(ct.PropChanges, sr.Changes...)
	if sr.NewTag != "" {
		ct.Tags = append(ct.Tags, TagRename{From: sr.OldTag, To: sr.NewTag, Line: u.Position.Line})
	}
	if len(sr.Changes) > 0 || sr.NewTag != "" {
		res.AppliedRules = append(res.AppliedRules, AppliedRule{
			Component: run.comp.Component,
			Package:   run.comp.Package,
			RuleOrder: rule.Order,
			Line:      u.Position.Line,
			Replaced:  sr.Replaced,
		})
	}
}

// bindingUsages counts every usage in f that resolved through binding idx,
// including usages outside the current input.
func bindingUsages(f *graph.File, idx int) int {
	n := 0
	for _, u := range f.Usages {
		if u.Binding == idx {
			n++
		}
	}
	return n
}

// excludeTagNames marks the tag identifiers of a migrated element so the
// import rewriter does not count them as remaining references.
func excludeTagNames(element *ts.Node, excluded map[uint]bool) {
	if name := graph.TagNameNode(graph.OpeningElement(element)); name != nil {
		excluded[name.StartByte()] = true
	}
	if name := graph.TagNameNode(graph.ClosingElement(element)); name != nil {
		excluded[name.StartByte()] = true
	}
}

func computeStats(res *FileResult) FileStats {
	// Each applied rule is one changed usage site.
	s := FileStats{ComponentsChanged: len(res.AppliedRules)}
	for _, ct := range res.Components {
		for _, c := range ct.PropChanges {
			switch c.Kind {
			case transform.ChangeAdd:
				s.PropsAdded++
			case transform.ChangeRemove:
				s.PropsRemoved++
			case transform.ChangeRename:
				s.PropsRenamed++
			case transform.ChangeUpdate:
				s.PropsModified++
			case transform.ChangeReplace:
				s.ComponentsReplaced++
			}
		}
		s.TagsRenamed += len(ct.Tags)
	}
	for _, c := range res.ImportChanges {
		switch c.Kind {
		case transform.ImportAdd:
			s.ImportsAdded++
		case transform.ImportRemove:
			s.ImportsRemoved++
		}
	}
	s.LinesBefore = countLines(res.Original)
	s.LinesAfter = countLines(res.Output)
	s.LineDelta = s.LinesAfter - s.LinesBefore
	s.CharDelta = utf8.RuneCount(res.Output) - utf8.RuneCount(res.Original)
	return s
}

func countLines(b []byte) int {
	if len(b) == 0 {
		return 0
	}
	n := bytes.Count(b, []byte{'\n'})
	if b[len(b)-1] != '\n' {
		n++
	}
	return n
}
