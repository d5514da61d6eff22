package migrate

import (
	"sort"

	"github.com/gnana997/migr8/pkg/errs"
)

// TopChangedLimit is how many files RunSummary.TopChanged keeps.
const TopChangedLimit = 10

// FileFailure is a file that did not fully succeed, with its reason.
type FileFailure struct {
	Path   string    `json:"path"`
	State  FileState `json:"state"`
	Kind   string    `json:"kind"`
	Reason string    `json:"reason"`
}

// ChangedFile is one entry of the top changed files.
type ChangedFile struct {
	Path    string `json:"path"`
	Changes int    `json:"changes"`
}

// RunSummary aggregates the results of a run. Its ordering does not depend
// on completion order.
type RunSummary struct {
	Total                int            `json:"total"`
	Succeeded            int            `json:"succeeded"`
	SucceededWithWarning int            `json:"succeeded_with_warning"`
	Failed               int            `json:"failed"`
	Skipped              int            `json:"skipped"`
	Invalid              int            `json:"invalid"`
	Changed              int            `json:"changed"`
	Written              int            `json:"written"`
	Totals               FileStats      `json:"totals"`
	Failures             []FileFailure  `json:"failures,omitempty"`
	InvalidInputs        []InvalidInput `json:"invalid_inputs,omitempty"`
	TopChanged           []ChangedFile  `json:"top_changed,omitempty"`
}

// Summarize builds a RunSummary from results and the inputs the aggregator
// rejected. Nil results are ignored.
func Summarize(results []*FileResult, invalid []InvalidInput) RunSummary {
	s := RunSummary{Invalid: len(invalid), InvalidInputs: invalid}
	var changed []ChangedFile

	for _, r := range results {
		if r == nil {
			continue
		}
		s.Total++
		switch r.State {
		case StateSucceeded:
			s.Succeeded++
		case StateSucceededWithWarning:
			s.SucceededWithWarning++
		case StateFailed:
			s.Failed++
		case StateSkipped:
			s.Skipped++
		}
		if r.State != StateSucceeded && len(r.Errors) > 0 {
			s.Failures = append(s.Failures, FileFailure{
				Path:   r.RelPath,
				State:  r.State,
				Kind:   errs.Kind(r.Errors[0]),
				Reason: r.Reason(),
			})
		}
		if r.Written {
			s.Written++
		}
		if r.Changed() {
			s.Changed++
			changed = append(changed, ChangedFile{Path: r.RelPath, Changes: r.Stats.Changes()})
		}
		addStats(&s.Totals, r.Stats)
	}

	sort.Slice(s.Failures, func(i, j int) bool { return s.Failures[i].Path < s.Failures[j].Path })
	s.TopChanged = TopChanged(changed, TopChangedLimit)
	return s
}

// TopChanged sorts files by changes descending, then path, and keeps the
// first n.
func TopChanged(files []ChangedFile, n int) []ChangedFile {
	out := append([]ChangedFile(nil), files...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Changes != out[j].Changes {
			return out[i].Changes > out[j].Changes
		}
		return out[i].Path < out[j].Path
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func addStats(dst *FileStats, s FileStats) {
	dst.ComponentsChanged += s.ComponentsChanged
	dst.ComponentsReplaced += s.ComponentsReplaced
	dst.PropsAdded += s.PropsAdded
	dst.PropsRemoved += s.PropsRemoved
	dst.PropsRenamed += s.PropsRenamed
	dst.PropsModified += s.PropsModified
	dst.TagsRenamed += s.TagsRenamed
	dst.ImportsAdded += s.ImportsAdded
	dst.ImportsRemoved += s.ImportsRemoved
	dst.LinesBefore += s.LinesBefore
	dst.LinesAfter += s.LinesAfter
	dst.LineDelta += s.LineDelta
	dst.CharDelta += s.CharDelta
}
