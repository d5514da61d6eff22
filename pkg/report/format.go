package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/gnana997/migr8/pkg/graph"
	"github.com/gnana997/migr8/pkg/migrate"
	"github.com/gnana997/migr8/pkg/transform"
)

const rule = "─"

// FormatBuild prints what a graph build found.
func FormatBuild(w io.Writer, rep *UsageReport) {
	s := rep.Stats
	fmt.Fprintf(w, "Scanned %s\n", rep.Root)
	fmt.Fprintf(w, "  files discovered  %d\n", s.FilesDiscovered)
	if s.FilesPrefiltered > 0 {
		fmt.Fprintf(w, "  prefiltered       %d\n", s.FilesPrefiltered)
	}
	fmt.Fprintf(w, "  files parsed      %d\n", s.FilesParsed)
	fmt.Fprintf(w, "  files with usages %d\n", s.FilesWithUsages)
	fmt.Fprintf(w, "  usages            %d\n", s.Usages)
	fmt.Fprintf(w, "  time              %dms\n", s.TotalTimeMs)

	if len(rep.Packages) > 0 {
		fmt.Fprintln(w)
		nameW := len("PACKAGE")
		for pkg := range rep.Packages {
			nameW = max(nameW, len(pkg))
		}
		fmt.Fprintf(w, "  %-*s  %6s  %5s  %s\n", nameW, "PACKAGE", "USAGES", "FILES", "COMPONENTS")
		fmt.Fprintf(w, "  %s\n", strings.Repeat(rule, nameW+30))
		for _, pkg := range sortedKeys(rep.Packages) {
			pu := rep.Packages[pkg]
			fmt.Fprintf(w, "  %-*s  %6d  %5d  %s\n", nameW, pkg, pu.Usages, len(pu.Files), strings.Join(pu.Components, ", "))
		}
	}

	if len(rep.Warnings) > 0 {
		fmt.Fprintf(w, "\n%d warning(s):\n", len(rep.Warnings))
		for _, warn := range rep.Warnings {
			fmt.Fprintf(w, "  %s\n", warn.String())
		}
	}
}

// FormatProps prints the property names seen for each component, most
// frequent first.
func FormatProps(w io.Writer, summary *graph.UsageSummary) {
	for _, pkg := range summary.PackageNames() {
		for _, comp := range summary.Components(pkg) {
			counts := summary.PropertyNames(pkg, comp)
			fmt.Fprintf(w, "%s from %q  (%d usages)\n", comp, pkg, len(summary.Usages(pkg, comp)))
			if len(counts) == 0 {
				fmt.Fprintln(w, "  (no properties)")
				continue
			}
			for _, name := range byCount(counts) {
				fmt.Fprintf(w, "  %-20s %d\n", name, counts[name])
			}
		}
	}
}

// PlanOptions controls FormatPlan.
type PlanOptions struct {
	// ShowDiff includes each file's unified diff.
	ShowDiff bool

	// Color renders states and diff lines with ANSI colors.
	Color bool
}

// FormatPlan prints one block per changed or failed file.
func FormatPlan(w io.Writer, results []*migrate.FileResult, opts PlanOptions) {
	st := newPlanStyles(w, opts.Color)
	for _, r := range results {
		if r == nil || (!r.Changed() && r.State == migrate.StateSucceeded) {
			continue
		}
		fmt.Fprintf(w, "%s  [%s]\n", st.path.Render(r.RelPath), st.state(r.State))
		for _, a := range r.AppliedRules {
			verb := "rule"
			if a.Replaced {
				verb = "replaced by rule"
			}
			fmt.Fprintf(w, "  line %-5d %s %s %d\n", a.Line, a.Component, verb, a.RuleOrder)
		}
		for _, c := range r.ImportChanges {
			switch c.Kind {
			case transform.ImportAdd:
				fmt.Fprintf(w, "  import +  %s\n", c.Name)
			case transform.ImportKeep:
				fmt.Fprintf(w, "  import =  %s from %q: %s\n", c.Name, c.Package, c.Reason)
			default:
				fmt.Fprintf(w, "  import -  %s %s\n", c.Package, c.Name)
			}
		}
		for _, err := range r.Errors {
			fmt.Fprintf(w, "  %s %v\n", st.failed.Render("error:"), err)
		}
		for _, warn := range r.Warnings {
			fmt.Fprintf(w, "  %s %s\n", st.skipped.Render("warning:"), warn)
		}
		if opts.ShowDiff && r.Diff != "" {
			fmt.Fprintln(w)
			st.diff(w, r.Diff)
		}
		fmt.Fprintln(w)
	}
}

type planStyles struct {
	color     bool
	path      lipgloss.Style
	succeeded lipgloss.Style
	failed    lipgloss.Style
	skipped   lipgloss.Style
	added     lipgloss.Style
	removed   lipgloss.Style
	hunk      lipgloss.Style
}

// newPlanStyles builds the plan palette for w. Without color every style
// renders its input unchanged.
func newPlanStyles(w io.Writer, color bool) planStyles {
	r := lipgloss.NewRenderer(w)
	if color {
		r.SetColorProfile(termenv.ANSI)
	} else {
		r.SetColorProfile(termenv.Ascii)
	}
	base := r.NewStyle().TabWidth(lipgloss.NoTabConversion)
	return planStyles{
		color:     color,
		path:      base.Bold(color),
		succeeded: base.Foreground(lipgloss.Color("2")),
		failed:    base.Foreground(lipgloss.Color("1")),
		skipped:   base.Foreground(lipgloss.Color("3")),
		added:     base.Foreground(lipgloss.Color("2")),
		removed:   base.Foreground(lipgloss.Color("1")),
		hunk:      base.Foreground(lipgloss.Color("6")),
	}
}

func (st planStyles) state(s migrate.FileState) string {
	switch s {
	case migrate.StateSucceeded:
		return st.succeeded.Render(s.String())
	case migrate.StateFailed:
		return st.failed.Render(s.String())
	default:
		return st.skipped.Render(s.String())
	}
}

// diff writes a unified diff, coloring it line by line.
func (st planStyles) diff(w io.Writer, diff string) {
	if !st.color {
		fmt.Fprint(w, diff)
		return
	}
	for _, line := range strings.SplitAfter(diff, "\n") {
		if line == "" {
			continue
		}
		body, nl := strings.CutSuffix(line, "\n")
		switch {
		case strings.HasPrefix(body, "+++"), strings.HasPrefix(body, "---"):
			body = st.path.Render(body)
		case strings.HasPrefix(body, "+"):
			body = st.added.Render(body)
		case strings.HasPrefix(body, "-"):
			body = st.removed.Render(body)
		case strings.HasPrefix(body, "@@"):
			body = st.hunk.Render(body)
		}
		fmt.Fprint(w, body)
		if nl {
			fmt.Fprintln(w)
		}
	}
}

// FormatSummary prints the run summary.
func FormatSummary(w io.Writer, run *migrate.RunResult) {
	s := run.Summary
	fmt.Fprintf(w, "Migration %s  (%dms)\n", run.Mode, run.Duration.Milliseconds())
	fmt.Fprintf(w, "  %s\n", strings.Repeat(rule, 40))
	fmt.Fprintf(w, "  files             %d\n", s.Total)
	fmt.Fprintf(w, "  succeeded         %d\n", s.Succeeded)
	if s.SucceededWithWarning > 0 {
		fmt.Fprintf(w, "  with warnings     %d\n", s.SucceededWithWarning)
	}
	fmt.Fprintf(w, "  failed            %d\n", s.Failed)
	fmt.Fprintf(w, "  skipped           %d\n", s.Skipped)
	if s.Invalid > 0 {
		fmt.Fprintf(w, "  invalid           %d\n", s.Invalid)
	}
	fmt.Fprintf(w, "  changed           %d\n", s.Changed)
	if run.Mode == migrate.ModeWrite {
		fmt.Fprintf(w, "  written           %d\n", s.Written)
	}

	t := s.Totals
	fmt.Fprintf(w, "  components        %d changed, %d replaced\n", t.ComponentsChanged, t.ComponentsReplaced)
	fmt.Fprintf(w, "  props             +%d -%d ~%d renamed %d\n", t.PropsAdded, t.PropsRemoved, t.PropsModified, t.PropsRenamed)
	fmt.Fprintf(w, "  imports           +%d -%d\n", t.ImportsAdded, t.ImportsRemoved)

	if len(s.TopChanged) > 0 {
		fmt.Fprintln(w, "\nMost changed:")
		for _, c := range s.TopChanged {
			fmt.Fprintf(w, "  %4d  %s\n", c.Changes, c.Path)
		}
	}
	if len(s.Failures) > 0 {
		fmt.Fprintln(w, "\nNot migrated:")
		for _, f := range s.Failures {
			fmt.Fprintf(w, "  %s  [%s] %s\n", f.Path, f.State, f.Reason)
		}
	}
	if len(s.InvalidInputs) > 0 {
		fmt.Fprintln(w, "\nInvalid inputs:")
		for _, inv := range s.InvalidInputs {
			fmt.Fprintf(w, "  %s: %s\n", inv.Path, strings.Join(inv.Reasons, "; "))
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func byCount(counts map[string]int) []string {
	names := sortedKeys(counts)
	sort.SliceStable(names, func(i, j int) bool { return counts[names[i]] > counts[names[j]] })
	return names
}
