package graph

import "sort"

// UsageRecord is one usage site in summary form.
type UsageRecord struct {
	File       string      `json:"file"` // relative to the graph root
	Tag        string      `json:"tag"`
	Position   Position    `json:"position"`
	Properties *Properties `json:"properties"`
	Start      uint        `json:"start"`
	End        uint        `json:"end"`
}

// UsageSummary indexes usages as package → component → usages.
type UsageSummary struct {
	Packages map[string]map[string][]UsageRecord `json:"packages"`
}

// Summarize reduces g into a UsageSummary. Records are ordered by file and
// position, so the result is deterministic.
func Summarize(g *ProjectGraph) *UsageSummary {
	s := &UsageSummary{Packages: make(map[string]map[string][]UsageRecord)}
	for _, f := range g.Files() {
		for _, u := range f.Usages {
			s.add(u.Package, u.Component, UsageRecord{
				File:       f.RelPath,
				Tag:        u.Tag,
				Position:   u.Position,
				Properties: u.Properties,
				Start:      u.Site.Start,
				End:        u.Site.End,
			})
		}
	}
	return s
}

func (s *UsageSummary) add(pkg, component string, rec UsageRecord) {
	comps, ok := s.Packages[pkg]
	if !ok {
		comps = make(map[string][]UsageRecord)
		s.Packages[pkg] = comps
	}
	comps[component] = append(comps[component], rec)
}

// PackageNames returns the summarized packages, sorted.
func (s *UsageSummary) PackageNames() []string {
	out := make([]string, 0, len(s.Packages))
	for pkg := range s.Packages {
		out = append(out, pkg)
	}
	sort.Strings(out)
	return out
}

// Components returns the components seen for pkg, sorted.
func (s *UsageSummary) Components(pkg string) []string {
	comps := s.Packages[pkg]
	out := make([]string, 0, len(comps))
	for c := range comps {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Usages returns the records for (pkg, component).
func (s *UsageSummary) Usages(pkg, component string) []UsageRecord {
	return s.Packages[pkg][component]
}

// Count returns the total number of records.
func (s *UsageSummary) Count() int {
	n := 0
	for _, comps := range s.Packages {
		for _, recs := range comps {
			n += len(recs)
		}
	}
	return n
}

// PropertyNames returns every property name used with (pkg, component) and
// how often, which is what rule authors start from.
func (s *UsageSummary) PropertyNames(pkg, component string) map[string]int {
	counts := make(map[string]int)
	for _, rec := range s.Usages(pkg, component) {
		for _, k := range rec.Properties.Keys() {
			counts[k]++
		}
	}
	return counts
}
