// Package transform rewrites JSX usage sites and import declarations.
//
// Rewrites are expressed as byte-range edits against the original source
// text and rendered in one pass, so the parsed tree is never mutated and
// every position recorded during planning stays valid until rendering.
package transform

import (
	"bytes"
	"fmt"
	"sort"
)

// Edit replaces source[Start:End] with Text. Start == End is an insertion.
type Edit struct {
	Start uint
	End   uint
	Text  string

	seq int
}

// Document queues edits against one immutable source text.
type Document struct {
	src   []byte
	edits []Edit
}

// NewDocument creates an edit queue over src. src is not modified.
func NewDocument(src []byte) *Document {
	return &Document{src: src}
}

// Source returns the original text.
func (d *Document) Source() []byte { return d.src }

// Replace queues replacing [start, end) with text.
func (d *Document) Replace(start, end uint, text string) {
	d.edits = append(d.edits, Edit{Start: start, End: end, Text: text, seq: len(d.edits)})
}

// Insert queues text at offset. Insertions at the same offset keep their
// queue order.
func (d *Document) Insert(at uint, text string) {
	d.Replace(at, at, text)
}

// Delete queues removal of [start, end).
func (d *Document) Delete(start, end uint) {
	d.Replace(start, end, "")
}

// Len returns the number of queued edits.
func (d *Document) Len() int { return len(d.edits) }

// Mark returns a checkpoint for Rollback and Overlapping.
func (d *Document) Mark() int { return len(d.edits) }

// Rollback discards every edit queued after mark.
func (d *Document) Rollback(mark int) {
	if mark < len(d.edits) {
		d.edits = d.edits[:mark]
	}
}

// Overlapping returns an edit queued before mark that an edit queued after
// mark overlaps, using the same rule as Render.
func (d *Document) Overlapping(mark int) (Edit, bool) {
	for _, e := range d.edits[mark:] {
		for _, prev := range d.edits[:mark] {
			if overlaps(prev, e) {
				return prev, true
			}
		}
	}
	return Edit{}, false
}

// overlaps reports whether Render would reject a and b together.
func overlaps(a, b Edit) bool {
	if a.Start == b.Start && a.End == b.End && a.Text == b.Text && a.Start != a.End {
		return false
	}
	first, second := a, b
	if b.Start < a.Start || (b.Start == a.Start && b.End < a.End) {
		first, second = b, a
	}
	return second.Start < first.End
}

// Changed reports whether any queued edit alters the text.
func (d *Document) Changed() bool {
	for _, e := range d.edits {
		if e.Start > e.End || e.End > uint(len(d.src)) {
			return true
		}
		if string(d.src[e.Start:e.End]) != e.Text {
			return true
		}
	}
	return false
}

// Render applies every queued edit and returns the new text.
//
// Edits may touch at their boundaries. An edit that starts inside another
// one is an error, as is a range outside the source. Identical duplicate
// edits are applied once.
func (d *Document) Render() ([]byte, error) {
	if len(d.edits) == 0 {
		return append([]byte(nil), d.src...), nil
	}

	edits := append([]Edit(nil), d.edits...)
	sort.SliceStable(edits, func(i, j int) bool {
		if edits[i].Start != edits[j].Start {
			return edits[i].Start < edits[j].Start
		}
		if edits[i].End != edits[j].End {
			return edits[i].End < edits[j].End
		}
		return edits[i].seq < edits[j].seq
	})

	size := uint(len(d.src))
	var out bytes.Buffer
	out.Grow(len(d.src))

	var last uint
	var prev *Edit
	for i := range edits {
		e := &edits[i]
		if e.Start > e.End || e.End > size {
			return nil, fmt.Errorf("edit [%d,%d) outside source of %d bytes", e.Start, e.End, size)
		}
		if prev != nil {
			if e.Start == prev.Start && e.End == prev.End && e.Text == prev.Text && e.Start != e.End {
				continue
			}
			if e.Start < prev.End {
				return nil, fmt.Errorf("edit [%d,%d) overlaps edit [%d,%d)", e.Start, e.End, prev.Start, prev.End)
			}
		}
		out.Write(d.src[last:e.Start])
		out.WriteString(e.Text)
		last = e.End
		prev = e
	}
	out.Write(d.src[last:])
	return out.Bytes(), nil
}
