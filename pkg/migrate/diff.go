package migrate

import (
	"bytes"

	"github.com/pmezard/go-difflib/difflib"
)

// DiffContext is the number of unchanged lines around each hunk.
const DiffContext = 3

// UnifiedDiff renders a unified diff of before and after under name. Equal
// inputs produce an empty string.
func UnifiedDiff(name string, before, after []byte) (string, error) {
	if bytes.Equal(before, after) {
		return "", nil
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(before)),
		B:        difflib.SplitLines(string(after)),
		FromFile: "a/" + name,
		ToFile:   "b/" + name,
		Context:  DiffContext,
	})
}
