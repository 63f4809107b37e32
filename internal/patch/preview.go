package patch

import (
	"strings"

	"github.com/fatih/color"
	diffpatch "github.com/sergi/go-diff/diffmatchpatch"
)

// Preview diffs a window of context bytes on either side of r's edit. The
// scripts are minified, so diffing whole files would be slow and unreadable.
func Preview(src string, r Result, context int) []diffpatch.Diff {
	lo := max(0, r.Offset-context)
	hi := min(len(src), r.Offset+len(r.Removed)+context)
	before := src[lo:hi]

	shift := len(r.Inserted) - len(r.Removed)
	after := r.Text[lo : hi+shift]

	dmp := diffpatch.New()
	diffs := dmp.DiffMain(before, after, false)
	return dmp.DiffCleanupSemantic(diffs)
}

var (
	insertColor = color.New(color.FgGreen, color.Bold)
	deleteColor = color.New(color.FgRed, color.CrossedOut)
)

// Render formats diffs on one line: insertions as {+text+}, deletions as
// [-text-], coloured when the terminal supports it.
func Render(diffs []diffpatch.Diff) string {
	var b strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffpatch.DiffInsert:
			b.WriteString(insertColor.Sprint("{+" + d.Text + "+}"))
		case diffpatch.DiffDelete:
			b.WriteString(deleteColor.Sprint("[-" + d.Text + "-]"))
		default:
			b.WriteString(d.Text)
		}
	}
	return b.String()
}
