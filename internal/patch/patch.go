// Package patch holds the text edits applied to Dynalist's bundled scripts.
// Every function here is pure: it takes file content and returns the edited
// content, or a [*MarkerError] when the code it expects is not there.
package patch

import (
	"errors"
	"fmt"
	"strings"
)

// ///////////////////////////////////////////////
// Markers
// ///////////////////////////////////////////////

// Update check edit in app.asar's index.js.
const (
	// UpdateCheckFunc opens the updater's check method and scopes the search.
	UpdateCheckFunc = "_check("
	// UpdateCheckMarker is the statement the deletion is inserted after.
	UpdateCheckMarker = "data = JSON.parse(body);"
	// UpdateCheckInsert drops the dynalist package from the update manifest.
	UpdateCheckInsert = " delete data.packages.dynalist;"
)

// Font edit in dynalist.asar's main.min.js.
const (
	// FontMarker is the minified statement that builds the preferred-font rule.
	FontMarker = `this.pref_font_css_el.innerHTML=".u-use-pref-font { "+o+s+"}"`
	// FontFragment is the concatenation inside FontMarker that gets replaced.
	FontFragment = `"+o+s+"`
)

// ///////////////////////////////////////////////
// Errors
// ///////////////////////////////////////////////

// ErrMarkerNotFound is matched by every [*MarkerError].
var ErrMarkerNotFound = errors.New("marker not found")

// MarkerError reports text a patch expected but could not find.
type MarkerError struct {
	// Marker is the literal text that was searched for.
	Marker string
}

func (e *MarkerError) Error() string {
	return fmt.Sprintf("can't find break point %q", e.Marker)
}

// Is makes errors.Is(err, ErrMarkerNotFound) true for any *MarkerError.
func (e *MarkerError) Is(target error) bool {
	return target == ErrMarkerNotFound
}

// ///////////////////////////////////////////////
// Result
// ///////////////////////////////////////////////

// Result describes a single edit: Removed was replaced by Inserted at byte
// Offset of the original text, producing Text.
type Result struct {
	Text     string
	Offset   int
	Removed  string
	Inserted string
	// Scoped is false when the update check edit could not find
	// [UpdateCheckFunc] and searched the whole file instead.
	Scoped bool
}

// Splice returns src with n bytes at offset replaced by insert.
func Splice(src string, offset, n int, insert string) string {
	var b strings.Builder
	b.Grow(len(src) - n + len(insert))
	b.WriteString(src[:offset])
	b.WriteString(insert)
	b.WriteString(src[offset+n:])
	return b.String()
}

// ///////////////////////////////////////////////
// Edits
// ///////////////////////////////////////////////

// DisableUpdateCheck inserts [UpdateCheckInsert] right after the first
// [UpdateCheckMarker] at or after [UpdateCheckFunc]. When UpdateCheckFunc is
// missing the marker is searched from the start of src and Result.Scoped is
// false. A missing marker is an error rather than a splice at a bogus offset.
func DisableUpdateCheck(src string) (Result, error) {
	from := strings.Index(src, UpdateCheckFunc)
	scoped := from >= 0
	if !scoped {
		from = 0
	}

	idx := strings.Index(src[from:], UpdateCheckMarker)
	if idx < 0 {
		return Result{}, &MarkerError{Marker: UpdateCheckMarker}
	}
	at := from + idx + len(UpdateCheckMarker)

	return Result{
		Text:     Splice(src, at, 0, UpdateCheckInsert),
		Offset:   at,
		Inserted: UpdateCheckInsert,
		Scoped:   scoped,
	}, nil
}

// FontDeclaration returns the CSS declaration injected for family. The
// quotes are backslash-escaped because the declaration lands inside a
// double-quoted JS string; family itself is inserted verbatim.
func FontDeclaration(family string) string {
	return `font-family: \"` + family + `\"`
}

// InjectFont replaces [FontFragment] inside the first [FontMarker] with
// [FontDeclaration] for family.
func InjectFont(src, family string) (Result, error) {
	start := strings.Index(src, FontMarker)
	if start < 0 {
		return Result{}, &MarkerError{Marker: FontMarker}
	}
	// FontFragment is part of FontMarker, so this always hits.
	at := start + strings.Index(FontMarker, FontFragment)
	decl := FontDeclaration(family)

	return Result{
		Text:     Splice(src, at, len(FontFragment), decl),
		Offset:   at,
		Removed:  FontFragment,
		Inserted: decl,
		Scoped:   true,
	}, nil
}
