// Tests for the script edits: exact splice positions, the unscoped fallback
// of the update check edit, marker errors, and the diff preview.
package patch

import (
	"errors"
	"strings"
	"testing"

	"github.com/fatih/color"
	diffpatch "github.com/sergi/go-diff/diffmatchpatch"
)

// ///////////////////////////////////////////////
// Splice
// ///////////////////////////////////////////////

func TestSplice(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		offset int
		n      int
		insert string
		want   string
	}{
		{"insert middle", "abcdef", 3, 0, "XY", "abcXYdef"},
		{"insert start", "abc", 0, 0, ">", ">abc"},
		{"insert end", "abc", 3, 0, "<", "abc<"},
		{"replace", "a+b+c", 1, 3, "-", "a-c"},
		{"delete", "abc", 1, 1, "", "ac"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Splice(tt.src, tt.offset, tt.n, tt.insert); got != tt.want {
				t.Errorf("Splice = %q, want %q", got, tt.want)
			}
		})
	}
}

// ///////////////////////////////////////////////
// DisableUpdateCheck
// ///////////////////////////////////////////////

const updaterSource = `class Updater {
  _parse(body) { data = JSON.parse(body); return data; }
  _check() {
    request(url, (err, res, body) => {
      let data; data = JSON.parse(body); this._apply(data);
    });
  }
}`

func TestDisableUpdateCheckScoped(t *testing.T) {
	res, err := DisableUpdateCheck(updaterSource)
	if err != nil {
		t.Fatalf("DisableUpdateCheck: %v", err)
	}
	if !res.Scoped {
		t.Error("Scoped = false, want true")
	}

	// The marker inside _parse comes first; the edit must land in _check.
	checkAt := strings.Index(updaterSource, UpdateCheckFunc)
	markerAt := checkAt + strings.Index(updaterSource[checkAt:], UpdateCheckMarker)
	wantAt := markerAt + len(UpdateCheckMarker)
	if res.Offset != wantAt {
		t.Errorf("Offset = %d, want %d", res.Offset, wantAt)
	}

	want := updaterSource[:wantAt] + " delete data.packages.dynalist;" + updaterSource[wantAt:]
	if res.Text != want {
		t.Errorf("Text mismatch:\ngot:  %q\nwant: %q", res.Text, want)
	}
	if !strings.Contains(res.Text, "data = JSON.parse(body); delete data.packages.dynalist; this._apply(data);") {
		t.Errorf("insert not directly after marker: %q", res.Text)
	}
}

func TestDisableUpdateCheckUnscopedFallback(t *testing.T) {
	src := `fetch().then(body => { data = JSON.parse(body); use(data); });`
	res, err := DisableUpdateCheck(src)
	if err != nil {
		t.Fatalf("DisableUpdateCheck: %v", err)
	}
	if res.Scoped {
		t.Error("Scoped = true, want false without _check(")
	}
	want := `fetch().then(body => { data = JSON.parse(body); delete data.packages.dynalist; use(data); });`
	if res.Text != want {
		t.Errorf("Text = %q, want %q", res.Text, want)
	}
}

func TestDisableUpdateCheckMissingMarker(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"empty", ""},
		{"function without marker", "_check() { return 1; }"},
		{"marker only before function", "data = JSON.parse(body); _check() {}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DisableUpdateCheck(tt.src)
			if !errors.Is(err, ErrMarkerNotFound) {
				t.Fatalf("err = %v, want ErrMarkerNotFound", err)
			}
			var me *MarkerError
			if !errors.As(err, &me) || me.Marker != UpdateCheckMarker {
				t.Errorf("MarkerError.Marker = %v, want %q", me, UpdateCheckMarker)
			}
		})
	}
}

// ///////////////////////////////////////////////
// InjectFont
// ///////////////////////////////////////////////

const minifiedSource = `function x(o,s){this.pref_font_css_el.innerHTML=".u-use-pref-font { "+o+s+"}"}var y="+o+s+";`

func TestInjectFont(t *testing.T) {
	res, err := InjectFont(minifiedSource, "Fira Code")
	if err != nil {
		t.Fatalf("InjectFont: %v", err)
	}
	want := `function x(o,s){this.pref_font_css_el.innerHTML=".u-use-pref-font { font-family: \"Fira Code\"}"}var y="+o+s+";`
	if res.Text != want {
		t.Errorf("Text mismatch:\ngot:  %s\nwant: %s", res.Text, want)
	}
	if res.Removed != FontFragment {
		t.Errorf("Removed = %q, want %q", res.Removed, FontFragment)
	}
}

func TestInjectFontOnlyInsideMarker(t *testing.T) {
	// A stray fragment before the marker must not be touched.
	src := `a="+o+s+";` + FontMarker
	res, err := InjectFont(src, "Inter")
	if err != nil {
		t.Fatalf("InjectFont: %v", err)
	}
	if !strings.HasPrefix(res.Text, `a="+o+s+";`) {
		t.Errorf("fragment before marker was replaced: %q", res.Text)
	}
	if strings.Count(res.Text, FontDeclaration("Inter")) != 1 {
		t.Errorf("declaration count != 1 in %q", res.Text)
	}
}

func TestInjectFontVerbatim(t *testing.T) {
	res, err := InjectFont(FontMarker, `Weird "Name\`)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Text, `font-family: \"Weird "Name\\"`) {
		t.Errorf("family not inserted verbatim: %q", res.Text)
	}
}

func TestInjectFontMissingMarker(t *testing.T) {
	_, err := InjectFont(`this.pref_font_css_el.innerHTML=".u-use-pref-font { "+a+b+"}"`, "Inter")
	if !errors.Is(err, ErrMarkerNotFound) {
		t.Fatalf("err = %v, want ErrMarkerNotFound", err)
	}
	if !strings.Contains(err.Error(), "can't find break point") {
		t.Errorf("error text = %q", err.Error())
	}
}

func TestFontDeclaration(t *testing.T) {
	if got, want := FontDeclaration("Fira Code"), `font-family: \"Fira Code\"`; got != want {
		t.Errorf("FontDeclaration = %s, want %s", got, want)
	}
}

// ///////////////////////////////////////////////
// Preview
// ///////////////////////////////////////////////

func TestPreview(t *testing.T) {
	src := strings.Repeat("x", 500) + FontMarker + strings.Repeat("y", 500)
	res, err := InjectFont(src, "Inter")
	if err != nil {
		t.Fatal(err)
	}

	diffs := Preview(src, res, 20)
	var ins, del, eq strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffpatch.DiffInsert:
			ins.WriteString(d.Text)
		case diffpatch.DiffDelete:
			del.WriteString(d.Text)
		default:
			eq.WriteString(d.Text)
		}
	}
	if !strings.Contains(ins.String(), "Inter") {
		t.Errorf("inserted text %q lacks font name", ins.String())
	}
	if del.Len() == 0 {
		t.Error("expected deleted text")
	}
	if eq.Len() > 40+len(FontFragment) {
		t.Errorf("context too wide: %d bytes", eq.Len())
	}
}

func TestPreviewAtFileEdges(t *testing.T) {
	res, err := DisableUpdateCheck(UpdateCheckMarker)
	if err != nil {
		t.Fatal(err)
	}
	diffs := Preview(UpdateCheckMarker, res, 1000)
	if len(diffs) == 0 {
		t.Fatal("no diffs")
	}
}

func TestRender(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	got := Render([]diffpatch.Diff{
		{Type: diffpatch.DiffEqual, Text: "a"},
		{Type: diffpatch.DiffDelete, Text: "b"},
		{Type: diffpatch.DiffInsert, Text: "c"},
	})
	if want := "a[-b-]{+c+}"; got != want {
		t.Errorf("Render = %q, want %q", got, want)
	}
}
