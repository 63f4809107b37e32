// write_test.go covers [Write], [WriteFunc] and [Copy]: correctness,
// independent concurrent writers, and that a failed write leaves neither a
// temp file nor a modified target behind.

package atomicfile

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestWriteBasic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.js")
	data := []byte("var a = 1;")

	if err := Write(path, data, 0o644); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("got %q, want %q", got, data)
	}
}

func TestWriteConcurrent(t *testing.T) {
	dir := t.TempDir()
	const n = 16

	var wg sync.WaitGroup
	wg.Add(n)
	for i := range n {
		go func(i int) {
			defer wg.Done()
			path := filepath.Join(dir, "archive-"+string(rune('A'+i))+".asar")
			data := []byte("payload-" + string(rune('A'+i)))
			if err := Write(path, data, 0o644); err != nil {
				t.Errorf("concurrent Write %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	for i := range n {
		path := filepath.Join(dir, "archive-"+string(rune('A'+i))+".asar")
		want := "payload-" + string(rune('A'+i))
		got, err := os.ReadFile(path)
		if err != nil {
			t.Errorf("ReadFile %d: %v", i, err)
			continue
		}
		if string(got) != want {
			t.Errorf("file %d: got %q, want %q", i, got, want)
		}
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if matched, _ := filepath.Match("*.tmp.*", e.Name()); matched {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestWrite_OverwriteExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.asar")

	if err := Write(path, []byte("original"), 0o644); err != nil {
		t.Fatalf("first Write failed: %v", err)
	}
	if err := Write(path, []byte("patched"), 0o644); err != nil {
		t.Fatalf("second Write failed: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "patched" {
		t.Errorf("content = %q, want %q", got, "patched")
	}
}

func TestWriteCleanupOnFailure(t *testing.T) {
	badPath := filepath.Join(t.TempDir(), "no-such-dir", "file.txt")

	if err := Write(badPath, []byte("data"), 0o644); err == nil {
		t.Fatal("expected error writing to non-existent directory")
	}

	parent := filepath.Dir(filepath.Dir(badPath))
	entries, _ := os.ReadDir(parent)
	for _, e := range entries {
		if matched, _ := filepath.Match("file.txt.tmp.*", e.Name()); matched {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

// ///////////////////////////////////////////////
// WriteFunc
// ///////////////////////////////////////////////

func TestWriteFunc_FillErrorKeepsTarget(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.asar")
	if err := os.WriteFile(path, []byte("untouched"), 0o644); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	err := WriteFunc(path, 0o644, func(w io.Writer) error {
		io.WriteString(w, "half written")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WriteFunc error = %v, want wrapping %v", err, boom)
	}

	got, _ := os.ReadFile(path)
	if string(got) != "untouched" {
		t.Errorf("target changed to %q after failed write", got)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected only the target in dir, got %d entries", len(entries))
	}
}

// ///////////////////////////////////////////////
// Copy
// ///////////////////////////////////////////////

func TestCopyTeesToExtraWriters(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "copy.bin")
	src := strings.Repeat("0123456789", 100_000)

	var seen bytes.Buffer
	if err := Copy(path, strings.NewReader(src), 0o644, &seen); err != nil {
		t.Fatalf("Copy: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != src {
		t.Errorf("copied %d bytes, want %d", len(got), len(src))
	}
	if seen.String() != src {
		t.Errorf("extra writer saw %d bytes, want %d", seen.Len(), len(src))
	}
}
