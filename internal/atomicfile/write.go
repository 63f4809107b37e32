// Package atomicfile replaces files through a temporary sibling and a rename,
// so readers only ever see the old content or the complete new content.

package atomicfile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Write atomically replaces path with data. See [WriteFunc].
func Write(path string, data []byte, perm os.FileMode) error {
	return WriteFunc(path, perm, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// WriteFunc creates a temp file next to path, lets fill stream the new
// content into it, syncs, applies perm and renames it over path. If any step
// fails the temp file is removed and path is left untouched.
func WriteFunc(path string, perm os.FileMode, fill func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	f, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := f.Name()
	var success bool
	defer func() {
		if !success {
			os.Remove(tmpName)
		}
	}()

	bw := bufio.NewWriterSize(f, 256<<10)
	if err := fill(bw); err != nil {
		f.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	success = true
	return nil
}

// Copy atomically replaces dst with the bytes read from src. Extra writers
// (hashers, counters) see the same stream.
func Copy(dst string, src io.Reader, perm os.FileMode, also ...io.Writer) error {
	return WriteFunc(dst, perm, func(w io.Writer) error {
		if len(also) > 0 {
			w = io.MultiWriter(append([]io.Writer{w}, also...)...)
		}
		_, err := io.Copy(w, src)
		return err
	})
}
