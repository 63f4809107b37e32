// Package fsutil wraps the handful of filesystem operations the patch
// routines need: existence checks, recursive removal, whole-file text I/O and
// the one-time archive backup.
package fsutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"tools.zach/dev/dynapatch/internal/atomicfile"
)

// ///////////////////////////////////////////////
// Errors
// ///////////////////////////////////////////////

var (
	// ErrIsDir is returned when a file was expected but a directory was found.
	ErrIsDir = errors.New("is a directory")
	// ErrNotDir is returned when a directory was expected but a file was found.
	ErrNotDir = errors.New("not a directory")
	// ErrBackupMismatch is returned when a fresh backup does not hash to the
	// same digest as its source.
	ErrBackupMismatch = errors.New("backup checksum mismatch")
)

// ///////////////////////////////////////////////
// Existence
// ///////////////////////////////////////////////

// Exists stats path. A missing path yields an error satisfying
// errors.Is(err, fs.ErrNotExist).
func Exists(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

// ExistsDir returns nil if path exists and is a directory.
func ExistsDir(path string) error {
	info, err := Exists(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: %w", path, ErrNotDir)
	}
	return nil
}

// RemoveDir recursively deletes path. A missing path is not an error.
func RemoveDir(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// ///////////////////////////////////////////////
// Text I/O
// ///////////////////////////////////////////////

// ReadFile returns the whole file as text.
func ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// WriteFile replaces path with data, creating it if absent. An existing
// file keeps its permission bits.
func WriteFile(path, data string) error {
	perm := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}
	if err := atomicfile.Write(path, []byte(data), perm); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ///////////////////////////////////////////////
// Backup
// ///////////////////////////////////////////////

// BackupArchive copies path to backupPath unless backupPath already exists.
// Any stat error on backupPath counts as "absent". When a backup exists the
// source is not opened at all. The copy is hashed while streaming and the
// written file is hashed again; on mismatch the backup is removed.
func BackupArchive(path, backupPath string) (created bool, err error) {
	if _, err := Exists(backupPath); err == nil {
		return false, nil
	}

	info, err := Exists(path)
	if err != nil {
		return false, err
	}
	if info.IsDir() {
		return false, fmt.Errorf("%s: %w", path, ErrIsDir)
	}

	src, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", path, err)
	}
	defer src.Close()

	h := xxhash.New()
	if err := atomicfile.Copy(backupPath, src, info.Mode().Perm(), h); err != nil {
		return false, fmt.Errorf("copy %s: %w", path, err)
	}

	got, err := Digest(backupPath)
	if err != nil {
		return false, err
	}
	if want := h.Sum64(); got != want {
		os.Remove(backupPath)
		return false, fmt.Errorf("%s: %w (%016x != %016x)", backupPath, ErrBackupMismatch, got, want)
	}
	return true, nil
}

// Digest returns the xxhash64 of the file at path.
func Digest(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, fmt.Errorf("hash %s: %w", path, err)
	}
	return h.Sum64(), nil
}

// BackupDir copies the directory tree at path to backupPath unless
// backupPath already exists. A missing path is not an error and creates
// nothing. The tree is copied into a temporary sibling and renamed into
// place, so an interrupted copy never passes for a complete backup.
func BackupDir(path, backupPath string) (created bool, err error) {
	if _, err := Exists(backupPath); err == nil {
		return false, nil
	}
	if err := ExistsDir(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}

	tmp := backupPath + ".tmp"
	if err := RemoveDir(tmp); err != nil {
		return false, err
	}
	if err := copyTree(path, tmp); err != nil {
		os.RemoveAll(tmp)
		return false, fmt.Errorf("copy %s: %w", path, err)
	}
	if err := os.Rename(tmp, backupPath); err != nil {
		os.RemoveAll(tmp)
		return false, fmt.Errorf("rename %s: %w", tmp, err)
	}
	return true, nil
}

// copyTree copies directories, regular files (with their mode) and symlinks
// (verbatim) from src to dst.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case d.IsDir():
			return os.MkdirAll(target, 0o755)
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(p)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case d.Type().IsRegular():
			info, err := d.Info()
			if err != nil {
				return err
			}
			f, err := os.Open(p)
			if err != nil {
				return err
			}
			defer f.Close()
			return atomicfile.Copy(target, f, info.Mode().Perm())
		}
		return nil
	})
}
