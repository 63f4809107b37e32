package asar

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"tools.zach/dev/dynapatch/internal/atomicfile"
)

// Options controls [CreatePackage].
type Options struct {
	// Unpack lists doublestar patterns, matched against slash-separated paths
	// relative to the source root, for files kept outside the archive in
	// <archive>.unpacked/ (native modules, for example "**/*.node").
	Unpack []string
	// UnpackFiles lists exact slash-separated paths that are always kept
	// unpacked, such as the entries already unpacked in a source archive.
	UnpackFiles []string
}

// packedFile is a file whose bytes go into the archive data section.
type packedFile struct {
	path string
	size int64
}

// CreatePackage packs srcDir into an archive at archivePath. The archive is
// written to a temp file and renamed into place, so an existing archive is
// only replaced once the new one is complete.
func CreatePackage(srcDir, archivePath string, opts Options) error {
	root := &Entry{Files: map[string]*Entry{}}
	var packed []packedFile
	var unpacked []string
	var offset int64
	keep := make(map[string]bool, len(opts.UnpackFiles))
	for _, rel := range opts.UnpackFiles {
		keep[rel] = true
	}

	err := filepath.WalkDir(srcDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == srcDir {
			return nil
		}
		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		slash := filepath.ToSlash(rel)
		parent, err := root.dir(path.Dir(slash))
		if err != nil {
			return err
		}
		name := path.Base(slash)

		switch {
		case d.IsDir():
			parent.Files[name] = &Entry{Files: map[string]*Entry{}}
		case d.Type()&fs.ModeSymlink != 0:
			link, err := linkTarget(srcDir, p)
			if err != nil {
				return err
			}
			parent.Files[name] = &Entry{Link: link}
		case d.Type().IsRegular():
			info, err := d.Info()
			if err != nil {
				return err
			}
			e := &Entry{
				Size:       info.Size(),
				Executable: runtime.GOOS != "windows" && info.Mode()&0o100 != 0,
			}
			unpack := keep[slash]
			if !unpack {
				if unpack, err = matchAny(opts.Unpack, slash); err != nil {
					return err
				}
			}
			if unpack {
				e.Unpacked = true
				unpacked = append(unpacked, rel)
			} else {
				e.Offset = offset
				offset += e.Size
				packed = append(packed, packedFile{path: p, size: e.Size})
			}
			parent.Files[name] = e
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan %s: %w", srcDir, err)
	}

	header, err := encodeHeader(root)
	if err != nil {
		return err
	}

	for _, rel := range unpacked {
		if err := copyUnpacked(filepath.Join(srcDir, rel), filepath.Join(archivePath+UnpackedSuffix, rel)); err != nil {
			return err
		}
	}

	perm := os.FileMode(0o644)
	if info, err := os.Stat(archivePath); err == nil {
		perm = info.Mode().Perm()
	}
	return atomicfile.WriteFunc(archivePath, perm, func(w io.Writer) error {
		if _, err := w.Write(header); err != nil {
			return err
		}
		for _, pf := range packed {
			if err := appendFile(w, pf); err != nil {
				return err
			}
		}
		return nil
	})
}

// dir returns the directory entry at the slash-separated path rel.
func (e *Entry) dir(rel string) (*Entry, error) {
	cur := e
	if rel == "." {
		return cur, nil
	}
	for _, part := range strings.Split(rel, "/") {
		next, ok := cur.Files[part]
		if !ok || !next.IsDir() {
			return nil, fmt.Errorf("parent directory %q not scanned", rel)
		}
		cur = next
	}
	return cur, nil
}

// linkTarget resolves a symlink under srcDir to a slash-separated path
// relative to srcDir. Links pointing outside srcDir are rejected.
func linkTarget(srcDir, p string) (string, error) {
	target, err := os.Readlink(p)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(p), target)
	}
	rel, err := filepath.Rel(srcDir, target)
	if err != nil || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("link %s -> %s: %w", p, target, ErrUnsafePath)
	}
	return filepath.ToSlash(rel), nil
}

// matchAny reports whether rel matches any of the doublestar patterns.
func matchAny(patterns []string, rel string) (bool, error) {
	for _, pat := range patterns {
		ok, err := doublestar.Match(pat, rel)
		if err != nil {
			return false, fmt.Errorf("unpack pattern %q: %w", pat, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// appendFile copies one source file into the archive stream. The file must
// still have the size recorded in the header.
func appendFile(w io.Writer, pf packedFile) error {
	f, err := os.Open(pf.path)
	if err != nil {
		return err
	}
	defer f.Close()
	n, err := io.Copy(w, io.LimitReader(f, pf.size))
	if err != nil {
		return fmt.Errorf("pack %s: %w", pf.path, err)
	}
	if n != pf.size {
		return fmt.Errorf("pack %s: size changed during packing (%d of %d bytes)", pf.path, n, pf.size)
	}
	return nil
}

// copyUnpacked copies a file to the archive's .unpacked tree, keeping its mode.
func copyUnpacked(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(dst), err)
	}
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := atomicfile.Copy(dst, f, info.Mode().Perm()); err != nil {
		return fmt.Errorf("unpack %s: %w", src, err)
	}
	return nil
}
