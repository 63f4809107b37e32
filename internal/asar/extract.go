package asar

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// UnpackedSuffix is appended to an archive path to name the directory
// holding its unpacked files.
const UnpackedSuffix = ".unpacked"

// ExtractAll unpacks every entry of the archive at archivePath into destDir,
// creating destDir if needed and overwriting files already there.
func ExtractAll(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	h, err := ReadHeader(f)
	if err != nil {
		return fmt.Errorf("%s: %w", archivePath, err)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", destDir, err)
	}

	unpackedDir := archivePath + UnpackedSuffix
	return h.Walk(func(rel string, e *Entry) error {
		local := filepath.FromSlash(rel)
		if !filepath.IsLocal(local) {
			return fmt.Errorf("%q: %w", rel, ErrUnsafePath)
		}
		target := filepath.Join(destDir, local)

		switch {
		case e.IsDir():
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create %s: %w", target, err)
			}
			return nil
		case e.IsLink():
			return extractLink(destDir, target, rel, e.Link)
		}

		perm := os.FileMode(0o644)
		if e.Executable {
			perm = 0o755
		}
		if e.Unpacked {
			src, err := os.Open(filepath.Join(unpackedDir, local))
			if err != nil {
				return fmt.Errorf("open unpacked %s: %w", rel, err)
			}
			defer src.Close()
			return extractFile(target, src, e.Size, perm)
		}
		src := io.NewSectionReader(f, h.DataOffset+e.Offset, e.Size)
		return extractFile(target, src, e.Size, perm)
	})
}

// extractFile writes exactly size bytes from src to target.
func extractFile(target string, src io.Reader, size int64, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(target), err)
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	n, err := io.Copy(out, src)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}
	if n != size {
		return fmt.Errorf("%w: %s truncated (%d of %d bytes)", ErrInvalidArchive, target, n, size)
	}
	return nil
}

// extractLink recreates an archive-relative symlink as a link relative to
// its own directory.
func extractLink(destDir, target, rel, link string) error {
	linkLocal := filepath.FromSlash(link)
	if !filepath.IsLocal(linkLocal) {
		return fmt.Errorf("link %q -> %q: %w", rel, link, ErrUnsafePath)
	}
	dest, err := filepath.Rel(filepath.Dir(target), filepath.Join(destDir, linkLocal))
	if err != nil {
		return fmt.Errorf("link %q: %w", rel, err)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(target), err)
	}
	os.Remove(target)
	if err := os.Symlink(dest, target); err != nil {
		return fmt.Errorf("symlink %s: %w", target, err)
	}
	return nil
}

// UnpackedFiles opens the archive at archivePath and returns
// [Header.UnpackedFiles].
func UnpackedFiles(archivePath string) ([]string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	h, err := ReadHeader(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", archivePath, err)
	}
	return h.UnpackedFiles(), nil
}

// ReadFile returns the content of one file inside the archive without
// extracting anything else.
func ReadFile(archivePath, rel string) ([]byte, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	h, err := ReadHeader(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", archivePath, err)
	}
	e, err := h.Find(rel)
	if err != nil {
		return nil, err
	}
	if e.IsDir() || e.IsLink() {
		return nil, fmt.Errorf("%s: not a regular file", rel)
	}
	if e.Unpacked {
		return os.ReadFile(filepath.Join(archivePath+UnpackedSuffix, filepath.FromSlash(rel)))
	}
	buf := make([]byte, e.Size)
	if _, err := io.ReadFull(io.NewSectionReader(f, h.DataOffset+e.Offset, e.Size), buf); err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrInvalidArchive, rel, err)
	}
	return buf, nil
}
