// Package asar reads and writes Electron asar archives.
//
// Layout on disk:
//
//	uint32 4              size pickle payload length
//	uint32 headerSize     length of the header pickle that follows
//	uint32 payload        header pickle payload length
//	int32  jsonLen        length of the JSON directory tree
//	[jsonLen]byte         JSON, zero padded to a multiple of 4
//	...                   file contents, concatenated
//
// File offsets in the JSON tree are relative to the end of the header
// pickle, i.e. 8+headerSize. Files flagged "unpacked" live next to the
// archive in <archive>.unpacked/ instead.
package asar

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
)

// maxHeaderSize bounds the header allocation for corrupt or hostile inputs.
const maxHeaderSize = 128 << 20

var (
	// ErrInvalidArchive is returned for archives whose header cannot be decoded.
	ErrInvalidArchive = errors.New("invalid asar archive")
	// ErrUnsafePath is returned for entries or links that resolve outside the
	// extraction or source root.
	ErrUnsafePath = errors.New("unsafe path in archive")
	// ErrNotFound is returned by [Header.Find] lookups that miss.
	ErrNotFound = errors.New("no such entry in archive")
)

// ///////////////////////////////////////////////
// Entry
// ///////////////////////////////////////////////

// Entry is one node of the archive's directory tree. A directory has a
// non-nil Files map; a symlink has a non-empty Link; anything else is a file.
type Entry struct {
	// Files maps child names to entries. Nil for non-directories.
	Files map[string]*Entry
	// Size is the file length in bytes.
	Size int64
	// Offset is the file's start relative to the archive data section.
	Offset int64
	// Unpacked marks files stored in <archive>.unpacked/.
	Unpacked bool
	// Executable marks files that get the executable bit on extraction.
	Executable bool
	// Link is the slash-separated, archive-relative symlink target.
	Link string
}

// IsDir reports whether e is a directory.
func (e *Entry) IsDir() bool { return e.Files != nil }

// IsLink reports whether e is a symlink.
func (e *Entry) IsLink() bool { return e.Link != "" }

type fileJSON struct {
	Size       int64  `json:"size"`
	Offset     string `json:"offset,omitempty"`
	Unpacked   bool   `json:"unpacked,omitempty"`
	Executable bool   `json:"executable,omitempty"`
}

// MarshalJSON encodes e in asar's header shape: offsets are decimal strings
// and directories always carry a "files" object, even when empty.
func (e *Entry) MarshalJSON() ([]byte, error) {
	switch {
	case e.IsDir():
		return json.Marshal(struct {
			Files map[string]*Entry `json:"files"`
		}{e.Files})
	case e.IsLink():
		return json.Marshal(struct {
			Link string `json:"link"`
		}{e.Link})
	}
	w := fileJSON{Size: e.Size, Unpacked: e.Unpacked, Executable: e.Executable}
	if !e.Unpacked {
		w.Offset = strconv.FormatInt(e.Offset, 10)
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes an asar header node. Offsets are accepted as either
// strings or bare numbers.
func (e *Entry) UnmarshalJSON(b []byte) error {
	var w struct {
		Files      map[string]*Entry `json:"files"`
		Size       int64             `json:"size"`
		Offset     json.Number       `json:"offset"`
		Unpacked   bool              `json:"unpacked"`
		Executable bool              `json:"executable"`
		Link       string            `json:"link"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*e = Entry{
		Files:      w.Files,
		Size:       w.Size,
		Unpacked:   w.Unpacked,
		Executable: w.Executable,
		Link:       w.Link,
	}
	if w.Offset != "" {
		off, err := w.Offset.Int64()
		if err != nil {
			return fmt.Errorf("offset %q: %w", w.Offset, err)
		}
		e.Offset = off
	}
	if e.Size < 0 || e.Offset < 0 {
		return fmt.Errorf("negative size or offset")
	}
	return nil
}

// ///////////////////////////////////////////////
// Header
// ///////////////////////////////////////////////

// Header is a decoded archive header.
type Header struct {
	// Root is the top-level directory entry.
	Root *Entry
	// DataOffset is the absolute file offset where file contents begin.
	DataOffset int64
}

// ReadHeader decodes the header at the start of r.
func ReadHeader(r io.ReaderAt) (*Header, error) {
	var prefix [8]byte
	if _, err := io.ReadFull(io.NewSectionReader(r, 0, 8), prefix[:]); err != nil {
		return nil, fmt.Errorf("%w: read size pickle: %v", ErrInvalidArchive, err)
	}
	if n := binary.LittleEndian.Uint32(prefix[0:4]); n != 4 {
		return nil, fmt.Errorf("%w: size pickle payload is %d, want 4", ErrInvalidArchive, n)
	}
	headerSize := int64(binary.LittleEndian.Uint32(prefix[4:8]))
	if headerSize < 8 || headerSize > maxHeaderSize {
		return nil, fmt.Errorf("%w: header size %d out of range", ErrInvalidArchive, headerSize)
	}

	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(io.NewSectionReader(r, 8, headerSize), buf); err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrInvalidArchive, err)
	}
	payload := int64(binary.LittleEndian.Uint32(buf[0:4]))
	jsonLen := int64(int32(binary.LittleEndian.Uint32(buf[4:8])))
	if payload+4 > headerSize || jsonLen < 0 || 8+jsonLen > headerSize {
		return nil, fmt.Errorf("%w: header pickle lengths inconsistent", ErrInvalidArchive)
	}

	root := new(Entry)
	if err := json.Unmarshal(buf[8:8+jsonLen], root); err != nil {
		return nil, fmt.Errorf("%w: decode header json: %v", ErrInvalidArchive, err)
	}
	if !root.IsDir() {
		return nil, fmt.Errorf("%w: root is not a directory", ErrInvalidArchive)
	}
	return &Header{Root: root, DataOffset: 8 + headerSize}, nil
}

// encodeHeader builds the size pickle and header pickle for the given tree.
func encodeHeader(root *Entry) ([]byte, error) {
	js, err := json.Marshal(root)
	if err != nil {
		return nil, fmt.Errorf("encode header json: %w", err)
	}
	padded := (len(js) + 3) &^ 3
	headerSize := 8 + padded

	buf := make([]byte, 8+headerSize)
	binary.LittleEndian.PutUint32(buf[0:], 4)
	binary.LittleEndian.PutUint32(buf[4:], uint32(headerSize))
	binary.LittleEndian.PutUint32(buf[8:], uint32(4+padded))
	binary.LittleEndian.PutUint32(buf[12:], uint32(len(js)))
	copy(buf[16:], js)
	return buf, nil
}

// ///////////////////////////////////////////////
// Traversal
// ///////////////////////////////////////////////

// Walk calls fn for every entry below the root in depth-first order, parents
// before children and siblings sorted by name. rel is slash-separated.
func (h *Header) Walk(fn func(rel string, e *Entry) error) error {
	return walk("", h.Root, fn)
}

func walk(prefix string, dir *Entry, fn func(string, *Entry) error) error {
	names := make([]string, 0, len(dir.Files))
	for name := range dir.Files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		e := dir.Files[name]
		if e == nil {
			return fmt.Errorf("%w: null entry %q", ErrInvalidArchive, name)
		}
		rel := name
		if prefix != "" {
			rel = prefix + "/" + name
		}
		if err := fn(rel, e); err != nil {
			return err
		}
		if e.IsDir() {
			if err := walk(rel, e, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// List returns the slash-separated paths of every entry, in [Header.Walk] order.
func (h *Header) List() []string {
	var out []string
	_ = h.Walk(func(rel string, _ *Entry) error {
		out = append(out, rel)
		return nil
	})
	return out
}

// UnpackedFiles returns the slash-separated paths of every file stored in
// the archive's .unpacked directory.
func (h *Header) UnpackedFiles() []string {
	var out []string
	_ = h.Walk(func(rel string, e *Entry) error {
		if e.Unpacked && !e.IsDir() {
			out = append(out, rel)
		}
		return nil
	})
	return out
}

// Find returns the entry at the slash-separated path rel.
func (h *Header) Find(rel string) (*Entry, error) {
	e := h.Root
	for _, part := range strings.Split(path.Clean(rel), "/") {
		if part == "." || part == "" {
			continue
		}
		if !e.IsDir() {
			return nil, fmt.Errorf("%s: %w", rel, ErrNotFound)
		}
		next, ok := e.Files[part]
		if !ok || next == nil {
			return nil, fmt.Errorf("%s: %w", rel, ErrNotFound)
		}
		e = next
	}
	return e, nil
}
