package avp

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
)

// Archive is random access to named entries of a package container.
type Archive interface {
	// Entries lists regular entry names.
	Entries() []string
	// Has reports whether a regular entry exists.
	Has(name string) bool
	// ReadEntry returns the full bytes of an entry.
	ReadEntry(name string) ([]byte, error)
}

// DefaultMaxEntrySize caps a single decompressed entry.
const DefaultMaxEntrySize = 64 << 20

type zipArchive struct {
	files   map[string]*zip.File
	maxSize int64
}

// OpenZip opens archive bytes as a ZIP container.
func OpenZip(data []byte) (Archive, error) {
	return openZip(data, DefaultMaxEntrySize)
}

func openZip(data []byte, maxEntry int64) (*zipArchive, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, formatErr(ErrCorruptArchive, "", err)
	}
	a := &zipArchive{files: make(map[string]*zip.File, len(zr.File)), maxSize: maxEntry}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		// first entry wins on duplicate names
		if _, dup := a.files[f.Name]; !dup {
			a.files[f.Name] = f
		}
	}
	return a, nil
}

func (a *zipArchive) Entries() []string {
	out := make([]string, 0, len(a.files))
	for name := range a.files {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (a *zipArchive) Has(name string) bool {
	_, ok := a.files[name]
	return ok
}

func (a *zipArchive) ReadEntry(name string) ([]byte, error) {
	f, ok := a.files[name]
	if !ok {
		return nil, fmt.Errorf("entry %q not found", name)
	}
	if a.maxSize > 0 && f.UncompressedSize64 > uint64(a.maxSize) {
		return nil, fmt.Errorf("entry %q: %w", name, ErrTooLarge)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", name, err)
	}
	defer rc.Close()

	limit := a.maxSize
	if limit <= 0 {
		limit = DefaultMaxEntrySize
	}
	b, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", name, err)
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("entry %q: %w", name, ErrTooLarge)
	}
	return b, nil
}

// SafeEntryPath reports whether p is a relative archive path that stays
// inside the package.
func SafeEntryPath(p string) bool {
	if p == "" || strings.ContainsRune(p, '\\') || strings.ContainsRune(p, 0) {
		return false
	}
	if strings.HasPrefix(p, "/") || (len(p) > 1 && p[1] == ':') {
		return false
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return false
		}
	}
	return path.Clean(p) != "."
}
