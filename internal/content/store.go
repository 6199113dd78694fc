// Package content manages the lesson library: a flat directory of .avp
// packages the creator server lists, serves and accepts uploads into.
package content

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/petervdpas/avp/internal/avp"
)

const Ext = ".avp"

var (
	ErrOutsideRoot = errors.New("path outside root")
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrBadName     = errors.New("package names must be a single file name ending in .avp")
	ErrNotPackage  = errors.New("not an .avp package")
	ErrTooLarge    = errors.New("package exceeds the size limit")
)

var zipMagic = []byte("PK\x03\x04")

type Store struct {
	root    string // absolute path to the library directory
	maxSize int64
}

func NewStore(dir string, maxSize int64) (*Store, error) {
	root, err := filepath.Abs(filepath.Clean(dir))
	if err != nil {
		return nil, err
	}
	return &Store{root: root, maxSize: maxSize}, nil
}

// PackageInfo describes one library entry.
type PackageInfo struct {
	Name  string   `json:"name"`
	Size  int64    `json:"size"`
	ETag  string   `json:"etag"` // sha256:<hex>
	Mod   int64    `json:"mod"`  // unix seconds
	Title string   `json:"title,omitempty"`
	Audio string   `json:"audio,omitempty"`
	Error string   `json:"error,omitempty"`
	Refs  []string `json:"images,omitempty"`
}

func (s *Store) RootAbs() string { return s.root }

func (s *Store) MaxSize() int64 { return s.maxSize }

func (s *Store) EnsureRoot() error {
	return os.MkdirAll(s.root, 0o755)
}

// ValidName reports whether name can be stored in the library.
func ValidName(name string) error {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) {
		return ErrBadName
	}
	if strings.HasPrefix(name, ".") || !strings.EqualFold(filepath.Ext(name), Ext) {
		return ErrBadName
	}
	return nil
}

// Read returns bytes + etag.
func (s *Store) Read(ctx context.Context, name string) ([]byte, string, error) {
	abs, err := s.cleanAbs(name)
	if err != nil {
		return nil, "", err
	}

	if st, err := os.Stat(abs); err == nil && s.maxSize > 0 && st.Size() > s.maxSize {
		return nil, "", ErrTooLarge
	}

	b, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", ErrNotFound
		}
		return nil, "", err
	}
	return b, etagBytes(b), nil
}

// Stat reads one package and summarizes its manifest. A package whose
// manifest cannot be read is still reported, with Error set.
func (s *Store) Stat(ctx context.Context, name string) (PackageInfo, error) {
	abs, err := s.cleanAbs(name)
	if err != nil {
		return PackageInfo{}, err
	}
	st, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return PackageInfo{}, ErrNotFound
		}
		return PackageInfo{}, err
	}
	if st.IsDir() {
		return PackageInfo{}, ErrNotFound
	}

	info := PackageInfo{Name: name, Size: st.Size(), Mod: st.ModTime().Unix()}
	b, _, err := s.Read(ctx, name)
	if err != nil {
		info.Error = err.Error()
		return info, nil
	}
	info.ETag = etagBytes(b)

	m, err := avp.ReadManifest(b)
	if err != nil {
		info.Error = err.Error()
		return info, nil
	}
	info.Title = m.Title
	info.Audio = m.Audio
	info.Refs = avp.ReferencedImages(m.Keyframes)
	return info, nil
}

// Write writes atomically. If ifMatch is non-empty, it must match current
// etag; "none" requires the package not to exist yet.
func (s *Store) Write(ctx context.Context, name string, data []byte, ifMatch string) (string, error) {
	abs, err := s.cleanAbs(name)
	if err != nil {
		return "", err
	}
	if s.maxSize > 0 && int64(len(data)) > s.maxSize {
		return "", ErrTooLarge
	}
	if !bytes.HasPrefix(data, zipMagic) {
		return "", ErrNotPackage
	}

	// optional optimistic concurrency
	if ifMatch != "" {
		_, curETag, err := s.Read(ctx, name)
		if err != nil && err != ErrNotFound {
			return "", err
		}
		if err == nil && curETag != ifMatch {
			return "", ErrConflict
		}
		if err == ErrNotFound && ifMatch != "none" {
			return "", ErrConflict
		}
	}

	if st, err := os.Stat(abs); err == nil && st.IsDir() {
		return "", ErrConflict
	}
	if err := s.EnsureRoot(); err != nil {
		return "", err
	}

	// Create temp file in same dir for atomic rename.
	f, err := os.CreateTemp(s.root, ".avp-*")
	if err != nil {
		return "", err
	}
	tmp := f.Name()

	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(tmp)
	}

	if _, err := f.Write(data); err != nil {
		cleanup()
		return "", err
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}

	if err := os.Rename(tmp, abs); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}

	return etagBytes(data), nil
}

func (s *Store) Delete(ctx context.Context, name string) error {
	abs, err := s.cleanAbs(name)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// Rename renames a package; the target must not exist.
func (s *Store) Rename(ctx context.Context, from, to string) error {
	fromAbs, err := s.cleanAbs(from)
	if err != nil {
		return err
	}
	toAbs, err := s.cleanAbs(to)
	if err != nil {
		return err
	}
	if _, err := os.Stat(toAbs); err == nil {
		return ErrConflict
	}
	if err := os.Rename(fromAbs, toAbs); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// List returns every package in the library sorted by name. A missing
// library directory is an empty library.
func (s *Store) List(ctx context.Context) ([]PackageInfo, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	out := make([]PackageInfo, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || ValidName(e.Name()) != nil {
			continue
		}
		info, err := s.Stat(ctx, e.Name())
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue // removed while listing
			}
			return nil, err
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// --- safety boundary ---

func (s *Store) cleanAbs(name string) (string, error) {
	if err := ValidName(name); err != nil {
		return "", err
	}

	abs := filepath.Join(s.root, name)
	rootClean := filepath.Clean(s.root)
	if filepath.Dir(abs) != rootClean {
		return "", ErrOutsideRoot
	}

	// prevent symlink escape on existing paths
	if p, err := filepath.EvalSymlinks(abs); err == nil {
		rootReal, rerr := filepath.EvalSymlinks(rootClean)
		if rerr != nil {
			rootReal = rootClean
		}
		if filepath.Dir(p) != rootReal {
			return "", ErrOutsideRoot
		}
	}

	return abs, nil
}

func etagBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(sum[:])
}
