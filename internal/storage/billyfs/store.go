// Package billyfs stores values as files on a go-billy filesystem, one file
// per key. Use osfs for durable storage and memfs for tests.
package billyfs

import (
	"context"
	"io"
	"os"
	"path"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/xenking/kart-storefront/internal/storage"
)

var _ storage.Store = (*Store)(nil)

const fileExt = ".json"

// Store implements storage.Store on top of a billy.Filesystem.
type Store struct {
	fs billy.Filesystem
}

// New returns a Store writing into fs.
func New(fs billy.Filesystem) *Store {
	return &Store{fs: fs}
}

// NewDir returns a Store rooted at dir on the OS filesystem, creating the
// directory when it does not exist.
func NewDir(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrapf(err, "create storage dir %q", dir)
	}
	return New(osfs.New(dir)), nil
}

// NewMemory returns a Store that keeps everything in memory.
func NewMemory() *Store {
	return New(memfs.New())
}

// fileName maps a key onto a flat file name. Separators are replaced so a key
// can never escape the root.
func fileName(key string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "..", "_")
	return r.Replace(key) + fileExt
}

// Get implements storage.Store.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	f, err := s.fs.Open(fileName(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, errors.Wrapf(err, "open %q", key)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Wrapf(err, "read %q", key)
	}
	return data, nil
}

// Set implements storage.Store. The value is written to a temporary file
// first and renamed into place.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	name := fileName(key)
	tmp, err := s.fs.TempFile(path.Dir(name), "."+name+".tmp")
	if err != nil {
		return errors.Wrapf(err, "create temp file for %q", key)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return errors.Wrapf(err, "write %q", key)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return errors.Wrapf(err, "close %q", key)
	}
	if err := s.fs.Rename(tmpName, name); err != nil {
		_ = s.fs.Remove(tmpName)
		return errors.Wrapf(err, "rename %q", key)
	}
	return nil
}

// Delete implements storage.Store.
func (s *Store) Delete(_ context.Context, key string) error {
	if err := s.fs.Remove(fileName(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(err, "remove %q", key)
	}
	return nil
}
