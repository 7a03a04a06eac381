// Package local implements adapter.RawStorage on the local filesystem,
// the RawStorage fallback selected when MINIO_ENDPOINT is unset (no
// remote object store is configured).
package local

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/docuforge/ragcore/internal/apierr"
)

// Store roots every path under a single directory, creating parent
// directories as needed.
type Store struct {
	root string
}

// New creates a Store rooted at dir, creating it if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apierr.Wrap(apierr.Permanent, "create raw storage root", err)
	}
	return &Store{root: dir}, nil
}

func (s *Store) resolve(path string) (string, error) {
	clean := filepath.Clean("/" + path)
	full := filepath.Join(s.root, clean)
	if !strings.HasPrefix(full, filepath.Clean(s.root)+string(os.PathSeparator)) && full != filepath.Clean(s.root) {
		return "", apierr.Wrap(apierr.Internal, "path escapes storage root: "+path, nil)
	}
	return full, nil
}

// Put writes data atomically: it writes to a temp file in the same
// directory and renames it into place, so a concurrent Get never
// observes a partial object. An existing path is an invariant
// violation — RawStorage objects are read-only after Put.
func (s *Store) Put(_ context.Context, path string, data io.Reader, _ int64) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if _, statErr := os.Stat(full); statErr == nil {
		return apierr.Wrap(apierr.Internal, "blob path collision: "+path, nil)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return apierr.Wrap(apierr.Permanent, "create blob directory", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return apierr.Wrap(apierr.Transient, "create temp file", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		return apierr.Wrap(apierr.Transient, "write blob", err)
	}
	if err := tmp.Close(); err != nil {
		return apierr.Wrap(apierr.Transient, "close temp file", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return apierr.Wrap(apierr.Permanent, "rename blob into place", err)
	}
	return nil
}

func (s *Store) Get(_ context.Context, path string) (io.ReadCloser, int64, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(full)
	if os.IsNotExist(err) {
		return nil, 0, apierr.NotFoundf("blob not found: %s", path)
	}
	if err != nil {
		return nil, 0, apierr.Wrap(apierr.Transient, "open blob", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, apierr.Wrap(apierr.Transient, "stat blob", err)
	}
	return f, info.Size(), nil
}

func (s *Store) Delete(_ context.Context, path string) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return apierr.Wrap(apierr.Transient, "delete blob", err)
	}
	return nil
}

func (s *Store) DeletePrefix(_ context.Context, prefix string) error {
	full, err := s.resolve(prefix)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(full); err != nil {
		return apierr.Wrap(apierr.Transient, "delete blob prefix", err)
	}
	return nil
}

func (s *Store) Exists(_ context.Context, path string) (bool, error) {
	full, err := s.resolve(path)
	if err != nil {
		return false, err
	}
	_, statErr := os.Stat(full)
	if statErr == nil {
		return true, nil
	}
	if os.IsNotExist(statErr) {
		return false, nil
	}
	return false, apierr.Wrap(apierr.Transient, "stat blob", statErr)
}
