package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
)

var _ Store = (*LocalStore)(nil)

// LocalStore keeps images in a directory on disk. URLs point at the app's
// own /uploads/ route.
type LocalStore struct {
	dir       string
	urlPrefix string
}

// NewLocalStore creates dir if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("upload: creating directory %s: %w", dir, err)
	}
	return &LocalStore{dir: dir, urlPrefix: "/uploads/"}, nil
}

// Dir is the directory images are written to.
func (s *LocalStore) Dir() string {
	return s.dir
}

// Path returns the on-disk location of name. name must already be sanitised.
func (s *LocalStore) Path(name string) string {
	return filepath.Join(s.dir, filepath.Base(name))
}

// Save writes to a temporary file in the same directory and renames it
// into place, so a reader never sees a half-written image.
func (s *LocalStore) Save(_ context.Context, name string, body io.Reader) error {
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("upload: creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return fmt.Errorf("upload: writing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("upload: closing %s: %w", name, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("upload: chmod %s: %w", name, err)
	}

	if err := os.Rename(tmpName, s.Path(name)); err != nil {
		return fmt.Errorf("upload: moving %s into place: %w", name, err)
	}
	return nil
}

func (s *LocalStore) Delete(_ context.Context, name string) error {
	err := os.Remove(s.Path(name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("upload: removing %s: %w", name, err)
	}
	return nil
}

func (s *LocalStore) URL(name string) string {
	return s.urlPrefix + url.PathEscape(name)
}
