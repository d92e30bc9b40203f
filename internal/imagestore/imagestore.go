// Package imagestore persists meal photo JPEGs on local disk, addressed by
// filename. It is the engine's only local blob storage.
package imagestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Store reads and writes JPEG files under a single base directory.
type Store struct {
	baseDir string
	newID   func() uuid.UUID
}

// Option configures a Store.
type Option func(*Store)

// WithIDProvider overrides the filename ID source. Used by tests that need
// deterministic filenames.
func WithIDProvider(f func() uuid.UUID) Option {
	return func(s *Store) { s.newID = f }
}

// New returns a Store rooted at baseDir. The directory is created lazily on
// first save.
func New(baseDir string, opts ...Option) *Store {
	s := &Store{baseDir: baseDir, newID: uuid.New}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SaveBytes writes data under preferredName, or under a fresh
// "<uuid>.jpg" name when preferredName is empty. Returns the filename used.
func (s *Store) SaveBytes(data []byte, preferredName string) (string, error) {
	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return "", err
	}

	name := preferredName
	if name == "" {
		name = fmt.Sprintf("%s.jpg", s.newID())
	}
	if err := os.WriteFile(s.Path(name), data, 0o644); err != nil {
		return "", err
	}
	return name, nil
}

// LoadBytes reads a stored file. A missing file returns (nil, false, nil).
func (s *Store) LoadBytes(filename string) ([]byte, bool, error) {
	data, err := os.ReadFile(s.Path(filename))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// FileExists reports whether a stored file is present on disk.
func (s *Store) FileExists(filename string) bool {
	info, err := os.Stat(s.Path(filename))
	return err == nil && !info.IsDir()
}

// DeleteFile removes a stored file. Deleting an absent file is not an
// error.
func (s *Store) DeleteFile(filename string) error {
	err := os.Remove(s.Path(filename))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Path resolves a filename to its absolute location under the base
// directory.
func (s *Store) Path(filename string) string {
	return filepath.Join(s.baseDir, filename)
}
