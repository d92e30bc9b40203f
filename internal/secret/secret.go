// Package secret stores the recognition API credential.
package secret

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Store reads and writes a single string secret. An empty string clears it.
type Store interface {
	Get() (string, error)
	Set(value string) error
}

// FileStore keeps the secret in a 0600 file, the local stand-in for a
// platform keychain.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Get() (string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *FileStore) Set(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		err := os.Remove(s.path)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.path, []byte(value), 0o600)
}

// Static is a fixed-value store for tests and env-provided keys.
type Static string

func (s Static) Get() (string, error) { return string(s), nil }
func (s Static) Set(string) error     { return errors.New("static secret store is read-only") }
