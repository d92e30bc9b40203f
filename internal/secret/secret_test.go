package secret

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "api_key")
	s := NewFileStore(path)

	// absent file reads as empty, not as an error
	got, err := s.Get()
	if err != nil || got != "" {
		t.Fatalf("empty get: %q, %v", got, err)
	}

	if err := s.Set("  sk-12345  "); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err = s.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "sk-12345" {
		t.Fatalf("got %q, want trimmed value", got)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("file mode = %o, want 600", perm)
	}
}

func TestFileStoreClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api_key")
	s := NewFileStore(path)

	if err := s.Set("value"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set(""); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("file still present: %v", err)
	}
	// clearing again is fine
	if err := s.Set(""); err != nil {
		t.Fatalf("second clear: %v", err)
	}
}

func TestStaticStore(t *testing.T) {
	s := Static("fixed")
	got, err := s.Get()
	if err != nil || got != "fixed" {
		t.Fatalf("get: %q, %v", got, err)
	}
	if err := s.Set("other"); err == nil {
		t.Fatal("static store accepted a write")
	}
}
