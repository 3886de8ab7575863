package trust

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNewStoreCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "does", "not", "exist")

	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if len(store.Entries()) != 0 {
		t.Errorf("fresh store should be empty, got %v", store.Entries())
	}

	if _, err := os.Stat(dir); err != nil {
		t.Errorf("base directory should exist: %v", err)
	}

	// No report file until the first Trust call.
	if _, err := os.Stat(filepath.Join(dir, ".known-clients")); !os.IsNotExist(err) {
		t.Errorf("report file should not exist before first Trust, stat err = %v", err)
	}
}

func TestNewStoreNotADirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "occupied")
	if err := os.WriteFile(file, []byte("x"), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := NewStore(file); !errors.Is(err, ErrNotADirectory) {
		t.Errorf("NewStore() error = %v, want ErrNotADirectory", err)
	}
}

func TestNewStoreCorruptReport(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".known-clients"), []byte("{not json"), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := NewStore(dir); !errors.Is(err, ErrCorruptReport) {
		t.Errorf("NewStore() error = %v, want ErrCorruptReport", err)
	}
}

func TestTrustPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if err := store.Trust([]string{"a.example", "b.example"}, "fp-1"); err != nil {
		t.Fatalf("Trust() error = %v", err)
	}

	reopened, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() reopen error = %v", err)
	}
	for _, identity := range []string{"a.example", "b.example"} {
		fp, ok := reopened.Fingerprint(identity)
		if !ok || fp != "fp-1" {
			t.Errorf("Fingerprint(%q) = %q, %v after reopen, want fp-1, true", identity, fp, ok)
		}
	}
}

func TestTrustOverwrite(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	if err := store.Trust([]string{"a.example"}, "fp-old"); err != nil {
		t.Fatalf("Trust() error = %v", err)
	}
	if err := store.Trust([]string{"a.example"}, "fp-new"); err != nil {
		t.Fatalf("Trust() error = %v", err)
	}

	fp, ok := store.Fingerprint("a.example")
	if !ok || fp != "fp-new" {
		t.Errorf("Fingerprint() = %q, %v, want fp-new, true", fp, ok)
	}
}

func TestEntriesReturnsCopy(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if err := store.Trust([]string{"a.example"}, "fp-1"); err != nil {
		t.Fatalf("Trust() error = %v", err)
	}

	entries := store.Entries()
	entries["a.example"] = "mutated"

	fp, _ := store.Fingerprint("a.example")
	if fp != "fp-1" {
		t.Error("mutating the Entries copy must not affect the store")
	}
}
