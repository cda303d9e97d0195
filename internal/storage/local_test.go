package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestLocal_Put(t *testing.T) {
	dir := t.TempDir()
	store := NewLocal(dir)
	ctx := context.Background()

	content := "code,vat\nIVA21,21\n"
	loc, err := store.Put(ctx, "rates.csv", strings.NewReader(content), "text/csv")
	if err != nil {
		t.Fatalf("Put: unexpected error: %v", err)
	}

	if want := filepath.Join(dir, "rates.csv"); loc != want {
		t.Errorf("Put: location = %q, want %q", loc, want)
	}

	data, err := os.ReadFile(filepath.Join(dir, "rates.csv"))
	if err != nil {
		t.Fatalf("reading written file: %v", err)
	}
	if string(data) != content {
		t.Errorf("file content = %q, want %q", string(data), content)
	}
}

func TestLocal_Put_NestedKey(t *testing.T) {
	dir := t.TempDir()
	store := NewLocal(dir)

	if _, err := store.Put(context.Background(), "imports/tax-rates/2026/03/01/x.csv", strings.NewReader("data"), "text/csv"); err != nil {
		t.Fatalf("Put nested key: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "imports", "tax-rates", "2026", "03", "01", "x.csv")); err != nil {
		t.Errorf("nested file not found: %v", err)
	}
}

func TestLocal_Put_EmptyContent(t *testing.T) {
	dir := t.TempDir()
	store := NewLocal(dir)

	if _, err := store.Put(context.Background(), "empty.csv", bytes.NewReader(nil), "text/csv"); err != nil {
		t.Fatalf("Put empty content: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "empty.csv"))
	if err != nil {
		t.Fatalf("reading empty file: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("expected empty file, got %d bytes", len(data))
	}
}

func TestLocal_Put_InvalidBasePath(t *testing.T) {
	// Subdirectories cannot be created under a device file.
	store := NewLocal("/dev/null")

	_, err := store.Put(context.Background(), "sub/rates.csv", strings.NewReader("data"), "text/csv")
	if err == nil {
		t.Fatal("expected error when base path is invalid, got nil")
	}
	if !strings.Contains(err.Error(), "creating directory") {
		t.Errorf("expected directory creation error, got: %v", err)
	}
}

// errReader is a reader that always fails.
type errReader struct{ err error }

func (r *errReader) Read(p []byte) (int, error) { return 0, r.err }

func TestLocal_Put_ReaderError(t *testing.T) {
	dir := t.TempDir()
	store := NewLocal(dir)

	_, err := store.Put(context.Background(), "broken.csv", &errReader{err: errors.New("connection reset")}, "text/csv")
	if err == nil {
		t.Fatal("expected error from failing reader, got nil")
	}
	if !strings.Contains(err.Error(), "writing file") {
		t.Errorf("expected writing file error, got: %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "broken.csv")); !os.IsNotExist(statErr) {
		t.Error("partial file should be removed after a write error")
	}
}

func TestLocal_Delete(t *testing.T) {
	dir := t.TempDir()
	store := NewLocal(dir)

	path := filepath.Join(dir, "to-delete.csv")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("creating test file: %v", err)
	}

	if err := store.Delete(context.Background(), "to-delete.csv"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected file to be deleted")
	}
}

func TestLocal_Delete_NonExistent(t *testing.T) {
	store := NewLocal(t.TempDir())

	if err := store.Delete(context.Background(), "does-not-exist.csv"); err != nil {
		t.Errorf("Delete non-existent: expected no error, got %v", err)
	}
}

func TestLocal_PutThenDelete(t *testing.T) {
	dir := t.TempDir()
	store := NewLocal(dir)
	ctx := context.Background()

	key := ImportKey("tax-rates", time.Now())
	if _, err := store.Put(ctx, key, strings.NewReader("code,vat\n"), "text/csv"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(key))); !os.IsNotExist(err) {
		t.Error("expected archived file to be gone")
	}
}

func TestImportKey(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 15, 0, 0, time.FixedZone("CET", 3600))
	key := ImportKey("tax-rates", at)

	pattern := regexp.MustCompile(`^imports/tax-rates/2026/03/01/091500-[0-9a-f-]{36}\.csv$`)
	if !pattern.MatchString(key) {
		t.Errorf("unexpected key %q", key)
	}
	if ImportKey("tax-rates", at) == key {
		t.Error("keys for the same instant should differ")
	}
}
