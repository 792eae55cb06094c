package fs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tendant/blobtier/pkg/blobtier"
)

func TestFSBackend_BasicOps(t *testing.T) {
	tmp := t.TempDir()
	backend, err := New(Config{BaseDir: tmp})
	if err != nil {
		t.Fatalf("new fs backend: %v", err)
	}

	ctx := context.Background()
	key := "cold/DOCID1@42"

	data := []byte("hello fs")
	if err := backend.Put(ctx, key, data); err != nil {
		t.Fatalf("put: %v", err)
	}

	ok, err := backend.Exists(ctx, key)
	if err != nil || !ok {
		t.Fatalf("exists: %v %v", ok, err)
	}

	got, err := backend.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("get mismatch: %q", string(got))
	}

	if err := backend.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := backend.Get(ctx, key); !errors.Is(err, blobtier.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := backend.Delete(ctx, key); !errors.Is(err, blobtier.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}

	// Empty parent directories are removed
	if _, err := os.Stat(filepath.Join(tmp, "cold")); !os.IsNotExist(err) {
		t.Fatalf("expected parent directory cleanup, stat err=%v", err)
	}
}

func TestFSBackend_ClearPrefix(t *testing.T) {
	backend, err := New(Config{BaseDir: t.TempDir()})
	if err != nil {
		t.Fatalf("new fs backend: %v", err)
	}
	ctx := context.Background()

	for _, k := range []string{"cold/a", "cold/b", "hot"} {
		if err := backend.Put(ctx, k, []byte(k)); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	if err := backend.ClearPrefix(ctx, "cold/"); err != nil {
		t.Fatalf("clear prefix: %v", err)
	}
	if ok, _ := backend.Exists(ctx, "cold/a"); ok {
		t.Fatalf("cold/a should be gone")
	}
	if ok, _ := backend.Exists(ctx, "hot"); !ok {
		t.Fatalf("hot should remain")
	}
	if err := backend.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if ok, _ := backend.Exists(ctx, "hot"); ok {
		t.Fatalf("hot should be gone")
	}
}

func TestFSBackend_InvalidKey(t *testing.T) {
	backend, err := New(Config{BaseDir: t.TempDir()})
	if err != nil {
		t.Fatalf("new fs backend: %v", err)
	}
	if err := backend.Put(context.Background(), "../escape", []byte("x")); err == nil {
		t.Fatalf("expected error for key escaping the base directory")
	}
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error for empty base dir")
	}
}
