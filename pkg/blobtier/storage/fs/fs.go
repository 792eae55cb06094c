package fs

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tendant/blobtier/pkg/blobtier"
)

// Backend is a filesystem implementation of blobtier.Backend. Keys map to
// paths below the base directory; a "/" in a key creates subdirectories.
type Backend struct {
	mu      sync.RWMutex
	baseDir string
}

// Config options for the filesystem backend
type Config struct {
	BaseDir string // Base directory for storing files
}

var (
	_ blobtier.Backend       = (*Backend)(nil)
	_ blobtier.PrefixClearer = (*Backend)(nil)
)

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}

	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Backend{baseDir: filepath.Clean(config.BaseDir)}, nil
}

func (b *Backend) path(key string) (string, error) {
	p := filepath.Join(b.baseDir, filepath.FromSlash(key))
	if p == b.baseDir || !strings.HasPrefix(p, b.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object key: %q", key)
	}
	return p, nil
}

// Put writes data to a temporary file and renames it over the object path.
func (b *Backend) Put(ctx context.Context, key string, data []byte) error {
	filePath, err := b.path(key)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// Get reads the object stored under key.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	filePath, err := b.path(key)
	if err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	data, err := os.ReadFile(filePath)
	if errors.Is(err, iofs.ErrNotExist) {
		return nil, fmt.Errorf("object %s: %w", key, blobtier.ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

// Exists reports whether key is stored.
func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	filePath, err := b.path(key)
	if err != nil {
		return false, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	_, err = os.Stat(filePath)
	if errors.Is(err, iofs.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("failed to stat file: %w", err)
	}
	return true, nil
}

// Delete deletes content from the filesystem
func (b *Backend) Delete(ctx context.Context, key string) error {
	filePath, err := b.path(key)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := os.Remove(filePath); errors.Is(err, iofs.ErrNotExist) {
		return fmt.Errorf("object %s: %w", key, blobtier.ErrNotFound)
	} else if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	b.cleanupEmptyDirectories(filepath.Dir(filePath))
	return nil
}

// Clear removes every object.
func (b *Backend) Clear(ctx context.Context) error {
	return b.ClearPrefix(ctx, "")
}

// ClearPrefix removes every object whose key starts with prefix.
func (b *Backend) ClearPrefix(ctx context.Context, prefix string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var files []string
	err := filepath.WalkDir(b.baseDir, func(p string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(b.baseDir, p)
		if err != nil {
			return err
		}
		if strings.HasPrefix(filepath.ToSlash(rel), prefix) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to list files: %w", err)
	}

	for _, p := range files {
		if err := os.Remove(p); err != nil && !errors.Is(err, iofs.ErrNotExist) {
			return fmt.Errorf("failed to delete file: %w", err)
		}
		b.cleanupEmptyDirectories(filepath.Dir(p))
	}
	return nil
}

// cleanupEmptyDirectories recursively removes empty directories up to baseDir
func (b *Backend) cleanupEmptyDirectories(dir string) {
	if dir == b.baseDir {
		return
	}

	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		if os.Remove(dir) == nil {
			b.cleanupEmptyDirectories(filepath.Dir(dir))
		}
	}
}
