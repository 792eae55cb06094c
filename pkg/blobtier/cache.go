package blobtier

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
)

// CachingStore keeps a copy of every blob it reads or writes in a local
// directory and serves reads from it before asking the wrapped store.
//
// Cache layout:
//
//	dir/
//	  ab/<escaped key>   (ab: first byte of md5(key), hex)
//
// Cache files are written to a temporary file and renamed into place, so a
// concurrent reader never sees a partial file.
type CachingStore struct {
	inner BlobStore
	dir   string
	opts  options
	zstd  *compressor
}

var _ BlobStore = (*CachingStore)(nil)

// NewCachingStore creates a cache over inner rooted at dir.
func NewCachingStore(inner BlobStore, dir string, opts ...Option) (*CachingStore, error) {
	if dir == "" {
		return nil, errors.New("cache directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}

	s := &CachingStore{
		inner: inner,
		dir:   dir,
		opts:  buildOptions("cache", inner.Keys(), opts),
	}
	if s.opts.compress {
		c, err := newCompressor()
		if err != nil {
			return nil, fmt.Errorf("failed to create compressor: %w", err)
		}
		s.zstd = c
	}
	return s, nil
}

// Close releases the compressor.
func (s *CachingStore) Close() error {
	s.zstd.close()
	return nil
}

// Dir returns the cache directory.
func (s *CachingStore) Dir() string { return s.dir }

func (s *CachingStore) Keys() KeyStrategy { return s.opts.keys }

func (s *CachingStore) Write(ctx context.Context, wc WriteContext) (string, error) {
	return writeWith(ctx, s, wc)
}

// Put writes the cache file and then the wrapped store. When the wrapped
// store fails the cache file stays; the key is rewritten on retry.
func (s *CachingStore) Put(ctx context.Context, key string, data []byte) error {
	if err := s.writeFile(key, data); err != nil {
		return &StorageError{Store: s.opts.name, Key: key, Op: "put", Err: err}
	}
	return s.inner.Put(ctx, key, data)
}

// Read serves key from the cache, or fetches it from the wrapped store and
// populates the cache. A failed cache write does not fail the read.
func (s *CachingStore) Read(ctx context.Context, key string) ([]byte, error) {
	data, err := s.readFile(key)
	switch {
	case err == nil:
		ObserveCache(s.opts.metrics, true)
		s.opts.logger.DebugContext(ctx, "cache hit", "key", key)
		return data, nil
	case !errors.Is(err, fs.ErrNotExist):
		s.opts.logger.WarnContext(ctx, "unreadable cache file, refetching", "key", key, "error", err)
	}
	ObserveCache(s.opts.metrics, false)

	data, err = s.inner.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := s.writeFile(key, data); err != nil {
		s.opts.logger.WarnContext(ctx, "failed to populate cache", "key", key, "error", err)
	}
	return data, nil
}

// Cached reports whether key has a cache file.
func (s *CachingStore) Cached(key string) bool {
	_, err := os.Stat(s.path(key))
	return err == nil
}

func (s *CachingStore) Copy(ctx context.Context, key string, dst BlobStore) (string, error) {
	return copyTo(ctx, s, key, dst)
}

// Delete removes the cache file and the key from the wrapped store.
func (s *CachingStore) Delete(ctx context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &StorageError{Store: s.opts.name, Key: key, Op: "delete", Err: err}
	}
	return s.inner.Delete(ctx, key)
}

// Clear deletes every cache file. The wrapped store is not touched.
func (s *CachingStore) Clear(ctx context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return &StorageError{Store: s.opts.name, Op: "clear", Err: err}
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(s.dir, e.Name())); err != nil {
			return &StorageError{Store: s.opts.name, Op: "clear", Err: err}
		}
	}
	s.opts.logger.DebugContext(ctx, "cache cleared", "dir", s.dir)
	return nil
}

func (s *CachingStore) path(key string) string {
	sum := md5.Sum([]byte(key))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:1]), url.PathEscape(key))
}

func (s *CachingStore) readFile(key string) ([]byte, error) {
	raw, err := os.ReadFile(s.path(key))
	if err != nil {
		return nil, err
	}
	return s.zstd.decompress(raw)
}

func (s *CachingStore) writeFile(key string, data []byte) error {
	path := s.path(key)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(s.zstd.compress(data)); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close cache file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to install cache file: %w", err)
	}
	return nil
}
