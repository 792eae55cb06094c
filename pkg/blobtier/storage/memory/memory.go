package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tendant/blobtier/pkg/blobtier"
)

// Backend is an in-memory implementation of blobtier.Backend.
//
// In archive mode it behaves like an archive storage class: objects cannot be
// read until a restore was requested and the restore delay has elapsed, and
// the restored copy goes away after the requested number of days.
type Backend struct {
	mu      sync.RWMutex
	objects map[string]*object
	stats   Stats

	archive      bool
	restoreDelay time.Duration
	now          func() time.Time
}

type object struct {
	data        []byte
	restoreAt   time.Time // zero when no restore was requested
	restoreDays int
}

// Stats counts backend calls.
type Stats struct {
	Puts     int
	Gets     int
	Exists   int
	Deletes  int
	Restores int
}

// Option configures the backend.
type Option func(*Backend)

// WithArchive makes every stored object archived. A restore becomes readable
// once delay has elapsed.
func WithArchive(delay time.Duration) Option {
	return func(b *Backend) {
		b.archive = true
		b.restoreDelay = delay
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

// New creates a new in-memory storage backend
func New(opts ...Option) *Backend {
	b := &Backend{
		objects: make(map[string]*object),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

var (
	_ blobtier.Backend       = (*Backend)(nil)
	_ blobtier.PrefixClearer = (*Backend)(nil)
	_ blobtier.Restorer      = (*Backend)(nil)
)

// Put stores a copy of data under key.
func (b *Backend) Put(ctx context.Context, key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.Puts++
	b.objects[key] = &object{data: append([]byte(nil), data...)}
	return nil
}

// Get returns a copy of the object stored under key.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.Gets++
	obj, ok := b.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", key, blobtier.ErrNotFound)
	}
	if b.archive && !b.status(obj).Available {
		return nil, fmt.Errorf("object %s: %w", key, blobtier.ErrArchived)
	}
	return append([]byte(nil), obj.data...), nil
}

// Exists reports whether key is stored.
func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.Exists++
	_, ok := b.objects[key]
	return ok, nil
}

// Delete removes key.
func (b *Backend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.Deletes++
	if _, ok := b.objects[key]; !ok {
		return fmt.Errorf("object %s: %w", key, blobtier.ErrNotFound)
	}
	delete(b.objects, key)
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

	for k := range b.objects {
		if strings.HasPrefix(k, prefix) {
			delete(b.objects, k)
		}
	}
	return nil
}

// Restore requests a temporary readable copy of an archived object. A
// request while a restore is ongoing is accepted and changes nothing.
func (b *Backend) Restore(ctx context.Context, key string, days int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.Restores++
	obj, ok := b.objects[key]
	if !ok {
		return fmt.Errorf("restore %s: %w", key, blobtier.ErrNotFound)
	}
	if !b.archive || b.status(obj).Ongoing {
		return nil
	}
	obj.restoreAt = b.now()
	obj.restoreDays = days
	return nil
}

// RestoreStatus reports the restore state of key.
func (b *Backend) RestoreStatus(ctx context.Context, key string) (blobtier.RestoreStatus, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, ok := b.objects[key]
	if !ok {
		return blobtier.RestoreStatus{}, fmt.Errorf("restore status %s: %w", key, blobtier.ErrNotFound)
	}
	return b.status(obj), nil
}

func (b *Backend) status(obj *object) blobtier.RestoreStatus {
	if !b.archive {
		return blobtier.RestoreStatus{Available: true}
	}
	if obj.restoreAt.IsZero() {
		return blobtier.RestoreStatus{}
	}
	ready := obj.restoreAt.Add(b.restoreDelay)
	expiry := ready.Add(time.Duration(obj.restoreDays) * 24 * time.Hour)
	now := b.now()
	switch {
	case now.Before(ready):
		return blobtier.RestoreStatus{Ongoing: true}
	case now.Before(expiry):
		return blobtier.RestoreStatus{Available: true, Expiry: expiry}
	default:
		return blobtier.RestoreStatus{}
	}
}

// Stats returns the call counters.
func (b *Backend) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stats
}

// Len returns the number of stored objects.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}
