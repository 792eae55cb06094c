package blobtier

import (
	"context"
	"fmt"
)

// PrefixBackend maps every key into a namespace of a shared backend, so hot
// and cold content can live in one bucket. Restore calls pass through when
// the wrapped backend supports them.
type PrefixBackend struct {
	inner  Backend
	prefix string
}

var (
	_ Backend  = (*PrefixBackend)(nil)
	_ Restorer = (*PrefixBackend)(nil)
)

// NewPrefixBackend wraps inner under prefix.
func NewPrefixBackend(inner Backend, prefix string) *PrefixBackend {
	return &PrefixBackend{inner: inner, prefix: prefix}
}

func (b *PrefixBackend) Put(ctx context.Context, key string, data []byte) error {
	return b.inner.Put(ctx, b.prefix+key, data)
}

func (b *PrefixBackend) Get(ctx context.Context, key string) ([]byte, error) {
	return b.inner.Get(ctx, b.prefix+key)
}

func (b *PrefixBackend) Exists(ctx context.Context, key string) (bool, error) {
	return b.inner.Exists(ctx, b.prefix+key)
}

func (b *PrefixBackend) Delete(ctx context.Context, key string) error {
	return b.inner.Delete(ctx, b.prefix+key)
}

// Clear removes only the keys under the prefix.
func (b *PrefixBackend) Clear(ctx context.Context) error {
	pc, ok := b.inner.(PrefixClearer)
	if !ok {
		return fmt.Errorf("backend %T cannot clear by prefix", b.inner)
	}
	return pc.ClearPrefix(ctx, b.prefix)
}

func (b *PrefixBackend) Restore(ctx context.Context, key string, days int) error {
	return RestorerFor(b.inner).Restore(ctx, b.prefix+key, days)
}

func (b *PrefixBackend) RestoreStatus(ctx context.Context, key string) (RestoreStatus, error) {
	return RestorerFor(b.inner).RestoreStatus(ctx, b.prefix+key)
}

// RestorerFor returns b as a Restorer. Backends without an archive tier keep
// every object online: restores are no-ops and existing objects report as
// available.
func RestorerFor(b Backend) Restorer {
	if r, ok := b.(Restorer); ok {
		return r
	}
	return onlineRestorer{b}
}

type onlineRestorer struct {
	backend Backend
}

func (r onlineRestorer) Restore(ctx context.Context, key string, days int) error {
	ok, err := r.backend.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("restore %s: %w", key, ErrNotFound)
	}
	return nil
}

func (r onlineRestorer) RestoreStatus(ctx context.Context, key string) (RestoreStatus, error) {
	ok, err := r.backend.Exists(ctx, key)
	if err != nil {
		return RestoreStatus{}, err
	}
	if !ok {
		return RestoreStatus{}, fmt.Errorf("restore status %s: %w", key, ErrNotFound)
	}
	return RestoreStatus{Available: true}, nil
}
