package blobtier_test

import (
	"context"
	"errors"
	"sync"

	"github.com/tendant/blobtier/pkg/blobtier"
	memorystorage "github.com/tendant/blobtier/pkg/blobtier/storage/memory"
)

var errInjected = errors.New("injected failure")

// flakyBackend fails selected operations of a memory backend.
type flakyBackend struct {
	*memorystorage.Backend

	mu        sync.Mutex
	failPutOn map[string]bool
	failGet   bool
}

func newFlakyBackend() *flakyBackend {
	return &flakyBackend{Backend: memorystorage.New(), failPutOn: map[string]bool{}}
}

func (b *flakyBackend) failPut(key string) {
	b.mu.Lock()
	b.failPutOn[key] = true
	b.mu.Unlock()
}

func (b *flakyBackend) Put(ctx context.Context, key string, data []byte) error {
	b.mu.Lock()
	fail := b.failPutOn[key]
	b.mu.Unlock()
	if fail {
		return errInjected
	}
	return b.Backend.Put(ctx, key, data)
}

func (b *flakyBackend) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	fail := b.failGet
	b.mu.Unlock()
	if fail {
		return nil, errInjected
	}
	return b.Backend.Get(ctx, key)
}

var _ blobtier.Backend = (*flakyBackend)(nil)
