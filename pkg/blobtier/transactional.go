package blobtier

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/tendant/blobtier/pkg/blobtier/txn"
)

// TransactionalStore buffers writes made inside a transaction in a
// TransientStore owned by that transaction. The buffer is flushed to the
// wrapped store, in write order, when the transaction commits and dropped when
// it rolls back. Outside a transaction every call passes straight through.
//
// A flush failure stops the commit with an error wrapping ErrCommitFailed.
// Entries flushed before the failing one are not undone.
type TransactionalStore struct {
	inner BlobStore
	opts  options
	id    string

	mu      sync.Mutex
	buffers map[uuid.UUID]*TransientStore
}

var _ BlobStore = (*TransactionalStore)(nil)

// NewTransactionalStore wraps inner.
func NewTransactionalStore(inner BlobStore, opts ...Option) *TransactionalStore {
	return &TransactionalStore{
		inner:   inner,
		opts:    buildOptions("transactional", inner.Keys(), opts),
		id:      uuid.NewString(),
		buffers: make(map[uuid.UUID]*TransientStore),
	}
}

// Inner returns the wrapped store.
func (s *TransactionalStore) Inner() BlobStore { return s.inner }

func (s *TransactionalStore) Keys() KeyStrategy { return s.opts.keys }

func (s *TransactionalStore) Write(ctx context.Context, wc WriteContext) (string, error) {
	return writeWith(ctx, s, wc)
}

// Put buffers data when ctx carries an active transaction.
func (s *TransactionalStore) Put(ctx context.Context, key string, data []byte) error {
	tx, ok := txn.FromContext(ctx)
	if !ok {
		return s.inner.Put(ctx, key, data)
	}
	buf, err := s.buffer(tx)
	if err != nil {
		return &StorageError{Store: s.opts.name, Key: key, Op: "put", Err: err}
	}
	buf.Put(key, data)
	return nil
}

// Read returns the transaction's own buffered write before asking the
// wrapped store.
func (s *TransactionalStore) Read(ctx context.Context, key string) ([]byte, error) {
	if buf := s.active(ctx); buf != nil {
		data, found, deleted := buf.Get(key)
		if deleted {
			return nil, &StorageError{Store: s.opts.name, Key: key, Op: "get", Err: ErrNotFound}
		}
		if found {
			return data, nil
		}
	}
	return s.inner.Read(ctx, key)
}

// Copy reads through the transaction buffer, so uncommitted blobs can be
// copied within the same transaction.
func (s *TransactionalStore) Copy(ctx context.Context, key string, dst BlobStore) (string, error) {
	return copyTo(ctx, s, key, dst)
}

// Delete inside a transaction is applied at commit.
func (s *TransactionalStore) Delete(ctx context.Context, key string) error {
	tx, ok := txn.FromContext(ctx)
	if !ok {
		return s.inner.Delete(ctx, key)
	}
	buf, err := s.buffer(tx)
	if err != nil {
		return &StorageError{Store: s.opts.name, Key: key, Op: "delete", Err: err}
	}
	buf.MarkDeleted(key)
	return nil
}

// Clear inside a transaction drops the buffered changes and clears the
// wrapped store at commit, before the changes buffered after it. Reads in the
// transaction still fall through to the wrapped store until then.
func (s *TransactionalStore) Clear(ctx context.Context) error {
	tx, ok := txn.FromContext(ctx)
	if !ok {
		return s.inner.Clear(ctx)
	}
	buf, err := s.buffer(tx)
	if err != nil {
		return &StorageError{Store: s.opts.name, Op: "clear", Err: err}
	}
	buf.MarkCleared()
	return nil
}

// Pending returns the number of transactions holding a buffer.
func (s *TransactionalStore) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffers)
}

func (s *TransactionalStore) active(ctx context.Context) *TransientStore {
	tx, ok := txn.FromContext(ctx)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffers[tx.ID()]
}

func (s *TransactionalStore) buffer(tx *txn.Tx) (*TransientStore, error) {
	res, err := txn.Enlist(tx, "blobtier.transient/"+s.id, func() (*flushResource, error) {
		buf := NewTransientStore()
		s.mu.Lock()
		s.buffers[tx.ID()] = buf
		s.mu.Unlock()
		return &flushResource{store: s, txID: tx.ID(), buf: buf}, nil
	})
	if err != nil {
		return nil, err
	}
	return res.buf, nil
}

func (s *TransactionalStore) release(txID uuid.UUID) {
	s.mu.Lock()
	delete(s.buffers, txID)
	s.mu.Unlock()
}

// flushResource is the transaction participant for one buffer.
type flushResource struct {
	store *TransactionalStore
	txID  uuid.UUID
	buf   *TransientStore
}

func (r *flushResource) Commit(ctx context.Context) error {
	defer r.store.release(r.txID)

	s := r.store
	if r.buf.Cleared() {
		if err := s.inner.Clear(ctx); err != nil {
			ObserveCommit(s.opts.metrics, 0, err)
			s.opts.logger.ErrorContext(ctx, "transient clear failed", "tx", r.txID, "error", err)
			return fmt.Errorf("clear: %w", err)
		}
	}
	entries := r.buf.Entries()
	for i, e := range entries {
		var err error
		if e.Delete {
			err = s.inner.Delete(ctx, e.Key)
			if errors.Is(err, ErrNotFound) {
				err = nil
			}
		} else {
			err = s.inner.Put(ctx, e.Key, e.Data)
		}
		if err != nil {
			ObserveCommit(s.opts.metrics, i, err)
			s.opts.logger.ErrorContext(ctx, "transient flush failed",
				"tx", r.txID, "key", e.Key, "flushed", i, "remaining", len(entries)-i, "error", err)
			return fmt.Errorf("flush %s (%d of %d): %w", e.Key, i+1, len(entries), err)
		}
	}
	ObserveCommit(s.opts.metrics, len(entries), nil)
	s.opts.logger.DebugContext(ctx, "transient buffer flushed", "tx", r.txID, "entries", len(entries))
	r.buf.Reset()
	return nil
}

func (r *flushResource) Rollback(ctx context.Context) error {
	r.store.opts.logger.DebugContext(ctx, "transient buffer discarded", "tx", r.txID, "entries", r.buf.Len())
	r.buf.Reset()
	r.store.release(r.txID)
	return nil
}
