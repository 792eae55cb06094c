package blobtier

import (
	"fmt"
	"sync"
)

type entryOp int

const (
	opPut entryOp = iota
	opDelete
)

// TransientEntry is one buffered change. Data is nil for deletes.
type TransientEntry struct {
	Key    string
	Data   []byte
	Delete bool
}

// TransientStore is an in-memory, ordered buffer of uncommitted changes. It
// is never persisted.
type TransientStore struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*transientEntry
	bytes   int
	cleared bool
}

type transientEntry struct {
	op   entryOp
	data []byte
}

// NewTransientStore creates an empty buffer.
func NewTransientStore() *TransientStore {
	return &TransientStore{entries: make(map[string]*transientEntry)}
}

// Put buffers data under key. A key that is already buffered keeps its
// original position in the write order.
func (t *TransientStore) Put(key string, data []byte) {
	t.set(key, opPut, append([]byte(nil), data...))
}

// MarkDeleted buffers a delete of key. A buffered write of key is dropped.
func (t *TransientStore) MarkDeleted(key string) {
	t.set(key, opDelete, nil)
}

func (t *TransientStore) set(key string, op entryOp, data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.entries[key]; ok {
		t.bytes -= len(e.data)
		if op == opDelete {
			// the delete must run after anything buffered before it
			t.remove(key)
		} else {
			e.op, e.data = op, data
			t.bytes += len(data)
			return
		}
	}
	t.entries[key] = &transientEntry{op: op, data: data}
	t.order = append(t.order, key)
	t.bytes += len(data)
}

func (t *TransientStore) remove(key string) {
	delete(t.entries, key)
	for i, k := range t.order {
		if k == key {
			t.order = append(t.order[:i], t.order[i+1:]...)
			return
		}
	}
}

// Get returns the buffered bytes for key. found reports whether the buffer
// knows about key at all; deleted reports a buffered delete.
func (t *TransientStore) Get(key string) (data []byte, found, deleted bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.entries[key]
	if !ok {
		return nil, false, false
	}
	if e.op == opDelete {
		return nil, true, true
	}
	return append([]byte(nil), e.data...), true, false
}

// Entries returns the buffered changes in write order.
func (t *TransientStore) Entries() []TransientEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]TransientEntry, 0, len(t.order))
	for _, k := range t.order {
		e := t.entries[k]
		out = append(out, TransientEntry{Key: k, Data: e.data, Delete: e.op == opDelete})
	}
	return out
}

// Len returns the number of buffered changes.
func (t *TransientStore) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order)
}

// Size returns the number of buffered bytes.
func (t *TransientStore) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.bytes
}

// MarkCleared drops every buffered change and buffers a clear of the wrapped
// store, applied before any change buffered afterwards.
func (t *TransientStore) MarkCleared() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.order = nil
	t.entries = make(map[string]*transientEntry)
	t.bytes = 0
	t.cleared = true
}

// Cleared reports whether a clear is buffered.
func (t *TransientStore) Cleared() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cleared
}

// Reset drops every buffered change.
func (t *TransientStore) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.order = nil
	t.entries = make(map[string]*transientEntry)
	t.bytes = 0
	t.cleared = false
}

func (t *TransientStore) String() string {
	return fmt.Sprintf("TransientStore(entries=%d, bytes=%d)", t.Len(), t.Size())
}
