package blobtier_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/blobtier/pkg/blobtier"
	memorystorage "github.com/tendant/blobtier/pkg/blobtier/storage/memory"
	"github.com/tendant/blobtier/pkg/blobtier/txn"
)

func newTransactional(t *testing.T, backend blobtier.Backend, opts ...blobtier.Option) *blobtier.TransactionalStore {
	t.Helper()
	cache, err := blobtier.NewCachingStore(blobtier.NewRemoteStore(backend, opts...), t.TempDir())
	require.NoError(t, err)
	return blobtier.NewTransactionalStore(cache)
}

func TestTransactionalStoreIsolation(t *testing.T) {
	ctx := context.Background()
	backend := memorystorage.New()
	store := newTransactional(t, backend)

	txCtx, tx := txn.Begin(ctx)
	key, err := store.Write(txCtx, blobtier.WriteContext{Content: []byte("foo")})
	require.NoError(t, err)
	assert.Equal(t, "acbd18db4cc2f85cedef654fccc4a4d8", key)

	// read your own writes
	data, err := store.Read(txCtx, key)
	require.NoError(t, err)
	assert.Equal(t, "foo", string(data))

	// invisible outside the transaction and nothing reached the backend
	_, err = store.Read(ctx, key)
	assert.ErrorIs(t, err, blobtier.ErrNotFound)
	assert.Zero(t, backend.Len())

	// another transaction does not see it either
	otherCtx, other := txn.Begin(ctx)
	_, err = store.Read(otherCtx, key)
	assert.ErrorIs(t, err, blobtier.ErrNotFound)
	require.NoError(t, other.Rollback(ctx))

	require.NoError(t, tx.Commit(ctx))
	data, err = store.Read(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "foo", string(data))
	assert.Equal(t, 1, backend.Len())
	assert.Zero(t, store.Pending())
}

func TestTransactionalStoreRollback(t *testing.T) {
	ctx := context.Background()
	backend := memorystorage.New()
	store := newTransactional(t, backend, blobtier.WithKeyStrategy(blobtier.RecordKeyStrategy{}))

	txCtx, tx := txn.Begin(ctx)
	key, err := store.Write(txCtx, blobtier.WriteContext{DocID: "DOCID1", Content: []byte("foo")})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "DOCID1@"))
	require.NoError(t, tx.Rollback(ctx))

	_, err = store.Read(ctx, key)
	assert.ErrorIs(t, err, blobtier.ErrNotFound)
	assert.Zero(t, backend.Len())
	assert.Zero(t, store.Pending())
}

func TestTransactionalStoreAutoCommit(t *testing.T) {
	ctx := context.Background()
	backend := memorystorage.New()
	store := newTransactional(t, backend)

	key, err := store.Write(ctx, blobtier.WriteContext{Content: []byte("bar")})
	require.NoError(t, err)
	assert.Equal(t, "37b51d194a7513e45b56f6524f2d51f2", key)
	assert.Equal(t, 1, backend.Len())
}

func TestTransactionalStoreCommitOrder(t *testing.T) {
	ctx := context.Background()
	backend := newFlakyBackend()
	store := blobtier.NewTransactionalStore(blobtier.NewRemoteStore(backend, blobtier.WithKeyStrategy(blobtier.RecordKeyStrategy{})))

	txCtx, tx := txn.Begin(ctx)
	var keys []string
	for _, c := range []string{"one", "two", "three"} {
		k, err := store.Write(txCtx, blobtier.WriteContext{DocID: "DOC", Content: []byte(c)})
		require.NoError(t, err)
		keys = append(keys, k)
	}
	backend.failPut(keys[1])

	err := tx.Commit(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, blobtier.ErrCommitFailed)
	assert.ErrorIs(t, err, blobtier.ErrStorageUnavailable)

	// partial commit: the entry before the failure was applied, the rest not
	ok, _ := backend.Exists(ctx, keys[0])
	assert.True(t, ok)
	ok, _ = backend.Exists(ctx, keys[2])
	assert.False(t, ok)
	assert.Zero(t, store.Pending())
}

func TestTransactionalStoreDelete(t *testing.T) {
	ctx := context.Background()
	backend := memorystorage.New()
	store := newTransactional(t, backend)

	key, err := store.Write(ctx, blobtier.WriteContext{Content: []byte("foo")})
	require.NoError(t, err)

	t.Run("rolled back delete keeps the blob", func(t *testing.T) {
		txCtx, tx := txn.Begin(ctx)
		require.NoError(t, store.Delete(txCtx, key))
		_, err := store.Read(txCtx, key)
		assert.ErrorIs(t, err, blobtier.ErrNotFound)
		require.NoError(t, tx.Rollback(ctx))

		data, err := store.Read(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "foo", string(data))
	})

	t.Run("committed delete removes the blob", func(t *testing.T) {
		txCtx, tx := txn.Begin(ctx)
		require.NoError(t, store.Delete(txCtx, key))
		require.NoError(t, tx.Commit(ctx))
		_, err := store.Read(ctx, key)
		assert.ErrorIs(t, err, blobtier.ErrNotFound)
	})

	t.Run("write then delete in one transaction", func(t *testing.T) {
		txCtx, tx := txn.Begin(ctx)
		k, err := store.Write(txCtx, blobtier.WriteContext{Content: []byte("tmp")})
		require.NoError(t, err)
		require.NoError(t, store.Delete(txCtx, k))
		require.NoError(t, tx.Commit(ctx))
		_, err = store.Read(ctx, k)
		assert.ErrorIs(t, err, blobtier.ErrNotFound)
	})
}

func TestTransactionalStoreClear(t *testing.T) {
	ctx := context.Background()
	store := newTransactional(t, memorystorage.New())
	cache := store.Inner().(*blobtier.CachingStore)

	key, err := store.Write(ctx, blobtier.WriteContext{Content: []byte("foo")})
	require.NoError(t, err)
	require.True(t, cache.Cached(key))

	t.Run("rolled back clear keeps the cache", func(t *testing.T) {
		txCtx, tx := txn.Begin(ctx)
		require.NoError(t, store.Clear(txCtx))
		assert.True(t, cache.Cached(key), "deferred until commit")
		require.NoError(t, tx.Rollback(ctx))
		assert.True(t, cache.Cached(key))
	})

	t.Run("committed clear runs before later writes", func(t *testing.T) {
		txCtx, tx := txn.Begin(ctx)
		dropped, err := store.Write(txCtx, blobtier.WriteContext{Content: []byte("tmp")})
		require.NoError(t, err)
		require.NoError(t, store.Clear(txCtx))
		kept, err := store.Write(txCtx, blobtier.WriteContext{Content: []byte("bar")})
		require.NoError(t, err)
		assert.True(t, cache.Cached(key))

		require.NoError(t, tx.Commit(ctx))
		assert.False(t, cache.Cached(key))
		assert.False(t, cache.Cached(dropped))
		assert.True(t, cache.Cached(kept))

		// the cache tier clear leaves the remote copy
		data, err := store.Read(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "foo", string(data))
	})
}

func TestTransactionalStoreCopy(t *testing.T) {
	ctx := context.Background()
	src := newTransactional(t, memorystorage.New())
	dstBackend := memorystorage.New()
	dst := blobtier.NewRemoteStore(dstBackend)

	txCtx, tx := txn.Begin(ctx)
	key, err := src.Write(txCtx, blobtier.WriteContext{Content: []byte("foo")})
	require.NoError(t, err)

	copied, err := src.Copy(txCtx, key, dst)
	require.NoError(t, err)
	assert.Equal(t, key, copied)
	require.NoError(t, tx.Commit(ctx))

	data, err := dst.Read(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "foo", string(data))
}

func TestTransientStore(t *testing.T) {
	ts := blobtier.NewTransientStore()
	ts.Put("a", []byte("1"))
	ts.Put("b", []byte("22"))
	ts.Put("a", []byte("333"))
	ts.MarkDeleted("b")
	ts.Put("c", []byte("4"))

	entries := ts.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "a", entries[0].Key)
	assert.Equal(t, "333", string(entries[0].Data))
	assert.Equal(t, "b", entries[1].Key)
	assert.True(t, entries[1].Delete)
	assert.Equal(t, "c", entries[2].Key)
	assert.Equal(t, 4, ts.Size())

	_, found, deleted := ts.Get("b")
	assert.True(t, found)
	assert.True(t, deleted)

	ts.Reset()
	assert.Zero(t, ts.Len())
}
