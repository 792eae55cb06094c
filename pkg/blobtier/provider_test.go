package blobtier_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/blobtier/pkg/blobtier"
	memorystorage "github.com/tendant/blobtier/pkg/blobtier/storage/memory"
	"github.com/tendant/blobtier/pkg/blobtier/txn"
)

type countingMetrics struct {
	hits, misses, degraded, alreadyStored, commits int
}

func (m *countingMetrics) ObserveCache(hit bool) {
	if hit {
		m.hits++
	} else {
		m.misses++
	}
}
func (m *countingMetrics) ObserveRemote(string, time.Duration, error) {}
func (m *countingMetrics) ObserveAlreadyStored()                      { m.alreadyStored++ }
func (m *countingMetrics) ObserveCommit(int, error)                   { m.commits++ }
func (m *countingMetrics) ObserveReadDegraded(string)                 { m.degraded++ }
func (m *countingMetrics) ObserveColdTransition(string)               {}

func newProvider(t *testing.T, name string, keys blobtier.KeyStrategy, logs *bytes.Buffer, m blobtier.Metrics) (*blobtier.Provider, *memorystorage.Backend) {
	t.Helper()
	backend := memorystorage.New()
	logger := slog.New(slog.NewTextHandler(logs, nil))
	store, err := blobtier.NewStack(blobtier.StackConfig{
		Name:          name,
		Backend:       backend,
		Keys:          keys,
		CacheDir:      t.TempDir(),
		Transactional: true,
		Logger:        logger,
		Metrics:       m,
	})
	require.NoError(t, err)
	return blobtier.NewProvider(name, store,
		blobtier.WithProviderLogger(logger),
		blobtier.WithProviderMetrics(m),
	), backend
}

func TestProviderWriteRead(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	m := &countingMetrics{}
	p, backend := newProvider(t, "default", nil, &logs, m)

	key, err := p.WriteBlob(ctx, blobtier.WriteContext{Content: []byte("foo"), DocID: "DOCID1", FieldPath: "file:content"})
	require.NoError(t, err)
	assert.Equal(t, "acbd18db4cc2f85cedef654fccc4a4d8", key)
	assert.Equal(t, "foo", string(p.ReadBlob(ctx, blobtier.BlobRef{Key: key})))
	assert.Equal(t, 1, m.hits)

	_, err = p.WriteBlob(ctx, blobtier.WriteContext{Content: []byte("foo")})
	require.NoError(t, err)
	assert.Equal(t, 1, backend.Stats().Puts)
	assert.Equal(t, 1, m.alreadyStored)
}

func TestProviderReadDegrades(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	m := &countingMetrics{}
	p, _ := newProvider(t, "default", nil, &logs, m)

	data := p.ReadBlob(ctx, blobtier.BlobRef{Key: "missing"})
	assert.NotNil(t, data)
	assert.Empty(t, data)
	assert.Equal(t, 1, m.degraded)
	assert.Contains(t, logs.String(), "level=ERROR")
	assert.Contains(t, logs.String(), "key=missing")
}

func TestProviderRecordRollback(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	p, _ := newProvider(t, "records", blobtier.RecordKeyStrategy{}, &logs, nil)

	first, err := p.WriteBlob(ctx, blobtier.WriteContext{Content: []byte("foo"), DocID: "DOCID1"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first, "DOCID1@"))

	var second string
	err = txn.Run(ctx, func(ctx context.Context) error {
		var err error
		second, err = p.WriteBlob(ctx, blobtier.WriteContext{Content: []byte("bar"), DocID: "DOCID1"})
		require.NoError(t, err)
		assert.Equal(t, "bar", string(p.ReadBlob(ctx, blobtier.BlobRef{Key: second})))
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)
	assert.NotEqual(t, first, second)

	assert.Empty(t, p.ReadBlob(ctx, blobtier.BlobRef{Key: second}))
	assert.Equal(t, "foo", string(p.ReadBlob(ctx, blobtier.BlobRef{Key: first})))
}

func TestProviderCopy(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer

	t.Run("digest", func(t *testing.T) {
		src, _ := newProvider(t, "src", nil, &logs, nil)
		dst, dstBackend := newProvider(t, "dst", nil, &logs, nil)

		key, err := src.WriteBlob(ctx, blobtier.WriteContext{Content: []byte("bar")})
		require.NoError(t, err)
		copied, err := src.CopyBlob(ctx, key, dst)
		require.NoError(t, err)
		assert.Equal(t, "37b51d194a7513e45b56f6524f2d51f2", copied)
		assert.Equal(t, "bar", string(dst.ReadBlob(ctx, blobtier.BlobRef{Key: copied})))
		assert.Equal(t, 1, dstBackend.Len())
	})

	t.Run("record", func(t *testing.T) {
		src, _ := newProvider(t, "src", blobtier.RecordKeyStrategy{}, &logs, nil)
		dst, _ := newProvider(t, "dst", blobtier.RecordKeyStrategy{}, &logs, nil)

		key, err := src.WriteBlob(ctx, blobtier.WriteContext{Content: []byte("foo"), DocID: "DOCID2"})
		require.NoError(t, err)
		copied, err := src.CopyBlob(ctx, key, dst)
		require.NoError(t, err)
		assert.Equal(t, key, copied)
		assert.True(t, strings.HasPrefix(copied, "DOCID2@"))
		assert.Equal(t, "foo", string(dst.ReadBlob(ctx, blobtier.BlobRef{Key: copied})))
	})
}

func TestProviderNoCache(t *testing.T) {
	ctx := context.Background()
	backend := memorystorage.New()
	store, err := blobtier.NewStack(blobtier.StackConfig{Name: "nocache", Backend: backend})
	require.NoError(t, err)
	p := blobtier.NewProvider("nocache", store)

	key, err := p.WriteBlob(ctx, blobtier.WriteContext{Content: []byte("foo")})
	require.NoError(t, err)
	assert.Equal(t, "foo", string(p.ReadBlob(ctx, blobtier.BlobRef{Key: key})))
	assert.Equal(t, 1, backend.Stats().Gets)
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, 200},
		{blobtier.NotFoundf("no content for %s", "x"), 404},
		{blobtier.Conflictf("busy %s", "x"), 409},
		{&blobtier.StorageError{Op: "get", Err: blobtier.ErrNotFound}, 404},
		{blobtier.ErrMissingOwner, 400},
		{blobtier.ErrStorageUnavailable, 503},
		{assert.AnError, 500},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, blobtier.StatusCode(tt.err))
	}

	err := blobtier.NotFoundf("There is no main content for document: %s.", "d1")
	assert.Equal(t, "There is no main content for document: d1.", err.Error())
	assert.ErrorIs(t, err, blobtier.ErrNotFound)
}
