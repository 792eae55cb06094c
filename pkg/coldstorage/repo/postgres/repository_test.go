package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/tendant/blobtier/pkg/blobtier"
	"github.com/tendant/blobtier/pkg/blobtier/txn"
	"github.com/tendant/blobtier/pkg/coldstorage"
)

func setupRepository(t *testing.T) *Repository {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("blobtier_test"),
		tcpostgres.WithUsername("blobtier"),
		tcpostgres.WithPassword("blobtier"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	repo := NewWithPool(pool)
	require.NoError(t, repo.EnsureSchema(ctx))
	return repo
}

func newDocument() *coldstorage.Document {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &coldstorage.Document{
		ID:        uuid.New(),
		Name:      "report",
		Content:   &blobtier.BlobRef{Key: "acbd18db4cc2f85cedef654fccc4a4d8", Length: 3, MimeType: "text/plain", Filename: "foo.txt"},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestRepository_CRUD(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	doc := newDocument()
	require.NoError(t, repo.Create(ctx, doc))

	got, err := repo.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.Name, got.Name)
	assert.Equal(t, doc.Content, got.Content)
	assert.Nil(t, got.ColdContent)
	assert.Nil(t, got.AvailableUntil)

	doc.ColdContent = &blobtier.BlobRef{Key: doc.Content.Key, Length: 3}
	doc.BeingRetrieved = true
	doc.RetrievalDays = 2
	require.NoError(t, repo.Update(ctx, doc))

	got, err = repo.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, got.BeingRetrieved)
	assert.Equal(t, 2, got.RetrievalDays)
	assert.Equal(t, doc.ColdContent, got.ColdContent)

	_, err = repo.Get(ctx, uuid.New())
	assert.True(t, errors.Is(err, coldstorage.ErrDocumentNotFound))
	assert.True(t, errors.Is(err, blobtier.ErrNotFound))

	err = repo.Update(ctx, newDocument())
	assert.True(t, errors.Is(err, coldstorage.ErrDocumentNotFound))
}

func TestRepository_MarkAvailable(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	doc := newDocument()
	doc.BeingRetrieved = true
	require.NoError(t, repo.Create(ctx, doc))

	pending, err := repo.ListBeingRetrieved(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	until := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Microsecond)
	ok, err := repo.MarkAvailable(ctx, doc.ID, until)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkAvailable(ctx, doc.ID, until)
	require.NoError(t, err)
	assert.False(t, ok, "second transition must be a no-op")

	got, err := repo.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.False(t, got.BeingRetrieved)
	require.NotNil(t, got.AvailableUntil)
	assert.True(t, until.Equal(*got.AvailableUntil))

	pending, err = repo.ListBeingRetrieved(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRepository_Transaction(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	rolledBack := newDocument()
	err := txn.Run(ctx, func(ctx context.Context) error {
		require.NoError(t, repo.Create(ctx, rolledBack))
		got, err := repo.Get(ctx, rolledBack.ID)
		require.NoError(t, err)
		assert.Equal(t, rolledBack.ID, got.ID)
		return errors.New("abort")
	})
	require.Error(t, err)

	_, err = repo.Get(ctx, rolledBack.ID)
	assert.True(t, errors.Is(err, coldstorage.ErrDocumentNotFound))

	committed := newDocument()
	require.NoError(t, txn.Run(ctx, func(ctx context.Context) error {
		return repo.Create(ctx, committed)
	}))
	_, err = repo.Get(ctx, committed.ID)
	assert.NoError(t, err)

	// a failing blob flush enlisted after the row keeps the row uncommitted
	unflushed := newDocument()
	err = txn.Run(ctx, func(ctx context.Context) error {
		require.NoError(t, repo.Create(ctx, unflushed))
		tx, _ := txn.FromContext(ctx)
		_, err := txn.Enlist(tx, "blobs", func() (failingFlush, error) { return failingFlush{}, nil })
		return err
	})
	assert.ErrorIs(t, err, txn.ErrCommitFailed)
	_, err = repo.Get(ctx, unflushed.ID)
	assert.True(t, errors.Is(err, coldstorage.ErrDocumentNotFound))
}

type failingFlush struct{}

func (failingFlush) Commit(context.Context) error   { return errors.New("flush failed") }
func (failingFlush) Rollback(context.Context) error { return nil }
