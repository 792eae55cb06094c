package coldstorage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/blobtier/pkg/blobtier"
	"github.com/tendant/blobtier/pkg/coldstorage"
)

func TestServiceCreation(t *testing.T) {
	f := newFixture(t)

	_, err := coldstorage.New(nil, blobtier.NewProvider("hot", f.hot), f.lifecycle)
	assert.Error(t, err)
	_, err = coldstorage.New(f.repo, nil, f.lifecycle)
	assert.Error(t, err)
	_, err = coldstorage.New(f.repo, blobtier.NewProvider("hot", f.hot), nil)
	assert.Error(t, err)

	svc, err := coldstorage.New(f.repo, blobtier.NewProvider("hot", f.hot), f.lifecycle)
	require.NoError(t, err)
	status, err := svc.CheckAvailability(context.Background())
	require.NoError(t, err)
	assert.Equal(t, coldstorage.DefaultRepositoryName, status.RepositoryName)
}

func TestCreateDocument(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	doc := f.createDocument(t, "foo")
	assert.NotEqual(t, uuid.Nil, doc.ID)
	require.NotNil(t, doc.Content)
	assert.Equal(t, "acbd18db4cc2f85cedef654fccc4a4d8", doc.Content.Key)
	assert.Equal(t, "doc.txt", doc.Content.Filename)
	assert.Equal(t, f.clock.Now(), doc.CreatedAt)

	got, err := f.svc.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.Content, got.Content)
	assert.Equal(t, []byte("foo"), f.svc.ReadContent(ctx, doc.ID))

	empty := f.createDocument(t, "")
	assert.Nil(t, empty.Content)
	assert.Empty(t, f.svc.ReadContent(ctx, empty.ID))
	assert.Empty(t, f.svc.ReadContent(ctx, uuid.New()))
}

func TestCreateDocument_SharedContent(t *testing.T) {
	f := newFixture(t)

	a := f.createDocument(t, "foo")
	b := f.createDocument(t, "foo")
	assert.Equal(t, a.Content.Key, b.Content.Key)
	assert.Equal(t, 1, f.hotBackend.Len())
	assert.Equal(t, 1, f.hotBackend.Stats().Puts)
}

type failingSink struct {
	calls int
}

func (s *failingSink) Publish(ctx context.Context, event coldstorage.Event) error {
	s.calls++
	return errors.New("sink down")
}

func TestCheckAvailability_SinkFailureDoesNotStopDispatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sink := &failingSink{}
	svc, err := coldstorage.New(f.repo, blobtier.NewProvider("hot", f.hot), f.lifecycle,
		coldstorage.WithEventSink(sink))
	require.NoError(t, err)

	for _, content := range []string{"foo", "bar"} {
		doc := f.createDocument(t, content)
		_, err := svc.MoveToColdStorage(ctx, doc.ID)
		require.NoError(t, err)
		_, err = svc.RetrieveFromColdStorage(ctx, doc.ID, 1)
		require.NoError(t, err)
	}

	status, err := svc.CheckAvailability(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, status.TotalAvailable)
	assert.Equal(t, 2, sink.calls)
}
