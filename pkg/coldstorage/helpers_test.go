package coldstorage_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tendant/blobtier/pkg/blobtier"
	memorystorage "github.com/tendant/blobtier/pkg/blobtier/storage/memory"
	"github.com/tendant/blobtier/pkg/coldstorage"
	"github.com/tendant/blobtier/pkg/coldstorage/repo/memory"
)

var dummyThumbnail = coldstorage.StaticThumbnailer{Content: []byte("DUMMY"), MimeType: "text/plain"}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	clock      *clock
	repo       *memory.Repository
	hotBackend *memorystorage.Backend
	coldBack   *memorystorage.Backend
	hot        blobtier.BlobStore
	cold       blobtier.BlobStore
	lifecycle  *coldstorage.Lifecycle
	events     *coldstorage.CapturingEventSink
	svc        coldstorage.Service
}

type fixtureOption struct {
	archiveDelay *time.Duration
	restorer     blobtier.Restorer
	// transactional wraps both tiers in a TransactionalStore.
	transactional bool
	// failColdPuts makes cold backend writes fail while set.
	failColdPuts *atomic.Bool
}

// switchableBackend fails writes while fail is set.
type switchableBackend struct {
	*memorystorage.Backend
	fail *atomic.Bool
}

func (b switchableBackend) Put(ctx context.Context, key string, data []byte) error {
	if b.fail.Load() {
		return fmt.Errorf("put %s: %w", key, blobtier.ErrStorageUnavailable)
	}
	return b.Backend.Put(ctx, key, data)
}

// newFixture wires a service over in-memory hot and cold tiers.
func newFixture(t *testing.T, archiveDelay ...time.Duration) *fixture {
	return newFixtureWith(t, fixtureOption{archiveDelay: delayOf(archiveDelay)})
}

func delayOf(d []time.Duration) *time.Duration {
	if len(d) == 0 {
		return nil
	}
	return &d[0]
}

func newFixtureWith(t *testing.T, o fixtureOption) *fixture {
	t.Helper()

	f := &fixture{
		clock:      newClock(),
		repo:       memory.New(),
		hotBackend: memorystorage.New(),
		events:     &coldstorage.CapturingEventSink{},
	}
	coldOpts := []memorystorage.Option{memorystorage.WithClock(f.clock.Now)}
	if o.archiveDelay != nil {
		coldOpts = append(coldOpts, memorystorage.WithArchive(*o.archiveDelay))
	}
	f.coldBack = memorystorage.New(coldOpts...)

	var coldBackend blobtier.Backend = f.coldBack
	if o.failColdPuts != nil {
		coldBackend = switchableBackend{Backend: f.coldBack, fail: o.failColdPuts}
	}
	f.hot = blobtier.NewRemoteStore(f.hotBackend, blobtier.WithName("hot"))
	f.cold = blobtier.NewRemoteStore(coldBackend, blobtier.WithName("cold"))
	if o.transactional {
		f.hot = blobtier.NewTransactionalStore(f.hot, blobtier.WithName("hot"))
		f.cold = blobtier.NewTransactionalStore(f.cold, blobtier.WithName("cold"))
	}

	restorer := o.restorer
	if restorer == nil {
		restorer = f.coldBack
	}

	var err error
	f.lifecycle, err = coldstorage.NewLifecycle(f.repo, f.hot, f.cold, restorer,
		coldstorage.WithThumbnailer(dummyThumbnail),
		coldstorage.WithClock(f.clock.Now),
		coldstorage.WithSweepConcurrency(2),
	)
	require.NoError(t, err)

	f.svc, err = coldstorage.New(f.repo, blobtier.NewProvider("hot", f.hot), f.lifecycle,
		coldstorage.WithRepositoryName("test"),
		coldstorage.WithEventSink(f.events),
	)
	require.NoError(t, err)
	return f
}

func (f *fixture) createDocument(t *testing.T, content string) *coldstorage.Document {
	t.Helper()
	req := coldstorage.CreateDocumentRequest{Name: "doc", MimeType: "text/plain", Filename: "doc.txt"}
	if content != "" {
		req.Content = []byte(content)
	}
	doc, err := f.svc.CreateDocument(context.Background(), req)
	require.NoError(t, err)
	return doc
}

func (f *fixture) get(t *testing.T, id uuid.UUID) *coldstorage.Document {
	t.Helper()
	doc, err := f.repo.Get(context.Background(), id)
	require.NoError(t, err)
	return doc
}
