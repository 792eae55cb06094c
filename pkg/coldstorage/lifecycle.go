package coldstorage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/tendant/blobtier/pkg/blobtier"
	"github.com/tendant/blobtier/pkg/blobtier/txn"
)

// DefaultSweepConcurrency is the number of status checks a sweep runs at once.
const DefaultSweepConcurrency = 8

// MaxRetrievalDays bounds the availability requested by Retrieve.
const MaxRetrievalDays = 3650

// Lifecycle is the cold storage state machine. It has no event coupling:
// Sweep returns the documents that became available and leaves notification
// to the caller.
type Lifecycle struct {
	repo       Repository
	hot        blobtier.BlobStore
	cold       blobtier.BlobStore
	restorer   blobtier.Restorer
	thumbnails ThumbnailFactory

	now         func() time.Time
	concurrency int
	logger      *slog.Logger
	metrics     blobtier.Metrics
}

// LifecycleOption configures a Lifecycle.
type LifecycleOption func(*Lifecycle)

// WithThumbnailer sets the factory for the live content substitute.
func WithThumbnailer(f ThumbnailFactory) LifecycleOption {
	return func(l *Lifecycle) { l.thumbnails = f }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) LifecycleOption {
	return func(l *Lifecycle) { l.now = now }
}

// WithSweepConcurrency bounds the parallel status checks of a sweep.
func WithSweepConcurrency(n int) LifecycleOption {
	return func(l *Lifecycle) { l.concurrency = n }
}

// WithLifecycleLogger sets the logger.
func WithLifecycleLogger(logger *slog.Logger) LifecycleOption {
	return func(l *Lifecycle) { l.logger = logger }
}

// WithLifecycleMetrics sets the metrics sink.
func WithLifecycleMetrics(m blobtier.Metrics) LifecycleOption {
	return func(l *Lifecycle) { l.metrics = m }
}

// NewLifecycle creates the state machine over a hot and a cold store.
// restorer must address the same keys as cold.
func NewLifecycle(repo Repository, hot, cold blobtier.BlobStore, restorer blobtier.Restorer, opts ...LifecycleOption) (*Lifecycle, error) {
	if repo == nil {
		return nil, errors.New("repository is required")
	}
	if hot == nil || cold == nil {
		return nil, errors.New("hot and cold stores are required")
	}
	if restorer == nil {
		return nil, errors.New("restorer is required")
	}

	l := &Lifecycle{
		repo:        repo,
		hot:         hot,
		cold:        cold,
		restorer:    restorer,
		thumbnails:  ImageThumbnailer{},
		now:         time.Now,
		concurrency: DefaultSweepConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.concurrency < 1 {
		l.concurrency = 1
	}
	return l, nil
}

// Move puts the live content of a document in cold storage and replaces it
// with a thumbnail. The original hot blob is left in place: content-addressed
// keys may be shared with other documents.
func (l *Lifecycle) Move(ctx context.Context, id uuid.UUID) (*Document, error) {
	doc, err := l.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Content == nil {
		return nil, errNoMainContent(doc)
	}
	if doc.ColdContent != nil {
		return nil, errAlreadyInColdStorage(doc)
	}

	data, err := l.hot.Read(ctx, doc.Content.Key)
	if err != nil {
		return nil, fmt.Errorf("read main content of %s: %w", doc, err)
	}
	if err := l.cold.Put(ctx, doc.Content.Key, data); err != nil {
		return nil, fmt.Errorf("write cold content of %s: %w", doc, err)
	}

	thumb, mimeType, err := l.thumbnails.Thumbnail(ctx, data, doc.Content.MimeType)
	if err != nil {
		return nil, fmt.Errorf("thumbnail for %s: %w", doc, err)
	}
	wc := blobtier.WriteContext{
		Content:   thumb,
		DocID:     doc.ID.String(),
		FieldPath: "content",
		MimeType:  mimeType,
		Filename:  "thumbnail",
	}
	thumbKey, err := l.hot.Write(ctx, wc)
	if err != nil {
		return nil, fmt.Errorf("write thumbnail of %s: %w", doc, err)
	}

	cold := *doc.Content
	doc.ColdContent = &cold
	doc.Content = blobtier.NewBlobRef(thumbKey, wc)
	doc.BeingRetrieved = false
	doc.RetrievalRequestedAt = nil
	doc.RetrievalDays = 0
	doc.AvailableUntil = nil
	doc.UpdatedAt = l.now()

	if err := l.repo.Update(ctx, doc); err != nil {
		return nil, err
	}
	blobtier.ObserveColdTransition(l.metrics, string(StateArchived))
	l.logger.InfoContext(ctx, "content moved to cold storage", "document_id", doc.ID, "key", cold.Key)
	return doc, nil
}

// Retrieve requests a restored copy of an archived document's cold content,
// kept for days. Inside a transaction the restore request is sent at commit,
// before the document record is committed, and never sent if the transaction
// rolls back. A failed request rolls the record back.
func (l *Lifecycle) Retrieve(ctx context.Context, id uuid.UUID, days int) (*Document, error) {
	if days <= 0 || days > MaxRetrievalDays {
		return nil, errInvalidDays(days)
	}
	doc, err := l.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := l.now()
	switch doc.State(now) {
	case StateNone:
		return nil, errNoColdContent(doc)
	case StateRetrievalRequested:
		return nil, errBeingRetrieved(doc)
	case StateAvailable:
		return nil, errAlreadyAvailable(doc)
	}

	key := doc.ColdContent.Key
	request := func(ctx context.Context) error {
		if err := l.restorer.Restore(ctx, key, days); err != nil {
			return fmt.Errorf("restore cold content of %s: %w", doc, err)
		}
		return nil
	}
	if tx, ok := txn.FromContext(ctx); ok {
		if err := tx.OnCommit("coldstorage.restore/"+doc.ID.String(), request); err != nil {
			return nil, err
		}
	} else if err := request(ctx); err != nil {
		return nil, err
	}

	doc.BeingRetrieved = true
	doc.RetrievalRequestedAt = &now
	doc.RetrievalDays = days
	doc.AvailableUntil = nil
	doc.UpdatedAt = now

	if err := l.repo.Update(ctx, doc); err != nil {
		return nil, err
	}
	blobtier.ObserveColdTransition(l.metrics, string(StateRetrievalRequested))
	l.logger.InfoContext(ctx, "cold storage retrieval requested", "document_id", doc.ID, "key", key, "days", days)
	return doc, nil
}

type statusCheck struct {
	status blobtier.RestoreStatus
	err    error
}

// Sweep checks every document being retrieved and marks the ones whose
// restore completed as available. Status checks run in parallel; the
// transitions are applied in ascending id order. A failed check is logged and
// leaves its document pending. A document whose backend holds neither an
// ongoing restore nor a restored copy gets its restore request sent again.
// Only documents still being retrieved transition, so overlapping sweeps
// never report a document twice.
func (l *Lifecycle) Sweep(ctx context.Context) (*SweepResult, error) {
	docs, err := l.repo.ListBeingRetrieved(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents being retrieved: %w", err)
	}
	result := &SweepResult{Pending: len(docs)}
	if len(docs) == 0 {
		return result, nil
	}

	checks := make([]statusCheck, len(docs))
	p := pool.New().WithMaxGoroutines(l.concurrency).WithContext(ctx)
	for i, doc := range docs {
		p.Go(func(ctx context.Context) error {
			if doc.ColdContent == nil {
				checks[i].err = errNoColdContent(doc)
				return nil
			}
			checks[i].status, checks[i].err = l.restorer.RestoreStatus(ctx, doc.ColdContent.Key)
			return nil
		})
	}
	_ = p.Wait()

	now := l.now()
	for i, doc := range docs {
		check := checks[i]
		if check.err != nil {
			l.logger.ErrorContext(ctx, "cold storage status check failed", "document_id", doc.ID, "error", check.err)
			result.Failed = append(result.Failed, SweepFailure{DocumentID: doc.ID, Err: check.err})
			continue
		}
		if check.status.Ongoing {
			continue
		}
		if !check.status.Available {
			// The restore never reached the backend or its copy already
			// expired. Ask again so the document does not stay pending.
			if err := l.reissue(ctx, doc); err != nil {
				result.Failed = append(result.Failed, SweepFailure{DocumentID: doc.ID, Err: err})
				continue
			}
			result.Reissued = append(result.Reissued, doc.ID)
			continue
		}

		until := check.status.Expiry
		if until.IsZero() {
			from := now
			if doc.RetrievalRequestedAt != nil {
				from = *doc.RetrievalRequestedAt
			}
			until = from.Add(time.Duration(doc.RetrievalDays) * 24 * time.Hour)
		}

		changed, err := l.repo.MarkAvailable(ctx, doc.ID, until)
		if err != nil {
			l.logger.ErrorContext(ctx, "failed to mark cold storage content available", "document_id", doc.ID, "error", err)
			result.Failed = append(result.Failed, SweepFailure{DocumentID: doc.ID, Err: err})
			continue
		}
		if !changed {
			continue
		}

		doc.BeingRetrieved = false
		doc.AvailableUntil = &until
		result.Available = append(result.Available, doc)
		blobtier.ObserveColdTransition(l.metrics, string(StateAvailable))
	}
	return result, nil
}

func (l *Lifecycle) reissue(ctx context.Context, doc *Document) error {
	days := doc.RetrievalDays
	if days <= 0 || days > MaxRetrievalDays {
		days = DefaultAvailabilityDays
	}
	if err := l.restorer.Restore(ctx, doc.ColdContent.Key, days); err != nil {
		l.logger.ErrorContext(ctx, "failed to reissue cold storage restore", "document_id", doc.ID, "error", err)
		return fmt.Errorf("reissue restore of %s: %w", doc, err)
	}
	l.logger.WarnContext(ctx, "cold storage restore reissued", "document_id", doc.ID, "key", doc.ColdContent.Key, "days", days)
	return nil
}

// ReadColdContent returns the cold content of a document. It degrades to
// empty content, logging the reason, when the document has no cold content or
// the backend has no readable copy.
func (l *Lifecycle) ReadColdContent(ctx context.Context, id uuid.UUID) []byte {
	doc, err := l.repo.Get(ctx, id)
	if err != nil {
		l.logger.ErrorContext(ctx, "cannot read cold content", "document_id", id, "error", err)
		return []byte{}
	}
	if doc.ColdContent == nil {
		l.logger.ErrorContext(ctx, "cannot read cold content", "document_id", id, "error", errNoColdContent(doc))
		return []byte{}
	}
	if doc.State(l.now()) == StateRetrievalRequested {
		l.logger.ErrorContext(ctx, "cannot read cold content", "document_id", id, "error", errBeingRetrieved(doc))
		return []byte{}
	}

	data, err := l.cold.Read(ctx, doc.ColdContent.Key)
	if err != nil {
		blobtier.ObserveReadDegraded(l.metrics, "cold")
		l.logger.ErrorContext(ctx, "cannot read cold content", "document_id", id, "key", doc.ColdContent.Key, "error", err)
		return []byte{}
	}
	return data
}

// State returns the current cold storage state of a document.
func (l *Lifecycle) State(ctx context.Context, id uuid.UUID) (State, error) {
	doc, err := l.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return doc.State(l.now()), nil
}
