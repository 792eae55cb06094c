package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/blobtier/pkg/blobtier/txn"
	"github.com/tendant/blobtier/pkg/coldstorage"
)

// Repository is an in-memory implementation of coldstorage.Repository.
// Documents are copied in and out, so callers never share state with the
// store. Changes made inside a transaction go to an overlay that is applied
// in the record phase of the commit, after the transaction's blobs.
type Repository struct {
	mu   sync.RWMutex
	docs map[uuid.UUID]*coldstorage.Document
	id   string
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		docs: make(map[uuid.UUID]*coldstorage.Document),
		id:   uuid.NewString(),
	}
}

var _ coldstorage.Repository = (*Repository)(nil)

type overlay struct {
	repo *Repository
	mu   sync.Mutex
	docs map[uuid.UUID]*coldstorage.Document
}

func (o *overlay) Commit(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.repo.mu.Lock()
	defer o.repo.mu.Unlock()
	for id, doc := range o.docs {
		o.repo.docs[id] = doc
	}
	return nil
}

func (o *overlay) Rollback(ctx context.Context) error {
	o.mu.Lock()
	o.docs = nil
	o.mu.Unlock()
	return nil
}

func (r *Repository) overlay(ctx context.Context) (*overlay, error) {
	tx, ok := txn.FromContext(ctx)
	if !ok {
		return nil, nil
	}
	return txn.EnlistPhase(tx, txn.PhaseRecord, "coldstorage.memory/"+r.id, func() (*overlay, error) {
		return &overlay{repo: r, docs: make(map[uuid.UUID]*coldstorage.Document)}, nil
	})
}

func (r *Repository) lookup(ctx context.Context, id uuid.UUID) (*coldstorage.Document, error) {
	ov, err := r.overlay(ctx)
	if err != nil {
		return nil, err
	}
	if ov != nil {
		ov.mu.Lock()
		doc, ok := ov.docs[id]
		ov.mu.Unlock()
		if ok {
			return doc, nil
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.docs[id], nil
}

func (r *Repository) store(ctx context.Context, doc *coldstorage.Document) error {
	ov, err := r.overlay(ctx)
	if err != nil {
		return err
	}
	if ov != nil {
		ov.mu.Lock()
		ov.docs[doc.ID] = doc.Clone()
		ov.mu.Unlock()
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.ID] = doc.Clone()
	return nil
}

// Create stores a new document.
func (r *Repository) Create(ctx context.Context, doc *coldstorage.Document) error {
	existing, err := r.lookup(ctx, doc.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("document %s already exists", doc.ID)
	}
	return r.store(ctx, doc)
}

// Get returns a copy of the document.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*coldstorage.Document, error) {
	doc, err := r.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: %s", coldstorage.ErrDocumentNotFound, id)
	}
	return doc.Clone(), nil
}

// Update replaces a stored document.
func (r *Repository) Update(ctx context.Context, doc *coldstorage.Document) error {
	existing, err := r.lookup(ctx, doc.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("%w: %s", coldstorage.ErrDocumentNotFound, doc.ID)
	}
	return r.store(ctx, doc)
}

// ListBeingRetrieved returns the documents with a pending retrieval, sorted
// by id.
func (r *Repository) ListBeingRetrieved(ctx context.Context) ([]*coldstorage.Document, error) {
	ov, err := r.overlay(ctx)
	if err != nil {
		return nil, err
	}

	merged := make(map[uuid.UUID]*coldstorage.Document)
	r.mu.RLock()
	for id, doc := range r.docs {
		merged[id] = doc
	}
	r.mu.RUnlock()
	if ov != nil {
		ov.mu.Lock()
		for id, doc := range ov.docs {
			merged[id] = doc
		}
		ov.mu.Unlock()
	}

	var out []*coldstorage.Document
	for _, doc := range merged {
		if doc.BeingRetrieved {
			out = append(out, doc.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	return out, nil
}

// MarkAvailable flips the being-retrieved flag if it is still set.
func (r *Repository) MarkAvailable(ctx context.Context, id uuid.UUID, until time.Time) (bool, error) {
	ov, err := r.overlay(ctx)
	if err != nil {
		return false, err
	}
	if ov != nil {
		ov.mu.Lock()
		doc, ok := ov.docs[id]
		if ok {
			defer ov.mu.Unlock()
			return markAvailable(doc, until), nil
		}
		ov.mu.Unlock()
		current, err := r.lookup(ctx, id)
		if err != nil || current == nil || !current.BeingRetrieved {
			return false, err
		}
		doc = current.Clone()
		changed := markAvailable(doc, until)
		ov.mu.Lock()
		ov.docs[id] = doc
		ov.mu.Unlock()
		return changed, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return false, nil
	}
	return markAvailable(doc, until), nil
}

func markAvailable(doc *coldstorage.Document, until time.Time) bool {
	if !doc.BeingRetrieved {
		return false
	}
	doc.BeingRetrieved = false
	u := until
	doc.AvailableUntil = &u
	doc.UpdatedAt = time.Now()
	return true
}
