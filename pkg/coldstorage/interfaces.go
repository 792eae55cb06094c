package coldstorage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists documents. Implementations honour the transaction
// carried by ctx (see package txn): changes made inside a transaction are
// visible to it and applied on commit.
type Repository interface {
	Create(ctx context.Context, doc *Document) error
	// Get returns an error wrapping ErrDocumentNotFound when id is unknown.
	Get(ctx context.Context, id uuid.UUID) (*Document, error)
	Update(ctx context.Context, doc *Document) error
	// ListBeingRetrieved returns the documents with a pending retrieval in
	// ascending id order.
	ListBeingRetrieved(ctx context.Context) ([]*Document, error)
	// MarkAvailable clears the being-retrieved flag and records until, but
	// only if the flag is still set. It reports whether it changed the
	// document.
	MarkAvailable(ctx context.Context, id uuid.UUID, until time.Time) (bool, error)
}

// EventSink receives lifecycle events.
type EventSink interface {
	Publish(ctx context.Context, event Event) error
}

// ThumbnailFactory produces the lightweight substitute stored as live
// content after a move.
type ThumbnailFactory interface {
	// Thumbnail returns the substitute bytes and their mime type.
	Thumbnail(ctx context.Context, content []byte, mimeType string) ([]byte, string, error)
}
