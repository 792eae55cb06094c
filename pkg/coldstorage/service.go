package coldstorage

import (
	"context"

	"github.com/google/uuid"
)

// Service is the cold storage surface consumed by request handlers.
type Service interface {
	// CreateDocument stores the content in the hot tier and creates a
	// document referencing it. Empty content creates a document without
	// main content.
	CreateDocument(ctx context.Context, req CreateDocumentRequest) (*Document, error)
	GetDocument(ctx context.Context, id uuid.UUID) (*Document, error)
	// ReadContent returns the live content, or empty content on failure.
	ReadContent(ctx context.Context, id uuid.UUID) []byte
	// ReadColdContent returns the cold content, or empty content when it
	// cannot be read.
	ReadColdContent(ctx context.Context, id uuid.UUID) []byte

	MoveToColdStorage(ctx context.Context, id uuid.UUID) (*Document, error)
	RetrieveFromColdStorage(ctx context.Context, id uuid.UUID, days int) (*Document, error)
	// CheckAvailability sweeps the documents being retrieved and publishes a
	// content-available event for each one that became available.
	CheckAvailability(ctx context.Context) (*Status, error)
}
