package coldstorage

import (
	"time"

	"github.com/google/uuid"

	"github.com/tendant/blobtier/pkg/blobtier"
)

// State is the cold storage state of a document.
type State string

const (
	StateNone               State = "NONE"
	StateArchived           State = "ARCHIVED"
	StateRetrievalRequested State = "RETRIEVAL_REQUESTED"
	StateAvailable          State = "AVAILABLE"
)

// DefaultAvailabilityDays is how long a restored copy is kept when the caller
// does not say.
const DefaultAvailabilityDays = 1

// EventContentAvailable is emitted once per document whose restored content
// became available.
const EventContentAvailable = "coldStorageContentAvailable"

// Document is the owner of the blobs managed by the lifecycle. Only the
// fields below are read and written by this package.
type Document struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`

	// Content is the live content. After a move it holds the thumbnail.
	Content *blobtier.BlobRef `json:"content,omitempty"`
	// ColdContent is the original content once moved to cold storage.
	ColdContent *blobtier.BlobRef `json:"cold_content,omitempty"`

	BeingRetrieved       bool       `json:"being_retrieved"`
	RetrievalRequestedAt *time.Time `json:"retrieval_requested_at,omitempty"`
	RetrievalDays        int        `json:"retrieval_days,omitempty"`
	AvailableUntil       *time.Time `json:"available_until,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// State derives the cold storage state at now.
func (d *Document) State(now time.Time) State {
	switch {
	case d.ColdContent == nil:
		return StateNone
	case d.BeingRetrieved:
		return StateRetrievalRequested
	case d.AvailableUntil != nil && now.Before(*d.AvailableUntil):
		return StateAvailable
	default:
		return StateArchived
	}
}

// String returns the document identity used in messages and events.
func (d *Document) String() string {
	return d.ID.String()
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	c := *d
	if d.Content != nil {
		ref := *d.Content
		c.Content = &ref
	}
	if d.ColdContent != nil {
		ref := *d.ColdContent
		c.ColdContent = &ref
	}
	if d.RetrievalRequestedAt != nil {
		t := *d.RetrievalRequestedAt
		c.RetrievalRequestedAt = &t
	}
	if d.AvailableUntil != nil {
		t := *d.AvailableUntil
		c.AvailableUntil = &t
	}
	return &c
}

// Event is a lifecycle notification.
type Event struct {
	Name           string    `json:"name"`
	DocumentID     uuid.UUID `json:"document_id"`
	RepositoryName string    `json:"repository_name"`
	Time           time.Time `json:"time"`
}

// Status is the aggregate result of an availability check.
type Status struct {
	RepositoryName      string `json:"repository_name"`
	TotalBeingRetrieved int    `json:"total_being_retrieved"`
	TotalAvailable      int    `json:"total_available"`
}

// SweepFailure records a document whose status check failed. The document
// stays pending.
type SweepFailure struct {
	DocumentID uuid.UUID
	Err        error
}

// SweepResult is the outcome of one availability sweep.
type SweepResult struct {
	// Pending is the number of documents being retrieved when the sweep
	// started.
	Pending int
	// Available lists the documents this sweep marked available, in
	// ascending id order.
	Available []*Document
	// Reissued lists the documents whose restore request was sent again
	// because the backend had no restore for them.
	Reissued []uuid.UUID
	Failed   []SweepFailure
}

// CreateDocumentRequest contains parameters for creating a document.
type CreateDocumentRequest struct {
	Name     string
	Content  []byte
	MimeType string
	Filename string
}
