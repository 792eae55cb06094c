package coldstorage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tendant/blobtier/pkg/blobtier"
)

// DefaultRepositoryName is reported in availability statuses when none is
// configured.
const DefaultRepositoryName = "default"

// service implements the Service interface
type service struct {
	repo           Repository
	hot            *blobtier.Provider
	lifecycle      *Lifecycle
	eventSink      EventSink
	repositoryName string
	logger         *slog.Logger
	tracer         trace.Tracer
	now            func() time.Time
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepositoryName sets the repository name reported by CheckAvailability
func WithRepositoryName(name string) Option {
	return func(s *service) {
		s.repositoryName = name
	}
}

// WithEventSink sets the event sink for lifecycle events
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithLogger sets the service logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithTracer sets the tracer
func WithTracer(tracer trace.Tracer) Option {
	return func(s *service) {
		s.tracer = tracer
	}
}

// New creates a new cold storage service. hot must be the provider over the
// same store the lifecycle uses as its hot tier.
func New(repo Repository, hot *blobtier.Provider, lifecycle *Lifecycle, options ...Option) (Service, error) {
	if repo == nil {
		return nil, errors.New("repository is required")
	}
	if hot == nil {
		return nil, errors.New("hot provider is required")
	}
	if lifecycle == nil {
		return nil, errors.New("lifecycle is required")
	}

	s := &service{
		repo:           repo,
		hot:            hot,
		lifecycle:      lifecycle,
		eventSink:      NewNoopEventSink(),
		repositoryName: DefaultRepositoryName,
		logger:         slog.Default(),
		now:            lifecycle.now,
	}
	for _, option := range options {
		option(s)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("github.com/tendant/blobtier/pkg/coldstorage")
	}
	return s, nil
}

func (s *service) CreateDocument(ctx context.Context, req CreateDocumentRequest) (*Document, error) {
	now := s.now()
	doc := &Document{
		ID:        uuid.New(),
		Name:      req.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if len(req.Content) > 0 {
		wc := blobtier.WriteContext{
			Content:   req.Content,
			DocID:     doc.ID.String(),
			FieldPath: "content",
			MimeType:  req.MimeType,
			Filename:  req.Filename,
		}
		key, err := s.hot.WriteBlob(ctx, wc)
		if err != nil {
			return nil, fmt.Errorf("write content: %w", err)
		}
		doc.Content = blobtier.NewBlobRef(key, wc)
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *service) GetDocument(ctx context.Context, id uuid.UUID) (*Document, error) {
	return s.repo.Get(ctx, id)
}

func (s *service) ReadContent(ctx context.Context, id uuid.UUID) []byte {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		s.logger.ErrorContext(ctx, "cannot read content", "document_id", id, "error", err)
		return []byte{}
	}
	if doc.Content == nil {
		s.logger.ErrorContext(ctx, "cannot read content", "document_id", id, "error", errNoMainContent(doc))
		return []byte{}
	}
	return s.hot.ReadBlob(ctx, *doc.Content)
}

func (s *service) ReadColdContent(ctx context.Context, id uuid.UUID) []byte {
	return s.lifecycle.ReadColdContent(ctx, id)
}

func (s *service) MoveToColdStorage(ctx context.Context, id uuid.UUID) (*Document, error) {
	ctx, span := s.tracer.Start(ctx, "coldstorage.Move", trace.WithAttributes(attribute.String("document.id", id.String())))
	defer span.End()

	doc, err := s.lifecycle.Move(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "move failed")
		return nil, err
	}
	return doc, nil
}

func (s *service) RetrieveFromColdStorage(ctx context.Context, id uuid.UUID, days int) (*Document, error) {
	ctx, span := s.tracer.Start(ctx, "coldstorage.Retrieve", trace.WithAttributes(
		attribute.String("document.id", id.String()),
		attribute.Int("retrieval.days", days),
	))
	defer span.End()

	doc, err := s.lifecycle.Retrieve(ctx, id, days)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieve failed")
		return nil, err
	}
	return doc, nil
}

func (s *service) CheckAvailability(ctx context.Context) (*Status, error) {
	ctx, span := s.tracer.Start(ctx, "coldstorage.CheckAvailability")
	defer span.End()

	result, err := s.lifecycle.Sweep(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sweep failed")
		return nil, err
	}
	s.dispatch(ctx, result.Available)

	status := &Status{
		RepositoryName:      s.repositoryName,
		TotalBeingRetrieved: result.Pending,
		TotalAvailable:      len(result.Available),
	}
	span.SetAttributes(
		attribute.Int("coldstorage.being_retrieved", status.TotalBeingRetrieved),
		attribute.Int("coldstorage.available", status.TotalAvailable),
		attribute.Int("coldstorage.failed", len(result.Failed)),
		attribute.Int("coldstorage.reissued", len(result.Reissued)),
	)
	s.logger.InfoContext(ctx, "cold storage availability checked",
		"repository", status.RepositoryName,
		"being_retrieved", status.TotalBeingRetrieved,
		"available", status.TotalAvailable,
		"reissued", len(result.Reissued),
		"failed", len(result.Failed),
	)
	return status, nil
}

// dispatch publishes one content-available event per document, in order. A
// sink failure is logged and does not stop the others.
func (s *service) dispatch(ctx context.Context, docs []*Document) {
	for _, doc := range docs {
		event := Event{
			Name:           EventContentAvailable,
			DocumentID:     doc.ID,
			RepositoryName: s.repositoryName,
			Time:           s.now(),
		}
		if err := s.eventSink.Publish(ctx, event); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish cold storage event", "document_id", doc.ID, "error", err)
		}
	}
}
