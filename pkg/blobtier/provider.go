package blobtier

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/tendant/blobtier"

// Span attribute keys.
const (
	AttrStore    = "blob.store"
	AttrKey      = "blob.key"
	AttrDocID    = "blob.doc_id"
	AttrField    = "blob.field_path"
	AttrLength   = "blob.length"
	AttrDegraded = "blob.degraded"
)

// Provider is the blob surface consumed by document field bindings. Writes
// return the stored key; reads never fail, they degrade to empty content and
// record the failure in the log, the span and the metrics.
type Provider struct {
	name    string
	store   BlobStore
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics Metrics
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithProviderLogger sets the provider logger.
func WithProviderLogger(logger *slog.Logger) ProviderOption {
	return func(p *Provider) { p.logger = logger }
}

// WithTracer sets the tracer. Defaults to the global tracer provider.
func WithTracer(tracer trace.Tracer) ProviderOption {
	return func(p *Provider) { p.tracer = tracer }
}

// WithProviderMetrics sets the metrics sink.
func WithProviderMetrics(m Metrics) ProviderOption {
	return func(p *Provider) { p.metrics = m }
}

// NewProvider creates a provider named name over store.
func NewProvider(name string, store BlobStore, opts ...ProviderOption) *Provider {
	p := &Provider{name: name, store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.tracer == nil {
		p.tracer = otel.Tracer(tracerName)
	}
	p.logger = p.logger.With("provider", name)
	return p
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.name }

// Store returns the store stack behind the provider.
func (p *Provider) Store() BlobStore { return p.store }

// WriteBlob stores the content of wc and returns its key. Write failures are
// returned to the caller.
func (p *Provider) WriteBlob(ctx context.Context, wc WriteContext) (string, error) {
	ctx, span := p.tracer.Start(ctx, "blobtier.WriteBlob", trace.WithAttributes(
		attribute.String(AttrStore, p.name),
		attribute.String(AttrDocID, wc.DocID),
		attribute.String(AttrField, wc.FieldPath),
		attribute.Int(AttrLength, len(wc.Content)),
	))
	defer span.End()

	key, err := p.store.Write(ctx, wc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		p.logger.ErrorContext(ctx, "blob write failed", "doc_id", wc.DocID, "field", wc.FieldPath, "error", err)
		return "", err
	}
	span.SetAttributes(attribute.String(AttrKey, key))
	return key, nil
}

// ReadBlob returns the content of ref. Any failure, including a missing key
// or an unavailable backend, yields empty content.
func (p *Provider) ReadBlob(ctx context.Context, ref BlobRef) []byte {
	data, err := p.Read(ctx, ref.Key)
	if err != nil {
		return []byte{}
	}
	return data
}

// Read is ReadBlob for callers that want to see the error. The failure is
// still logged and traced.
func (p *Provider) Read(ctx context.Context, key string) ([]byte, error) {
	ctx, span := p.tracer.Start(ctx, "blobtier.ReadBlob", trace.WithAttributes(
		attribute.String(AttrStore, p.name),
		attribute.String(AttrKey, key),
	))
	defer span.End()

	data, err := p.store.Read(ctx, key)
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool(AttrDegraded, true))
		span.SetStatus(codes.Error, "read failed")
		ObserveReadDegraded(p.metrics, p.name)
		p.logger.ErrorContext(ctx, "blob read failed, returning empty content", "key", key, "error", err)
		return nil, err
	}
	span.SetAttributes(attribute.Int(AttrLength, len(data)))
	return data, nil
}

// CopyBlob copies key into dst under the same key.
func (p *Provider) CopyBlob(ctx context.Context, key string, dst *Provider) (string, error) {
	ctx, span := p.tracer.Start(ctx, "blobtier.CopyBlob", trace.WithAttributes(
		attribute.String(AttrStore, p.name),
		attribute.String(AttrKey, key),
	))
	defer span.End()

	out, err := p.store.Copy(ctx, key, dst.store)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "copy failed")
		return "", err
	}
	return out, nil
}

// DeleteBlob removes key.
func (p *Provider) DeleteBlob(ctx context.Context, key string) error {
	return p.store.Delete(ctx, key)
}
