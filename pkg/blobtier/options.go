package blobtier

import (
	"context"
	"log/slog"
)

type options struct {
	name     string
	keys     KeyStrategy
	logger   *slog.Logger
	metrics  Metrics
	compress bool
}

// Option configures a store tier.
type Option func(*options)

// WithName sets the store name used in logs and errors.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithKeyStrategy sets the strategy used by Write. Decorators default to the
// strategy of the store they wrap; RemoteStore defaults to MD5 digests.
func WithKeyStrategy(keys KeyStrategy) Option {
	return func(o *options) { o.keys = keys }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithCompression enables zstd compression of cache files.
func WithCompression(enabled bool) Option {
	return func(o *options) { o.compress = enabled }
}

func buildOptions(defaultName string, inherited KeyStrategy, opts []Option) options {
	o := options{name: defaultName, keys: inherited}
	for _, opt := range opts {
		opt(&o)
	}
	if o.keys == nil {
		o.keys = DigestKeyStrategy{Algorithm: DigestMD5}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With("store", o.name)
	return o
}

// writeWith computes the key for wc with s's strategy and stores the content.
func writeWith(ctx context.Context, s BlobStore, wc WriteContext) (string, error) {
	key, err := s.Keys().Key(wc)
	if err != nil {
		return "", err
	}
	if err := s.Put(ctx, key, wc.Content); err != nil {
		return "", err
	}
	return key, nil
}

// copyTo reads key from src and stores it under the same key in dst.
func copyTo(ctx context.Context, src BlobStore, key string, dst BlobStore) (string, error) {
	data, err := src.Read(ctx, key)
	if err != nil {
		return "", err
	}
	if err := dst.Put(ctx, key, data); err != nil {
		return "", err
	}
	return key, nil
}
