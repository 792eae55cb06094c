package blobtier

import (
	"errors"
	"log/slog"
)

// StackConfig describes a tier stack over one backend.
type StackConfig struct {
	Name    string
	Backend Backend
	Keys    KeyStrategy
	// CacheDir enables the local cache tier when set.
	CacheDir string
	Compress bool
	// Transactional enables per-transaction buffering on top.
	Transactional bool
	Logger        *slog.Logger
	Metrics       Metrics
}

// NewStack assembles remote, cache and transactional tiers.
func NewStack(cfg StackConfig) (BlobStore, error) {
	if cfg.Backend == nil {
		return nil, errors.New("backend is required")
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	opts := func(tier string) []Option {
		o := []Option{
			WithName(cfg.Name + "/" + tier),
			WithLogger(cfg.Logger),
			WithMetrics(cfg.Metrics),
		}
		if cfg.Keys != nil {
			o = append(o, WithKeyStrategy(cfg.Keys))
		}
		return o
	}

	var store BlobStore = NewRemoteStore(cfg.Backend, opts("remote")...)
	if cfg.CacheDir != "" {
		cache, err := NewCachingStore(store, cfg.CacheDir, append(opts("cache"), WithCompression(cfg.Compress))...)
		if err != nil {
			return nil, err
		}
		store = cache
	}
	if cfg.Transactional {
		store = NewTransactionalStore(store, opts("transactional")...)
	}
	return store, nil
}
