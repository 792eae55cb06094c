package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tendant/blobtier/pkg/blobtier"
	promstats "github.com/tendant/blobtier/pkg/blobtier/metrics/prometheus"
	"github.com/tendant/blobtier/pkg/coldstorage"
	"github.com/tendant/blobtier/pkg/coldstorage/repo/memory"
	repopg "github.com/tendant/blobtier/pkg/coldstorage/repo/postgres"
)

// Key strategies.
const (
	KeyStrategyDigest = "digest"
	KeyStrategyRecord = "record"
)

// Option applies configuration to a Config instance.
type Option func(*Config) error

// Load constructs a Config by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*Config, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() Config {
	return Config{
		Environment:        "development",
		DatabaseType:       "memory",
		DBSchema:           "blobtier",
		AutoMigrate:        true,
		HotStorage:         StorageBackendConfig{Name: "hot", Type: "memory", Config: map[string]interface{}{}},
		ColdStorage:        StorageBackendConfig{Name: "cold", Type: "memory", Config: map[string]interface{}{}},
		KeyStrategy:        KeyStrategyDigest,
		Digest:             blobtier.DigestMD5,
		RepositoryName:     coldstorage.DefaultRepositoryName,
		SweepConcurrency:   coldstorage.DefaultSweepConcurrency,
		ThumbnailSize:      coldstorage.DefaultThumbnailSize,
		EnableEventLogging: true,
		EnableMetrics:      true,
	}
}

// Config represents the configuration of a blobtier runtime: a hot tier
// stack, a cold tier and the cold storage lifecycle over a document
// repository.
type Config struct {
	Environment string // development, production, testing

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres"
	DBSchema     string // Postgres schema to use (default: blobtier)
	AutoMigrate  bool   // Create the document table on startup

	// Storage configuration
	HotStorage       StorageBackendConfig
	ColdStorage      StorageBackendConfig
	CacheDir         string // Local cache tier for hot storage; empty disables it
	CacheCompression bool
	KeyStrategy      string // "digest", "record"
	Digest           string // "MD5", "SHA-256"
	Transactional    bool   // Buffer writes per transaction

	// Cold storage lifecycle
	RepositoryName   string
	SweepConcurrency int
	ThumbnailSize    int

	EnableEventLogging bool
	EnableMetrics      bool
}

// StorageBackendConfig represents configuration for a storage backend
type StorageBackendConfig struct {
	Name   string
	Type   string // "memory", "fs", "s3"
	Config map[string]interface{}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}

	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}

	for _, backend := range []StorageBackendConfig{c.HotStorage, c.ColdStorage} {
		switch backend.Type {
		case "memory", "fs", "s3":
		default:
			return fmt.Errorf("unsupported storage backend type for %s: %q", backend.Name, backend.Type)
		}
	}

	switch c.KeyStrategy {
	case KeyStrategyDigest:
		if _, err := blobtier.NewDigestKeyStrategy(c.Digest); err != nil {
			return err
		}
	case KeyStrategyRecord:
	default:
		return fmt.Errorf("key_strategy must be '%s' or '%s', got: %s", KeyStrategyDigest, KeyStrategyRecord, c.KeyStrategy)
	}

	if c.SweepConcurrency < 1 {
		return fmt.Errorf("sweep concurrency must be positive, got: %d", c.SweepConcurrency)
	}
	if c.RepositoryName == "" {
		return errors.New("repository name is required")
	}

	return nil
}

// Runtime is the assembled blobtier stack.
type Runtime struct {
	Hot        *blobtier.Provider
	HotStore   blobtier.BlobStore
	ColdStore  blobtier.BlobStore
	Restorer   blobtier.Restorer
	Repository coldstorage.Repository
	Lifecycle  *coldstorage.Lifecycle
	Service    coldstorage.Service
	// Registry holds the blobtier collectors; nil when metrics are disabled.
	Registry *prometheus.Registry

	closers []func() error
}

// Close releases the database pool and cache resources.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	return errors.Join(errs...)
}

// Build assembles the runtime described by the configuration.
func (c *Config) Build(ctx context.Context) (*Runtime, error) {
	logger := slog.Default().With("component", "blobtier", "environment", c.Environment)
	rt := &Runtime{}

	var metrics blobtier.Metrics
	if c.EnableMetrics {
		rt.Registry = prometheus.NewRegistry()
		metrics = promstats.New(rt.Registry)
	}

	keys, err := c.keyStrategy()
	if err != nil {
		return nil, err
	}

	repo, closeRepo, err := c.buildRepository(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}
	rt.Repository = repo
	rt.closers = append(rt.closers, closeRepo)

	hotBackend, err := buildStorageBackend(ctx, c.HotStorage)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("failed to build storage backend %s: %w", c.HotStorage.Name, err)
	}
	coldBackend, err := buildStorageBackend(ctx, c.ColdStorage)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("failed to build storage backend %s: %w", c.ColdStorage.Name, err)
	}

	rt.HotStore, err = blobtier.NewStack(blobtier.StackConfig{
		Name:          c.HotStorage.Name,
		Backend:       hotBackend,
		Keys:          keys,
		CacheDir:      c.CacheDir,
		Compress:      c.CacheCompression,
		Transactional: c.Transactional,
		Logger:        logger,
		Metrics:       metrics,
	})
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.closers = append(rt.closers, func() error { return closeStore(rt.HotStore) })

	rt.ColdStore, err = blobtier.NewStack(blobtier.StackConfig{
		Name:          c.ColdStorage.Name,
		Backend:       coldBackend,
		Keys:          keys,
		Transactional: c.Transactional,
		Logger:        logger,
		Metrics:       metrics,
	})
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.Restorer = blobtier.RestorerFor(coldBackend)

	rt.Hot = blobtier.NewProvider(c.HotStorage.Name, rt.HotStore,
		blobtier.WithProviderLogger(logger),
		blobtier.WithProviderMetrics(metrics),
	)

	rt.Lifecycle, err = coldstorage.NewLifecycle(repo, rt.HotStore, rt.ColdStore, rt.Restorer,
		coldstorage.WithThumbnailer(coldstorage.ImageThumbnailer{MaxSize: c.ThumbnailSize}),
		coldstorage.WithSweepConcurrency(c.SweepConcurrency),
		coldstorage.WithLifecycleLogger(logger),
		coldstorage.WithLifecycleMetrics(metrics),
	)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	options := []coldstorage.Option{
		coldstorage.WithRepositoryName(c.RepositoryName),
		coldstorage.WithLogger(logger),
	}
	if c.EnableEventLogging {
		options = append(options, coldstorage.WithEventSink(coldstorage.NewLoggingEventSink(logger)))
	}
	rt.Service, err = coldstorage.New(repo, rt.Hot, rt.Lifecycle, options...)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}

func (c *Config) keyStrategy() (blobtier.KeyStrategy, error) {
	if c.KeyStrategy == KeyStrategyRecord {
		return blobtier.RecordKeyStrategy{}, nil
	}
	return blobtier.NewDigestKeyStrategy(c.Digest)
}

// closeStore closes the cache tier of a stack, if any.
func closeStore(store blobtier.BlobStore) error {
	if ts, ok := store.(*blobtier.TransactionalStore); ok {
		store = ts.Inner()
	}
	if closer, ok := store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// buildRepository creates a Repository based on the configuration
func (c *Config) buildRepository(ctx context.Context) (coldstorage.Repository, func() error, error) {
	noop := func() error { return nil }
	switch c.DatabaseType {
	case "memory":
		return memory.New(), noop, nil
	case "postgres":
		pool, err := NewPool(ctx, c.DatabaseURL, c.DBSchema)
		if err != nil {
			return nil, noop, err
		}
		repo := repopg.NewWithPool(pool)
		if c.AutoMigrate {
			if err := repo.EnsureSchema(ctx); err != nil {
				pool.Close()
				return nil, noop, err
			}
		}
		return repo, func() error { pool.Close(); return nil }, nil
	default:
		return nil, noop, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// NewPool opens a pgx pool that sets search_path to schema on every
// connection.
func NewPool(ctx context.Context, databaseURL, schema string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, errors.New("database_url is required")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %[1]s; SET search_path TO %[1]s", pgx.Identifier{schema}.Sanitize()))
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	return pool, nil
}

// PingPostgres verifies connectivity to Postgres.
func PingPostgres(ctx context.Context, databaseURL, schema string) error {
	pool, err := NewPool(ctx, databaseURL, schema)
	if err != nil {
		return err
	}
	defer pool.Close()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

func normalizeDigest(name string) string {
	switch strings.ToUpper(strings.ReplaceAll(name, "-", "")) {
	case "MD5":
		return blobtier.DigestMD5
	case "SHA256":
		return blobtier.DigestSHA256
	default:
		return name
	}
}
