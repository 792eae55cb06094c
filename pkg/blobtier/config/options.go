package config

import (
	"fmt"
)

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *Config) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDatabase configures the database backend
func WithDatabase(dbType, url string) Option {
	return func(c *Config) error {
		if dbType != "memory" && dbType != "postgres" {
			return fmt.Errorf("database type must be 'memory' or 'postgres', got: %s", dbType)
		}
		if dbType == "postgres" && url == "" {
			return fmt.Errorf("database URL is required for postgres")
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithDatabaseSchema sets the database schema (for Postgres)
func WithDatabaseSchema(schema string) Option {
	return func(c *Config) error {
		c.DBSchema = schema
		return nil
	}
}

// WithHotStorage sets the hot tier backend from a storage URL.
func WithHotStorage(storageURL string) Option {
	return func(c *Config) error {
		backend, err := ParseStorageURL("hot", storageURL)
		if err != nil {
			return err
		}
		c.HotStorage = backend
		return nil
	}
}

// WithColdStorage sets the cold tier backend from a storage URL.
func WithColdStorage(storageURL string) Option {
	return func(c *Config) error {
		backend, err := ParseStorageURL("cold", storageURL)
		if err != nil {
			return err
		}
		c.ColdStorage = backend
		return nil
	}
}

// WithS3ColdStorage configures an S3 cold tier writing objects with an
// archive storage class.
func WithS3ColdStorage(bucket, region, storageClass string) Option {
	return func(c *Config) error {
		if bucket == "" {
			return fmt.Errorf("S3 bucket cannot be empty")
		}
		if region == "" {
			region = "us-east-1"
		}
		c.ColdStorage = StorageBackendConfig{
			Name: "cold",
			Type: "s3",
			Config: map[string]interface{}{
				"bucket":        bucket,
				"region":        region,
				"storage_class": storageClass,
			},
		}
		return nil
	}
}

// WithCache enables the local cache tier of hot storage.
func WithCache(dir string, compress bool) Option {
	return func(c *Config) error {
		if dir == "" {
			return fmt.Errorf("cache directory cannot be empty")
		}
		c.CacheDir = dir
		c.CacheCompression = compress
		return nil
	}
}

// WithKeyStrategy selects digest or record keys.
func WithKeyStrategy(strategy string) Option {
	return func(c *Config) error {
		if strategy != KeyStrategyDigest && strategy != KeyStrategyRecord {
			return fmt.Errorf("key strategy must be '%s' or '%s', got: %s", KeyStrategyDigest, KeyStrategyRecord, strategy)
		}
		c.KeyStrategy = strategy
		return nil
	}
}

// WithDigest sets the digest algorithm for digest keys.
func WithDigest(algorithm string) Option {
	return func(c *Config) error {
		c.Digest = normalizeDigest(algorithm)
		return nil
	}
}

// WithTransactional enables per-transaction write buffering.
func WithTransactional(enabled bool) Option {
	return func(c *Config) error {
		c.Transactional = enabled
		return nil
	}
}

// WithRepositoryName sets the name reported by availability checks.
func WithRepositoryName(name string) Option {
	return func(c *Config) error {
		if name == "" {
			return fmt.Errorf("repository name cannot be empty")
		}
		c.RepositoryName = name
		return nil
	}
}

// WithSweepConcurrency bounds the parallel status checks of a sweep.
func WithSweepConcurrency(n int) Option {
	return func(c *Config) error {
		if n < 1 {
			return fmt.Errorf("sweep concurrency must be positive, got: %d", n)
		}
		c.SweepConcurrency = n
		return nil
	}
}

// WithEventLogging enables or disables event logging
func WithEventLogging(enabled bool) Option {
	return func(c *Config) error {
		c.EnableEventLogging = enabled
		return nil
	}
}

// WithMetrics enables or disables the Prometheus collectors
func WithMetrics(enabled bool) Option {
	return func(c *Config) error {
		c.EnableMetrics = enabled
		return nil
	}
}
