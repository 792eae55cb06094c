package config

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/tendant/blobtier/pkg/blobtier"
	fsstorage "github.com/tendant/blobtier/pkg/blobtier/storage/fs"
	memorystorage "github.com/tendant/blobtier/pkg/blobtier/storage/memory"
	s3storage "github.com/tendant/blobtier/pkg/blobtier/storage/s3"
)

// buildStorageBackend creates a Backend based on the backend configuration.
// A "prefix" entry places every key of the backend under that namespace.
func buildStorageBackend(ctx context.Context, config StorageBackendConfig) (blobtier.Backend, error) {
	var backend blobtier.Backend
	switch config.Type {
	case "memory":
		var opts []memorystorage.Option
		if delay, ok := getDuration(config.Config, "archive_delay"); ok {
			opts = append(opts, memorystorage.WithArchive(delay))
		}
		backend = memorystorage.New(opts...)

	case "fs":
		fsConfig := fsstorage.Config{
			BaseDir: getString(config.Config, "base_dir", "./data/"+config.Name),
		}
		b, err := fsstorage.New(fsConfig)
		if err != nil {
			return nil, err
		}
		backend = b

	case "s3":
		s3Config := s3storage.Config{
			Region:                 getString(config.Config, "region", "us-east-1"),
			Bucket:                 getString(config.Config, "bucket", ""),
			AccessKeyID:            getString(config.Config, "access_key_id", ""),
			SecretAccessKey:        getString(config.Config, "secret_access_key", ""),
			Endpoint:               getString(config.Config, "endpoint", ""),
			UsePathStyle:           getBool(config.Config, "use_path_style", false),
			StorageClass:           getString(config.Config, "storage_class", ""),
			RestoreTier:            getString(config.Config, "restore_tier", ""),
			EnableSSE:              getBool(config.Config, "enable_sse", false),
			SSEAlgorithm:           getString(config.Config, "sse_algorithm", "AES256"),
			SSEKMSKeyID:            getString(config.Config, "sse_kms_key_id", ""),
			CreateBucketIfNotExist: getBool(config.Config, "create_bucket_if_not_exist", false),
		}
		b, err := s3storage.New(ctx, s3Config)
		if err != nil {
			return nil, err
		}
		backend = b

	default:
		return nil, fmt.Errorf("unsupported storage backend type: %s", config.Type)
	}

	if prefix := getString(config.Config, "prefix", ""); prefix != "" {
		backend = blobtier.NewPrefixBackend(backend, prefix)
	}
	return backend, nil
}

func getString(config map[string]interface{}, key string, defaultValue string) string {
	if value, exists := config[key]; exists {
		if str, ok := value.(string); ok {
			return str
		}
	}
	return defaultValue
}

func getBool(config map[string]interface{}, key string, defaultValue bool) bool {
	if value, exists := config[key]; exists {
		if b, ok := value.(bool); ok {
			return b
		}
		if str, ok := value.(string); ok {
			if b, err := strconv.ParseBool(str); err == nil {
				return b
			}
		}
	}
	return defaultValue
}

func getDuration(config map[string]interface{}, key string) (time.Duration, bool) {
	value, exists := config[key]
	if !exists {
		return 0, false
	}
	switch v := value.(type) {
	case time.Duration:
		return v, true
	case string:
		d, err := time.ParseDuration(v)
		return d, err == nil
	}
	return 0, false
}
