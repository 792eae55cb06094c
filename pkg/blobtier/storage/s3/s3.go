package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/tendant/blobtier/pkg/blobtier"
)

// Config options for the S3 backend
type Config struct {
	Region          string // AWS region
	Bucket          string // S3 bucket name
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // Use path-style addressing (default: false)

	// StorageClass for uploaded objects, e.g. GLACIER or DEEP_ARCHIVE for a
	// cold tier. Empty uses the bucket default.
	StorageClass string
	// RestoreTier is the retrieval tier for restores: Standard (default),
	// Bulk or Expedited.
	RestoreTier string

	// Server-side encryption options
	EnableSSE    bool   // Enable server-side encryption
	SSEAlgorithm string // SSE algorithm (AES256 or aws:kms)
	SSEKMSKeyID  string // Optional KMS key ID for aws:kms algorithm

	// MinIO/S3-compatible service options
	CreateBucketIfNotExist bool // Create bucket if it doesn't exist
}

// Backend is an S3-compatible implementation of blobtier.Backend with
// restore support for archive storage classes.
type Backend struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	config   Config
}

var (
	_ blobtier.Backend       = (*Backend)(nil)
	_ blobtier.PrefixClearer = (*Backend)(nil)
	_ blobtier.Restorer      = (*Backend)(nil)
)

// New creates a new S3-compatible storage backend
func New(ctx context.Context, config Config) (*Backend, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if config.Region == "" {
		config.Region = "us-east-1"
	}
	if config.RestoreTier == "" {
		config.RestoreTier = string(types.TierStandard)
	}
	if err := validateTier(config.RestoreTier); err != nil {
		return nil, err
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(config.Region)}
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Options []func(*s3.Options)
	if config.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Options...)
	backend := &Backend{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   config.Bucket,
		config:   config,
	}

	if config.CreateBucketIfNotExist {
		if err := backend.createBucketIfNotExists(ctx); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return backend, nil
}

func validateTier(tier string) error {
	for _, t := range types.Tier("").Values() {
		if strings.EqualFold(string(t), tier) {
			return nil
		}
	}
	return fmt.Errorf("invalid restore tier: %s", tier)
}

// createBucketIfNotExists creates the bucket if it doesn't exist
func (b *Backend) createBucketIfNotExists(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.bucket)})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) &&
		!strings.Contains(err.Error(), "BadRequest") &&
		!strings.Contains(err.Error(), "NoSuchBucket") {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	createInput := &s3.CreateBucketInput{Bucket: aws.String(b.bucket)}
	if b.config.Region != "us-east-1" {
		createInput.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(b.config.Region),
		}
	}

	if _, err := b.client.CreateBucket(ctx, createInput); err != nil {
		if code := apiErrorCode(err); code == "BucketAlreadyExists" || code == "BucketAlreadyOwnedByYou" {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Put uploads data under key with the configured storage class.
func (b *Backend) Put(ctx context.Context, key string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if b.config.StorageClass != "" {
		input.StorageClass = types.StorageClass(b.config.StorageClass)
	}
	if b.config.EnableSSE {
		switch b.config.SSEAlgorithm {
		case "AES256":
			input.ServerSideEncryption = types.ServerSideEncryptionAes256
		case "aws:kms":
			input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
			if b.config.SSEKMSKeyID != "" {
				input.SSEKMSKeyId = aws.String(b.config.SSEKMSKeyID)
			}
		}
	}

	if _, err := b.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	return nil
}

// Get downloads the object stored under key.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classify(key, "download", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read S3 object body: %w", err)
	}
	return data, nil
}

// Exists reports whether key is stored.
func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to head S3 object: %w", err)
}

// Delete deletes key. S3 does not report missing keys on delete.
func (b *Backend) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return classify(key, "delete", err)
	}
	return nil
}

// Clear removes every object in the bucket.
func (b *Backend) Clear(ctx context.Context) error {
	return b.ClearPrefix(ctx, "")
}

// ClearPrefix removes every object whose key starts with prefix.
func (b *Backend) ClearPrefix(ctx context.Context, prefix string) error {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(b.bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	paginator := s3.NewListObjectsV2Paginator(b.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list S3 objects: %w", err)
		}
		if len(page.Contents) == 0 {
			continue
		}

		ids := make([]types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			ids = append(ids, types.ObjectIdentifier{Key: obj.Key})
		}
		out, err := b.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(b.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("failed to delete S3 objects: %w", err)
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return fmt.Errorf("failed to delete %d S3 objects, first %s: %s",
				len(out.Errors), aws.ToString(e.Key), aws.ToString(e.Message))
		}
	}
	return nil
}

// Restore requests a temporary copy of an archived object kept for days.
// A restore already in progress and an object that is not archived are both
// accepted.
func (b *Backend) Restore(ctx context.Context, key string, days int) error {
	if days <= 0 || days > math.MaxInt32 {
		return fmt.Errorf("restore %s: invalid number of days %d", key, days)
	}
	_, err := b.client.RestoreObject(ctx, &s3.RestoreObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		RestoreRequest: &types.RestoreRequest{
			Days: aws.Int32(int32(days)),
			GlacierJobParameters: &types.GlacierJobParameters{
				Tier: types.Tier(b.config.RestoreTier),
			},
		},
	})
	if err == nil {
		return nil
	}
	switch apiErrorCode(err) {
	case "RestoreAlreadyInProgress", "ObjectAlreadyInActiveTierError":
		return nil
	}
	return classify(key, "restore", err)
}

// RestoreStatus reads the restore state from the object's metadata.
func (b *Backend) RestoreStatus(ctx context.Context, key string) (blobtier.RestoreStatus, error) {
	result, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return blobtier.RestoreStatus{}, classify(key, "restore status", err)
	}
	return restoreStatus(result.StorageClass, aws.ToString(result.Restore))
}

func restoreStatus(class types.StorageClass, header string) (blobtier.RestoreStatus, error) {
	if header != "" {
		return ParseRestoreHeader(header)
	}
	switch class {
	case types.StorageClassGlacier, types.StorageClassDeepArchive:
		return blobtier.RestoreStatus{}, nil
	default:
		return blobtier.RestoreStatus{Available: true}, nil
	}
}

func classify(key, op string, err error) error {
	switch {
	case isNotFound(err):
		return fmt.Errorf("S3 %s %s: %w", op, key, blobtier.ErrNotFound)
	case apiErrorCode(err) == "InvalidObjectState":
		return fmt.Errorf("S3 %s %s: %w", op, key, blobtier.ErrArchived)
	default:
		return fmt.Errorf("S3 %s %s failed: %w", op, key, err)
	}
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}
	switch apiErrorCode(err) {
	case "NoSuchKey", "NotFound", "404":
		return true
	}
	return false
}

func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}
