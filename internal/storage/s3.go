package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/stevewoolley/IoT/internal/infrastructure/config"
)

// uploadAPI is the subset of manager.Uploader used by the store.
type uploadAPI interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// tagAPI is the subset of the object-store client used for tagging.
type tagAPI interface {
	GetObjectTagging(ctx context.Context, params *s3.GetObjectTaggingInput, optFns ...func(*s3.Options)) (*s3.GetObjectTaggingOutput, error)
	PutObjectTagging(ctx context.Context, params *s3.PutObjectTaggingInput, optFns ...func(*s3.Options)) (*s3.PutObjectTaggingOutput, error)
}

// Logger is the logging interface used by the store.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Store moves captured media into object-store buckets and tags it.
type Store struct {
	uploader uploadAPI
	client   tagAPI
	logger   Logger

	// remove deletes the local file after upload. Replaced in tests.
	remove func(string) error
}

// New creates a Store for the configured region using the ambient
// credential chain (instance profile, env, shared config).
func New(ctx context.Context, cfg config.StorageConfig) (*Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("loading object-store credentials: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	return &Store{
		uploader: manager.NewUploader(client),
		client:   client,
		remove:   os.Remove,
	}, nil
}

// SetLogger sets the store's logger. If not set, the store is silent.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// Put uploads a local file to the bucket, applies the given tags, and
// removes the local file on success. The object key is the file's base name.
//
// A failed removal is logged but does not fail the operation: the upload
// and tags are already durable, and a duplicate upload on redelivery is
// acceptable.
//
// Parameters:
//   - path: Local file to upload
//   - bucket: Destination bucket
//   - tags: Optional tag key/values (whitespace-trimmed); nil for none
func (s *Store) Put(ctx context.Context, path, bucket string, tags map[string]string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close() //nolint:errcheck // read-only handle

	key := filepath.Base(path)

	if _, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   file,
	}); err != nil {
		return fmt.Errorf("uploading %s to %s: %w", key, bucket, err)
	}

	if len(tags) > 0 {
		if _, err := s.client.PutObjectTagging(ctx, &s3.PutObjectTaggingInput{
			Bucket:  aws.String(bucket),
			Key:     aws.String(key),
			Tagging: &types.Tagging{TagSet: tagSet(nil, tags)},
		}); err != nil {
			return fmt.Errorf("tagging %s in %s: %w", key, bucket, err)
		}
	}

	if s.logger != nil {
		s.logger.Info("stored object", "bucket", bucket, "key", key)
	}

	if err := s.remove(path); err != nil {
		if s.logger != nil {
			s.logger.Error("failed to remove local file", "path", path, "error", err)
		}
	}

	return nil
}

// Tag merges the given tags into an object's existing tag set. Existing
// tags with the same key are replaced, never duplicated: at-least-once
// redelivery must not corrupt the tag set.
func (s *Store) Tag(ctx context.Context, bucket, key string, tags map[string]string) error {
	existing, err := s.client.GetObjectTagging(ctx, &s3.GetObjectTaggingInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("reading tags for %s in %s: %w", key, bucket, err)
	}

	if _, err := s.client.PutObjectTagging(ctx, &s3.PutObjectTaggingInput{
		Bucket:  aws.String(bucket),
		Key:     aws.String(key),
		Tagging: &types.Tagging{TagSet: tagSet(existing.TagSet, tags)},
	}); err != nil {
		return fmt.Errorf("tagging %s in %s: %w", key, bucket, err)
	}

	return nil
}

// tagSet merges extra tags into an existing tag set. Keys and values are
// whitespace-trimmed; an extra tag replaces an existing tag with the same
// key; extra keys are appended in sorted order for determinism.
func tagSet(existing []types.Tag, extra map[string]string) []types.Tag {
	merged := make([]types.Tag, 0, len(existing)+len(extra))
	seen := make(map[string]bool, len(extra))

	trimmed := make(map[string]string, len(extra))
	for k, v := range extra {
		trimmed[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}

	for _, tag := range existing {
		key := aws.ToString(tag.Key)
		if v, ok := trimmed[key]; ok {
			merged = append(merged, types.Tag{Key: aws.String(key), Value: aws.String(v)})
			seen[key] = true
			continue
		}
		merged = append(merged, tag)
	}

	keys := make([]string, 0, len(trimmed))
	for k := range trimmed {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		merged = append(merged, types.Tag{Key: aws.String(k), Value: aws.String(trimmed[k])})
	}

	return merged
}
