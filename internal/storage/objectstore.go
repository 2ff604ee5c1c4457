// Package storage persists blob bytes for the development ByteStream server.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/TheMichaelB/streamfs/internal/config"
	"github.com/TheMichaelB/streamfs/internal/events"
)

// ErrObjectNotFound is returned when a key has no object.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore is the minimal key/value API blobs are persisted through.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, body []byte) error
	GetObject(ctx context.Context, key string) ([]byte, error)
	DeleteObject(ctx context.Context, key string) error
}

// New builds the object store selected by cfg.ObjectBackend.
func New(ctx context.Context, cfg *config.DevServerConfig, logger *events.Logger) (ObjectStore, error) {
	switch cfg.ObjectBackend {
	case "memory":
		return NewMemoryObjectStore(), nil
	case "local":
		return NewLocalObjectStore(cfg.DataDir, logger)
	case "s3":
		client, err := NewS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewS3ObjectStore(client, cfg.S3Bucket), nil
	default:
		return nil, fmt.Errorf("unknown object backend %q", cfg.ObjectBackend)
	}
}

// MemoryObjectStore keeps objects in process memory. It is safe for
// concurrent use.
type MemoryObjectStore struct {
	mu    sync.RWMutex
	store map[string][]byte
}

// NewMemoryObjectStore constructs an in-memory object store.
func NewMemoryObjectStore() *MemoryObjectStore {
	return &MemoryObjectStore{store: make(map[string][]byte)}
}

// PutObject saves a copy of body.
func (s *MemoryObjectStore) PutObject(ctx context.Context, key string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.store[key] = append([]byte(nil), body...)
	return nil
}

// GetObject returns a copy of the stored payload.
func (s *MemoryObjectStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.store[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return append([]byte(nil), data...), nil
}

// DeleteObject removes the stored payload.
func (s *MemoryObjectStore) DeleteObject(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.store[key]; !ok {
		return ErrObjectNotFound
	}
	delete(s.store, key)
	return nil
}

// Len returns the number of stored objects.
func (s *MemoryObjectStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.store)
}

// S3Client captures the subset of the AWS SDK client used by S3ObjectStore.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// NewS3Client loads AWS credentials from the environment and points the
// client at cfg.S3Endpoint when set (MinIO, LocalStack).
func NewS3Client(ctx context.Context, cfg *config.DevServerConfig) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// S3ObjectStore stores objects in an S3-compatible bucket.
type S3ObjectStore struct {
	client S3Client
	bucket string
}

// NewS3ObjectStore creates an object store backed by S3.
func NewS3ObjectStore(client S3Client, bucket string) *S3ObjectStore {
	return &S3ObjectStore{client: client, bucket: bucket}
}

// PutObject uploads the payload to S3.
func (s *S3ObjectStore) PutObject(ctx context.Context, key string, body []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s3Key(key)),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// GetObject downloads an object from S3.
func (s *S3ObjectStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s3Key(key)),
	})
	if err != nil {
		var notFound *types.NoSuchKey
		if errors.As(err, &notFound) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// DeleteObject removes an object from S3.
func (s *S3ObjectStore) DeleteObject(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s3Key(key)),
	})
	var notFound *types.NoSuchKey
	if errors.As(err, &notFound) {
		return ErrObjectNotFound
	}
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// s3Key drops the leading slash of a resource name.
func s3Key(key string) string {
	for len(key) > 0 && key[0] == '/' {
		key = key[1:]
	}
	return key
}
