package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ArtifactSink archives raw tool output that could not be interpreted,
// so operators can inspect it later.
type ArtifactSink interface {
	// Put stores content and returns a URI that locates it.
	Put(ctx context.Context, kind, name string, content []byte) (string, error)
}

// objectName builds kind/name/<content hash>-<uuid>.txt.
// The hash groups identical payloads; the uuid keeps repeated uploads apart.
func objectName(kind, name string, content []byte) string {
	return fmt.Sprintf("%s/%s/%016x-%s.txt",
		sanitizeSegment(kind), sanitizeSegment(name), xxhash.Sum64(content), uuid.NewString())
}

func sanitizeSegment(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unnamed"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}

// NopSink discards everything.
type NopSink struct{}

// Put returns an empty URI.
func (NopSink) Put(ctx context.Context, kind, name string, content []byte) (string, error) {
	return "", nil
}

// LocalSink writes artifacts under a root directory.
type LocalSink struct {
	root string
}

// NewLocalSink creates a sink rooted at dir.
func NewLocalSink(dir string) *LocalSink {
	return &LocalSink{root: dir}
}

// Put writes content to a new file and returns its file:// URI.
func (s *LocalSink) Put(ctx context.Context, kind, name string, content []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := filepath.Join(s.root, filepath.FromSlash(objectName(kind, name, content)))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return "file://" + abs, nil
}

// MinIOConfig holds connection settings for an S3-compatible store.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// DefaultBucket is used when MinIOConfig.Bucket is empty.
const DefaultBucket = "biotools-artifacts"

// MinIOSink uploads artifacts to a MinIO or S3 bucket.
// The bucket is created on first use.
type MinIOSink struct {
	client *minio.Client
	bucket string

	mu        sync.Mutex
	bucketSet bool
}

// NewMinIOSink creates a sink. No network calls are made until Put.
func NewMinIOSink(cfg MinIOConfig) (*MinIOSink, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required when BIOTOOLS_ARTIFACT_BACKEND=minio")
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		bucket = DefaultBucket
	}
	return &MinIOSink{client: client, bucket: bucket}, nil
}

// Put uploads content and returns an s3:// URI.
func (s *MinIOSink) Put(ctx context.Context, kind, name string, content []byte) (string, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return "", err
	}
	object := objectName(kind, name, content)
	_, err := s.client.PutObject(ctx, s.bucket, object, bytes.NewReader(content), int64(len(content)),
		minio.PutObjectOptions{ContentType: "text/plain"})
	if err != nil {
		return "", fmt.Errorf("failed to upload artifact: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, object), nil
}

func (s *MinIOSink) ensureBucket(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bucketSet {
		return nil
	}

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
		}
	}
	s.bucketSet = true
	return nil
}
