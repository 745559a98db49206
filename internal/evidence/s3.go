package evidence

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config targets an S3-compatible service such as MinIO.
type S3Config struct {
	Endpoint       string
	Region         string
	Bucket         string
	AccessKey      string
	SecretKey      string
	SessionToken   string
	Insecure       bool
	ForcePathStyle bool
	Transport      http.RoundTripper
}

// S3Sink writes objects with minio-go.
type S3Sink struct {
	client *minio.Client
	bucket string
}

// NewS3Sink dials the endpoint and verifies the bucket exists.
func NewS3Sink(ctx context.Context, cfg S3Config) (*S3Sink, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("evidence: s3 endpoint required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("evidence: s3 bucket required")
	}
	opts := &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken),
		Secure:    !cfg.Insecure,
		Region:    cfg.Region,
		Transport: cfg.Transport,
	}
	if cfg.ForcePathStyle {
		opts.BucketLookup = minio.BucketLookupPath
	}
	client, err := minio.New(cfg.Endpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("evidence: s3 client: %w", err)
	}
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	exists, err := client.BucketExists(checkCtx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("evidence: s3 connectivity check failed: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("evidence: s3 bucket %s does not exist", cfg.Bucket)
	}
	return &S3Sink{client: client, bucket: cfg.Bucket}, nil
}

// Put uploads payload as a single object.
func (s *S3Sink) Put(ctx context.Context, key string, payload []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: ContentType,
	})
	return err
}

// Close is a no-op.
func (s *S3Sink) Close() error { return nil }
