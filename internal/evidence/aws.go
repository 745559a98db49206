package evidence

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// AWSConfig targets Amazon S3 using the default AWS credential chain.
type AWSConfig struct {
	Bucket   string
	Region   string
	Endpoint string
	Insecure bool
}

// AWSSink writes objects with the AWS SDK.
type AWSSink struct {
	client *s3.Client
	bucket string
}

// NewAWSSink loads the shared AWS configuration for cfg.Region.
func NewAWSSink(ctx context.Context, cfg AWSConfig) (*AWSSink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("evidence: aws bucket required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("evidence: aws region required (aws://bucket?region=...)")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("evidence: aws config: %w", err)
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint == "" {
			return
		}
		if !strings.Contains(endpoint, "://") {
			scheme := "https"
			if cfg.Insecure {
				scheme = "http"
			}
			endpoint = scheme + "://" + endpoint
		}
		o.BaseEndpoint = aws.String(endpoint)
	})
	return &AWSSink{client: client, bucket: cfg.Bucket}, nil
}

// Put uploads payload with PutObject.
func (s *AWSSink) Put(ctx context.Context, key string, payload []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(payload),
		ContentLength: aws.Int64(int64(len(payload))),
		ContentType:   aws.String(ContentType),
	})
	return err
}

// Close is a no-op.
func (s *AWSSink) Close() error { return nil }
