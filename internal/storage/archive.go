package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	appconfig "github.com/SourceCoDeals/connect-market-nexus-sub004/internal/config"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DocumentArchive stores generated operator documents (deal guides) in an
// object store keyed by a stable storage key.
type DocumentArchive interface {
	// Put uploads a document under key.
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Get retrieves a document by key. The caller closes the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// URL returns the public URL for a stored document.
	URL(key string) string

	// Exists reports whether a document is stored under key.
	Exists(ctx context.Context, key string) (bool, error)
}

// GuideKey builds the storage key for a generated deal guide. Keys are
// date-partitioned so archives stay browsable per day.
func GuideKey(dealID, template string, generatedAt time.Time) string {
	if template == "" {
		template = "default"
	}
	return fmt.Sprintf("guides/%s/%s-%s.md", generatedAt.Format("2006-01-02"), dealID, template)
}

// S3Archive implements DocumentArchive over any S3-compatible endpoint
// (AWS S3, Cloudflare R2, MinIO).
type S3Archive struct {
	client    *s3.Client
	bucket    string
	publicURL string
}

// NewS3Archive creates an S3Archive from configuration.
// Parameters:
//   - cfg: storage configuration (endpoint, credentials, bucket).
// Returns:
//   - *S3Archive: archive ready for use.
//   - error: non-nil if the AWS config cannot be built.
func NewS3Archive(cfg *appconfig.StorageConfig) (*S3Archive, error) {
	endpoint := normalizeEndpoint(cfg.Endpoint)

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	endpointURL := fmt.Sprintf("%s://%s", scheme, endpoint)

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpointURL)
		// Path-style keeps bucket addressing working on non-AWS endpoints.
		o.UsePathStyle = true
	})

	return &S3Archive{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: strings.TrimSuffix(cfg.PublicURL, "/"),
	}, nil
}

// normalizeEndpoint strips the protocol prefix and any path from an endpoint.
func normalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "http://")
	if idx := strings.Index(endpoint, "/"); idx != -1 {
		endpoint = endpoint[:idx]
	}
	return strings.TrimSuffix(endpoint, "/")
}

// EnsureBucket creates the bucket if it does not exist yet.
func (s *S3Archive) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err == nil {
		return nil
	}

	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Put uploads a document under key.
func (s *S3Archive) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          reader,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload document %s: %w", key, err)
	}
	return nil
}

// Get retrieves a document by key.
func (s *S3Archive) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download document %s: %w", key, err)
	}
	return result.Body, nil
}

// URL returns the public URL for a stored document.
func (s *S3Archive) URL(key string) string {
	return fmt.Sprintf("%s/%s", s.publicURL, key)
}

// Exists reports whether a document is stored under key.
func (s *S3Archive) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if strings.Contains(err.Error(), "NotFound") || strings.Contains(err.Error(), "404") {
			return false, nil
		}
		return false, fmt.Errorf("failed to check document %s: %w", key, err)
	}
	return true, nil
}
