// Package objectstore adapts job artifacts to an S3-compatible bucket (C2).
// Writes always go through the internal endpoint; presigned GET URLs are
// signed against a separate public endpoint when one is configured, so the
// returned URL is directly reachable by a client outside the cluster while
// every other SDK call stays on the internal network.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ternarybob/dreamforge/internal/apperr"
	"github.com/ternarybob/dreamforge/internal/common"
)

// Store puts and presigns artifact bytes against a single bucket.
type Store struct {
	bucket      string
	client      *s3.Client
	presign     *s3.PresignClient
	defaultTTLS int
}

var _ ObjectStore = (*Store)(nil)

// New builds a Store from configuration. It always constructs the write
// client against the internal endpoint; when a public endpoint is set, a
// second client is built against it solely to back the presign client.
func New(cfg common.ObjectStoreConfig) (*Store, error) {
	if cfg.Endpoint == "" || cfg.AccessKey == "" || cfg.SecretKey == "" || cfg.Bucket == "" {
		return nil, apperr.New(apperr.CodeInfraUnavailable, "object store is not configured")
	}

	internalClient, err := newClient(cfg, cfg.Endpoint)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	presignSource := internalClient
	if cfg.PublicEndpoint != "" {
		publicClient, err := newClient(cfg, cfg.PublicEndpoint)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		presignSource = publicClient
	}

	return &Store{
		bucket:      cfg.Bucket,
		client:      internalClient,
		presign:     s3.NewPresignClient(presignSource),
		defaultTTLS: cfg.PresignExpireS,
	}, nil
}

func newClient(cfg common.ObjectStoreConfig, endpoint string) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true // MinIO and most self-hosted endpoints need path-style addressing
	}), nil
}

// Put uploads data under key with the given content type, overwriting any
// existing object at that key.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return apperr.InfraUnavailable(fmt.Errorf("put object %s: %w", key, err))
	}
	return nil
}

// Get downloads the bytes stored at key, used by the upscale handler (C8)
// to read back its preceding generate step's artifacts.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, apperr.InfraUnavailable(fmt.Errorf("get object %s: %w", key, err))
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("read object %s: %w", key, err))
	}
	return data, nil
}

// PresignGet returns a time-limited GET URL for key. ttl<=0 falls back to
// the configured default.
func (s *Store) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = time.Duration(s.defaultTTLS) * time.Second
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", apperr.InfraUnavailable(fmt.Errorf("presign %s: %w", key, err))
	}
	return req.URL, nil
}

// Ping verifies the bucket is reachable, used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return apperr.InfraUnavailable(fmt.Errorf("head bucket: %w", err))
	}
	return nil
}
