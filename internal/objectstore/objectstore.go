package objectstore

import (
	"context"
	"time"
)

// ObjectStore is what the step handlers (C7/C8) and the read API (C10) need
// from the object-store adapter (C2). *Store backs it against S3/MinIO;
// *Memory backs it in-process for eager-mode tests.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	Ping(ctx context.Context) error
}
