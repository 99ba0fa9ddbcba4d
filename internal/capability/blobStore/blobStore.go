package blobStore

import (
	"context"
	"time"
)

// Gateway is the storage capability: durable byte storage plus expiring
// download URLs. The pipeline only ever holds opaque references.
type Gateway interface {
	Put(ctx context.Context, data []byte, contentType string) (ref string, err error)
	Get(ctx context.Context, ref string) ([]byte, error)
	SignedURL(ref string, ttl time.Duration) (string, error)
	Delete(ref string) error
}
