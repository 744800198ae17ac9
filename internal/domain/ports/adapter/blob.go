package adapter

import (
	"context"
	"io"
)

// BlobStore persists uploaded residence proofs.
type BlobStore interface {
	// Put stores body under name and returns a stable reference.
	Put(ctx context.Context, name, contentType string, body io.Reader) (ref string, err error)
	// Delete removes a previously stored object. Missing objects are not an error.
	Delete(ctx context.Context, ref string) error
}
