package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"reparaturbonus/internal/domain"
	"reparaturbonus/internal/domain/ports/adapter"
)

var _ adapter.BlobStore = (*SealedStore)(nil)

type sealer interface {
	Seal(plaintext []byte) ([]byte, error)
}

// SealedStore encrypts proofs before they reach the local store. Objects are
// buffered in memory, so maxBytes must match the upload limit.
type SealedStore struct {
	inner    *LocalStore
	cipher   sealer
	maxBytes int64
}

func NewSealedStore(inner *LocalStore, c sealer, maxBytes int64) *SealedStore {
	return &SealedStore{inner: inner, cipher: c, maxBytes: maxBytes}
}

func (s *SealedStore) Put(ctx context.Context, name, contentType string, body io.Reader) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	plain, err := io.ReadAll(io.LimitReader(readerWithContext(ctx, body), s.maxBytes+1))
	if err != nil {
		return "", err
	}
	if int64(len(plain)) > s.maxBytes {
		return "", domain.ErrEvidenceTooLarge
	}
	sealed, err := s.cipher.Seal(plain)
	if err != nil {
		return "", fmt.Errorf("seal proof: %w", err)
	}
	return s.inner.Put(ctx, name, contentType, bytes.NewReader(sealed))
}

func (s *SealedStore) Delete(ctx context.Context, ref string) error {
	return s.inner.Delete(ctx, ref)
}
