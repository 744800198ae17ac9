//go:build !integration

package blob

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reparaturbonus/internal/domain"
	"reparaturbonus/internal/infra/security"
)

func TestSealedStore(t *testing.T) {
	ctx := context.Background()
	c, err := security.NewCipher("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	t.Run("stores ciphertext that decrypts to the proof", func(t *testing.T) {
		local, _ := NewLocalStore(t.TempDir())
		store := NewSealedStore(local, c, 1024)

		ref, err := store.Put(ctx, "AB12CD34_1_scan.pdf", "application/pdf", strings.NewReader("%PDF residence"))
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		raw, err := os.ReadFile(filepath.Join(local.dir, ref))
		if err != nil {
			t.Fatalf("read stored proof: %v", err)
		}
		if bytes.Contains(raw, []byte("residence")) {
			t.Error("expected the file on disk to be encrypted")
		}
		got, err := c.Open(raw)
		if err != nil || string(got) != "%PDF residence" {
			t.Errorf("expected decrypted proof, got %q (%v)", got, err)
		}

		if err := store.Delete(ctx, ref); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := os.Stat(filepath.Join(local.dir, ref)); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("expected file to be gone, got %v", err)
		}
	})

	t.Run("suffixed refs still decrypt", func(t *testing.T) {
		local := mustLocal(t)
		store := NewSealedStore(local, c, 1024)
		first, _ := store.Put(ctx, "same.pdf", "", strings.NewReader("one"))
		second, err := store.Put(ctx, "same.pdf", "", strings.NewReader("two"))
		if err != nil || first == second {
			t.Fatalf("expected distinct refs, got %q %q (%v)", first, second, err)
		}
		raw, _ := os.ReadFile(filepath.Join(local.dir, second))
		if got, _ := c.Open(raw); string(got) != "two" {
			t.Errorf("expected second object, got %q", got)
		}
	})

	t.Run("enforces the size bound", func(t *testing.T) {
		store := NewSealedStore(mustLocal(t), c, 8)
		if _, err := store.Put(ctx, "big.pdf", "", strings.NewReader("123456789")); !errors.Is(err, domain.ErrEvidenceTooLarge) {
			t.Errorf("expected ErrEvidenceTooLarge, got %v", err)
		}
		if _, err := store.Put(ctx, "../x", "", strings.NewReader("1")); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func mustLocal(t *testing.T) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	return s
}
