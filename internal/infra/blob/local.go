package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"reparaturbonus/internal/domain"
	"reparaturbonus/internal/domain/ports/adapter"
)

var _ adapter.BlobStore = (*LocalStore)(nil)

// LocalStore writes residence proofs below a single directory. Refs are the
// file names relative to that directory.
type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

// Put never overwrites: an existing name gets a numeric suffix.
func (s *LocalStore) Put(ctx context.Context, name, contentType string, body io.Reader) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	var (
		f   *os.File
		ref string
		err error
	)
	for i := 0; i < 100; i++ {
		ref = name
		if i > 0 {
			ref = fmt.Sprintf("%s-%d", name, i)
		}
		f, err = os.OpenFile(filepath.Join(s.dir, ref), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
		if !errors.Is(err, fs.ErrExist) {
			break
		}
	}
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(f, readerWithContext(ctx, body)); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return ref, nil
}

func (s *LocalStore) Delete(ctx context.Context, ref string) error {
	if err := checkName(ref); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.dir, ref))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: blob name %q", domain.ErrInvalidArgument, name)
	}
	return nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader { return &ctxReader{ctx: ctx, r: r} }

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
