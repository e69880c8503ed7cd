package blob

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"mltrain/internal/apperrors"
)

// FS is a filesystem-backed blob store rooted at a single directory.
// Blob names are reduced to their base name so callers cannot escape the root.
type FS struct {
	root string
}

// NewFS creates the root directory if needed and returns a store over it.
func NewFS(root string) (*FS, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, apperrors.Unavailable("blob.init", err)
	}
	return &FS{root: root}, nil
}

// Root returns the directory blobs are stored under.
func (f *FS) Root() string {
	return f.root
}

func (f *FS) path(name string) string {
	return filepath.Join(f.root, filepath.Base(name))
}

// Put writes a blob atomically: data lands in a temp file first and is
// renamed into place, so readers never observe a partial write.
func (f *FS) Put(ctx context.Context, name string, r io.Reader) error {
	tmp, err := os.CreateTemp(f.root, ".upload-*")
	if err != nil {
		return apperrors.Unavailable("blob.put", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return apperrors.Unavailable("blob.put", err)
	}
	if err := tmp.Close(); err != nil {
		return apperrors.Unavailable("blob.put", err)
	}
	if err := os.Rename(tmp.Name(), f.path(name)); err != nil {
		return apperrors.Unavailable("blob.put", err)
	}
	return nil
}

// Open returns a reader for a blob and its size.
func (f *FS) Open(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	file, err := os.Open(f.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, 0, apperrors.NotFound("blob", name)
	}
	if err != nil {
		return nil, 0, apperrors.Unavailable("blob.open", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, 0, apperrors.Unavailable("blob.open", err)
	}
	return file, info.Size(), nil
}

// Ping verifies the root directory is still writable.
func (f *FS) Ping(ctx context.Context) error {
	info, err := os.Stat(f.root)
	if err != nil {
		return apperrors.Unavailable("blob.ping", err)
	}
	if !info.IsDir() {
		return apperrors.Unavailable("blob.ping", errors.New(f.root+" is not a directory"))
	}
	return nil
}

// Verify FS implements Store
var _ Store = (*FS)(nil)
