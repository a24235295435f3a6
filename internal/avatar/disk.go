package avatar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dvloznov/finance-admin/internal/domain"
)

// DiskStore keeps avatars as files in a local directory.
type DiskStore struct {
	dir string
}

// NewDiskStore creates the directory if needed and returns a store rooted there.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("NewDiskStore: creating %s: %w", dir, err)
	}
	return &DiskStore{dir: dir}, nil
}

// Save writes data to a temp file and renames it into place, so readers never
// see a partial avatar.
func (s *DiskStore) Save(ctx context.Context, name string, data []byte) error {
	if !ValidKey(name) {
		return fmt.Errorf("DiskStore.Save: invalid avatar name %q", name)
	}

	tmp, err := os.CreateTemp(s.dir, ".avatar-*")
	if err != nil {
		return fmt.Errorf("DiskStore.Save: creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("DiskStore.Save: writing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("DiskStore.Save: closing %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("DiskStore.Save: renaming %s: %w", name, err)
	}
	return nil
}

// Open returns the stored file.
func (s *DiskStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if !ValidKey(name) {
		return nil, &domain.NotFoundError{Kind: "avatar", ID: name}
	}
	f, err := os.Open(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &domain.NotFoundError{Kind: "avatar", ID: name}
	}
	if err != nil {
		return nil, fmt.Errorf("DiskStore.Open: %w", err)
	}
	return f, nil
}

var _ Store = (*DiskStore)(nil)
