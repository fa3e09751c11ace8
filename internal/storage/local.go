package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rongwang/land-rental-server/internal/apperror"
)

const stagingDir = ".staging"

// LocalStorage keeps files on disk. A public path /storage/uploads/x is
// stored at Root/storage/uploads/x; staged files wait in Root/.staging,
// outside the served tree.
type LocalStorage struct {
	Root string
}

// NewLocalStorage creates a filesystem backend rooted at root
func NewLocalStorage(root string) *LocalStorage {
	return &LocalStorage{Root: root}
}

func (s *LocalStorage) diskPath(publicPath string) string {
	return filepath.Join(s.Root, filepath.FromSlash(publicPath))
}

func (s *LocalStorage) Stage(_ context.Context, category, name, contentType string, data []byte) (*Staged, error) {
	if err := checkName(category, name); err != nil {
		return nil, err
	}

	dir := filepath.Join(s.Root, stagingDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperror.Storage(err, "could not create staging directory")
	}

	stagingKey := filepath.Join(dir, name)
	if err := os.WriteFile(stagingKey, data, 0o644); err != nil {
		return nil, apperror.Storage(err, "could not stage %s", name)
	}

	return &Staged{
		Category:    category,
		Name:        name,
		Path:        PublicPath(category, name),
		ContentType: contentType,
		stagingKey:  stagingKey,
	}, nil
}

func (s *LocalStorage) Promote(_ context.Context, staged *Staged) error {
	final := s.diskPath(staged.Path)
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return apperror.Storage(err, "could not create %s directory", staged.Category)
	}
	if err := os.Rename(staged.stagingKey, final); err != nil {
		return apperror.Storage(err, "could not promote %s", staged.Name)
	}
	return nil
}

func (s *LocalStorage) Discard(_ context.Context, staged *Staged) error {
	if staged == nil {
		return nil
	}
	if err := os.Remove(staged.stagingKey); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apperror.Storage(err, "could not discard %s", staged.Name)
	}
	return nil
}

func (s *LocalStorage) Delete(_ context.Context, publicPath string) error {
	clean, err := CheckPublicPath(publicPath)
	if err != nil {
		return err
	}
	if err := os.Remove(s.diskPath(clean)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apperror.Storage(err, "could not delete %s", clean)
	}
	return nil
}
