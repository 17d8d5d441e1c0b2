package internal

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Storage persists resized renditions.
type Storage interface {
	Exists(ctx context.Context, path string) (bool, error)
	Delete(ctx context.Context, path string) error
	Write(ctx context.Context, path string, data []byte) error
}

func NewLocalStorage(log *StdLog) *LocalStorage {
	return &LocalStorage{log: log, perm: 0o644}
}

type LocalStorage struct {
	log  *StdLog
	perm os.FileMode
}

func (s *LocalStorage) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (s *LocalStorage) Delete(_ context.Context, path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	s.log.Debug("Removed %s", path)
	return nil
}

// Write stores data through a temporary file in the same directory so
// readers never observe a partially written image.
func (s *LocalStorage) Write(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.tmp", uuid.New()))
	if err := os.WriteFile(tmp, data, s.perm); err != nil {
		return fmt.Errorf("write temporary file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		if rmErr := os.Remove(tmp); rmErr != nil {
			s.log.Error("error clean up file delete: %v", rmErr)
		}
		return fmt.Errorf("rename into place: %w", err)
	}
	s.log.Debug("Saved %s (%d bytes)", path, len(data))
	return nil
}
