package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// FileStorage keeps one file per key in a directory. Entries never expire.
type FileStorage struct {
	cacheDir string
}

// NewFileStorage creates the cache directory if needed
func NewFileStorage(cacheDir string) (*FileStorage, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", cacheDir, err)
	}
	return &FileStorage{cacheDir: cacheDir}, nil
}

func (fileStorage *FileStorage) Kind() Kind {
	return KindFile
}

func (fileStorage *FileStorage) Key(date time.Time, currency string) string {
	return DeriveKey(KindFile, date, currency)
}

// Fetch reads the file stored under key
func (fileStorage *FileStorage) Fetch(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	payload, err := os.ReadFile(fileStorage.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, &StorageError{Backend: KindFile, Op: "fetch", Key: key, Err: err}
	}
	return payload, true, nil
}

// Store writes payload to a temporary file and renames it over key, so
// readers see either the old or the new payload.
func (fileStorage *FileStorage) Store(ctx context.Context, key string, payload []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := fileStorage.writeAtomically(key, payload); err != nil {
		return nil, &StorageError{Backend: KindFile, Op: "store", Key: key, Err: err}
	}
	return payload, nil
}

// Close is a no-op; files need no release
func (fileStorage *FileStorage) Close() error {
	return nil
}

func (fileStorage *FileStorage) writeAtomically(key string, payload []byte) error {
	temporaryFile, err := os.CreateTemp(fileStorage.cacheDir, ".tmp-"+filepath.Base(key)+"-*")
	if err != nil {
		return err
	}
	temporaryName := temporaryFile.Name()

	if _, err := temporaryFile.Write(payload); err != nil {
		temporaryFile.Close()
		os.Remove(temporaryName)
		return err
	}
	if err := temporaryFile.Close(); err != nil {
		os.Remove(temporaryName)
		return err
	}
	if err := os.Chmod(temporaryName, 0o644); err != nil {
		os.Remove(temporaryName)
		return err
	}
	if err := os.Rename(temporaryName, fileStorage.path(key)); err != nil {
		os.Remove(temporaryName)
		return err
	}
	return nil
}

// path keeps keys inside the cache directory
func (fileStorage *FileStorage) path(key string) string {
	return filepath.Join(fileStorage.cacheDir, filepath.Base(key))
}
