// Package localfs stores objects on the local filesystem for development.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"

	"splitpay/internal/infrastructure/storage"
)

type Store struct {
	root string
}

func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	return &Store{root: root}, nil
}

func (s *Store) path(key string) (string, error) {
	if !storage.ValidKey(key) {
		return "", storage.ErrInvalidKey
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

func (s *Store) Put(ctx context.Context, key, contentType string, body io.Reader) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return fmt.Errorf("failed to create object dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create object: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write object: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("failed to store object: %w", err)
	}
	return nil
}

func (s *Store) Open(ctx context.Context, key string) (*storage.Object, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, storage.ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open object: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat object: %w", err)
	}

	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return &storage.Object{Body: f, ContentType: contentType, Size: info.Size()}, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}
