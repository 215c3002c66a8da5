// Package gcs stores objects in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"

	gcstorage "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"splitpay/internal/infrastructure/storage"
)

type Store struct {
	client *gcstorage.Client
	bucket string
}

// New creates a bucket-backed store. Credentials come from opts or the
// application default credentials.
func New(ctx context.Context, bucket string, opts ...option.ClientOption) (*Store, error) {
	client, err := gcstorage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &Store{client: client, bucket: bucket}, nil
}

func (s *Store) object(key string) (*gcstorage.ObjectHandle, error) {
	if !storage.ValidKey(key) {
		return nil, storage.ErrInvalidKey
	}
	return s.client.Bucket(s.bucket).Object(key), nil
}

func (s *Store) Put(ctx context.Context, key, contentType string, body io.Reader) error {
	obj, err := s.object(key)
	if err != nil {
		return err
	}

	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "private, max-age=0"

	if _, err := io.Copy(w, body); err != nil {
		w.Close()
		return fmt.Errorf("failed to upload object: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize object: %w", err)
	}
	return nil
}

func (s *Store) Open(ctx context.Context, key string) (*storage.Object, error) {
	obj, err := s.object(key)
	if err != nil {
		return nil, err
	}

	r, err := obj.NewReader(ctx)
	if errors.Is(err, gcstorage.ErrObjectNotExist) {
		return nil, storage.ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open object: %w", err)
	}

	return &storage.Object{
		Body:        r,
		ContentType: r.Attrs.ContentType,
		Size:        r.Attrs.Size,
	}, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	obj, err := s.object(key)
	if err != nil {
		return err
	}
	if err := obj.Delete(ctx); err != nil && !errors.Is(err, gcstorage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
