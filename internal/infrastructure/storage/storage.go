// Package storage defines the object store used for receipts and avatars.
package storage

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
)

// MaxObjectSize is the upload limit for receipts and avatars.
const MaxObjectSize = 5 << 20

var (
	ErrObjectNotFound  = errors.New("object not found")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrTooLarge        = errors.New("file exceeds 5 MiB")
	ErrInvalidKey      = errors.New("invalid object key")
)

var allowedTypes = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"image/gif":       ".gif",
	"application/pdf": ".pdf",
}

// ObjectStore is implemented by the GCS and local filesystem backends.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) error
	Open(ctx context.Context, key string) (*Object, error)
	Delete(ctx context.Context, key string) error
}

// Object is an opened stored object. Callers must close Body.
type Object struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

// Upload is a validated file ready to be stored.
type Upload struct {
	ContentType string
	Size        int64
	Body        io.Reader
}

// PrepareUpload checks the declared size and sniffs the content type from
// the first bytes of body. Only images and PDFs are accepted.
func PrepareUpload(body io.Reader, size int64) (*Upload, error) {
	if size > MaxObjectSize {
		return nil, ErrTooLarge
	}

	br := bufio.NewReaderSize(body, 512)
	head, err := br.Peek(512)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, err
	}
	if len(head) == 0 {
		return nil, ErrUnsupportedType
	}

	contentType, _, _ := strings.Cut(http.DetectContentType(head), ";")
	if _, ok := allowedTypes[contentType]; !ok {
		return nil, ErrUnsupportedType
	}

	return &Upload{
		ContentType: contentType,
		Size:        size,
		Body:        io.LimitReader(br, MaxObjectSize),
	}, nil
}

// NewKey returns a fresh key under prefix with an extension matching
// contentType, e.g. "receipts/<uuid>.pdf".
func NewKey(prefix, contentType string) string {
	return path.Join(prefix, uuid.NewString()+allowedTypes[contentType])
}

// ValidKey rejects keys that could escape the store root.
func ValidKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return false
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return false
		}
	}
	return true
}
