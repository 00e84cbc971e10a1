// Package imagestore keeps listing photos on local disk.
package imagestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrTooLarge        = errors.New("image too large")
	ErrEmpty           = errors.New("empty image")
)

var allowed = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

type Store interface {
	Store(ctx context.Context, data []byte) (string, error)
}

type Local struct {
	dir      string
	baseURL  string
	maxBytes int64
}

func NewLocal(dir, baseURL string, maxBytes int64) (*Local, error) {
	const op = "imagestore.NewLocal"

	if maxBytes <= 0 {
		maxBytes = 5 << 20
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &Local{dir: dir, baseURL: strings.TrimRight(baseURL, "/"), maxBytes: maxBytes}, nil
}

// Detect returns the content type of data when it is an accepted image.
func (l *Local) Detect(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmpty
	}
	if int64(len(data)) > l.maxBytes {
		return "", fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, len(data), l.maxBytes)
	}

	mt := mimetype.Detect(data)
	for ct := range allowed {
		if mt.Is(ct) {
			return ct, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrUnsupportedType, mt.String())
}

// Store writes data under a random name and returns its public URL.
func (l *Local) Store(ctx context.Context, data []byte) (string, error) {
	const op = "imagestore.Local.Store"

	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%s:%w", op, err)
	}

	ct, err := l.Detect(data)
	if err != nil {
		return "", fmt.Errorf("%s:%w", op, err)
	}

	name := uuid.NewString() + allowed[ct]
	tmp := filepath.Join(l.dir, "."+name+".tmp")

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("%s:%w", op, err)
	}
	if err := os.Rename(tmp, filepath.Join(l.dir, name)); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("%s:%w", op, err)
	}

	return l.baseURL + "/" + name, nil
}

func (l *Local) Dir() string { return l.dir }
