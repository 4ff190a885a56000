package service

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/gabriel-vasile/mimetype"
	"github.com/vadimbarashkov/image-tracker/internal/idgen"
	"github.com/vadimbarashkov/image-tracker/internal/models"
)

const octetStream = "application/octet-stream"

// ObjectStore is the storage gateway for uploaded images.
type ObjectStore interface {
	// Put stores body under key.
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) error

	// PublicURL returns the URL under which key can be fetched.
	PublicURL(key string) string
}

// ImageService stores uploaded images and reports their public URL.
type ImageService struct {
	store ObjectStore
}

func NewImageService(store ObjectStore) *ImageService {
	return &ImageService{store: store}
}

// Upload stores data under a key derived from filename and returns its public URL.
// When contentType is empty or generic it is detected from the data.
func (s *ImageService) Upload(ctx context.Context, filename, contentType string, data []byte) (*models.UploadedImage, error) {
	const op = "service.ImageService.Upload"

	if len(data) == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptyFile)
	}

	id, err := idgen.New(idgen.FileIDLength)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to generate file id: %w", op, err)
	}

	if contentType == "" || contentType == octetStream {
		contentType = mimetype.Detect(data).String()
	}

	key := objectKey(id, filename)

	if err := s.store.Put(ctx, key, contentType, bytes.NewReader(data), int64(len(data))); err != nil {
		return nil, fmt.Errorf("%s: failed to store image: %w", op, err)
	}

	return &models.UploadedImage{
		Key: key,
		URL: s.store.PublicURL(key),
	}, nil
}
