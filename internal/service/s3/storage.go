package s3

import (
	"context"
	"io"
)

// Storage - операции архива, которые использует конвейер записей
type Storage interface {
	UploadFile(ctx context.Context, key string, body io.ReadSeeker, size int64, contentType string) error
	Exists(ctx context.Context, key string) (bool, error)
	DeleteObject(ctx context.Context, key string) error
}

var _ Storage = (*Client)(nil)
