package storage

import (
	"context"
	"io"
)

// Service stores user avatars in remote object storage. The returned URL is
// opaque to the rest of the system; the store owns its layout.
type Service interface {
	UploadAvatar(ctx context.Context, key, contentType string, body io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
}
