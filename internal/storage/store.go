// Package storage persists uploaded document files. Two backends exist: a
// local directory for single-node deployments and S3 for everything else.
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/paperpilot/paperpilot/internal/config"
)

// Store saves and serves raw uploaded files by key. Fetch returns a local
// filesystem path for the file (the PDF parser wants a seekable file) plus a
// cleanup func the caller must run when done with the path.
type Store interface {
	Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Fetch(ctx context.Context, key string) (path string, cleanup func(), err error)
	Delete(ctx context.Context, key string) error
}

// NewStore builds the backend named by cfg.StorageType.
func NewStore(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.StorageType {
	case "local":
		return NewLocalStore(cfg.UploadDir)
	case "s3":
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("storage type must be local or s3, got %q", cfg.StorageType)
	}
}
