// Package factory builds a storage.Backend from server configuration.
package factory

import (
	"context"
	"fmt"

	"github.com/fruitsalade/cloudstore/internal/config"
	"github.com/fruitsalade/cloudstore/internal/storage"
	"github.com/fruitsalade/cloudstore/internal/storage/local"
	"github.com/fruitsalade/cloudstore/internal/storage/memory"
	s3backend "github.com/fruitsalade/cloudstore/internal/storage/s3"
)

// NewBackend creates the backend selected by cfg.StorageBackend.
func NewBackend(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	switch cfg.StorageBackend {
	case "s3":
		return s3backend.NewBackend(ctx, s3backend.Config{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
			PartSize:  cfg.S3UploadPartSize,
		})
	case "local":
		return local.New(local.Config{
			RootPath:   cfg.LocalStoragePath,
			CreateDirs: true,
		})
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.StorageBackend)
	}
}
