package storage

import (
	"fmt"

	"printdesk/internal/config"
)

// NewStorage builds the storage backend named by configuration.
func NewStorage(cfg config.StorageConfig) (Storage, error) {
	switch cfg.Provider {
	case "local", "":
		basePath := cfg.LocalPath
		if basePath == "" {
			basePath = "./uploads"
		}
		return NewLocalStorage(basePath)

	case "s3":
		if cfg.Bucket == "" || cfg.Region == "" {
			return nil, fmt.Errorf("s3 storage requires a bucket and region")
		}
		return NewS3Storage(S3Config{
			Bucket:  cfg.Bucket,
			Region:  cfg.Region,
			BaseURL: cfg.BaseURL,
		})

	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.Provider)
	}
}
