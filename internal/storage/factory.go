package storage

import (
	"fmt"

	"github.com/tranduckhuy/eduva-backend-sub005/internal/storage/filesystem"
	"github.com/tranduckhuy/eduva-backend-sub005/internal/storage/garage"
	"github.com/tranduckhuy/eduva-backend-sub005/internal/storage/minio"
	"github.com/tranduckhuy/eduva-backend-sub005/pkg/storage"
)

// NewStorage crée une nouvelle instance de storage basée sur la configuration
func NewStorage(config *storage.StorageConfig) (storage.Storage, error) {
	switch config.Type {
	case "filesystem":
		return filesystem.NewFilesystemStorage(config.BasePath, config.PublicBaseURL)
	case "garage":
		return garage.NewGarageStorage(config)
	case "minio":
		return minio.NewMinioStorage(config)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", config.Type)
	}
}
