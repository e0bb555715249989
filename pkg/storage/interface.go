package storage

import (
	"context"
	"io"
	"time"
)

// Storage définit l'interface pour le stockage de fichiers
type Storage interface {
	// Upload un fichier vers le storage
	Upload(ctx context.Context, path string, data io.Reader) error

	// Exists vérifie si un fichier existe
	Exists(ctx context.Context, path string) (bool, error)

	// Delete supprime un fichier
	Delete(ctx context.Context, path string) error

	// GetURL retourne une URL externe permettant de lire le fichier
	GetURL(ctx context.Context, path string) (string, error)
}

// StorageConfig contient la configuration du storage
type StorageConfig struct {
	Type          string // "filesystem", "garage" ou "minio"
	BasePath      string // Pour filesystem
	PublicBaseURL string // Pour filesystem, préfixe des URLs servies
	Endpoint      string // Pour S3/Garage/MinIO
	AccessKey     string
	SecretKey     string
	Bucket        string
	Region        string
	UseSSL        bool
	URLExpiry     time.Duration
}
