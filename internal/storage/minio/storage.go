package minio

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/tranduckhuy/eduva-backend-sub005/internal/storage/garage"
	"github.com/tranduckhuy/eduva-backend-sub005/pkg/storage"
)

const maxPresignExpiry = 7 * 24 * time.Hour

type minioStorage struct {
	client    *minio.Client
	bucket    string
	urlExpiry time.Duration
}

// NewMinioStorage builds a storage backend on the MinIO client. Endpoint is a
// host[:port] without scheme; UseSSL selects https.
func NewMinioStorage(cfg *storage.StorageConfig) (storage.Storage, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}

	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	expiry := cfg.URLExpiry
	if expiry <= 0 || expiry > maxPresignExpiry {
		expiry = maxPresignExpiry
	}

	s := &minioStorage{client: client, bucket: cfg.Bucket, urlExpiry: expiry}
	if err := s.ensureBucket(context.Background(), cfg.Region); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *minioStorage) ensureBucket(ctx context.Context, region string) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("bucket %s does not exist and cannot be created: %w", s.bucket, err)
	}
	return nil
}

func (s *minioStorage) Upload(ctx context.Context, path string, data io.Reader) error {
	key := strings.TrimPrefix(path, "/")
	_, err := s.client.PutObject(ctx, s.bucket, key, data, -1, minio.PutObjectOptions{
		ContentType: garage.ContentType(key),
	})
	if err != nil {
		return fmt.Errorf("minio put object %s: %w", key, err)
	}
	return nil
}

func (s *minioStorage) Exists(ctx context.Context, path string) (bool, error) {
	key := strings.TrimPrefix(path, "/")
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, fmt.Errorf("minio stat object %s: %w", key, err)
	}
	return true, nil
}

func (s *minioStorage) Delete(ctx context.Context, path string) error {
	key := strings.TrimPrefix(path, "/")
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("minio remove object %s: %w", key, err)
	}
	return nil
}

func (s *minioStorage) GetURL(ctx context.Context, path string) (string, error) {
	key := strings.TrimPrefix(path, "/")
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.urlExpiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presigned get object %s: %w", key, err)
	}
	return u.String(), nil
}
