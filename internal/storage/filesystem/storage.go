package filesystem

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/tranduckhuy/eduva-backend-sub005/pkg/storage"
)

type filesystemStorage struct {
	basePath      string
	publicBaseURL string
}

// NewFilesystemStorage crée une nouvelle instance de storage filesystem.
// publicBaseURL is the prefix under which basePath is served to clients.
func NewFilesystemStorage(basePath, publicBaseURL string) (storage.Storage, error) {
	// Créer le répertoire de base s'il n'existe pas
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory %s: %w", basePath, err)
	}

	return &filesystemStorage{
		basePath:      basePath,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
	}, nil
}

func (fs *filesystemStorage) resolve(p string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(p))
	if clean == string(filepath.Separator) {
		return "", fmt.Errorf("invalid path: %q", p)
	}
	return filepath.Join(fs.basePath, clean), nil
}

func (fs *filesystemStorage) Upload(ctx context.Context, path string, data io.Reader) error {
	fullPath, err := fs.resolve(path)
	if err != nil {
		return err
	}

	// Créer les répertoires parents si nécessaire
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directories for %s: %w", fullPath, err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", fullPath, err)
	}
	defer file.Close()

	if _, err := io.Copy(file, &contextReader{ctx: ctx, r: data}); err != nil {
		os.Remove(fullPath)
		return fmt.Errorf("failed to write data to %s: %w", fullPath, err)
	}

	return nil
}

func (fs *filesystemStorage) Exists(ctx context.Context, path string) (bool, error) {
	fullPath, err := fs.resolve(path)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check file existence %s: %w", fullPath, err)
	}

	return true, nil
}

func (fs *filesystemStorage) Delete(ctx context.Context, path string) error {
	fullPath, err := fs.resolve(path)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return nil // Already deleted, no error
		}
		return fmt.Errorf("failed to delete file %s: %w", fullPath, err)
	}

	return nil
}

func (fs *filesystemStorage) GetURL(ctx context.Context, p string) (string, error) {
	exists, err := fs.Exists(ctx, p)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("file not found: %s", p)
	}

	key := strings.TrimPrefix(path.Clean("/"+filepath.ToSlash(p)), "/")
	if fs.publicBaseURL == "" {
		return "/" + key, nil
	}
	return fs.publicBaseURL + "/" + (&url.URL{Path: key}).EscapedPath(), nil
}

// contextReader stops a copy as soon as the context is cancelled.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
