package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tranduckhuy/eduva-backend-sub005/pkg/storage"
)

// TempPrefix is where submitted source files live until the worker consumes them.
const TempPrefix = "temp"

// SourceFile is one file received at submission. Open is called once, from
// the upload goroutine.
type SourceFile struct {
	Filename string
	Open     func() (io.ReadCloser, error)
}

type StorageService struct {
	storage storage.Storage
	timeout time.Duration
	logger  zerolog.Logger
}

// NewStorageService wraps a backend. timeout bounds every outbound call; zero
// disables the bound.
func NewStorageService(backend storage.Storage, timeout time.Duration, logger zerolog.Logger) *StorageService {
	return &StorageService{
		storage: backend,
		timeout: timeout,
		logger:  logger.With().Str("component", "storage").Logger(),
	}
}

func (s *StorageService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// NewTempBlobName returns a fresh random blob name keeping the lower-cased
// extension of the original filename.
func NewTempBlobName(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return fmt.Sprintf("%s/%s%s", TempPrefix, uuid.NewString(), ext)
}

// UploadSources uploads every file concurrently and returns the blob names in
// input order. If any upload fails, blobs that did make it are removed and
// the first error is returned.
func (s *StorageService) UploadSources(ctx context.Context, files []SourceFile) ([]string, error) {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = NewTempBlobName(f.Filename)
	}
	uploaded := make([]bool, len(files))

	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			if err := s.uploadOne(gctx, names[i], f); err != nil {
				return err
			}
			uploaded[i] = true
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		var done []string
		for i, ok := range uploaded {
			if ok {
				done = append(done, names[i])
			}
		}
		s.DeleteBlobs(context.WithoutCancel(ctx), done)
		return nil, err
	}

	return names, nil
}

func (s *StorageService) uploadOne(ctx context.Context, blobName string, f SourceFile) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", f.Filename, err)
	}
	defer rc.Close()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.storage.Upload(ctx, blobName, rc); err != nil {
		return fmt.Errorf("failed to upload file %s: %w", f.Filename, err)
	}
	return nil
}

// DeleteBlobs removes blobs best-effort; failures are only logged.
func (s *StorageService) DeleteBlobs(ctx context.Context, blobNames []string) {
	for _, name := range blobNames {
		dctx, cancel := s.withTimeout(ctx)
		if err := s.storage.Delete(dctx, name); err != nil {
			s.logger.Warn().Err(err).Str("blob", name).Msg("failed to delete blob")
		}
		cancel()
	}
}

// CanonicalBlobName normalizes a worker-supplied blob reference.
func CanonicalBlobName(blobName string) (string, error) {
	name := strings.TrimSpace(blobName)
	name = strings.TrimLeft(name, "/")
	if name == "" {
		return "", fmt.Errorf("empty blob name")
	}
	for _, segment := range strings.Split(name, "/") {
		if segment == ".." {
			return "", fmt.Errorf("path traversal not allowed: %s", blobName)
		}
	}
	return path.Clean(name), nil
}

// ResolveURL returns the canonical blob name and an externally fetchable URL.
func (s *StorageService) ResolveURL(ctx context.Context, blobName string) (string, string, error) {
	canonical, err := CanonicalBlobName(blobName)
	if err != nil {
		return "", "", err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	url, err := s.storage.GetURL(ctx, canonical)
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve url for %s: %w", canonical, err)
	}
	return canonical, url, nil
}
