package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tranduckhuy/eduva-backend-sub005/internal/metrics"
	"github.com/tranduckhuy/eduva-backend-sub005/internal/storage"
	"github.com/tranduckhuy/eduva-backend-sub005/pkg/models"
)

// JobService is the public operation surface of the pipeline.
type JobService interface {
	SubmitJob(ctx context.Context, userID string, files []storage.SourceFile, topic string) (*SubmitResult, error)
	ReportProgress(ctx context.Context, report models.ProgressReport) error
	ConfirmJob(ctx context.Context, req ConfirmRequest) error
	GetJob(ctx context.Context, userID string, id uuid.UUID) (*models.Job, error)
}

// Publisher sends a work message to the queue of its task type.
type Publisher interface {
	Publish(ctx context.Context, task models.TaskType, message any) error
}

// Notifier pushes an event to a user's live connections.
type Notifier interface {
	NotifyUser(ctx context.Context, userID string, event models.Event) error
}

// BlobStore is the storage collaborator.
type BlobStore interface {
	UploadSources(ctx context.Context, files []storage.SourceFile) ([]string, error)
	ResolveURL(ctx context.Context, blobName string) (canonical string, url string, err error)
	DeleteBlobs(ctx context.Context, blobNames []string)
}

// Dependencies wires the collaborators shared by the pipeline services.
type Dependencies struct {
	Store     Store
	Blobs     BlobStore
	Publisher Publisher
	Notifier  Notifier
	Metrics   *metrics.Pipeline
	Logger    zerolog.Logger

	// PublishTimeout bounds broker calls made after a commit.
	PublishTimeout time.Duration
	// NotifyTimeout bounds a single live notification.
	NotifyTimeout time.Duration
	// Now defaults to time.Now in UTC.
	Now func() time.Time
}

func (d Dependencies) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UTC()
}

// detached returns a context that survives caller cancellation, bounded by
// timeout. Work past a commit point runs on it.
func detached(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// notifyJob sends the status event for job. Failures are logged and counted,
// never returned.
func (d Dependencies) notifyJob(ctx context.Context, job *models.Job) {
	if d.Notifier == nil {
		return
	}
	nctx, cancel := detached(ctx, d.NotifyTimeout)
	defer cancel()

	if err := d.Notifier.NotifyUser(nctx, job.UserID, models.NewJobStatusUpdated(job)); err != nil {
		d.Metrics.NotificationFailed()
		d.Logger.Warn().Err(err).
			Str("job_id", job.ID.String()).
			Str("user_id", job.UserID).
			Str("status", string(job.Status)).
			Msg("failed to notify user")
	}
}

type jobService struct {
	*SubmissionService
	*ProgressHandler
	*ConfirmationService
	store Store
}

// NewJobService assembles the three pipeline steps behind JobService.
func NewJobService(deps Dependencies) JobService {
	return &jobService{
		SubmissionService:   NewSubmissionService(deps),
		ProgressHandler:     NewProgressHandler(deps, NewPricingResolver()),
		ConfirmationService: NewConfirmationService(deps),
		store:               deps.Store,
	}
}

func (s *jobService) SubmitJob(ctx context.Context, userID string, files []storage.SourceFile, topic string) (*SubmitResult, error) {
	return s.SubmissionService.Submit(ctx, userID, files, topic)
}

func (s *jobService) ReportProgress(ctx context.Context, report models.ProgressReport) error {
	return s.ProgressHandler.Report(ctx, report)
}

func (s *jobService) ConfirmJob(ctx context.Context, req ConfirmRequest) error {
	return s.ConfirmationService.Confirm(ctx, req)
}

// GetJob returns a job owned by userID. Jobs of other users are reported as
// not found.
func (s *jobService) GetJob(ctx context.Context, userID string, id uuid.UUID) (*models.Job, error) {
	var job *models.Job
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		found, err := tx.Jobs().GetByID(ctx, id)
		if err != nil {
			return err
		}
		job = found
		return nil
	})
	if err != nil {
		return nil, lookupError(id, err)
	}
	if job.UserID != userID {
		return nil, lookupError(id, ErrRecordNotFound)
	}
	return job, nil
}

func lookupError(id uuid.UUID, err error) error {
	if errors.Is(err, ErrRecordNotFound) {
		return newError(KindNotFound, CodeJobNotFound, "job not found").WithContext("job_id", id.String())
	}
	if _, ok := AsError(err); ok {
		return err
	}
	return wrapError(KindInternal, CodeInternal, "failed to load job", err).WithContext("job_id", id.String())
}
