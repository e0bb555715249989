package jobs

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/tranduckhuy/eduva-backend-sub005/internal/storage"
	"github.com/tranduckhuy/eduva-backend-sub005/pkg/models"
)

// SubmitResult is returned to the submitting user.
type SubmitResult struct {
	JobID  uuid.UUID        `json:"jobId"`
	Status models.JobStatus `json:"status"`
}

type SubmissionService struct {
	deps   Dependencies
	tracer trace.Tracer
}

func NewSubmissionService(deps Dependencies) *SubmissionService {
	deps.Logger = deps.Logger.With().Str("component", "submission").Logger()
	return &SubmissionService{
		deps:   deps,
		tracer: otel.Tracer("eduva-ai/jobs"),
	}
}

// Submit uploads the sources, records the job and requests content
// generation. Nothing is persisted unless every upload succeeded.
func (s *SubmissionService) Submit(ctx context.Context, userID string, files []storage.SourceFile, topic string) (*SubmitResult, error) {
	ctx, span := s.tracer.Start(ctx, "SubmissionService.Submit")
	defer span.End()
	started := time.Now()
	defer func() { s.deps.Metrics.ObserveOperation("submit", time.Since(started).Seconds()) }()

	topic = strings.TrimSpace(topic)
	if err := validateSubmission(userID, files, topic); err != nil {
		return nil, err
	}

	blobNames, err := s.deps.Blobs.UploadSources(ctx, files)
	if err != nil {
		span.RecordError(err)
		s.deps.Logger.Error().Err(err).Str("user_id", userID).Int("files", len(files)).Msg("source upload failed")
		return nil, wrapError(KindUpstream, CodeUploadFailed, "failed to upload source files", err)
	}

	now := s.deps.now()
	job := &models.Job{
		ID:              uuid.New(),
		UserID:          userID,
		Status:          models.StatusProcessing,
		Topic:           topic,
		SourceBlobNames: models.StringSlice(blobNames),
		VoiceConfig:     models.JSON{},
		DispatchedAt:    now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	// The row must exist before any worker can see a message about it.
	err = s.deps.Store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Jobs().Create(ctx, job)
	})
	if err != nil {
		span.RecordError(err)
		s.deps.Blobs.DeleteBlobs(context.WithoutCancel(ctx), blobNames)
		s.deps.Logger.Error().Err(err).Str("user_id", userID).Msg("failed to persist job")
		return nil, wrapError(KindInternal, CodeInternal, "failed to create job", err)
	}
	s.deps.Metrics.JobSubmitted()

	s.publish(ctx, job)

	s.deps.Logger.Info().
		Str("job_id", job.ID.String()).
		Str("user_id", userID).
		Int("sources", len(blobNames)).
		Msg("job submitted")

	return &SubmitResult{JobID: job.ID, Status: job.Status}, nil
}

// publish runs past the commit point: a failure leaves the job in Processing
// for the reconciliation sweep to re-dispatch.
func (s *SubmissionService) publish(ctx context.Context, job *models.Job) {
	pctx, cancel := detached(ctx, s.deps.PublishTimeout)
	defer cancel()

	if err := s.deps.Publisher.Publish(pctx, models.TaskGenerateContent, generateContentMessage(job)); err != nil {
		s.deps.Metrics.PublishFailed(string(models.TaskGenerateContent))
		s.deps.Logger.Error().Err(err).
			Str("job_id", job.ID.String()).
			Msg("failed to publish generate content request, left for reconciliation")
	}
}

func validateSubmission(userID string, files []storage.SourceFile, topic string) error {
	switch {
	case userID == "":
		return newError(KindValidation, CodeInvalidInput, "user id is required")
	case len(files) == 0:
		return newError(KindValidation, CodeInvalidInput, "at least one source file is required")
	case topic == "":
		return newError(KindValidation, CodeInvalidInput, "topic is required")
	case utf8.RuneCountInString(topic) > models.MaxTopicLength:
		return newError(KindValidation, CodeInvalidInput, "topic is too long").
			WithContext("max_length", models.MaxTopicLength)
	}
	for _, f := range files {
		if f.Open == nil {
			return newError(KindValidation, CodeInvalidInput, "source file has no content").
				WithContext("filename", f.Filename)
		}
	}
	return nil
}
