package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tranduckhuy/eduva-backend-sub005/pkg/models"
)

// ProgressHandler applies worker progress reports to jobs.
type ProgressHandler struct {
	deps    Dependencies
	pricing *PricingResolver
	tracer  trace.Tracer
}

func NewProgressHandler(deps Dependencies, pricing *PricingResolver) *ProgressHandler {
	deps.Logger = deps.Logger.With().Str("component", "progress").Logger()
	if pricing == nil {
		pricing = NewPricingResolver()
	}
	return &ProgressHandler{
		deps:    deps,
		pricing: pricing,
		tracer:  otel.Tracer("eduva-ai/jobs"),
	}
}

// resolvedBlobs holds the storage lookups of one report, done before the
// transaction opens.
type resolvedBlobs struct {
	contentName *string
	contentURL  *string
	videoURL    *string
	audioURL    *string
}

// Report validates the transition carried by report, merges its present fields
// into the job, prices the content once generated and notifies the owner.
func (h *ProgressHandler) Report(ctx context.Context, report models.ProgressReport) error {
	ctx, span := h.tracer.Start(ctx, "ProgressHandler.Report", trace.WithAttributes(
		attribute.String("job.id", report.JobID.String()),
		attribute.String("job.status", string(report.Status)),
	))
	defer span.End()
	started := time.Now()
	defer func() { h.deps.Metrics.ObserveOperation("progress", time.Since(started).Seconds()) }()

	err := h.apply(ctx, report)
	if err != nil {
		span.RecordError(err)
		h.deps.Metrics.ProgressRejected(CodeOf(err))
	}
	return err
}

func (h *ProgressHandler) apply(ctx context.Context, report models.ProgressReport) error {
	if err := validateReport(report); err != nil {
		return err
	}

	current, err := h.load(ctx, report.JobID)
	if err != nil {
		return err
	}
	if !current.Status.CanReportTransition(report.Status) {
		return invalidTransition(current, report.Status)
	}

	blobs, err := h.resolveBlobs(ctx, report)
	if err != nil {
		return err
	}

	var updated *models.Job
	err = h.deps.Store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		job, err := tx.Jobs().GetByID(ctx, report.JobID)
		if err != nil {
			return lookupError(report.JobID, err)
		}
		if job.Status != current.Status {
			if !job.Status.CanReportTransition(report.Status) {
				return invalidTransition(job, report.Status)
			}
			return concurrentUpdate(job.ID)
		}

		previous := job.Status
		mergeReport(job, report, blobs)

		if report.Status == models.StatusContentGenerated && report.WordCount != nil {
			prices, err := h.pricing.ResolveAll(ctx, tx)
			if err != nil {
				return err
			}
			costs := ComputeCosts(*report.WordCount, prices)
			job.DurationMinutes = &costs.DurationMinutes
			job.AudioCost = &costs.Audio
			job.VideoCost = &costs.Video
		}
		now := h.deps.now()
		job.SetStatus(report.Status, now)
		// Un rapport appliqué prouve que le worker est vivant
		job.DispatchedAt = now
		job.DispatchAttempts = 0

		if err := ctx.Err(); err != nil {
			return err
		}
		saved, err := tx.Jobs().SaveIfStatus(ctx, job, previous)
		if err != nil {
			return wrapError(KindInternal, CodeInternal, "failed to save job", err).
				WithContext("job_id", job.ID.String())
		}
		if !saved {
			return concurrentUpdate(job.ID)
		}
		updated = job
		return nil
	})
	if err != nil {
		if _, ok := AsError(err); !ok {
			return wrapError(KindInternal, CodeInternal, "failed to apply progress report", err).
				WithContext("job_id", report.JobID.String())
		}
		return err
	}

	h.deps.Metrics.ProgressApplied(string(updated.Status))
	logEvent := h.deps.Logger.Info().
		Str("job_id", updated.ID.String()).
		Str("user_id", updated.UserID).
		Str("from", string(current.Status)).
		Str("status", string(updated.Status))
	if updated.AudioCost != nil && updated.VideoCost != nil {
		logEvent = logEvent.Int64("audio_cost", *updated.AudioCost).Int64("video_cost", *updated.VideoCost)
	}
	logEvent.Msg("progress applied")

	h.deps.notifyJob(ctx, updated)
	return nil
}

func (h *ProgressHandler) load(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var job *models.Job
	err := h.deps.Store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
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
	return job, nil
}

func (h *ProgressHandler) resolveBlobs(ctx context.Context, report models.ProgressReport) (resolvedBlobs, error) {
	var out resolvedBlobs

	if report.ContentBlobName != nil {
		name, url, err := h.resolve(ctx, report.JobID, "contentBlobName", *report.ContentBlobName)
		if err != nil {
			return out, err
		}
		out.contentName, out.contentURL = &name, &url
	}
	if report.VideoOutputBlobName != nil {
		_, url, err := h.resolve(ctx, report.JobID, "videoOutputBlobName", *report.VideoOutputBlobName)
		if err != nil {
			return out, err
		}
		out.videoURL = &url
	}
	if report.AudioOutputBlobName != nil {
		_, url, err := h.resolve(ctx, report.JobID, "audioOutputBlobName", *report.AudioOutputBlobName)
		if err != nil {
			return out, err
		}
		out.audioURL = &url
	}
	return out, nil
}

func (h *ProgressHandler) resolve(ctx context.Context, jobID uuid.UUID, field, blobName string) (string, string, error) {
	canonical, url, err := h.deps.Blobs.ResolveURL(ctx, blobName)
	if err != nil {
		return "", "", wrapError(KindUpstream, CodeStorageFailed, "failed to resolve blob url", err).
			WithContext("job_id", jobID.String()).
			WithContext("field", field)
	}
	return canonical, url, nil
}

// mergeReport copies the fields present in report. Absent fields keep their
// stored value.
func mergeReport(job *models.Job, report models.ProgressReport, blobs resolvedBlobs) {
	if report.WordCount != nil {
		job.WordCount = clone(report.WordCount)
	}
	if report.PreviewContent != nil {
		job.PreviewContent = clone(report.PreviewContent)
	}
	if report.DurationMinutes != nil {
		job.DurationMinutes = clone(report.DurationMinutes)
	}
	if report.FailureReason != nil {
		job.FailureReason = clone(report.FailureReason)
	}
	if blobs.contentName != nil {
		job.ContentBlobName = blobs.contentName
		job.ContentURL = blobs.contentURL
	}
	if blobs.videoURL != nil {
		job.VideoOutputURL = blobs.videoURL
	}
	if blobs.audioURL != nil {
		job.AudioOutputURL = blobs.audioURL
	}
}

func validateReport(report models.ProgressReport) error {
	switch {
	case report.JobID == uuid.Nil:
		return newError(KindValidation, CodeInvalidInput, "job id is required")
	case !report.Status.Valid():
		return newError(KindValidation, CodeInvalidInput, "unknown job status").
			WithContext("status", string(report.Status))
	case report.WordCount != nil && *report.WordCount < 0:
		return newError(KindValidation, CodeInvalidInput, "word count must not be negative").
			WithContext("job_id", report.JobID.String())
	case report.DurationMinutes != nil && *report.DurationMinutes < 0:
		return newError(KindValidation, CodeInvalidInput, "duration must not be negative").
			WithContext("job_id", report.JobID.String())
	}
	return nil
}

func invalidTransition(job *models.Job, next models.JobStatus) error {
	return newError(KindInvalidState, CodeInvalidTransition, "illegal status transition").
		WithContext("job_id", job.ID.String()).
		WithContext("from", string(job.Status)).
		WithContext("to", string(next))
}

func concurrentUpdate(id uuid.UUID) error {
	return newError(KindConflict, CodeConcurrentUpdate, "job was modified concurrently").
		WithContext("job_id", id.String())
}

func clone[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
