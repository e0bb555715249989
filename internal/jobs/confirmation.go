package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tranduckhuy/eduva-backend-sub005/pkg/models"
)

// ChargeReason is recorded on the credit transaction of a confirmation.
const ChargeReason = "ai_product_generation"

// ConfirmRequest is the user's choice of output for a generated job.
type ConfirmRequest struct {
	JobID       uuid.UUID
	UserID      string
	ServiceType models.ServiceType
	VoiceConfig models.JSON
}

// ConfirmationService charges the user and starts product creation.
type ConfirmationService struct {
	deps   Dependencies
	tracer trace.Tracer
}

func NewConfirmationService(deps Dependencies) *ConfirmationService {
	deps.Logger = deps.Logger.With().Str("component", "confirmation").Logger()
	return &ConfirmationService{
		deps:   deps,
		tracer: otel.Tracer("eduva-ai/jobs"),
	}
}

// Confirm moves a ContentGenerated job to CreatingProduct and debits its cost
// in the same transaction. The product request is published only once that
// transaction has committed.
func (s *ConfirmationService) Confirm(ctx context.Context, req ConfirmRequest) error {
	ctx, span := s.tracer.Start(ctx, "ConfirmationService.Confirm", trace.WithAttributes(
		attribute.String("job.id", req.JobID.String()),
		attribute.String("service.type", string(req.ServiceType)),
	))
	defer span.End()
	started := time.Now()
	defer func() { s.deps.Metrics.ObserveOperation("confirm", time.Since(started).Seconds()) }()

	if err := validateConfirm(req); err != nil {
		return err
	}

	var (
		confirmed *models.Job
		charged   int64
		balance   int64
	)
	err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		job, err := tx.Jobs().GetByID(ctx, req.JobID)
		if err != nil {
			return lookupError(req.JobID, err)
		}
		if job.UserID != req.UserID {
			return lookupError(req.JobID, ErrRecordNotFound)
		}
		if err := checkConfirmable(job); err != nil {
			return err
		}

		cost := job.CostFor(req.ServiceType)
		if cost == nil {
			return newError(KindInvalidState, CodeCostNotComputed, "cost has not been computed for this service").
				WithContext("job_id", job.ID.String()).
				WithContext("service_type", string(req.ServiceType))
		}
		if job.ContentBlobName == nil || *job.ContentBlobName == "" {
			return newError(KindInvalidState, CodeContentNotAvailable, "generated content is not available").
				WithContext("job_id", job.ID.String())
		}

		serviceType := req.ServiceType
		job.ProductType = &serviceType
		job.VoiceConfig = req.VoiceConfig
		if job.VoiceConfig == nil {
			job.VoiceConfig = models.JSON{}
		}
		now := s.deps.now()
		job.SetStatus(models.StatusCreatingProduct, now)
		job.DispatchedAt = now
		job.DispatchAttempts = 0

		saved, err := tx.Jobs().SaveIfStatus(ctx, job, models.StatusContentGenerated)
		if err != nil {
			return wrapError(KindInternal, CodeInternal, "failed to save job", err).
				WithContext("job_id", job.ID.String())
		}
		if !saved {
			return newError(KindInvalidState, CodeAlreadyConfirmed, "job has already been confirmed").
				WithContext("job_id", job.ID.String())
		}

		jobID := job.ID
		if err := tx.Credits().ApplyDelta(ctx, job.UserID, -*cost, &jobID, ChargeReason); err != nil {
			if errors.Is(err, ErrInsufficientBalance) {
				return newError(KindInsufficientFunds, CodeInsufficientCredits, "insufficient credits").
					WithContext("job_id", job.ID.String()).
					WithContext("required", *cost)
			}
			return wrapError(KindInternal, CodeInternal, "failed to charge credits", err).
				WithContext("job_id", job.ID.String())
		}

		remaining, err := tx.Credits().Balance(ctx, job.UserID)
		if err != nil {
			return wrapError(KindInternal, CodeInternal, "failed to read balance", err).
				WithContext("job_id", job.ID.String())
		}

		var duration float64
		if job.DurationMinutes != nil {
			duration = *job.DurationMinutes
		}
		if err := tx.UsageLogs().Append(ctx, &models.AIUsageLog{
			UserID:          job.UserID,
			JobID:           job.ID,
			ServiceType:     req.ServiceType,
			DurationMinutes: duration,
			CreditsCharged:  *cost,
			CreatedAt:       now,
		}); err != nil {
			return wrapError(KindInternal, CodeInternal, "failed to record usage", err).
				WithContext("job_id", job.ID.String())
		}

		// Dernier point d'annulation avant le commit
		if err := ctx.Err(); err != nil {
			return err
		}
		confirmed = job
		charged = *cost
		balance = remaining
		return nil
	})
	if err != nil {
		span.RecordError(err)
		if _, ok := AsError(err); !ok {
			return wrapError(KindInternal, CodeInternal, "failed to confirm job", err).
				WithContext("job_id", req.JobID.String())
		}
		return err
	}

	s.deps.Metrics.JobConfirmed(string(req.ServiceType), charged)
	s.deps.Logger.Info().
		Str("job_id", confirmed.ID.String()).
		Str("user_id", confirmed.UserID).
		Str("service_type", string(req.ServiceType)).
		Int64("credits", charged).
		Int64("credits_remaining", balance).
		Msg("job confirmed")

	s.publish(ctx, confirmed)
	s.deps.notifyJob(ctx, confirmed)
	return nil
}

// publish runs after the charge commit. A failure leaves the job charged in
// CreatingProduct; the reconciliation sweep republishes it.
func (s *ConfirmationService) publish(ctx context.Context, job *models.Job) {
	pctx, cancel := detached(ctx, s.deps.PublishTimeout)
	defer cancel()

	if err := s.deps.Publisher.Publish(pctx, models.TaskCreateProduct, createProductMessage(job)); err != nil {
		s.deps.Metrics.PublishFailed(string(models.TaskCreateProduct))
		s.deps.Logger.Error().Err(err).
			Str("job_id", job.ID.String()).
			Str("user_id", job.UserID).
			Msg("failed to publish create product request after charge")
	}
}

func validateConfirm(req ConfirmRequest) error {
	switch {
	case req.JobID == uuid.Nil:
		return newError(KindValidation, CodeInvalidInput, "job id is required")
	case req.UserID == "":
		return newError(KindValidation, CodeInvalidInput, "user id is required")
	case !req.ServiceType.Valid():
		return newError(KindValidation, CodeInvalidInput, "unknown service type").
			WithContext("service_type", string(req.ServiceType))
	}
	return nil
}

func checkConfirmable(job *models.Job) error {
	switch job.Status {
	case models.StatusContentGenerated:
		return nil
	case models.StatusProcessing:
		return newError(KindInvalidState, CodeStillGenerating, "content is still being generated").
			WithContext("job_id", job.ID.String())
	case models.StatusCreatingProduct, models.StatusCompleted:
		return newError(KindInvalidState, CodeAlreadyConfirmed, "job has already been confirmed").
			WithContext("job_id", job.ID.String())
	case models.StatusFailed:
		return newError(KindInvalidState, CodeJobFailed, "job has failed").
			WithContext("job_id", job.ID.String())
	default:
		return newError(KindInternal, CodeInternal, "job has an unknown status").
			WithContext("job_id", job.ID.String()).
			WithContext("status", string(job.Status))
	}
}
