package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/tranduckhuy/eduva-backend-sub005/pkg/models"
)

// DispatchExhaustedReason is stored on jobs failed by the sweep.
const DispatchExhaustedReason = "content generation did not respond after repeated dispatches"

type ReconcileConfig struct {
	// StaleAfter is how long a dispatched job may stay silent.
	StaleAfter time.Duration
	// MaxAttempts bounds re-dispatches of a Processing job before it is failed.
	MaxAttempts int
	// BatchSize caps the jobs handled per sweep; zero means no cap.
	BatchSize int
}

// SweepResult counts what one sweep did.
type SweepResult struct {
	Republished int
	Failed      int
	Skipped     int
}

// Reconciler re-dispatches jobs whose broker message was lost or never sent.
type Reconciler struct {
	deps   Dependencies
	cfg    ReconcileConfig
	group  singleflight.Group
	tracer trace.Tracer
}

func NewReconciler(deps Dependencies, cfg ReconcileConfig) *Reconciler {
	deps.Logger = deps.Logger.With().Str("component", "reconciler").Logger()
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 15 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Reconciler{
		deps:   deps,
		cfg:    cfg,
		tracer: otel.Tracer("eduva-ai/jobs"),
	}
}

// Schedule registers the sweep on c. Overlapping runs are collapsed into one.
func (r *Reconciler) Schedule(ctx context.Context, c *cron.Cron, spec string) error {
	_, err := c.AddFunc(spec, func() {
		_, _, _ = r.group.Do("sweep", func() (any, error) {
			result, err := r.Sweep(ctx)
			if err != nil {
				r.deps.Logger.Error().Err(err).Msg("reconciliation sweep failed")
				return nil, err
			}
			if result.Republished > 0 || result.Failed > 0 {
				r.deps.Logger.Info().
					Int("republished", result.Republished).
					Int("failed", result.Failed).
					Int("skipped", result.Skipped).
					Msg("reconciliation sweep completed")
			}
			return result, nil
		})
	})
	if err != nil {
		return fmt.Errorf("invalid reconcile schedule %q: %w", spec, err)
	}
	r.deps.Logger.Info().Str("schedule", spec).Dur("stale_after", r.cfg.StaleAfter).Msg("reconciliation scheduled")
	return nil
}

// Sweep handles every stale job once.
func (r *Reconciler) Sweep(ctx context.Context) (SweepResult, error) {
	ctx, span := r.tracer.Start(ctx, "Reconciler.Sweep")
	defer span.End()

	var result SweepResult
	cutoff := r.deps.now().Add(-r.cfg.StaleAfter)

	var stale []*models.Job
	err := r.deps.Store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		jobs, err := tx.Jobs().ListStale(ctx, StaleFilters{
			Statuses:         []models.JobStatus{models.StatusProcessing, models.StatusCreatingProduct},
			DispatchedBefore: cutoff,
			Limit:            r.cfg.BatchSize,
		})
		stale = jobs
		return err
	})
	if err != nil {
		span.RecordError(err)
		return result, fmt.Errorf("failed to list stale jobs: %w", err)
	}

	for _, job := range stale {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		switch r.reconcile(ctx, job) {
		case outcomeRepublished:
			result.Republished++
		case outcomeFailed:
			result.Failed++
		default:
			result.Skipped++
		}
	}
	return result, nil
}

type sweepOutcome int

const (
	outcomeSkipped sweepOutcome = iota
	outcomeRepublished
	outcomeFailed
)

func (r *Reconciler) reconcile(ctx context.Context, job *models.Job) sweepOutcome {
	log := r.deps.Logger.With().
		Str("job_id", job.ID.String()).
		Str("status", string(job.Status)).
		Int("attempts", job.DispatchAttempts).
		Logger()

	var (
		task    models.TaskType
		message any
	)
	switch job.Status {
	case models.StatusProcessing:
		if job.DispatchAttempts >= r.cfg.MaxAttempts {
			return r.fail(ctx, job)
		}
		task, message = models.TaskGenerateContent, generateContentMessage(job)
	case models.StatusCreatingProduct:
		if job.ProductType == nil || job.ContentBlobName == nil {
			log.Error().Msg("charged job cannot be re-dispatched, product request incomplete")
			return outcomeSkipped
		}
		if job.DispatchAttempts >= r.cfg.MaxAttempts {
			// Already charged: never failed automatically.
			log.Warn().Msg("charged job still waiting for product creation")
		}
		task, message = models.TaskCreateProduct, createProductMessage(job)
	default:
		return outcomeSkipped
	}

	var marked bool
	err := r.deps.Store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		ok, err := tx.Jobs().MarkDispatched(ctx, job.ID, job.Status, r.deps.now())
		marked = ok
		return err
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to mark job dispatched")
		return outcomeSkipped
	}
	if !marked {
		// Le job a avancé entre-temps
		return outcomeSkipped
	}

	pctx, cancel := detached(ctx, r.deps.PublishTimeout)
	defer cancel()
	if err := r.deps.Publisher.Publish(pctx, task, message); err != nil {
		r.deps.Metrics.PublishFailed(string(task))
		log.Error().Err(err).Msg("failed to republish job")
		return outcomeSkipped
	}

	r.deps.Metrics.Republished(string(task))
	log.Info().Str("task_type", string(task)).Msg("job re-dispatched")
	return outcomeRepublished
}

func (r *Reconciler) fail(ctx context.Context, job *models.Job) sweepOutcome {
	failed := job.Clone()
	reason := DispatchExhaustedReason
	failed.FailureReason = &reason
	failed.SetStatus(models.StatusFailed, r.deps.now())

	var saved bool
	err := r.deps.Store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		ok, err := tx.Jobs().SaveIfStatus(ctx, failed, models.StatusProcessing)
		saved = ok
		return err
	})
	if err != nil {
		r.deps.Logger.Error().Err(err).Str("job_id", job.ID.String()).Msg("failed to fail exhausted job")
		return outcomeSkipped
	}
	if !saved {
		return outcomeSkipped
	}

	r.deps.Logger.Warn().
		Str("job_id", job.ID.String()).
		Str("user_id", job.UserID).
		Int("attempts", job.DispatchAttempts).
		Msg("job failed after exhausting dispatch attempts")
	r.deps.notifyJob(ctx, failed)
	return outcomeFailed
}
