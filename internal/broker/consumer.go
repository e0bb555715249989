package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/tranduckhuy/eduva-backend-sub005/internal/jobs"
	"github.com/tranduckhuy/eduva-backend-sub005/internal/metrics"
	"github.com/tranduckhuy/eduva-backend-sub005/internal/worker"
	"github.com/tranduckhuy/eduva-backend-sub005/pkg/models"
)

// RetryHeader counts how many times a delivery was re-queued after a
// transient failure.
const RetryHeader = "x-retry-count"

// ErrDeliveriesClosed is returned by Run when the broker closes the delivery
// channel while the consumer is still wanted.
var ErrDeliveriesClosed = errors.New("broker closed the delivery channel")

// Disposition is what happened to one delivery.
type Disposition int

const (
	// Acked: the report was applied.
	Acked Disposition = iota
	// Discarded: acknowledged without effect, e.g. a late duplicate.
	Discarded
	// Retried: re-published with an incremented retry count.
	Retried
	// Requeued: handed back to the broker untouched.
	Requeued
	// DeadLettered: rejected to the dead-letter queue.
	DeadLettered
)

func (d Disposition) String() string {
	switch d {
	case Acked:
		return "acked"
	case Discarded:
		return "discarded"
	case Retried:
		return "retried"
	case Requeued:
		return "requeued"
	default:
		return "dead_lettered"
	}
}

// ProgressApplier is the job pipeline entry point for worker reports.
type ProgressApplier interface {
	ReportProgress(ctx context.Context, report models.ProgressReport) error
}

// Republisher sends a raw body back to a queue.
type Republisher interface {
	PublishRaw(ctx context.Context, queue string, body []byte, headers amqp.Table) error
}

type ConsumerConfig struct {
	Queue         string
	MaxRetries    int
	Workers       int
	HandleTimeout time.Duration
}

// ProgressConsumer drains the progress queue through a worker pool.
type ProgressConsumer struct {
	ch          Channel
	cfg         ConsumerConfig
	applier     ProgressApplier
	republisher Republisher
	metrics     *metrics.Pipeline
	logger      zerolog.Logger
	pool        *worker.WorkerPool
}

func NewProgressConsumer(
	ch Channel,
	cfg ConsumerConfig,
	applier ProgressApplier,
	republisher Republisher,
	m *metrics.Pipeline,
	logger zerolog.Logger,
) (*ProgressConsumer, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if err := DeclareQueue(ch, cfg.Queue); err != nil {
		return nil, err
	}
	if err := ch.Qos(cfg.Workers, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set prefetch: %w", err)
	}

	c := &ProgressConsumer{
		ch:          ch,
		cfg:         cfg,
		applier:     applier,
		republisher: republisher,
		metrics:     m,
		logger:      logger.With().Str("component", "progress_consumer").Str("queue", cfg.Queue).Logger(),
	}
	c.pool = worker.NewWorkerPool(c, &worker.PoolConfig{
		WorkerCount: cfg.Workers,
		JobTimeout:  cfg.HandleTimeout,
	}, logger)
	return c, nil
}

// Run consumes until ctx is cancelled or the broker closes the channel.
func (c *ProgressConsumer) Run(ctx context.Context) error {
	deliveries, err := c.ch.Consume(c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume %s: %w", c.cfg.Queue, err)
	}

	if err := c.pool.Start(ctx, deliveries); err != nil {
		return err
	}
	c.logger.Info().Int("workers", c.cfg.Workers).Msg("progress consumer started")

	c.pool.Wait()
	if err := c.pool.Stop(); err != nil {
		return err
	}
	if ctx.Err() != nil {
		c.logger.Info().Msg("progress consumer stopped")
		return nil
	}
	return ErrDeliveriesClosed
}

// Stats reports the state of the consumer's workers.
func (c *ProgressConsumer) Stats() worker.PoolStats {
	return c.pool.GetStats()
}

// Handle implements worker.Handler.
func (c *ProgressConsumer) Handle(ctx context.Context, d amqp.Delivery) bool {
	return c.Dispose(ctx, d) == Acked
}

// Dispose applies one delivery and settles it with the broker.
func (c *ProgressConsumer) Dispose(ctx context.Context, d amqp.Delivery) Disposition {
	var report models.ProgressReport
	if err := json.Unmarshal(d.Body, &report); err != nil {
		c.logger.Error().Err(err).Str("message_id", d.MessageId).Msg("undecodable progress report")
		return c.settle(d, DeadLettered)
	}
	if report.JobID == uuid.Nil {
		c.logger.Error().Str("message_id", d.MessageId).Msg("progress report without job id")
		return c.settle(d, DeadLettered)
	}

	log := c.logger.With().
		Str("job_id", report.JobID.String()).
		Str("status", string(report.Status)).
		Logger()

	err := c.applier.ReportProgress(ctx, report)
	switch {
	case err == nil:
		return c.settle(d, Acked)
	case jobs.CodeOf(err) == jobs.CodeInvalidTransition:
		log.Warn().Err(err).Msg("ignoring out of order progress report")
		return c.settle(d, Discarded)
	case errors.Is(ctx.Err(), context.Canceled):
		log.Warn().Err(err).Msg("consumer stopping, handing report back")
		return c.settle(d, Requeued)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		log.Warn().Err(err).Dur("timeout", c.cfg.HandleTimeout).Msg("progress report timed out")
		return c.retry(ctx, d, err, log)
	case jobs.Retryable(err):
		return c.retry(ctx, d, err, log)
	default:
		log.Error().Err(err).Str("code", jobs.CodeOf(err)).Msg("progress report rejected")
		return c.settle(d, DeadLettered)
	}
}

func (c *ProgressConsumer) retry(ctx context.Context, d amqp.Delivery, cause error, log zerolog.Logger) Disposition {
	count := RetryCount(d.Headers)
	if count >= c.cfg.MaxRetries {
		log.Error().Err(cause).Int("retries", count).Msg("progress report exhausted retries")
		return c.settle(d, DeadLettered)
	}

	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[RetryHeader] = int32(count + 1)

	if err := c.republisher.PublishRaw(context.WithoutCancel(ctx), c.cfg.Queue, d.Body, headers); err != nil {
		log.Error().Err(err).Msg("failed to republish progress report")
		return c.settle(d, Requeued)
	}
	log.Warn().Err(cause).Int("retry", count+1).Msg("progress report scheduled for retry")
	return c.settle(d, Retried)
}

func (c *ProgressConsumer) settle(d amqp.Delivery, disposition Disposition) Disposition {
	var err error
	switch disposition {
	case Acked, Discarded, Retried:
		err = d.Ack(false)
	case Requeued:
		err = d.Nack(false, true)
	default:
		err = d.Reject(false)
	}
	if err != nil {
		c.logger.Error().Err(err).Uint64("delivery_tag", d.DeliveryTag).Msg("failed to settle delivery")
	}
	c.metrics.Delivery(disposition.String())
	return disposition
}

// RetryCount reads RetryHeader, tolerating the integer widths AMQP may use.
func RetryCount(headers amqp.Table) int {
	switch v := headers[RetryHeader].(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	default:
		return 0
	}
}
