package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/tranduckhuy/eduva-backend-sub005/pkg/models"
)

// Queues names the work queue of every task type.
type Queues struct {
	GenerateContent string
	CreateProduct   string
	Progress        string
}

// DefaultQueues are the queue names shared with the AI worker.
func DefaultQueues() Queues {
	return Queues{
		GenerateContent: "ai.generate_content",
		CreateProduct:   "ai.create_product",
		Progress:        "ai.progress",
	}
}

func (q Queues) For(task models.TaskType) (string, error) {
	switch task {
	case models.TaskGenerateContent:
		return q.GenerateContent, nil
	case models.TaskCreateProduct:
		return q.CreateProduct, nil
	default:
		return "", fmt.Errorf("no queue for task type %q", task)
	}
}

func (q Queues) all() []string {
	return []string{q.GenerateContent, q.CreateProduct, q.Progress}
}

// Publisher sends persistent JSON messages to the default exchange. Pass a
// channel from NewConfirmedChannel to wait for broker acks.
type Publisher struct {
	ch      Channel
	queues  Queues
	timeout time.Duration
	logger  zerolog.Logger
}

// NewPublisher declares every queue with its dead-letter queue.
func NewPublisher(ch Channel, queues Queues, timeout time.Duration, logger zerolog.Logger) (*Publisher, error) {
	for _, q := range queues.all() {
		if err := DeclareQueue(ch, q); err != nil {
			return nil, err
		}
	}
	return &Publisher{
		ch:      ch,
		queues:  queues,
		timeout: timeout,
		logger:  logger.With().Str("component", "publisher").Logger(),
	}, nil
}

// Publish serializes message to the queue of task.
func (p *Publisher) Publish(ctx context.Context, task models.TaskType, message any) error {
	queue, err := p.queues.For(task)
	if err != nil {
		return err
	}
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal %s message: %w", task, err)
	}
	return p.PublishRaw(ctx, queue, body, amqp.Table{"x-task-type": string(task)})
}

// PublishRaw sends an already encoded body to queue.
func (p *Publisher) PublishRaw(ctx context.Context, queue string, body []byte, headers amqp.Table) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	err := p.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Headers:      headers,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", queue, err)
	}

	p.logger.Debug().Str("queue", queue).Int("bytes", len(body)).Msg("message published")
	return nil
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}
