// internal/worker/worker.go
package worker

import (
	"context"
	"sync"
	"sync/atomic"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	statusIdle    = "idle"
	statusBusy    = "busy"
	statusStopped = "stopped"
)

// Worker représente un worker individuel qui traite les livraisons
type Worker struct {
	id      int
	handler Handler
	config  *PoolConfig
	logger  zerolog.Logger

	// État du worker - protégé par mutex
	mu               sync.RWMutex
	status           string
	currentMessageID string

	// Statistiques - utiliser atomic pour éviter les locks
	jobsTotal   int64
	jobsSuccess int64
	jobsFailed  int64
}

// NewWorker crée un nouveau worker
func NewWorker(id int, handler Handler, config *PoolConfig, logger zerolog.Logger) *Worker {
	return &Worker{
		id:      id,
		handler: handler,
		config:  config,
		logger:  logger.With().Int("worker_id", id).Logger(),
		status:  statusIdle,
	}
}

// setState met à jour l'état du worker de manière atomique
func (w *Worker) setState(status, messageID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.status = status
	w.currentMessageID = messageID
}

// getState retourne l'état actuel du worker
func (w *Worker) getState() (string, string) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return w.status, w.currentMessageID
}

func (w *Worker) process(ctx context.Context, d amqp.Delivery) {
	w.setState(statusBusy, d.MessageId)
	atomic.AddInt64(&w.jobsTotal, 1)

	hctx := ctx
	if w.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, w.config.JobTimeout)
		defer cancel()
	}

	if w.handler.Handle(hctx, d) {
		atomic.AddInt64(&w.jobsSuccess, 1)
	} else {
		atomic.AddInt64(&w.jobsFailed, 1)
		w.logger.Debug().Str("message_id", d.MessageId).Msg("delivery not applied")
	}

	w.setState(statusIdle, "")
}

// Start traite les livraisons jusqu'à l'annulation, l'arrêt du pool ou la
// fermeture du canal
func (w *Worker) Start(ctx context.Context, deliveries <-chan amqp.Delivery, stopCh <-chan struct{}) {
	w.logger.Debug().Msg("worker starting")

	for {
		select {
		case <-ctx.Done():
			w.setState(statusStopped, "")
			return
		case <-stopCh:
			w.setState(statusStopped, "")
			return
		case d, ok := <-deliveries:
			if !ok {
				w.logger.Warn().Msg("delivery channel closed")
				w.setState(statusStopped, "")
				return
			}
			w.process(ctx, d)
		}
	}
}

// WorkerStatsInternal structure interne pour les stats du worker
type WorkerStatsInternal struct {
	Status           string
	CurrentMessageID string
	JobsTotal        int64
	JobsSuccess      int64
	JobsFailed       int64
}

// GetStats retourne les statistiques du worker
func (w *Worker) GetStats() WorkerStatsInternal {
	status, messageID := w.getState()

	return WorkerStatsInternal{
		Status:           status,
		CurrentMessageID: messageID,
		JobsTotal:        atomic.LoadInt64(&w.jobsTotal),
		JobsSuccess:      atomic.LoadInt64(&w.jobsSuccess),
		JobsFailed:       atomic.LoadInt64(&w.jobsFailed),
	}
}
