// internal/worker/pool.go
package worker

import (
	"context"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Handler settles one broker delivery. It reports true when the delivery was
// processed successfully.
type Handler interface {
	Handle(ctx context.Context, d amqp.Delivery) bool
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, d amqp.Delivery) bool

func (f HandlerFunc) Handle(ctx context.Context, d amqp.Delivery) bool {
	return f(ctx, d)
}

// WorkerPool gère un pool de workers qui consomment les livraisons du broker
type WorkerPool struct {
	handler Handler
	config  *PoolConfig
	logger  zerolog.Logger
	workers []*Worker
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// PoolConfig contient la configuration du pool de workers
type PoolConfig struct {
	WorkerCount int           // Nombre de workers simultanés
	JobTimeout  time.Duration // Timeout par livraison, zéro pour aucun
}

// DefaultPoolConfig retourne une configuration par défaut
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		WorkerCount: 4,
		JobTimeout:  30 * time.Second,
	}
}

// NewWorkerPool crée un nouveau pool de workers
func NewWorkerPool(handler Handler, config *PoolConfig, logger zerolog.Logger) *WorkerPool {
	if config == nil {
		config = DefaultPoolConfig()
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}

	pool := &WorkerPool{
		handler: handler,
		config:  config,
		logger:  logger.With().Str("component", "worker_pool").Logger(),
		stopCh:  make(chan struct{}),
	}

	for i := 0; i < config.WorkerCount; i++ {
		pool.workers = append(pool.workers, NewWorker(i, handler, config, pool.logger))
	}

	return pool
}

// Start démarre les workers sur deliveries. Il est sans effet si le pool
// tourne déjà.
func (p *WorkerPool) Start(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}

	p.logger.Info().Int("workers", p.config.WorkerCount).Msg("starting worker pool")

	for _, worker := range p.workers {
		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Start(ctx, deliveries, p.stopCh)
		}(worker)
	}

	p.running = true
	return nil
}

// Wait blocks until every worker has returned.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

// Stop arrête le pool et attend la fin des livraisons en cours
func (p *WorkerPool) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return nil
	}

	p.logger.Info().Msg("stopping worker pool")
	close(p.stopCh)
	p.wg.Wait()

	p.running = false
	p.stopCh = make(chan struct{})
	p.logger.Info().Msg("worker pool stopped")
	return nil
}

// GetStats retourne les statistiques du pool
func (p *WorkerPool) GetStats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := PoolStats{
		WorkerCount: len(p.workers),
		Running:     p.running,
	}

	for i, worker := range p.workers {
		workerStats := worker.GetStats()
		stats.Workers = append(stats.Workers, WorkerStats{
			ID:               i,
			Status:           workerStats.Status,
			CurrentMessageID: workerStats.CurrentMessageID,
			JobsTotal:        workerStats.JobsTotal,
			JobsSuccess:      workerStats.JobsSuccess,
			JobsFailed:       workerStats.JobsFailed,
		})
	}

	return stats
}

// PoolStats contient les statistiques du pool
type PoolStats struct {
	WorkerCount int           `json:"worker_count"`
	Running     bool          `json:"running"`
	Workers     []WorkerStats `json:"workers"`
}

// WorkerStats contient les statistiques d'un worker
type WorkerStats struct {
	ID               int    `json:"id"`
	Status           string `json:"status"` // idle, busy, stopped
	CurrentMessageID string `json:"current_message_id,omitempty"`
	JobsTotal        int64  `json:"jobs_total"`
	JobsSuccess      int64  `json:"jobs_success"`
	JobsFailed       int64  `json:"jobs_failed"`
}
