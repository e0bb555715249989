package worker

import (
	"context"
	"sync"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	handler := HandlerFunc(func(ctx context.Context, d amqp.Delivery) bool {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, d.MessageId)
		return d.MessageId != "bad"
	})

	pool := NewWorkerPool(handler, &PoolConfig{WorkerCount: 3, JobTimeout: time.Second}, zerolog.Nop())
	deliveries := make(chan amqp.Delivery)

	require.NoError(t, pool.Start(context.Background(), deliveries))
	// Un second démarrage est sans effet
	require.NoError(t, pool.Start(context.Background(), deliveries))

	for _, id := range []string{"a", "b", "bad", "c"} {
		deliveries <- amqp.Delivery{MessageId: id}
	}
	close(deliveries)
	pool.Wait()

	assert.ElementsMatch(t, []string{"a", "b", "bad", "c"}, seen)

	stats := pool.GetStats()
	assert.Equal(t, 3, stats.WorkerCount)
	var total, success, failed int64
	for _, w := range stats.Workers {
		total += w.JobsTotal
		success += w.JobsSuccess
		failed += w.JobsFailed
		assert.Equal(t, statusStopped, w.Status)
	}
	assert.Equal(t, int64(4), total)
	assert.Equal(t, int64(3), success)
	assert.Equal(t, int64(1), failed)
}

func TestWorkerPoolStop(t *testing.T) {
	var handled int64
	handler := HandlerFunc(func(ctx context.Context, d amqp.Delivery) bool {
		atomic.AddInt64(&handled, 1)
		return true
	})

	pool := NewWorkerPool(handler, &PoolConfig{WorkerCount: 2}, zerolog.Nop())
	deliveries := make(chan amqp.Delivery)
	require.NoError(t, pool.Start(context.Background(), deliveries))

	deliveries <- amqp.Delivery{MessageId: "one"}
	require.NoError(t, pool.Stop())
	assert.False(t, pool.GetStats().Running)
	assert.Equal(t, int64(1), atomic.LoadInt64(&handled))

	// Stopping twice is harmless
	assert.NoError(t, pool.Stop())
}

func TestWorkerAppliesTimeout(t *testing.T) {
	handler := HandlerFunc(func(ctx context.Context, d amqp.Delivery) bool {
		_, hasDeadline := ctx.Deadline()
		return hasDeadline
	})

	w := NewWorker(0, handler, &PoolConfig{JobTimeout: time.Minute}, zerolog.Nop())
	w.process(context.Background(), amqp.Delivery{MessageId: "m"})

	stats := w.GetStats()
	assert.Equal(t, int64(1), stats.JobsSuccess)
	assert.Equal(t, statusIdle, stats.Status)
	assert.Empty(t, stats.CurrentMessageID)
}

func TestWorkerStopsOnCancel(t *testing.T) {
	w := NewWorker(0, HandlerFunc(func(context.Context, amqp.Delivery) bool { return true }), DefaultPoolConfig(), zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w.Start(ctx, make(chan amqp.Delivery), make(chan struct{}))
	assert.Equal(t, statusStopped, w.GetStats().Status)
}

// Les stats sont lues pendant que les workers traitent des livraisons
func TestWorkerPoolStatsUnderLoad(t *testing.T) {
	const deliveriesCount = 400

	handler := HandlerFunc(func(ctx context.Context, d amqp.Delivery) bool {
		n, err := strconv.Atoi(string(d.Body))
		return err == nil && n%2 == 0
	})
	pool := NewWorkerPool(handler, &PoolConfig{WorkerCount: 4, JobTimeout: time.Second}, zerolog.Nop())
	deliveries := make(chan amqp.Delivery)
	require.NoError(t, pool.Start(context.Background(), deliveries))

	var inconsistencies int64
	stop := make(chan struct{})
	polled := make(chan struct{})
	go func() {
		defer close(polled)
		for {
			select {
			case <-stop:
				return
			default:
			}
			for _, w := range pool.GetStats().Workers {
				if w.Status == statusBusy && w.CurrentMessageID == "" {
					atomic.AddInt64(&inconsistencies, 1)
				}
				if w.Status == statusIdle && w.CurrentMessageID != "" {
					atomic.AddInt64(&inconsistencies, 1)
				}
			}
		}
	}()

	for i := 0; i < deliveriesCount; i++ {
		deliveries <- amqp.Delivery{MessageId: uuid.NewString(), Body: []byte(strconv.Itoa(i))}
	}
	close(deliveries)
	pool.Wait()
	close(stop)
	<-polled

	assert.Zero(t, atomic.LoadInt64(&inconsistencies))

	var total, success, failed int64
	for _, w := range pool.GetStats().Workers {
		total += w.JobsTotal
		success += w.JobsSuccess
		failed += w.JobsFailed
	}
	assert.Equal(t, int64(deliveriesCount), total)
	assert.Equal(t, int64(deliveriesCount/2), success)
	assert.Equal(t, int64(deliveriesCount/2), failed)
}

func BenchmarkWorkerProcess(b *testing.B) {
	w := NewWorker(0, HandlerFunc(func(context.Context, amqp.Delivery) bool { return true }), &PoolConfig{}, zerolog.Nop())
	d := amqp.Delivery{MessageId: uuid.NewString()}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w.process(context.Background(), d)
	}
}
