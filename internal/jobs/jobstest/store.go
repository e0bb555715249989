// Package jobstest provides in-memory collaborators for exercising the job
// pipeline without a database, broker or object store.
package jobstest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tranduckhuy/eduva-backend-sub005/internal/jobs"
	"github.com/tranduckhuy/eduva-backend-sub005/pkg/models"
)

type state struct {
	jobs     map[uuid.UUID]*models.Job
	pricing  map[models.ServiceType]models.AIServicePricing
	usage    []models.AIUsageLog
	balances map[string]int64
	ledger   []models.CreditTransaction
}

func (s *state) clone() *state {
	c := &state{
		jobs:     make(map[uuid.UUID]*models.Job, len(s.jobs)),
		pricing:  make(map[models.ServiceType]models.AIServicePricing, len(s.pricing)),
		usage:    append([]models.AIUsageLog(nil), s.usage...),
		balances: make(map[string]int64, len(s.balances)),
		ledger:   append([]models.CreditTransaction(nil), s.ledger...),
	}
	for id, job := range s.jobs {
		c.jobs[id] = job.Clone()
	}
	for k, v := range s.pricing {
		c.pricing[k] = v
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	return c
}

// MemoryStore is a jobs.Store whose transactions run one at a time on a copy
// of the data. The copy replaces the live data only when fn succeeds and the
// context is still alive.
type MemoryStore struct {
	mu        sync.Mutex
	data      *state
	commitErr error
	commits   int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: &state{
		jobs:     map[uuid.UUID]*models.Job{},
		pricing:  map[models.ServiceType]models.AIServicePricing{},
		balances: map[string]int64{},
	}}
}

func (m *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx jobs.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := m.data.clone()
	if err := fn(ctx, &memTx{data: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.commitErr != nil {
		return m.commitErr
	}
	m.data = work
	m.commits++
	return nil
}

// FailCommits makes every following commit fail with err; nil restores it.
func (m *MemoryStore) FailCommits(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commitErr = err
}

// Commits returns the number of committed transactions.
func (m *MemoryStore) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}

func (m *MemoryStore) SetPrice(serviceType models.ServiceType, pricePerMinute int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.pricing[serviceType] = models.AIServicePricing{
		ServiceType:           serviceType,
		PricePerMinuteCredits: pricePerMinute,
	}
}

func (m *MemoryStore) SetBalance(userID string, balance int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.balances[userID] = balance
}

func (m *MemoryStore) Balance(userID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.balances[userID]
}

// PutJob stores a copy of job as committed data.
func (m *MemoryStore) PutJob(job *models.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.jobs[job.ID] = job.Clone()
}

// Job returns a copy of the committed job, or nil.
func (m *MemoryStore) Job(id uuid.UUID) *models.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.data.jobs[id]
	if !ok {
		return nil
	}
	return job.Clone()
}

func (m *MemoryStore) JobCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data.jobs)
}

func (m *MemoryStore) UsageLogs() []models.AIUsageLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.AIUsageLog(nil), m.data.usage...)
}

func (m *MemoryStore) CreditTransactions() []models.CreditTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.CreditTransaction(nil), m.data.ledger...)
}

type memTx struct {
	data *state
}

func (t *memTx) Jobs() jobs.JobRepository { return memJobs{t.data} }
func (t *memTx) Pricing() jobs.PricingRepository { return memPricing{t.data} }
func (t *memTx) UsageLogs() jobs.UsageLogRepository { return memUsage{t.data} }
func (t *memTx) Credits() jobs.CreditLedger { return memLedger{t.data} }

type memJobs struct{ data *state }

func (r memJobs) Create(ctx context.Context, job *models.Job) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	r.data.jobs[job.ID] = job.Clone()
	return nil
}

func (r memJobs) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	job, ok := r.data.jobs[id]
	if !ok {
		return nil, jobs.ErrRecordNotFound
	}
	return job.Clone(), nil
}

func (r memJobs) SaveIfStatus(ctx context.Context, job *models.Job, expected models.JobStatus) (bool, error) {
	stored, ok := r.data.jobs[job.ID]
	if !ok || stored.Status != expected {
		return false, nil
	}
	saved := job.Clone()
	saved.CreatedAt = stored.CreatedAt
	r.data.jobs[job.ID] = saved
	return true, nil
}

func (r memJobs) MarkDispatched(ctx context.Context, id uuid.UUID, status models.JobStatus, at time.Time) (bool, error) {
	stored, ok := r.data.jobs[id]
	if !ok || stored.Status != status {
		return false, nil
	}
	stored.DispatchedAt = at
	stored.DispatchAttempts++
	return true, nil
}

func (r memJobs) ListStale(ctx context.Context, filters jobs.StaleFilters) ([]*models.Job, error) {
	var out []*models.Job
	for _, job := range r.data.jobs {
		if !hasStatus(filters.Statuses, job.Status) || !job.DispatchedAt.Before(filters.DispatchedBefore) {
			continue
		}
		out = append(out, job.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DispatchedAt.Before(out[j].DispatchedAt) })
	if filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, nil
}

func hasStatus(statuses []models.JobStatus, s models.JobStatus) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

type memPricing struct{ data *state }

func (r memPricing) List(ctx context.Context) ([]models.AIServicePricing, error) {
	rows := make([]models.AIServicePricing, 0, len(r.data.pricing))
	for _, row := range r.data.pricing {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ServiceType < rows[j].ServiceType })
	return rows, nil
}

type memUsage struct{ data *state }

func (r memUsage) Append(ctx context.Context, entry *models.AIUsageLog) error {
	entry.ID = uint(len(r.data.usage) + 1)
	r.data.usage = append(r.data.usage, *entry)
	return nil
}

type memLedger struct{ data *state }

func (l memLedger) ApplyDelta(ctx context.Context, userID string, amount int64, jobID *uuid.UUID, reason string) error {
	balance, ok := l.data.balances[userID]
	if !ok || balance+amount < 0 {
		return jobs.ErrInsufficientBalance
	}
	l.data.balances[userID] = balance + amount
	l.data.ledger = append(l.data.ledger, models.CreditTransaction{
		ID:     uint(len(l.data.ledger) + 1),
		UserID: userID,
		JobID:  jobID,
		Amount: amount,
		Reason: reason,
	})
	return nil
}

func (l memLedger) Balance(ctx context.Context, userID string) (int64, error) {
	balance, ok := l.data.balances[userID]
	if !ok {
		return 0, jobs.ErrRecordNotFound
	}
	return balance, nil
}
