package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/tranduckhuy/eduva-backend-sub005/pkg/models"
)

var (
	// ErrRecordNotFound is returned by repositories when a row does not exist.
	ErrRecordNotFound = errors.New("record not found")
	// ErrInsufficientBalance is returned by the ledger when a debit would make
	// the balance negative.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Store opens units of work. fn runs inside one transaction that is committed
// exactly once when fn returns nil and rolled back otherwise.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx exposes the repositories bound to one transaction.
type Tx interface {
	Jobs() JobRepository
	Pricing() PricingRepository
	UsageLogs() UsageLogRepository
	Credits() CreditLedger
}

type JobRepository interface {
	Create(ctx context.Context, job *models.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	// SaveIfStatus writes every column of job provided the stored status is
	// still expected. It reports false when another writer got there first.
	SaveIfStatus(ctx context.Context, job *models.Job, expected models.JobStatus) (bool, error)
	// MarkDispatched stamps a re-dispatch for a job still in status.
	MarkDispatched(ctx context.Context, id uuid.UUID, status models.JobStatus, at time.Time) (bool, error)
	ListStale(ctx context.Context, filters StaleFilters) ([]*models.Job, error)
}

type StaleFilters struct {
	Statuses         []models.JobStatus
	DispatchedBefore time.Time
	Limit            int
}

type PricingRepository interface {
	List(ctx context.Context) ([]models.AIServicePricing, error)
}

type UsageLogRepository interface {
	Append(ctx context.Context, entry *models.AIUsageLog) error
}

// CreditLedger mutates balances through a single atomic delta.
type CreditLedger interface {
	ApplyDelta(ctx context.Context, userID string, amount int64, jobID *uuid.UUID, reason string) error
	Balance(ctx context.Context, userID string) (int64, error)
}
