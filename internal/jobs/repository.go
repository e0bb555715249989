package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tranduckhuy/eduva-backend-sub005/pkg/models"
)

type gormStore struct {
	db *gorm.DB
}

// NewGormStore returns a Store backed by gorm transactions.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &gormTx{db: tx})
	})
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) Jobs() JobRepository { return &jobRepository{db: t.db} }
func (t *gormTx) Pricing() PricingRepository { return &pricingRepository{db: t.db} }
func (t *gormTx) UsageLogs() UsageLogRepository { return &usageLogRepository{db: t.db} }
func (t *gormTx) Credits() CreditLedger { return &creditLedger{db: t.db} }

type jobRepository struct {
	db *gorm.DB
}

func (r *jobRepository) Create(ctx context.Context, job *models.Job) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *jobRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var job models.Job
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &job, nil
}

func (r *jobRepository) SaveIfStatus(ctx context.Context, job *models.Job, expected models.JobStatus) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("id = ? AND status = ?", job.ID, expected).
		Select("*").
		Omit("id", "created_at").
		Updates(job)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *jobRepository) MarkDispatched(ctx context.Context, id uuid.UUID, status models.JobStatus, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("id = ? AND status = ?", id, status).
		UpdateColumns(map[string]interface{}{
			"dispatched_at":     at,
			"dispatch_attempts": gorm.Expr("dispatch_attempts + 1"),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *jobRepository) ListStale(ctx context.Context, filters StaleFilters) ([]*models.Job, error) {
	var jobs []*models.Job

	query := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("status IN ?", filters.Statuses).
		Where("dispatched_at < ?", filters.DispatchedBefore).
		Order("dispatched_at ASC")

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}

	err := query.Find(&jobs).Error
	return jobs, err
}

type pricingRepository struct {
	db *gorm.DB
}

func (r *pricingRepository) List(ctx context.Context) ([]models.AIServicePricing, error) {
	var rows []models.AIServicePricing
	err := r.db.WithContext(ctx).Order("service_type").Find(&rows).Error
	return rows, err
}

type usageLogRepository struct {
	db *gorm.DB
}

func (r *usageLogRepository) Append(ctx context.Context, entry *models.AIUsageLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

type creditLedger struct {
	db *gorm.DB
}

// ApplyDelta adds amount to the balance in one UPDATE. A debit that would go
// below zero matches no row and is reported as ErrInsufficientBalance.
func (l *creditLedger) ApplyDelta(ctx context.Context, userID string, amount int64, jobID *uuid.UUID, reason string) error {
	query := l.db.WithContext(ctx).Model(&models.UserCredit{}).Where("user_id = ?", userID)
	if amount < 0 {
		query = query.Where("balance + ? >= 0", amount)
	}

	result := query.UpdateColumns(map[string]interface{}{
		"balance":    gorm.Expr("balance + ?", amount),
		"updated_at": time.Now().UTC(),
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInsufficientBalance
	}

	return l.db.WithContext(ctx).Create(&models.CreditTransaction{
		UserID: userID,
		JobID:  jobID,
		Amount: amount,
		Reason: reason,
	}).Error
}

func (l *creditLedger) Balance(ctx context.Context, userID string) (int64, error) {
	var credit models.UserCredit
	err := l.db.WithContext(ctx).Where("user_id = ?", userID).First(&credit).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrRecordNotFound
		}
		return 0, err
	}
	return credit.Balance, nil
}
