package models

import (
	"time"

	"github.com/google/uuid"
)

// ServiceType identifies a priced AI service.
type ServiceType string

const (
	ServiceGenAudio ServiceType = "GenAudio"
	ServiceGenVideo ServiceType = "GenVideo"
)

// ServiceTypes lists every priced service, in the order costs are computed.
var ServiceTypes = []ServiceType{ServiceGenAudio, ServiceGenVideo}

func (t ServiceType) Valid() bool {
	return t == ServiceGenAudio || t == ServiceGenVideo
}

// AIServicePricing is reference data owned by an external configuration
// workflow. The pipeline only reads it.
type AIServicePricing struct {
	ID                    uint        `gorm:"primaryKey"`
	ServiceType           ServiceType `gorm:"type:varchar(16);not null;uniqueIndex"`
	PricePerMinuteCredits int64       `gorm:"not null"`
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (AIServicePricing) TableName() string {
	return "ai_service_pricings"
}

// AIUsageLog is an append-only record of credits charged for one confirmed job.
type AIUsageLog struct {
	ID              uint        `gorm:"primaryKey"`
	UserID          string      `gorm:"type:varchar(64);not null;index"`
	JobID           uuid.UUID   `gorm:"type:uuid;not null;index"`
	ServiceType     ServiceType `gorm:"type:varchar(16);not null"`
	DurationMinutes float64     `gorm:"not null"`
	CreditsCharged  int64       `gorm:"not null"`
	CreatedAt       time.Time   `gorm:"index"`
}

func (AIUsageLog) TableName() string {
	return "ai_usage_logs"
}

// UserCredit holds a user's spendable balance. It is only ever changed with a
// single atomic delta statement.
type UserCredit struct {
	UserID    string `gorm:"type:varchar(64);primaryKey"`
	Balance   int64  `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

func (UserCredit) TableName() string {
	return "user_credits"
}

// CreditTransaction is the ledger's per-delta audit entry.
type CreditTransaction struct {
	ID        uint       `gorm:"primaryKey"`
	UserID    string     `gorm:"type:varchar(64);not null;index"`
	JobID     *uuid.UUID `gorm:"type:uuid;index"`
	Amount    int64      `gorm:"not null"`
	Reason    string     `gorm:"type:varchar(64);not null"`
	CreatedAt time.Time
}

func (CreditTransaction) TableName() string {
	return "credit_transactions"
}
