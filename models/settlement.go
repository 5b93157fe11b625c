package models

import (
	"time"
)

// SettlementStatus is the persisted state of a period's settlement run.
type SettlementStatus string

const (
	SettlementStatusNotStarted          SettlementStatus = "not_started"
	SettlementStatusInProgress          SettlementStatus = "in_progress"
	SettlementStatusCompleted           SettlementStatus = "completed"
	SettlementStatusCompletedWithErrors SettlementStatus = "completed_with_errors"
)

// Terminal reports whether the settlement reached a final state. A terminal
// record is the idempotency gate: no payout may ever be attempted for its
// period again.
func (s SettlementStatus) Terminal() bool {
	return s == SettlementStatusCompleted || s == SettlementStatusCompletedWithErrors
}

// PayoutStatus is the per-winner transfer state inside a settlement.
type PayoutStatus string

const (
	PayoutStatusPending PayoutStatus = "pending"
	PayoutStatusPaid    PayoutStatus = "paid"
	PayoutStatusFailed  PayoutStatus = "failed"
)

// SettlementRecord is the single source of truth for whether a period has
// been settled. One row per period key; its status guards the whole run and
// each winner row guards that winner's transfer.
type SettlementRecord struct {
	ID           string           `json:"id" gorm:"primaryKey"`
	PeriodKey    string           `json:"period_key" gorm:"uniqueIndex;not null"`
	Status       SettlementStatus `json:"status" gorm:"default:'not_started';index"`
	PoolCentimes int64            `json:"pool_centimes"`
	Currency     string           `json:"currency" gorm:"type:varchar(3);default:'CHF'"`
	ReportURL    string           `json:"report_url,omitempty"`
	CreatedAt    time.Time        `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time        `json:"updated_at" gorm:"autoUpdateTime"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`

	Winners []SettlementWinner `json:"winners,omitempty" gorm:"foreignKey:SettlementID"`
}

// SettlementWinner tracks one prize transfer. Persisted before the first
// payout attempt and updated after every attempt, so partial progress
// survives a crash and a resumed run skips rows already marked paid.
type SettlementWinner struct {
	ID             string       `json:"id" gorm:"primaryKey"`
	SettlementID   string       `json:"settlement_id" gorm:"not null;index"`
	ParticipantID  string       `json:"participant_id" gorm:"not null"`
	DisplayName    string       `json:"display_name"`
	Rank           int          `json:"rank" gorm:"not null"`
	BestScore      int64        `json:"best_score"`
	AmountCentimes int64        `json:"amount_centimes" gorm:"not null"`
	PayoutEmail    string       `json:"payout_email"`
	Status         PayoutStatus `json:"status" gorm:"default:'pending'"`
	Attempts       int          `json:"attempts" gorm:"default:0"`
	// ExternalTxID is the PayPal payout batch id returned on success.
	ExternalTxID string     `json:"external_tx_id,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	PaidAt       *time.Time `json:"paid_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}
