package models

import (
	"time"
)

// PaymentKind distinguishes single-month purchases from subscription charges
type PaymentKind string

const (
	PaymentKindOneTime            PaymentKind = "one_time"
	PaymentKindSubscriptionCharge PaymentKind = "subscription_charge"
)

// PaymentStatus is the lifecycle of a payment record
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusConfirmed PaymentStatus = "confirmed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Payment is an entry-fee payment tagged with the period it buys access for.
// Immutable once confirmed. Confirmed payments for a period make up that
// period's prize pool. Amounts are in currency minor units (centimes).
type Payment struct {
	ID             string        `json:"id" gorm:"primaryKey"`
	ParticipantID  string        `json:"participant_id" gorm:"not null;index"`
	PeriodKey      string        `json:"period_key" gorm:"not null;index"`
	AmountCentimes int64         `json:"amount_centimes" gorm:"not null"`
	Currency       string        `json:"currency" gorm:"type:varchar(3);default:'CHF'"`
	Kind           PaymentKind   `json:"kind" gorm:"not null"`
	Status         PaymentStatus `json:"status" gorm:"default:'pending';index"`
	// ProviderTxnID is the PayPal capture/sale id; unique so a redelivered
	// webhook cannot confirm the same charge twice.
	ProviderTxnID string     `json:"provider_txn_id" gorm:"uniqueIndex"`
	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}
