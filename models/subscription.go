package models

import (
	"time"
)

// SubscriptionStatus is the provider-driven state of a recurring entry.
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusSuspended SubscriptionStatus = "suspended"
)

// Subscription is a recurring entry purchased through PayPal billing. An
// active subscription grants access continuously across periods and is only
// revoked by its own cancellation/suspension event, never by rollover.
type Subscription struct {
	ID            string `json:"id" gorm:"primaryKey"`
	ParticipantID string `json:"participant_id" gorm:"not null;index"`
	// ProviderSubID is the PayPal billing agreement / subscription id.
	ProviderSubID string             `json:"provider_sub_id" gorm:"uniqueIndex;not null"`
	Status        SubscriptionStatus `json:"status" gorm:"default:'active';index"`
	RenewalAnchor time.Time          `json:"renewal_anchor"`
	CancelledAt   *time.Time         `json:"cancelled_at,omitempty"`
	CreatedAt     time.Time          `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time          `json:"updated_at" gorm:"autoUpdateTime"`
}
