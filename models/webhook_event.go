package models

import (
	"time"
)

// WebhookEvent records every PayPal event id we have already processed.
// The primary key is the provider's event id, so a redelivered event fails
// the insert and is treated as a no-op.
type WebhookEvent struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	EventType  string    `json:"event_type"`
	ReceivedAt time.Time `json:"received_at" gorm:"autoCreateTime"`
}
