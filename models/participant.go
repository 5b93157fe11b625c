package models

import (
	"time"
)

// Participant is a contest player. Created on first interaction with the
// front-end; never deleted, only deactivated.
type Participant struct {
	ID          string `json:"id" gorm:"primaryKey"`
	TelegramID  int64  `json:"telegram_id" gorm:"uniqueIndex;not null"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	// PayoutEmail is the PayPal address prizes are sent to. Empty until the
	// participant configures it; winners without one cannot be paid.
	PayoutEmail string `json:"payout_email"`
	// PaidPeriodKey is the period the participant's latest confirmed one-time
	// payment bought access for. Cleared at rollover by the access manager.
	PaidPeriodKey string    `json:"paid_period_key" gorm:"index"`
	IsActive      bool      `json:"is_active" gorm:"default:true"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
