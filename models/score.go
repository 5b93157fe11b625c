package models

import (
	"time"
)

// ScoreRecord is one accepted score submission. Append-only within a period;
// only the maximum value per participant counts toward the ranking. Records
// are partitioned by period key, so rollover needs no physical reset.
type ScoreRecord struct {
	ID            string    `json:"id" gorm:"primaryKey"`
	ParticipantID string    `json:"participant_id" gorm:"not null;index:idx_scores_period_participant"`
	PeriodKey     string    `json:"period_key" gorm:"not null;index:idx_scores_period_participant;index"`
	Value         int64     `json:"value" gorm:"not null"`
	SubmittedAt   time.Time `json:"submitted_at" gorm:"not null;index"`
}
