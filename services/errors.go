package services

import (
	"errors"
)

// Error taxonomy for the settlement engine and the submission path.
// Per-winner payout failures are never surfaced as errors from a run; they
// are recorded on the winner row and the batch continues.
var (
	// ErrAlreadySettled: the period has a terminal settlement record.
	// Re-settling is rejected as a no-op and surfaced to the operator.
	ErrAlreadySettled = errors.New("period already settled")

	// ErrSettlementRunning: another trigger is mid-run for the same period
	// in this process. The caller observes the in-progress state and no-ops.
	ErrSettlementRunning = errors.New("settlement already running for period")

	// ErrNoPayoutEmail: winner has no PayPal email configured. The winner is
	// marked failed and the batch continues.
	ErrNoPayoutEmail = errors.New("no payout email configured")

	// ErrAccessDenied: participant has no grant for the current period.
	// A normal, expected submission outcome, not a failure.
	ErrAccessDenied = errors.New("no contest access for current period")

	// ErrInvalidScore: non-positive or out-of-range score value.
	ErrInvalidScore = errors.New("invalid score value")

	// ErrDailyLimitReached: participant used up today's attempts.
	ErrDailyLimitReached = errors.New("daily attempt limit reached")

	// ErrDuplicateEvent: webhook event id was already processed.
	ErrDuplicateEvent = errors.New("webhook event already processed")
)
