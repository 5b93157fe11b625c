// services/gateways.go
package services

import (
	"context"
)

// PayoutGateway issues a single monetary transfer to a PayPal address.
// Implementations need not deduplicate; the settlement orchestrator tracks
// idempotency through the per-winner payout status.
type PayoutGateway interface {
	Issue(ctx context.Context, email string, amountCentimes int64, currency, reference string) (string, error)
}

// Notifier delivers a message to a participant or to the operator.
// Best-effort: callers log failures and never let them affect outcomes.
type Notifier interface {
	Notify(ctx context.Context, telegramID int64, message string) error
	NotifyOperator(ctx context.Context, message string) error
}

// ReportArchiver stores a settlement report and returns its public URL.
type ReportArchiver interface {
	ArchiveReport(ctx context.Context, key string, body []byte) (string, error)
}
