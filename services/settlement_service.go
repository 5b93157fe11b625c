// services/settlement_service.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"dino-challenge-service/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// DefaultMaxPayoutAttempts bounds transfer retries per winner within a run.
const DefaultMaxPayoutAttempts = 3

// SettlementService is the orchestrator for monthly settlement runs. The
// persisted SettlementRecord is the sole idempotency gate: a run only starts
// while no terminal record exists for the period, and each winner's transfer
// is only attempted while that winner is not already marked paid. Recovery
// after a crash resumes purely from the persisted record.
type SettlementService struct {
	DB          *gorm.DB
	Leaderboard *LeaderboardService
	Access      *AccessService
	Payments    *PaymentService
	Payout      PayoutGateway
	Notifier    Notifier       // optional
	Reports     ReportArchiver // optional
	Prize       PrizeConfig
	MaxAttempts int

	mu      sync.Mutex
	running map[string]bool
}

func NewSettlementService(db *gorm.DB, lb *LeaderboardService, access *AccessService,
	payments *PaymentService, payout PayoutGateway, notifier Notifier,
	reports ReportArchiver, prize PrizeConfig) *SettlementService {
	return &SettlementService{
		DB:          db,
		Leaderboard: lb,
		Access:      access,
		Payments:    payments,
		Payout:      payout,
		Notifier:    notifier,
		Reports:     reports,
		Prize:       prize,
		MaxAttempts: DefaultMaxPayoutAttempts,
		running:     make(map[string]bool),
	}
}

// MaybeRun is the scheduler entry point: settle the period immediately
// preceding now, unless it is already settled or mid-run. Both of those are
// normal no-ops, not errors.
func (s *SettlementService) MaybeRun(ctx context.Context, now time.Time) error {
	target := models.PreviousPeriod(now)
	err := s.Settle(ctx, target, false)
	if errors.Is(err, ErrAlreadySettled) || errors.Is(err, ErrSettlementRunning) {
		return nil
	}
	return err
}

// ForceSettle is the operator entry point: settle an explicitly supplied
// closed period (backfill of a missed month). With retryFailed, a
// completed-with-errors record is reopened and only its failed winners are
// retried; paid winners are never re-attempted.
func (s *SettlementService) ForceSettle(ctx context.Context, periodKey string, retryFailed bool) error {
	if _, err := models.ParsePeriod(periodKey); err != nil {
		return err
	}
	if periodKey >= models.CurrentPeriod(time.Now()) {
		return fmt.Errorf("period %s is not closed yet", periodKey)
	}
	return s.Settle(ctx, periodKey, retryFailed)
}

func (s *SettlementService) tryLock(periodKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[periodKey] {
		return false
	}
	s.running[periodKey] = true
	return true
}

func (s *SettlementService) unlock(periodKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, periodKey)
}

// Settle drives one run through the state machine:
// Checking -> Running -> {Completed, CompletedWithErrors}.
// Concurrent triggers for the same period serialize on the in-process guard
// plus the status-conditional updates; triggers for different periods run
// independently. Score submission traffic shares no lock with any of this.
func (s *SettlementService) Settle(ctx context.Context, periodKey string, retryFailed bool) error {
	if !s.tryLock(periodKey) {
		return ErrSettlementRunning
	}
	defer s.unlock(periodKey)

	record, winners, err := s.openRun(periodKey, retryFailed)
	if err != nil {
		if errors.Is(err, ErrAlreadySettled) {
			log.Printf("Settlement for %s already completed — trigger ignored", periodKey)
		}
		return err
	}
	log.Printf("🏁 Settlement run started for %s (pool %s, %d winner(s))",
		periodKey, FormatCentimes(record.PoolCentimes, record.Currency), len(winners))

	failures := 0
	paidThisRun := make(map[string]bool, len(winners))
	for i := range winners {
		w := &winners[i]
		if w.Status == models.PayoutStatusPaid {
			continue
		}
		if err := s.payWinner(ctx, record, w); err != nil {
			failures++
		} else {
			paidThisRun[w.ID] = true
		}
	}

	status := models.SettlementStatusCompleted
	if failures > 0 {
		status = models.SettlementStatusCompletedWithErrors
	}
	completedAt := time.Now()
	err = s.DB.Model(&models.SettlementRecord{}).
		Where("id = ? AND status = ?", record.ID, models.SettlementStatusInProgress).
		Updates(map[string]interface{}{
			"status":       status,
			"completed_at": &completedAt,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to finalize settlement for %s: %w", periodKey, err)
	}
	record.Status = status
	log.Printf("🏆 Settlement for %s finished: %s (%d/%d paid)",
		periodKey, status, len(winners)-failures, len(winners))

	// Terminal-state side effects. None of these may undo the settlement;
	// failures here are logged and reported, never propagated as run errors.
	if _, err := s.Access.ExpireOneTimeGrants(periodKey); err != nil {
		log.Printf("❌ Failed to expire one-time grants for %s: %v", periodKey, err)
	}
	s.notifyOutcome(ctx, record, winners, paidThisRun, failures)
	s.archiveReport(ctx, record, winners)
	return nil
}

// openRun performs the Checking state: load or create the period's record,
// enforce the idempotency gate, and return the winner rows to process. The
// not_started->in_progress and reopen transitions are status-conditional
// updates, so only one actor can win them.
func (s *SettlementService) openRun(periodKey string, retryFailed bool) (*models.SettlementRecord, []models.SettlementWinner, error) {
	var record models.SettlementRecord
	err := s.DB.First(&record, "period_key = ?", periodKey).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return s.createRun(periodKey)
	case err != nil:
		return nil, nil, fmt.Errorf("failed to load settlement record for %s: %w", periodKey, err)
	}

	switch record.Status {
	case models.SettlementStatusCompleted:
		return nil, nil, ErrAlreadySettled
	case models.SettlementStatusCompletedWithErrors:
		if !retryFailed {
			return nil, nil, ErrAlreadySettled
		}
		reopen := s.DB.Model(&models.SettlementRecord{}).
			Where("id = ? AND status = ?", record.ID, models.SettlementStatusCompletedWithErrors).
			Updates(map[string]interface{}{
				"status":       models.SettlementStatusInProgress,
				"completed_at": nil,
			})
		if reopen.Error != nil {
			return nil, nil, reopen.Error
		}
		if reopen.RowsAffected == 0 {
			return nil, nil, ErrSettlementRunning
		}
		log.Printf("♻️  Reopened settlement for %s to retry failed payouts", periodKey)
	case models.SettlementStatusNotStarted:
		claim := s.DB.Model(&models.SettlementRecord{}).
			Where("id = ? AND status = ?", record.ID, models.SettlementStatusNotStarted).
			Update("status", models.SettlementStatusInProgress)
		if claim.Error != nil {
			return nil, nil, claim.Error
		}
		if claim.RowsAffected == 0 {
			return nil, nil, ErrSettlementRunning
		}
	case models.SettlementStatusInProgress:
		// Crash recovery or operator resume of the same run.
		log.Printf("Resuming in-progress settlement for %s", periodKey)
	}
	record.Status = models.SettlementStatusInProgress

	var winners []models.SettlementWinner
	if err := s.DB.Where("settlement_id = ?", record.ID).Order("rank ASC").Find(&winners).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to load winners for %s: %w", periodKey, err)
	}
	if len(winners) == 0 {
		// Crashed after the record was claimed but before the plan was
		// persisted; the closed period's scores are immutable, so the
		// recomputed plan is identical.
		plan, err := s.buildPlan(periodKey, record.PoolCentimes)
		if err != nil {
			return nil, nil, err
		}
		winners, err = s.persistPlan(record.ID, plan)
		if err != nil {
			return nil, nil, err
		}
	}
	return &record, winners, nil
}

func (s *SettlementService) createRun(periodKey string) (*models.SettlementRecord, []models.SettlementWinner, error) {
	pool, err := s.Payments.PoolCentimes(periodKey)
	if err != nil {
		return nil, nil, err
	}
	record := models.SettlementRecord{
		ID:           uuid.NewString(),
		PeriodKey:    periodKey,
		Status:       models.SettlementStatusInProgress,
		PoolCentimes: pool,
		Currency:     s.Prize.Currency,
	}
	// The unique index on period_key makes this the creation race arbiter.
	if err := s.DB.Create(&record).Error; err != nil {
		var existing models.SettlementRecord
		if lookupErr := s.DB.First(&existing, "period_key = ?", periodKey).Error; lookupErr == nil {
			// Another trigger created the record first.
			return nil, nil, ErrSettlementRunning
		}
		return nil, nil, fmt.Errorf("failed to create settlement record for %s: %w", periodKey, err)
	}

	plan, err := s.buildPlan(periodKey, pool)
	if err != nil {
		return nil, nil, err
	}
	winners, err := s.persistPlan(record.ID, plan)
	if err != nil {
		return nil, nil, err
	}
	return &record, winners, nil
}

func (s *SettlementService) buildPlan(periodKey string, poolCentimes int64) ([]PrizeAward, error) {
	standings, err := s.Leaderboard.Rank(periodKey)
	if err != nil {
		return nil, fmt.Errorf("failed to rank period %s: %w", periodKey, err)
	}
	return ComputePlan(standings, poolCentimes, s.Prize), nil
}

// persistPlan writes the winner rows before any payout is attempted, so a
// crash mid-batch leaves a recoverable in-progress record.
func (s *SettlementService) persistPlan(settlementID string, plan []PrizeAward) ([]models.SettlementWinner, error) {
	winners := make([]models.SettlementWinner, 0, len(plan))
	for _, award := range plan {
		winners = append(winners, models.SettlementWinner{
			ID:             uuid.NewString(),
			SettlementID:   settlementID,
			ParticipantID:  award.ParticipantID,
			DisplayName:    award.DisplayName,
			Rank:           award.Rank,
			BestScore:      award.BestScore,
			AmountCentimes: award.AmountCentimes,
			PayoutEmail:    award.PayoutEmail,
			Status:         models.PayoutStatusPending,
		})
	}
	if len(winners) == 0 {
		return nil, nil
	}
	if err := s.DB.Create(&winners).Error; err != nil {
		return nil, fmt.Errorf("failed to persist payout plan: %w", err)
	}
	return winners, nil
}

// payWinner attempts one winner's transfer with a bounded retry budget and
// persists progress after every attempt. A missing payout email is a
// configuration failure: recorded, skipped, batch continues.
func (s *SettlementService) payWinner(ctx context.Context, record *models.SettlementRecord, w *models.SettlementWinner) error {
	if w.PayoutEmail == "" {
		w.Status = models.PayoutStatusFailed
		w.LastError = ErrNoPayoutEmail.Error()
		if err := s.saveWinner(w); err != nil {
			return err
		}
		log.Printf("⚠️  Winner #%d (%s) skipped: %v", w.Rank, w.DisplayName, ErrNoPayoutEmail)
		return ErrNoPayoutEmail
	}

	reference := payoutReference(record.PeriodKey, w)
	var lastErr error
	for attempt := 1; attempt <= s.MaxAttempts; attempt++ {
		txID, err := s.Payout.Issue(ctx, w.PayoutEmail, w.AmountCentimes, record.Currency, reference)
		w.Attempts++
		if err == nil {
			paidAt := time.Now()
			w.Status = models.PayoutStatusPaid
			w.ExternalTxID = txID
			w.LastError = ""
			w.PaidAt = &paidAt
			if err := s.saveWinner(w); err != nil {
				return err
			}
			log.Printf("💸 Paid winner #%d (%s): %s [%s]",
				w.Rank, w.DisplayName, FormatCentimes(w.AmountCentimes, record.Currency), txID)
			return nil
		}
		lastErr = err
		w.LastError = err.Error()
		if saveErr := s.saveWinner(w); saveErr != nil {
			return saveErr
		}
		log.Printf("❌ Payout attempt %d/%d for winner #%d (%s) failed: %v",
			attempt, s.MaxAttempts, w.Rank, w.DisplayName, err)
	}

	w.Status = models.PayoutStatusFailed
	if err := s.saveWinner(w); err != nil {
		return err
	}
	return lastErr
}

func (s *SettlementService) saveWinner(w *models.SettlementWinner) error {
	err := s.DB.Model(&models.SettlementWinner{}).
		Where("id = ?", w.ID).
		Updates(map[string]interface{}{
			"status":         w.Status,
			"attempts":       w.Attempts,
			"external_tx_id": w.ExternalTxID,
			"last_error":     w.LastError,
			"paid_at":        w.PaidAt,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to persist winner %s: %w", w.ID, err)
	}
	return nil
}

func payoutReference(periodKey string, w *models.SettlementWinner) string {
	return fmt.Sprintf("%s-r%d-%s", periodKey, w.Rank, slug.Make(w.DisplayName))
}

// notifyOutcome congratulates winners paid by this run (a resumed run must
// not re-message winners the crashed run already handled) and sends the
// operator a summary with remediation lines for every winner that still
// needs a manual payout.
func (s *SettlementService) notifyOutcome(ctx context.Context, record *models.SettlementRecord, winners []models.SettlementWinner, paidThisRun map[string]bool, failures int) {
	if s.Notifier == nil {
		return
	}

	medals := []string{"🥇", "🥈", "🥉"}
	var summary strings.Builder
	fmt.Fprintf(&summary, "🏆 RÉSULTATS DU CONCOURS — %s\n", record.PeriodKey)
	fmt.Fprintf(&summary, "💰 Cagnotte : %s\n", FormatCentimes(record.PoolCentimes, record.Currency))
	fmt.Fprintf(&summary, "🏠 Part restante : %s\n\n",
		FormatCentimes(record.PoolCentimes-winnersTotal(winners), record.Currency))

	for _, w := range winners {
		medal := "🏅"
		if w.Rank-1 < len(medals) {
			medal = medals[w.Rank-1]
		}
		fmt.Fprintf(&summary, "%s #%d %s — %s (score %s)\n",
			medal, w.Rank, w.DisplayName,
			FormatCentimes(w.AmountCentimes, record.Currency), FormatScore(w.BestScore))

		if w.Status == models.PayoutStatusPaid {
			if !paidThisRun[w.ID] {
				continue
			}
			var p models.Participant
			if err := s.DB.First(&p, "id = ?", w.ParticipantID).Error; err == nil {
				msg := fmt.Sprintf("%s Félicitations ! Vous terminez #%d du concours %s et remportez %s.\n💸 Le paiement a été envoyé sur votre compte PayPal.",
					medal, w.Rank, record.PeriodKey, FormatCentimes(w.AmountCentimes, record.Currency))
				if err := s.Notifier.Notify(ctx, p.TelegramID, msg); err != nil {
					log.Printf("⚠️  Failed to notify winner %s: %v", w.DisplayName, err)
				}
			}
			continue
		}
		email := w.PayoutEmail
		if email == "" {
			email = "❌ EMAIL MANQUANT"
		}
		fmt.Fprintf(&summary, "   ⚠️ PAIEMENT MANUEL REQUIS — email: %s, erreur: %s\n", email, w.LastError)
	}

	if failures > 0 {
		fmt.Fprintf(&summary, "\n⚠️ %d paiement(s) en échec. Envoyez-les manuellement via PayPal, puis relancez avec retry_failed si besoin.", failures)
	}
	if err := s.Notifier.NotifyOperator(ctx, summary.String()); err != nil {
		log.Printf("⚠️  Failed to send operator summary for %s: %v", record.PeriodKey, err)
	}
}

func winnersTotal(winners []models.SettlementWinner) int64 {
	var total int64
	for _, w := range winners {
		total += w.AmountCentimes
	}
	return total
}

// archiveReport uploads the settlement outcome as JSON to object storage
// and stores the resulting URL on the record. Best-effort.
func (s *SettlementService) archiveReport(ctx context.Context, record *models.SettlementRecord, winners []models.SettlementWinner) {
	if s.Reports == nil {
		return
	}
	report := fiber.Map{
		"period":        record.PeriodKey,
		"status":        record.Status,
		"pool_centimes": record.PoolCentimes,
		"currency":      record.Currency,
		"winners":       winners,
		"generated_at":  time.Now().UTC().Format(time.RFC3339),
	}
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Printf("❌ Failed to encode settlement report for %s: %v", record.PeriodKey, err)
		return
	}
	key := fmt.Sprintf("settlements/%s.json", record.PeriodKey)
	url, err := s.Reports.ArchiveReport(ctx, key, body)
	if err != nil {
		log.Printf("❌ Failed to archive settlement report for %s: %v", record.PeriodKey, err)
		return
	}
	if err := s.DB.Model(&models.SettlementRecord{}).
		Where("id = ?", record.ID).
		Update("report_url", url).Error; err != nil {
		log.Printf("⚠️  Failed to store report URL for %s: %v", record.PeriodKey, err)
		return
	}
	log.Printf("📄 Settlement report archived: %s", url)
}

// --- Admin handlers ---

// ForceSettleHandler serves POST /admin/settlements/:period/force.
// ?retry_failed=true reopens a completed-with-errors record.
func (s *SettlementService) ForceSettleHandler(c *fiber.Ctx) error {
	periodKey := c.Params("period")
	retryFailed := c.Query("retry_failed") == "true"

	err := s.ForceSettle(c.Context(), periodKey, retryFailed)
	switch {
	case errors.Is(err, ErrAlreadySettled):
		return c.Status(409).JSON(fiber.Map{"error": "period already settled", "period": periodKey})
	case errors.Is(err, ErrSettlementRunning):
		return c.Status(409).JSON(fiber.Map{"error": "settlement already in progress", "period": periodKey})
	case err != nil:
		log.Printf("ERROR force-settling %s: %v", periodKey, err)
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	return s.respondWithSettlement(c, periodKey)
}

// GetSettlement serves GET /admin/settlements/:period.
func (s *SettlementService) GetSettlement(c *fiber.Ctx) error {
	return s.respondWithSettlement(c, c.Params("period"))
}

func (s *SettlementService) respondWithSettlement(c *fiber.Ctx, periodKey string) error {
	var record models.SettlementRecord
	err := s.DB.Preload("Winners", func(db *gorm.DB) *gorm.DB {
		return db.Order("rank ASC")
	}).First(&record, "period_key = ?", periodKey).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "no settlement for period", "period": periodKey})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(record)
}

// ExpireGrantsHandler serves POST /admin/periods/:period/expire — a manual
// re-run of the rollover expiration (idempotent).
func (s *SettlementService) ExpireGrantsHandler(c *fiber.Ctx) error {
	periodKey := c.Params("period")
	if _, err := models.ParsePeriod(periodKey); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	expired, err := s.Access.ExpireOneTimeGrants(periodKey)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to expire grants"})
	}
	return c.JSON(fiber.Map{"period": periodKey, "expired": expired})
}
