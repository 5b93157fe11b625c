// services/payment_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"dino-challenge-service/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EntryPriceCentimes is the monthly entry fee: 11.00 CHF, taxes included.
const EntryPriceCentimes int64 = 1100

type PaymentService struct {
	DB       *gorm.DB
	Notifier Notifier // optional
}

func NewPaymentService(db *gorm.DB, notifier Notifier) *PaymentService {
	return &PaymentService{DB: db, Notifier: notifier}
}

// PoolCentimes is the prize pool for a period: the sum of all confirmed
// payments tagged with that period key.
func (s *PaymentService) PoolCentimes(periodKey string) (int64, error) {
	var total int64
	err := s.DB.Model(&models.Payment{}).
		Where("period_key = ? AND status = ?", periodKey, models.PaymentStatusConfirmed).
		Select("COALESCE(SUM(amount_centimes), 0)").Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum pool for %s: %w", periodKey, err)
	}
	return total, nil
}

// markEventProcessed inserts the provider event id, relying on the primary
// key so a redelivered event comes back as ErrDuplicateEvent.
func (s *PaymentService) markEventProcessed(eventID, eventType string) error {
	if eventID == "" {
		return fmt.Errorf("webhook event without id")
	}
	result := s.DB.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.WebhookEvent{ID: eventID, EventType: eventType})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrDuplicateEvent
	}
	return nil
}

// ConfirmOneTimePayment records a confirmed single-month entry and grants
// access for the period the payment lands in. Keyed by the provider capture
// id, so confirming the same charge twice is a no-op.
func (s *PaymentService) ConfirmOneTimePayment(telegramID int64, amountCentimes int64, providerTxnID string, now time.Time) error {
	if amountCentimes != EntryPriceCentimes {
		log.Printf("⚠️  One-time payment of %d centimes differs from entry price %d (telegram %d)",
			amountCentimes, EntryPriceCentimes, telegramID)
	}
	return s.confirmPayment(telegramID, amountCentimes, providerTxnID, models.PaymentKindOneTime, now)
}

// RecordSubscriptionCharge records a confirmed recurring charge; the amount
// joins the pool of the period the charge lands in.
func (s *PaymentService) RecordSubscriptionCharge(telegramID int64, amountCentimes int64, providerTxnID string, now time.Time) error {
	return s.confirmPayment(telegramID, amountCentimes, providerTxnID, models.PaymentKindSubscriptionCharge, now)
}

func (s *PaymentService) confirmPayment(telegramID int64, amountCentimes int64, providerTxnID string, kind models.PaymentKind, now time.Time) error {
	var p models.Participant
	if err := s.DB.First(&p, "telegram_id = ?", telegramID).Error; err != nil {
		return fmt.Errorf("participant with telegram id %d not found: %w", telegramID, err)
	}

	periodKey := models.CurrentPeriod(now)
	confirmedAt := now
	payment := models.Payment{
		ID:             uuid.NewString(),
		ParticipantID:  p.ID,
		PeriodKey:      periodKey,
		AmountCentimes: amountCentimes,
		Currency:       "CHF",
		Kind:           kind,
		Status:         models.PaymentStatusConfirmed,
		ProviderTxnID:  providerTxnID,
		ConfirmedAt:    &confirmedAt,
	}

	return s.DB.Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&payment)
		if result.Error != nil {
			return fmt.Errorf("failed to record payment: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			// Same provider transaction already confirmed.
			return nil
		}
		if kind == models.PaymentKindOneTime {
			if err := tx.Model(&models.Participant{}).
				Where("id = ?", p.ID).
				Update("paid_period_key", periodKey).Error; err != nil {
				return fmt.Errorf("failed to grant access: %w", err)
			}
		}
		log.Printf("✅ Payment confirmed: telegram %d, %d centimes (%s) for %s",
			telegramID, amountCentimes, kind, periodKey)
		return nil
	})
}

// ActivateSubscription upserts the provider subscription as active. A
// re-activation after suspension reinstates access.
func (s *PaymentService) ActivateSubscription(telegramID int64, providerSubID string, now time.Time) error {
	var p models.Participant
	if err := s.DB.First(&p, "telegram_id = ?", telegramID).Error; err != nil {
		return fmt.Errorf("participant with telegram id %d not found: %w", telegramID, err)
	}

	sub := models.Subscription{
		ID:            uuid.NewString(),
		ParticipantID: p.ID,
		ProviderSubID: providerSubID,
		Status:        models.SubscriptionStatusActive,
		RenewalAnchor: now,
	}
	return s.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "provider_sub_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"status":         models.SubscriptionStatusActive,
			"renewal_anchor": now,
			"cancelled_at":   nil,
		}),
	}).Create(&sub).Error
}

// CancelSubscription transitions the provider subscription to cancelled;
// access via that subscription ends immediately.
func (s *PaymentService) CancelSubscription(providerSubID string, now time.Time) error {
	result := s.DB.Model(&models.Subscription{}).
		Where("provider_sub_id = ? AND status <> ?", providerSubID, models.SubscriptionStatusCancelled).
		Updates(map[string]interface{}{
			"status":       models.SubscriptionStatusCancelled,
			"cancelled_at": &now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		log.Printf("Cancel for unknown or already-cancelled subscription %s ignored", providerSubID)
	}
	return nil
}

// --- PayPal webhook ingestion ---

type paypalWebhook struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		ID       string `json:"id"`
		CustomID string `json:"custom_id"`
		Amount   struct {
			Value        string `json:"value"`
			CurrencyCode string `json:"currency_code"`
		} `json:"amount"`
		BillingAgreementID string `json:"billing_agreement_id"`
		Subscriber         struct {
			CustomID string `json:"custom_id"`
		} `json:"subscriber"`
	} `json:"resource"`
}

// telegramIDFromCustom parses the "dino_monthly_<telegram_id>" tag the
// checkout flow attaches to every order and subscription.
func telegramIDFromCustom(custom string) (int64, bool) {
	if !strings.HasPrefix(custom, "dino_monthly_") {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(custom, "dino_monthly_"), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func centimesFromValue(value string) (int64, error) {
	parts := strings.SplitN(value, ".", 2)
	whole, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", value)
	}
	var frac int64
	if len(parts) == 2 {
		padded := (parts[1] + "00")[:2]
		frac, err = strconv.ParseInt(padded, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q", value)
		}
	}
	return whole*100 + frac, nil
}

// HandlePayPalWebhook serves POST /webhooks/paypal. Signature validation is
// done upstream by the gateway; here we deduplicate by event id and apply
// the payment/subscription transition. Duplicate deliveries answer 200 with
// no effect.
func (s *PaymentService) HandlePayPalWebhook(c *fiber.Ctx) error {
	var event paypalWebhook
	if err := c.BodyParser(&event); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid webhook payload"})
	}

	if err := s.markEventProcessed(event.ID, event.EventType); err != nil {
		if errors.Is(err, ErrDuplicateEvent) {
			log.Printf("Duplicate webhook event %s ignored", event.ID)
			return c.JSON(fiber.Map{"status": "duplicate"})
		}
		log.Printf("ERROR recording webhook event %s: %v", event.ID, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to record event"})
	}

	now := time.Now()
	var err error
	switch event.EventType {
	case "PAYMENT.CAPTURE.COMPLETED":
		telegramID, ok := telegramIDFromCustom(event.Resource.CustomID)
		if !ok {
			log.Printf("Webhook %s: capture without contest custom id, skipping", event.ID)
			return c.JSON(fiber.Map{"status": "skipped"})
		}
		var amount int64
		amount, err = centimesFromValue(event.Resource.Amount.Value)
		if err == nil {
			err = s.ConfirmOneTimePayment(telegramID, amount, event.Resource.ID, now)
			if err == nil {
				s.notifyPayment(c.Context(), telegramID, amount)
			}
		}
	case "BILLING.SUBSCRIPTION.ACTIVATED":
		telegramID, ok := telegramIDFromCustom(event.Resource.Subscriber.CustomID)
		if !ok {
			log.Printf("Webhook %s: subscription without contest custom id, skipping", event.ID)
			return c.JSON(fiber.Map{"status": "skipped"})
		}
		err = s.ActivateSubscription(telegramID, event.Resource.ID, now)
	case "BILLING.SUBSCRIPTION.CANCELLED":
		err = s.CancelSubscription(event.Resource.ID, now)
	case "PAYMENT.SALE.COMPLETED":
		// Recurring charge on an existing subscription.
		var sub models.Subscription
		if dbErr := s.DB.First(&sub, "provider_sub_id = ?", event.Resource.BillingAgreementID).Error; dbErr != nil {
			log.Printf("Webhook %s: sale for unknown subscription %s, skipping",
				event.ID, event.Resource.BillingAgreementID)
			return c.JSON(fiber.Map{"status": "skipped"})
		}
		var p models.Participant
		if dbErr := s.DB.First(&p, "id = ?", sub.ParticipantID).Error; dbErr != nil {
			err = dbErr
		} else {
			var amount int64
			amount, err = centimesFromValue(event.Resource.Amount.Value)
			if err == nil {
				err = s.RecordSubscriptionCharge(p.TelegramID, amount, event.Resource.ID, now)
				if err == nil {
					err = s.DB.Model(&models.Subscription{}).
						Where("id = ?", sub.ID).
						Update("renewal_anchor", now).Error
				}
				if err == nil {
					// Suspension is local bookkeeping; the provider keeps
					// charging, so a successful charge reinstates access.
					reinstate := s.DB.Model(&models.Subscription{}).
						Where("id = ? AND status = ?", sub.ID, models.SubscriptionStatusSuspended).
						Update("status", models.SubscriptionStatusActive)
					err = reinstate.Error
					if err == nil && reinstate.RowsAffected > 0 {
						log.Printf("✅ Subscription %s reinstated by renewal charge", sub.ProviderSubID)
					}
				}
			}
		}
	default:
		log.Printf("Webhook event type %s ignored", event.EventType)
		return c.JSON(fiber.Map{"status": "ignored"})
	}

	if err != nil {
		log.Printf("ERROR handling webhook %s (%s): %v", event.ID, event.EventType, err)
		// Release the dedupe marker so the provider's redelivery retries the
		// transition; only successfully processed events stay marked.
		if delErr := s.DB.Delete(&models.WebhookEvent{ID: event.ID}).Error; delErr != nil {
			log.Printf("ERROR releasing webhook event %s: %v", event.ID, delErr)
		}
		return c.Status(500).JSON(fiber.Map{"error": "failed to process event"})
	}
	return c.JSON(fiber.Map{"status": "processed"})
}

func (s *PaymentService) notifyPayment(ctx context.Context, telegramID int64, amountCentimes int64) {
	if s.Notifier == nil {
		return
	}
	msg := fmt.Sprintf("✅ Paiement reçu : %s\n🎮 Vous participez au concours de ce mois. Bonne chance !",
		FormatCentimes(amountCentimes, "CHF"))
	if err := s.Notifier.Notify(ctx, telegramID, msg); err != nil {
		log.Printf("⚠️  Failed to notify telegram %d of payment: %v", telegramID, err)
	}
}

// SetPayoutEmail serves PATCH /participants/:telegram_id/payout-email.
func (s *PaymentService) SetPayoutEmail(c *fiber.Ctx) error {
	telegramID, err := c.ParamsInt("telegram_id")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid telegram_id"})
	}
	type Req struct {
		PayoutEmail string `json:"payout_email"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}
	email := strings.TrimSpace(req.PayoutEmail)
	if email == "" || !strings.Contains(email, "@") {
		return c.Status(400).JSON(fiber.Map{"error": "payout_email must be a valid email address"})
	}

	result := s.DB.Model(&models.Participant{}).
		Where("telegram_id = ?", telegramID).
		Update("payout_email", email)
	if result.Error != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to update payout email"})
	}
	if result.RowsAffected == 0 {
		return c.Status(404).JSON(fiber.Map{"error": "participant not found"})
	}
	return c.JSON(fiber.Map{"message": "payout email updated"})
}
