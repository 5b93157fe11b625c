// services/access_service.go
package services

import (
	"errors"
	"log"
	"time"

	"dino-challenge-service/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type AccessService struct {
	DB *gorm.DB
}

func NewAccessService(db *gorm.DB) *AccessService {
	return &AccessService{DB: db}
}

// IsGranted reports whether the participant may submit scores at the given
// instant: either a confirmed one-time payment for that instant's period, or
// an active subscription. Subscriptions are unaffected by period rollover.
func (s *AccessService) IsGranted(participantID string, at time.Time) (bool, error) {
	var p models.Participant
	if err := s.DB.First(&p, "id = ?", participantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	if !p.IsActive {
		return false, nil
	}
	if p.PaidPeriodKey != "" && p.PaidPeriodKey == models.CurrentPeriod(at) {
		return true, nil
	}

	var count int64
	err := s.DB.Model(&models.Subscription{}).
		Where("participant_id = ? AND status = ?", participantID, models.SubscriptionStatusActive).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ExpireOneTimeGrants drops every grant backed by a one-time payment for the
// just-closed period. Idempotent: a second call for the same key matches
// zero rows. Subscription-backed access is untouched.
func (s *AccessService) ExpireOneTimeGrants(periodKey string) (int64, error) {
	result := s.DB.Model(&models.Participant{}).
		Where("paid_period_key = ?", periodKey).
		Update("paid_period_key", "")
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		log.Printf("Expired %d one-time grant(s) for period %s", result.RowsAffected, periodKey)
	}
	return result.RowsAffected, nil
}

// EvaluateSubscriptions suspends active subscriptions whose next renewal
// never arrived: the anchor marks the last charge, so a subscription lapses
// only once a full month plus a 3-day grace window has passed since then.
// Every confirmed renewal charge bumps the anchor, so a paid-up subscriber
// is never touched regardless of where the anchor falls in the calendar
// month. A renewal charge landing later reinstates the subscription.
func (s *AccessService) EvaluateSubscriptions(at time.Time) (int64, error) {
	cutoff := at.AddDate(0, -1, -3)

	var subs []models.Subscription
	err := s.DB.Where("status = ? AND renewal_anchor < ?", models.SubscriptionStatusActive, cutoff).
		Find(&subs).Error
	if err != nil {
		return 0, err
	}

	var suspended int64
	for _, sub := range subs {
		err = s.DB.Model(&models.Subscription{}).
			Where("id = ? AND status = ?", sub.ID, models.SubscriptionStatusActive).
			Update("status", models.SubscriptionStatusSuspended).Error
		if err != nil {
			return suspended, err
		}
		suspended++
		log.Printf("⚠️  Suspended subscription %s (participant %s): no renewal charge since %s",
			sub.ID, sub.ParticipantID, sub.RenewalAnchor.Format("2006-01-02"))
	}
	return suspended, nil
}

// GetAccessStatus serves GET /participants/:telegram_id/access.
func (s *AccessService) GetAccessStatus(c *fiber.Ctx) error {
	telegramID, err := c.ParamsInt("telegram_id")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid telegram_id"})
	}

	var p models.Participant
	if err := s.DB.First(&p, "telegram_id = ?", telegramID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "participant not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}

	now := time.Now()
	granted, err := s.IsGranted(p.ID, now)
	if err != nil {
		log.Printf("ERROR checking access for %s: %v", p.ID, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to check access"})
	}

	via := ""
	if granted {
		if p.PaidPeriodKey == models.CurrentPeriod(now) {
			via = "one_time"
		} else {
			via = "subscription"
		}
	}

	return c.JSON(fiber.Map{
		"participant_id": p.ID,
		"telegram_id":    p.TelegramID,
		"granted":        granted,
		"via":            via,
		"period":         models.CurrentPeriod(now),
	})
}
