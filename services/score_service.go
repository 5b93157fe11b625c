// services/score_service.go
package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"dino-challenge-service/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MaxScoreValue matches the game client's score ceiling.
const MaxScoreValue = 99999

// DailyAttemptLimit is how many submissions a participant gets per calendar day.
const DailyAttemptLimit = 5

type ScoreService struct {
	DB     *gorm.DB
	Access *AccessService
}

func NewScoreService(db *gorm.DB, access *AccessService) *ScoreService {
	return &ScoreService{DB: db, Access: access}
}

// SubmitResult is what an accepted submission reports back to the player.
type SubmitResult struct {
	Score             int64  `json:"score"`
	PeriodKey         string `json:"period_key"`
	PersonalBest      int64  `json:"personal_best"`
	IsNewBest         bool   `json:"is_new_best"`
	AttemptsRemaining int    `json:"attempts_remaining"`
}

// Submit validates and appends a score for the current period. The access
// check happens synchronously here, before the record is written — rejected
// submissions (no grant, bad value, daily limit) are expected outcomes and
// come back as the sentinel errors from errors.go. Submissions never touch
// settlement state and are not blocked by a settlement run.
func (s *ScoreService) Submit(participantID string, score int64, now time.Time) (*SubmitResult, error) {
	if score <= 0 || score > MaxScoreValue {
		return nil, fmt.Errorf("%w: %d (must be 1-%d)", ErrInvalidScore, score, MaxScoreValue)
	}

	granted, err := s.Access.IsGranted(participantID, now)
	if err != nil {
		return nil, fmt.Errorf("access check failed: %w", err)
	}
	if !granted {
		return nil, ErrAccessDenied
	}

	attempts, err := s.attemptsToday(participantID, now)
	if err != nil {
		return nil, err
	}
	if attempts >= DailyAttemptLimit {
		return nil, fmt.Errorf("%w (%d/%d)", ErrDailyLimitReached, attempts, DailyAttemptLimit)
	}

	periodKey := models.CurrentPeriod(now)
	record := models.ScoreRecord{
		ID:            uuid.NewString(),
		ParticipantID: participantID,
		PeriodKey:     periodKey,
		Value:         score,
		SubmittedAt:   now,
	}
	if err := s.DB.Create(&record).Error; err != nil {
		return nil, fmt.Errorf("failed to store score: %w", err)
	}

	best, err := s.personalBest(participantID, periodKey)
	if err != nil {
		return nil, err
	}

	return &SubmitResult{
		Score:             score,
		PeriodKey:         periodKey,
		PersonalBest:      best,
		IsNewBest:         score >= best,
		AttemptsRemaining: DailyAttemptLimit - attempts - 1,
	}, nil
}

func (s *ScoreService) personalBest(participantID, periodKey string) (int64, error) {
	var best int64
	err := s.DB.Model(&models.ScoreRecord{}).
		Where("participant_id = ? AND period_key = ?", participantID, periodKey).
		Select("COALESCE(MAX(value), 0)").Scan(&best).Error
	if err != nil {
		return 0, fmt.Errorf("failed to load personal best: %w", err)
	}
	return best, nil
}

func (s *ScoreService) attemptsToday(participantID string, now time.Time) (int, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	var count int64
	err := s.DB.Model(&models.ScoreRecord{}).
		Where("participant_id = ? AND submitted_at >= ? AND submitted_at < ?",
			participantID, dayStart, dayStart.AddDate(0, 0, 1)).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count attempts: %w", err)
	}
	return int(count), nil
}

// FindOrCreateParticipant upserts a participant on first interaction,
// keyed by Telegram id.
func (s *ScoreService) FindOrCreateParticipant(telegramID int64, username, displayName string) (*models.Participant, error) {
	var p models.Participant
	err := s.DB.First(&p, "telegram_id = ?", telegramID).Error
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if displayName == "" {
		displayName = username
	}
	p = models.Participant{
		ID:          uuid.NewString(),
		TelegramID:  telegramID,
		Username:    username,
		DisplayName: displayName,
		IsActive:    true,
	}
	if err := s.DB.Create(&p).Error; err != nil {
		return nil, fmt.Errorf("failed to create participant: %w", err)
	}
	log.Printf("✅ New participant registered: %s (telegram %d)", displayName, telegramID)
	return &p, nil
}

// SubmitScore serves POST /scores — the game client reports a run result.
func (s *ScoreService) SubmitScore(c *fiber.Ctx) error {
	type Req struct {
		TelegramID  int64  `json:"telegram_id"`
		Username    string `json:"username"`
		DisplayName string `json:"display_name"`
		Score       int64  `json:"score"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if req.TelegramID == 0 {
		return c.Status(400).JSON(fiber.Map{"error": "telegram_id is required"})
	}

	participant, err := s.FindOrCreateParticipant(req.TelegramID, req.Username, req.DisplayName)
	if err != nil {
		log.Printf("ERROR resolving participant %d: %v", req.TelegramID, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to resolve participant"})
	}

	result, err := s.Submit(participant.ID, req.Score, time.Now())
	switch {
	case errors.Is(err, ErrInvalidScore):
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrAccessDenied):
		return c.Status(403).JSON(fiber.Map{"error": "monthly entry required to submit scores"})
	case errors.Is(err, ErrDailyLimitReached):
		return c.Status(429).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		log.Printf("ERROR submitting score for %s: %v", participant.ID, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to submit score"})
	}

	return c.Status(201).JSON(result)
}
