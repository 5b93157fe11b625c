// services/leaderboard_service.go
package services

import (
	"log"
	"sort"
	"strconv"
	"time"

	"dino-challenge-service/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type LeaderboardService struct {
	DB *gorm.DB
}

func NewLeaderboardService(db *gorm.DB) *LeaderboardService {
	return &LeaderboardService{DB: db}
}

// Standing is one ranked row: a participant and their best score for the
// period, carrying the payout fields the prize calculator needs.
type Standing struct {
	ParticipantID string    `json:"participant_id"`
	DisplayName   string    `json:"display_name"`
	PayoutEmail   string    `json:"-"`
	TelegramID    int64     `json:"-"`
	BestScore     int64     `json:"best_score"`
	AchievedAt    time.Time `json:"achieved_at"`
	Rank          int       `json:"rank"`
}

// Rank reduces a period's score records to an ordered, deduplicated
// standings list: best score per participant, descending, ties broken by
// the earliest submission that achieved the best score. Pure function of the
// period's records — recomputing on unchanged input yields the same result
// regardless of row order.
func (s *LeaderboardService) Rank(periodKey string) ([]Standing, error) {
	var records []models.ScoreRecord
	if err := s.DB.Where("period_key = ?", periodKey).Find(&records).Error; err != nil {
		return nil, err
	}

	best := make(map[string]Standing)
	for _, r := range records {
		cur, ok := best[r.ParticipantID]
		if !ok || r.Value > cur.BestScore ||
			(r.Value == cur.BestScore && r.SubmittedAt.Before(cur.AchievedAt)) {
			best[r.ParticipantID] = Standing{
				ParticipantID: r.ParticipantID,
				BestScore:     r.Value,
				AchievedAt:    r.SubmittedAt,
			}
		}
	}
	if len(best) == 0 {
		return nil, nil
	}

	standings := make([]Standing, 0, len(best))
	for _, st := range best {
		standings = append(standings, st)
	}
	sort.Slice(standings, func(i, j int) bool {
		if standings[i].BestScore != standings[j].BestScore {
			return standings[i].BestScore > standings[j].BestScore
		}
		if !standings[i].AchievedAt.Equal(standings[j].AchievedAt) {
			return standings[i].AchievedAt.Before(standings[j].AchievedAt)
		}
		return standings[i].ParticipantID < standings[j].ParticipantID
	})

	// Attach display/payout data in one pass.
	ids := make([]string, 0, len(standings))
	for _, st := range standings {
		ids = append(ids, st.ParticipantID)
	}
	var participants []models.Participant
	if err := s.DB.Where("id IN ?", ids).Find(&participants).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]models.Participant, len(participants))
	for _, p := range participants {
		byID[p.ID] = p
	}
	for i := range standings {
		p := byID[standings[i].ParticipantID]
		standings[i].DisplayName = p.DisplayName
		standings[i].PayoutEmail = p.PayoutEmail
		standings[i].TelegramID = p.TelegramID
		standings[i].Rank = i + 1
	}
	return standings, nil
}

// GetLeaderboard serves GET /leaderboard?month=YYYY-MM&limit=N.
// Defaults to the current period and the top 10.
func (s *LeaderboardService) GetLeaderboard(c *fiber.Ctx) error {
	periodKey := c.Query("month")
	if periodKey == "" {
		periodKey = models.CurrentPeriod(time.Now())
	} else if _, err := models.ParsePeriod(periodKey); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid month (use YYYY-MM)"})
	}

	limit := 10
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return c.Status(400).JSON(fiber.Map{"error": "limit must be a positive integer"})
		}
		limit = n
	}

	standings, err := s.Rank(periodKey)
	if err != nil {
		log.Printf("ERROR ranking period %s: %v", periodKey, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to compute leaderboard"})
	}
	if len(standings) > limit {
		standings = standings[:limit]
	}

	return c.JSON(fiber.Map{
		"month":       periodKey,
		"count":       len(standings),
		"leaderboard": standings,
	})
}
