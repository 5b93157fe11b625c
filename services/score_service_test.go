package services

import (
	"testing"
	"time"

	"dino-challenge-service/models"
	"dino-challenge-service/testutil"

	"github.com/stretchr/testify/require"
)

func TestSubmitRejectsWithoutAccess(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := NewScoreService(db, NewAccessService(db))

	p := seedParticipant(t, db, 1, "p", "")

	_, err := svc.Submit(p.ID, 100, time.Now())
	require.ErrorIs(t, err, ErrAccessDenied)
}

func TestSubmitRejectsInvalidScores(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := NewScoreService(db, NewAccessService(db))

	p := seedParticipant(t, db, 1, "p", "")

	_, err := svc.Submit(p.ID, 0, time.Now())
	require.ErrorIs(t, err, ErrInvalidScore)

	_, err = svc.Submit(p.ID, -5, time.Now())
	require.ErrorIs(t, err, ErrInvalidScore)

	_, err = svc.Submit(p.ID, MaxScoreValue+1, time.Now())
	require.ErrorIs(t, err, ErrInvalidScore)
}

func TestSubmitTracksPersonalBest(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := NewScoreService(db, NewAccessService(db))

	now := time.Date(2025, 8, 10, 12, 0, 0, 0, time.UTC)
	p := seedParticipant(t, db, 1, "p", "")
	seedOneTimeGrant(t, db, &p, "2025-08")

	res, err := svc.Submit(p.ID, 300, now)
	require.NoError(t, err)
	require.True(t, res.IsNewBest)
	require.Equal(t, int64(300), res.PersonalBest)
	require.Equal(t, "2025-08", res.PeriodKey)
	require.Equal(t, DailyAttemptLimit-1, res.AttemptsRemaining)

	res, err = svc.Submit(p.ID, 200, now.Add(time.Minute))
	require.NoError(t, err)
	require.False(t, res.IsNewBest)
	require.Equal(t, int64(300), res.PersonalBest)
}

func TestSubmitDailyLimit(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := NewScoreService(db, NewAccessService(db))

	now := time.Date(2025, 8, 10, 8, 0, 0, 0, time.UTC)
	p := seedParticipant(t, db, 1, "p", "")
	seedOneTimeGrant(t, db, &p, "2025-08")

	for i := 0; i < DailyAttemptLimit; i++ {
		_, err := svc.Submit(p.ID, int64(100+i), now.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}

	_, err := svc.Submit(p.ID, 999, now.Add(time.Hour))
	require.ErrorIs(t, err, ErrDailyLimitReached)

	// A fresh day resets the budget.
	_, err = svc.Submit(p.ID, 999, now.AddDate(0, 0, 1))
	require.NoError(t, err)
}

func TestPersonalBestPropagatesStorageError(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := NewScoreService(db, NewAccessService(db))

	require.NoError(t, db.Migrator().DropTable(&models.ScoreRecord{}))

	// A failed lookup must surface, never masquerade as best=0.
	_, err := svc.personalBest("someone", "2025-08")
	require.Error(t, err)
	require.Contains(t, err.Error(), "personal best")
}

func TestFindOrCreateParticipant(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := NewScoreService(db, NewAccessService(db))

	created, err := svc.FindOrCreateParticipant(42, "runner", "Runner")
	require.NoError(t, err)
	require.Equal(t, int64(42), created.TelegramID)

	again, err := svc.FindOrCreateParticipant(42, "runner", "Runner")
	require.NoError(t, err)
	require.Equal(t, created.ID, again.ID)
}
