package services

import (
	"testing"
	"time"

	"dino-challenge-service/models"
	"dino-challenge-service/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedOneTimeGrant(t *testing.T, db *gorm.DB, p *models.Participant, periodKey string) {
	t.Helper()
	require.NoError(t, db.Model(p).Update("paid_period_key", periodKey).Error)
	p.PaidPeriodKey = periodKey
}

func seedSubscription(t *testing.T, db *gorm.DB, participantID string, status models.SubscriptionStatus, anchor time.Time) models.Subscription {
	t.Helper()
	sub := models.Subscription{
		ID:            uuid.NewString(),
		ParticipantID: participantID,
		ProviderSubID: uuid.NewString(),
		Status:        status,
		RenewalAnchor: anchor,
	}
	require.NoError(t, db.Create(&sub).Error)
	return sub
}

func TestIsGrantedOneTimeCurrentPeriod(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := NewAccessService(db)

	p := seedParticipant(t, db, 1, "p", "")
	now := time.Date(2025, 8, 20, 12, 0, 0, 0, time.UTC)
	seedOneTimeGrant(t, db, &p, "2025-08")

	granted, err := svc.IsGranted(p.ID, now)
	require.NoError(t, err)
	require.True(t, granted)
}

func TestOneTimeGrantDoesNotSurviveRollover(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := NewAccessService(db)

	p := seedParticipant(t, db, 1, "p", "")
	seedOneTimeGrant(t, db, &p, "2025-08")

	// Even before ExpireOneTimeGrants runs, a grant for a past period does
	// not open the new one.
	september := time.Date(2025, 9, 1, 0, 0, 1, 0, time.UTC)
	granted, err := svc.IsGranted(p.ID, september)
	require.NoError(t, err)
	require.False(t, granted)
}

func TestSubscriptionSurvivesRollover(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := NewAccessService(db)

	p := seedParticipant(t, db, 1, "p", "")
	seedSubscription(t, db, p.ID, models.SubscriptionStatusActive, time.Date(2025, 8, 28, 0, 0, 0, 0, time.UTC))

	expired, err := svc.ExpireOneTimeGrants("2025-08")
	require.NoError(t, err)
	require.Zero(t, expired)

	granted, err := svc.IsGranted(p.ID, time.Date(2025, 9, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.True(t, granted)
}

func TestCancelledSubscriptionDeniesAccess(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := NewAccessService(db)

	p := seedParticipant(t, db, 1, "p", "")
	seedSubscription(t, db, p.ID, models.SubscriptionStatusCancelled, time.Now())

	granted, err := svc.IsGranted(p.ID, time.Now())
	require.NoError(t, err)
	require.False(t, granted)
}

func TestExpireOneTimeGrantsIdempotent(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := NewAccessService(db)

	a := seedParticipant(t, db, 1, "a", "")
	b := seedParticipant(t, db, 2, "b", "")
	seedOneTimeGrant(t, db, &a, "2025-08")
	seedOneTimeGrant(t, db, &b, "2025-08")

	expired, err := svc.ExpireOneTimeGrants("2025-08")
	require.NoError(t, err)
	require.Equal(t, int64(2), expired)

	// Second pass finds nothing to expire and changes nothing.
	expired, err = svc.ExpireOneTimeGrants("2025-08")
	require.NoError(t, err)
	require.Zero(t, expired)

	var reloaded models.Participant
	require.NoError(t, db.First(&reloaded, "id = ?", a.ID).Error)
	require.Empty(t, reloaded.PaidPeriodKey)
}

func TestInactiveParticipantDenied(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := NewAccessService(db)

	p := seedParticipant(t, db, 1, "p", "")
	now := time.Date(2025, 8, 20, 12, 0, 0, 0, time.UTC)
	seedOneTimeGrant(t, db, &p, "2025-08")
	require.NoError(t, db.Model(&p).Update("is_active", false).Error)

	granted, err := svc.IsGranted(p.ID, now)
	require.NoError(t, err)
	require.False(t, granted)
}

func TestEvaluateSubscriptionsSuspendsLapsed(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := NewAccessService(db)

	// Last charged Aug 15, never since; checked Sep 19, past the renewal
	// date plus the 3-day grace window.
	lapsed := seedParticipant(t, db, 1, "lapsed", "")
	lapsedSub := seedSubscription(t, db, lapsed.ID, models.SubscriptionStatusActive,
		time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC))

	current := seedParticipant(t, db, 2, "current", "")
	currentSub := seedSubscription(t, db, current.ID, models.SubscriptionStatusActive,
		time.Date(2025, 9, 10, 0, 0, 0, 0, time.UTC))

	suspended, err := svc.EvaluateSubscriptions(time.Date(2025, 9, 19, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, int64(1), suspended)

	var reloaded models.Subscription
	require.NoError(t, db.First(&reloaded, "id = ?", lapsedSub.ID).Error)
	require.Equal(t, models.SubscriptionStatusSuspended, reloaded.Status)

	var reloadedCurrent models.Subscription
	require.NoError(t, db.First(&reloadedCurrent, "id = ?", currentSub.ID).Error)
	require.Equal(t, models.SubscriptionStatusActive, reloadedCurrent.Status)
}

func TestEvaluateSubscriptionsKeepsPaidUpSubscriberAcrossRollover(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := NewAccessService(db)

	// Anchored mid-August, checked Sep 5: the September charge is not due
	// until Sep 15, so the subscriber is fully paid up and must keep access
	// even though the calendar month rolled over.
	p := seedParticipant(t, db, 1, "p", "")
	sub := seedSubscription(t, db, p.ID, models.SubscriptionStatusActive,
		time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC))

	checkAt := time.Date(2025, 9, 5, 12, 0, 0, 0, time.UTC)
	suspended, err := svc.EvaluateSubscriptions(checkAt)
	require.NoError(t, err)
	require.Zero(t, suspended)

	var reloaded models.Subscription
	require.NoError(t, db.First(&reloaded, "id = ?", sub.ID).Error)
	require.Equal(t, models.SubscriptionStatusActive, reloaded.Status)

	granted, err := svc.IsGranted(p.ID, checkAt)
	require.NoError(t, err)
	require.True(t, granted)
}
