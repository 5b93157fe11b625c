package services

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dino-challenge-service/models"
	"dino-challenge-service/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func TestConfirmOneTimePaymentGrantsAccess(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := NewPaymentService(db, nil)
	access := NewAccessService(db)

	p := seedParticipant(t, db, 7, "p", "")
	now := time.Date(2025, 8, 12, 10, 0, 0, 0, time.UTC)

	require.NoError(t, svc.ConfirmOneTimePayment(7, EntryPriceCentimes, "CAPTURE-1", now))

	granted, err := access.IsGranted(p.ID, now)
	require.NoError(t, err)
	require.True(t, granted)

	pool, err := svc.PoolCentimes("2025-08")
	require.NoError(t, err)
	require.Equal(t, EntryPriceCentimes, pool)
}

func TestConfirmOneTimePaymentDeduplicatesByTxnID(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := NewPaymentService(db, nil)

	seedParticipant(t, db, 7, "p", "")
	now := time.Date(2025, 8, 12, 10, 0, 0, 0, time.UTC)

	require.NoError(t, svc.ConfirmOneTimePayment(7, EntryPriceCentimes, "CAPTURE-1", now))
	require.NoError(t, svc.ConfirmOneTimePayment(7, EntryPriceCentimes, "CAPTURE-1", now))

	pool, err := svc.PoolCentimes("2025-08")
	require.NoError(t, err)
	require.Equal(t, EntryPriceCentimes, pool)
}

func TestPoolSumsOnlyConfirmedForPeriod(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := NewPaymentService(db, nil)

	seedParticipant(t, db, 1, "a", "")
	seedParticipant(t, db, 2, "b", "")

	aug := time.Date(2025, 8, 5, 0, 0, 0, 0, time.UTC)
	jul := time.Date(2025, 7, 5, 0, 0, 0, 0, time.UTC)
	require.NoError(t, svc.ConfirmOneTimePayment(1, EntryPriceCentimes, "TX-AUG-1", aug))
	require.NoError(t, svc.RecordSubscriptionCharge(2, EntryPriceCentimes, "TX-AUG-2", aug))
	require.NoError(t, svc.ConfirmOneTimePayment(1, EntryPriceCentimes, "TX-JUL-1", jul))

	pool, err := svc.PoolCentimes("2025-08")
	require.NoError(t, err)
	require.Equal(t, 2*EntryPriceCentimes, pool)
}

func TestSubscriptionLifecycle(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := NewPaymentService(db, nil)
	access := NewAccessService(db)

	p := seedParticipant(t, db, 9, "p", "")
	now := time.Now()

	require.NoError(t, svc.ActivateSubscription(9, "I-SUB-1", now))
	granted, err := access.IsGranted(p.ID, now)
	require.NoError(t, err)
	require.True(t, granted)

	require.NoError(t, svc.CancelSubscription("I-SUB-1", now))
	granted, err = access.IsGranted(p.ID, now)
	require.NoError(t, err)
	require.False(t, granted)

	// Re-activation reinstates the same provider subscription.
	require.NoError(t, svc.ActivateSubscription(9, "I-SUB-1", now))
	granted, err = access.IsGranted(p.ID, now)
	require.NoError(t, err)
	require.True(t, granted)

	var count int64
	require.NoError(t, db.Model(&models.Subscription{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestCancelUnknownSubscriptionIgnored(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := NewPaymentService(db, nil)

	require.NoError(t, svc.CancelSubscription("I-NEVER-SEEN", time.Now()))
}

func TestTelegramIDFromCustom(t *testing.T) {
	id, ok := telegramIDFromCustom("dino_monthly_123456")
	require.True(t, ok)
	require.Equal(t, int64(123456), id)

	_, ok = telegramIDFromCustom("other_product_1")
	require.False(t, ok)

	_, ok = telegramIDFromCustom("dino_monthly_not-a-number")
	require.False(t, ok)
}

func TestCentimesFromValue(t *testing.T) {
	for in, want := range map[string]int64{
		"11.00": 1100,
		"11.5":  1150,
		"11":    1100,
		"0.05":  5,
	} {
		got, err := centimesFromValue(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	_, err := centimesFromValue("abc")
	require.Error(t, err)
}

func TestWebhookDuplicateDeliveryIsNoOp(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := NewPaymentService(db, nil)

	seedParticipant(t, db, 55, "p", "")

	app := fiber.New()
	app.Post("/webhooks/paypal", svc.HandlePayPalWebhook)

	body := `{
		"id": "WH-EVT-1",
		"event_type": "PAYMENT.CAPTURE.COMPLETED",
		"resource": {
			"id": "CAPTURE-55",
			"custom_id": "dino_monthly_55",
			"amount": {"value": "11.00", "currency_code": "CHF"}
		}
	}`

	send := func() int {
		req := httptest.NewRequest("POST", "/webhooks/paypal", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	require.Equal(t, 200, send())
	require.Equal(t, 200, send())

	var payments int64
	require.NoError(t, db.Model(&models.Payment{}).Count(&payments).Error)
	require.Equal(t, int64(1), payments)
}

func TestWebhookFailedProcessingStaysRetryable(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := NewPaymentService(db, nil)

	app := fiber.New()
	app.Post("/webhooks/paypal", svc.HandlePayPalWebhook)

	body := `{
		"id": "WH-EVT-9",
		"event_type": "PAYMENT.CAPTURE.COMPLETED",
		"resource": {
			"id": "CAPTURE-9",
			"custom_id": "dino_monthly_99",
			"amount": {"value": "11.00", "currency_code": "CHF"}
		}
	}`

	send := func() int {
		req := httptest.NewRequest("POST", "/webhooks/paypal", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	// Participant not registered yet: processing fails and the event id must
	// not stay marked, or the provider's redelivery would be swallowed as a
	// duplicate and the payment lost for good.
	require.Equal(t, 500, send())

	var marked int64
	require.NoError(t, db.Model(&models.WebhookEvent{}).Where("id = ?", "WH-EVT-9").Count(&marked).Error)
	require.Zero(t, marked)

	seedParticipant(t, db, 99, "late", "")
	require.Equal(t, 200, send())

	var payments int64
	require.NoError(t, db.Model(&models.Payment{}).Count(&payments).Error)
	require.Equal(t, int64(1), payments)
}

func TestRenewalChargeReinstatesSuspendedSubscription(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := NewPaymentService(db, nil)
	access := NewAccessService(db)

	p := seedParticipant(t, db, 31, "p", "")
	require.NoError(t, svc.ActivateSubscription(31, "I-SUB-31", time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, db.Model(&models.Subscription{}).
		Where("provider_sub_id = ?", "I-SUB-31").
		Update("status", models.SubscriptionStatusSuspended).Error)

	app := fiber.New()
	app.Post("/webhooks/paypal", svc.HandlePayPalWebhook)

	// The suspension was local; PayPal keeps charging, so the next sale
	// event must restore access.
	body := `{
		"id": "WH-SALE-31",
		"event_type": "PAYMENT.SALE.COMPLETED",
		"resource": {
			"id": "SALE-31",
			"billing_agreement_id": "I-SUB-31",
			"amount": {"value": "11.00", "currency_code": "CHF"}
		}
	}`
	req := httptest.NewRequest("POST", "/webhooks/paypal", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var sub models.Subscription
	require.NoError(t, db.First(&sub, "provider_sub_id = ?", "I-SUB-31").Error)
	require.Equal(t, models.SubscriptionStatusActive, sub.Status)

	granted, err := access.IsGranted(p.ID, time.Now())
	require.NoError(t, err)
	require.True(t, granted)

	// A cancelled subscription is not resurrected by a trailing sale event.
	require.NoError(t, svc.CancelSubscription("I-SUB-31", time.Now()))
	body2 := strings.Replace(body, "WH-SALE-31", "WH-SALE-32", 1)
	body2 = strings.Replace(body2, "SALE-31", "SALE-32", 1)
	req = httptest.NewRequest("POST", "/webhooks/paypal", strings.NewReader(body2))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	require.NoError(t, db.First(&sub, "provider_sub_id = ?", "I-SUB-31").Error)
	require.Equal(t, models.SubscriptionStatusCancelled, sub.Status)
}
