// handlers/contest.go
package handlers

import (
	"dino-challenge-service/services"

	"github.com/gofiber/fiber/v2"
)

func SetupContestRoutes(app *fiber.App, scores *services.ScoreService,
	leaderboard *services.LeaderboardService, access *services.AccessService,
	payments *services.PaymentService) {

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 🔓 Webhook route — authenticated by provider signature headers upstream,
	// deduplicated by event ID in the service
	app.Post("/webhooks/paypal", payments.HandlePayPalWebhook)

	// 🤖 Bot-facing routes — require the service token
	app.Post("/scores", scores.SubmitScore)
	app.Get("/leaderboard", leaderboard.GetLeaderboard)
	app.Get("/participants/:telegram_id/access", access.GetAccessStatus)
	app.Patch("/participants/:telegram_id/payout-email", payments.SetPayoutEmail)
}
