// handlers/admin.go
package handlers

import (
	"dino-challenge-service/middleware"
	"dino-challenge-service/services"

	"github.com/gofiber/fiber/v2"
)

func SetupAdminRoutes(app *fiber.App, settlement *services.SettlementService) {
	// 🔐 Operator routes — service token required on every call
	admin := app.Group("/admin", middleware.ServiceAuthMiddleware())

	admin.Get("/settlements/:period", settlement.GetSettlement)
	admin.Post("/settlements/:period/force", settlement.ForceSettleHandler)
	admin.Post("/periods/:period/expire", settlement.ExpireGrantsHandler)
}
