package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"dino-challenge-service/handlers"
	"dino-challenge-service/middleware"
	"dino-challenge-service/models"
	"dino-challenge-service/services"
	"dino-challenge-service/utils"
	"dino-challenge-service/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		AppName: "dino-challenge-service",
	})

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Participant{},
		&models.ScoreRecord{},
		&models.Payment{},
		&models.Subscription{},
		&models.SettlementRecord{},
		&models.SettlementWinner{},
		&models.WebhookEvent{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	prizeConfig, err := services.PrizeConfigFromEnv()
	if err != nil {
		log.Fatal("invalid prize configuration:", err)
	}

	notifier := workers.NewTelegramNotifier()
	payoutClient := workers.NewPayPalPayoutClient()

	leaderboardService := &services.LeaderboardService{DB: db}
	accessService := &services.AccessService{DB: db}
	scoreService := &services.ScoreService{DB: db, Access: accessService}
	paymentService := &services.PaymentService{DB: db, Notifier: notifier}
	settlementService := services.NewSettlementService(
		db, leaderboardService, accessService, paymentService,
		payoutClient, notifier, utils.R2Archiver{}, prizeConfig,
	)

	settlementService.StartSettlementScheduler()

	// ✅ Setup routes — webhook is open, everything else behind the service token
	serviceAuth := middleware.ServiceAuthMiddleware()
	app.Use(func(c *fiber.Ctx) error {
		if c.Path() == "/health" || strings.HasPrefix(c.Path(), "/webhooks/") {
			return c.Next()
		}
		return serviceAuth(c)
	})
	handlers.SetupContestRoutes(app, scoreService, leaderboardService, accessService, paymentService)
	handlers.SetupAdminRoutes(app, settlementService)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Settlement scheduler running (hourly rollover check)")
	log.Printf("✅ Prize schedule: %s mode, split %v", prizeConfig.Mode, prizeConfig.Schedule)
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := app.Shutdown(); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
