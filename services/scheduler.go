// services/scheduler.go
package services

import (
	"context"
	"log"
	"time"

	"dino-challenge-service/models"

	"github.com/go-co-op/gocron/v2"
)

func (s *SettlementService) StartSettlementScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	// lastChecked is only a cheap skip: the settlement record decides whether
	// a run actually happens, so a missed or repeated tick is harmless.
	lastChecked := models.CurrentPeriod(time.Now())

	// Every hour: settle the previous month once the period has rolled over
	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(func() {
			now := time.Now()
			current := models.CurrentPeriod(now)
			if current == lastChecked {
				return
			}
			log.Printf("📅 Period rollover detected: %s -> %s", lastChecked, current)
			lastChecked = current

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			if err := s.MaybeRun(ctx, now); err != nil {
				log.Printf("[Scheduler] Settlement run failed: %v", err)
			}
		}),
	)

	// Every 6 hours: suspend lapsed subscriptions
	_, _ = sched.NewJob(
		gocron.DurationJob(6*time.Hour),
		gocron.NewTask(func() {
			suspended, err := s.Access.EvaluateSubscriptions(time.Now())
			if err != nil {
				log.Printf("[Scheduler] Subscription check failed: %v", err)
				return
			}
			if suspended > 0 {
				log.Printf("⚠️  Suspended %d lapsed subscription(s)", suspended)
			}
		}),
	)
}
