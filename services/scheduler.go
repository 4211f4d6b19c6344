// services/scheduler.go
package services

import (
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartScheduler wires the two streak jobs: week-boundary evaluation
// shortly after Monday opens, and at-risk warnings on Sunday evening,
// both in UTC to match the ISO week definition.
func (s *StreakService) StartScheduler() {
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		log.Fatalf("failed to create streak scheduler: %v", err)
	}

	_, err = sched.NewJob(
		gocron.WeeklyJob(1, gocron.NewWeekdays(time.Monday),
			gocron.NewAtTimes(gocron.NewAtTime(0, 5, 0))),
		gocron.NewTask(func() {
			if err := s.EvaluateWeekBoundary(time.Now().UTC()); err != nil {
				log.Printf("[Scheduler] Week boundary evaluation failed: %v", err)
			}
		}),
	)
	if err != nil {
		log.Fatalf("failed to schedule week boundary job: %v", err)
	}

	_, err = sched.NewJob(
		gocron.WeeklyJob(1, gocron.NewWeekdays(time.Sunday),
			gocron.NewAtTimes(gocron.NewAtTime(18, 0, 0))),
		gocron.NewTask(func() {
			if err := s.WarnAtRisk(time.Now().UTC()); err != nil {
				log.Printf("[Scheduler] Streak at-risk warning failed: %v", err)
			}
		}),
	)
	if err != nil {
		log.Fatalf("failed to schedule at-risk warning job: %v", err)
	}

	sched.Start()
	log.Println("✅ Streak scheduler started (boundary: Mon 00:05 UTC, warnings: Sun 18:00 UTC)")
}
