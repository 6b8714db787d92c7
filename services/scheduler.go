// services/scheduler.go
package services

import (
	"encoding/json"
	"log"
	"time"

	"progression-engine/utils"

	"github.com/go-co-op/gocron/v2"
)

// StartMaintenanceScheduler runs the background housekeeping jobs:
// expired-challenge deactivation, daily-quota retention cleanup, and the
// daily leaderboard snapshot archive.
func (s *ProgressionService) StartMaintenanceScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	// Every 10 minutes: deactivate challenges past their end date
	_, _ = sched.NewJob(
		gocron.DurationJob(10*time.Minute),
		gocron.NewTask(func() {
			n, err := s.Challenges.DeactivateExpired(time.Now())
			if err != nil {
				log.Printf("[Scheduler] Challenge expiry sweep failed: %v", err)
				return
			}
			if n > 0 {
				log.Printf("✅ Deactivated %d expired challenge(s)", n)
			}
		}),
	)

	// Nightly: prune quota counters past the retention window
	_, _ = sched.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(0, 30, 0))),
		gocron.NewTask(func() {
			cutoff := time.Now().AddDate(0, 0, -s.Cfg.QuotaRetentionDays)
			n, err := s.Quota.DeleteBefore(cutoff)
			if err != nil {
				log.Printf("[Scheduler] Quota retention cleanup failed: %v", err)
				return
			}
			log.Printf("✅ Pruned %d quota counter(s) older than %s", n, DayKey(cutoff))
		}),
	)

	// Nightly: archive the top-100 leaderboard to object storage
	_, _ = sched.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(1, 0, 0))),
		gocron.NewTask(func() {
			if !utils.R2Enabled() {
				return
			}
			if err := s.ExportLeaderboardSnapshot(time.Now()); err != nil {
				log.Printf("[Scheduler] Leaderboard snapshot export failed: %v", err)
			}
		}),
	)
}

// ExportLeaderboardSnapshot serializes the top-100 leaderboard and
// uploads it under leaderboard/<day>.json.
func (s *ProgressionService) ExportLeaderboardSnapshot(now time.Time) error {
	entries, err := s.GetLeaderboard(100)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(map[string]interface{}{
		"snapshot_date": DayKey(now),
		"generated_at":  now.UTC(),
		"entries":       entries,
	})
	if err != nil {
		return err
	}
	key := "leaderboard/" + DayKey(now) + ".json"
	if err := utils.UploadBytesToR2(key, "application/json", payload); err != nil {
		return err
	}
	log.Printf("✅ Archived leaderboard snapshot: %s (%d entries)", key, len(entries))
	return nil
}
