// services/scheduler.go
package services

import (
	"log"
	"time"

	"disc-recovery-system/models"

	"github.com/go-co-op/gocron/v2"
)

// StartRecoverySweeper runs the periodic hygiene jobs:
//   - events whose disc lost its owner (account deletion, external cleanup)
//     drift to abandoned, keeping the ownerless-disc invariant true even when
//     the release path was bypassed
//   - pending meetup proposals whose time passed long ago get auto-declined
func (s *RecoveryService) StartRecoverySweeper() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	// Every hour: abandon recoveries on ownerless discs
	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(func() {
			res := s.DB.Model(&models.RecoveryEvent{}).
				Where("status NOT IN ? AND status <> ?",
					models.RecoveryTerminalStatuses, models.RecoveryStatusAbandoned).
				Where("disc_id IN (?)",
					s.DB.Model(&models.Disc{}).Select("id").Where("owner_id IS NULL")).
				Update("status", models.RecoveryStatusAbandoned)
			if res.Error != nil {
				log.Printf("[Sweeper] DB error abandoning orphaned recoveries: %v", res.Error)
				return
			}
			if res.RowsAffected > 0 {
				log.Printf("✅ [Sweeper] marked %d orphaned recovery(ies) abandoned", res.RowsAffected)
			}
		}),
	)

	// Daily: decline pending proposals whose meetup time passed >7 days ago
	_, _ = sched.NewJob(
		gocron.DurationJob(24*time.Hour),
		gocron.NewTask(func() {
			cutoff := s.now().AddDate(0, 0, -7)
			res := s.DB.Model(&models.MeetupProposal{}).
				Where("status = ? AND proposed_datetime < ?", models.ProposalStatusPending, cutoff).
				Update("status", models.ProposalStatusDeclined)
			if res.Error != nil {
				log.Printf("[Sweeper] DB error expiring stale proposals: %v", res.Error)
				return
			}
			if res.RowsAffected > 0 {
				log.Printf("✅ [Sweeper] auto-declined %d stale meetup proposal(s)", res.RowsAffected)
			}
		}),
	)
}
