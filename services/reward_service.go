// services/reward_service.go
package services

import (
	"fmt"

	"disc-recovery-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// MarkRewardPaid: the finder acknowledges receiving the reward. Idempotent —
// client retries hit the already-set timestamp and get it back unchanged
// instead of an error.
func (s *RecoveryService) MarkRewardPaid(eventID, callerID string) (*models.RecoveryEvent, error) {
	event, err := s.loadEvent(eventID)
	if err != nil {
		return nil, err
	}
	if event.FinderID != callerID {
		return nil, ErrForbidden
	}
	if event.RewardPaidAt != nil {
		return event, nil
	}
	if event.Status != models.RecoveryStatusRecovered {
		return nil, &InvalidStateError{Current: event.Status}
	}
	if !event.Disc.HasReward() {
		return nil, ErrNoReward
	}

	res := s.DB.Model(&models.RecoveryEvent{}).
		Where("id = ? AND status = ? AND reward_paid_at IS NULL", event.ID, models.RecoveryStatusRecovered).
		Update("reward_paid_at", s.now())
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// A concurrent retry may have set it first — that's still success.
		fresh, err := s.loadEvent(event.ID)
		if err != nil {
			return nil, err
		}
		if fresh.RewardPaidAt != nil {
			return fresh, nil
		}
		return nil, &InvalidStateError{Current: fresh.Status}
	}

	if event.Disc.OwnerID != nil && *event.Disc.OwnerID != callerID {
		s.Notifier.Notify(*event.Disc.OwnerID, NotificationTypeRewardAcknowledged,
			"Reward received 💰",
			fmt.Sprintf("%s confirmed receiving the reward for the %s.",
				s.Notifier.DisplayName(callerID), event.Disc.Name),
			map[string]string{"recovery_event_id": event.ID, "disc_id": event.DiscID})
	}

	return s.loadEvent(event.ID)
}

func (s *RecoveryService) MarkRewardPaidEndpoint(c *fiber.Ctx) error {
	callerID := c.Locals("user_id").(string)
	eventID := c.Params("id")
	if _, err := uuid.Parse(eventID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid recovery ID"})
	}

	event, err := s.MarkRewardPaid(eventID, callerID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{
		"reward_paid_at": event.RewardPaidAt,
		"recovery":       event,
	})
}
