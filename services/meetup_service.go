// services/meetup_service.go
package services

import (
	"errors"
	"fmt"
	"time"

	"disc-recovery-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Meetup negotiation. The counter-proposal rule: a new proposal always
// supersedes whatever is still pending instead of being rejected as a
// conflict, so either side can move the conversation forward and stale
// proposals clean themselves up. If both sides propose "simultaneously",
// whichever write the database orders second wins and the first is
// auto-declined — last-write-wins is the policy, no fancier ordering.

type ProposeMeetupRequest struct {
	LocationName     string    `json:"location_name"`
	Latitude         *float64  `json:"latitude,omitempty"`
	Longitude        *float64  `json:"longitude,omitempty"`
	ProposedDatetime time.Time `json:"proposed_datetime"`
	Message          string    `json:"message,omitempty"`
}

// ProposeMeetup declines every outstanding pending proposal on the event,
// inserts the new one, and nudges the event into meetup_proposed (idempotent
// when it's already there).
func (s *RecoveryService) ProposeMeetup(eventID, callerID string, req ProposeMeetupRequest) (*models.MeetupProposal, error) {
	event, err := s.loadEvent(eventID)
	if err != nil {
		return nil, err
	}
	if !isParticipant(event, callerID) {
		return nil, ErrForbidden
	}
	if models.IsTerminalRecoveryStatus(event.Status) {
		return nil, &InvalidStateError{Current: event.Status}
	}

	proposal := models.MeetupProposal{
		ID:               uuid.NewString(),
		RecoveryEventID:  event.ID,
		ProposedBy:       callerID,
		LocationName:     req.LocationName,
		Latitude:         req.Latitude,
		Longitude:        req.Longitude,
		ProposedDatetime: req.ProposedDatetime,
		Message:          req.Message,
		Status:           models.ProposalStatusPending,
	}

	// Pending proposals from the *other* party get a "countered" notification
	// after commit; the caller's own stale pendings are declined silently.
	// Either way at most one pending survives.
	var countered []models.MeetupProposal
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("recovery_event_id = ? AND status = ? AND proposed_by <> ?",
			event.ID, models.ProposalStatusPending, callerID).
			Find(&countered).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.MeetupProposal{}).
			Where("recovery_event_id = ? AND status = ?", event.ID, models.ProposalStatusPending).
			Update("status", models.ProposalStatusDeclined).Error; err != nil {
			return err
		}

		if err := tx.Create(&proposal).Error; err != nil {
			return err
		}

		res := tx.Model(&models.RecoveryEvent{}).
			Where("id = ? AND status NOT IN ?", event.ID, models.RecoveryTerminalStatuses).
			Update("status", models.RecoveryStatusMeetupProposed)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Event reached a terminal state between our read and this write.
			return s.invalidStateFromFresh(tx, event.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, old := range countered {
		s.Notifier.Notify(old.ProposedBy, NotificationTypeMeetupCountered,
			"Meetup counter-proposal",
			fmt.Sprintf("%s suggested a different meetup for the %s.", s.Notifier.DisplayName(callerID), event.Disc.Name),
			map[string]string{
				"recovery_event_id":    event.ID,
				"declined_proposal_id": old.ID,
				"proposal_id":          proposal.ID,
			})
	}

	if other := otherParticipant(event, callerID); other != "" {
		s.Notifier.Notify(other, NotificationTypeMeetupProposed,
			"Meetup proposed 📍",
			fmt.Sprintf("%s proposed meeting at %s.", s.Notifier.DisplayName(callerID), proposal.LocationName),
			map[string]string{"recovery_event_id": event.ID, "proposal_id": proposal.ID})
	}

	return &proposal, nil
}

// AcceptMeetup: the non-proposing participant accepts the pending proposal,
// confirming the meetup.
func (s *RecoveryService) AcceptMeetup(eventID, proposalID, callerID string) (*models.MeetupProposal, error) {
	event, err := s.loadEvent(eventID)
	if err != nil {
		return nil, err
	}
	if !isParticipant(event, callerID) {
		return nil, ErrForbidden
	}

	var proposal models.MeetupProposal
	if err := s.DB.First(&proposal, "id = ? AND recovery_event_id = ?", proposalID, event.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if proposal.ProposedBy == callerID {
		return nil, ErrForbidden // can't accept your own proposal
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.MeetupProposal{}).
			Where("id = ? AND status = ?", proposal.ID, models.ProposalStatusPending).
			Update("status", models.ProposalStatusAccepted)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Superseded or already resolved while the caller was deciding.
			return ErrConflict
		}

		res = tx.Model(&models.RecoveryEvent{}).
			Where("id = ? AND status = ?", event.ID, models.RecoveryStatusMeetupProposed).
			Update("status", models.RecoveryStatusMeetupConfirmed)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return s.invalidStateFromFresh(tx, event.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Notifier.Notify(proposal.ProposedBy, NotificationTypeMeetupAccepted,
		"Meetup confirmed 🤝",
		fmt.Sprintf("%s accepted your meetup at %s.", s.Notifier.DisplayName(callerID), proposal.LocationName),
		map[string]string{"recovery_event_id": event.ID, "proposal_id": proposal.ID})

	proposal.Status = models.ProposalStatusAccepted
	return &proposal, nil
}

// otherParticipant computes the notification recipient freshly from the
// disc's current owner — never from a cached owner on the event.
func otherParticipant(event *models.RecoveryEvent, callerID string) string {
	if event.FinderID != callerID {
		return event.FinderID
	}
	if event.Disc.OwnerID != nil && *event.Disc.OwnerID != callerID {
		return *event.Disc.OwnerID
	}
	return ""
}

// --- Endpoints ---

func (s *RecoveryService) ProposeMeetupEndpoint(c *fiber.Ctx) error {
	callerID := c.Locals("user_id").(string)
	eventID := c.Params("id")
	if _, err := uuid.Parse(eventID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid recovery ID"})
	}

	var req ProposeMeetupRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.LocationName == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "location_name is required"})
	}
	if req.ProposedDatetime.IsZero() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "proposed_datetime is required (RFC3339)"})
	}

	proposal, err := s.ProposeMeetup(eventID, callerID, req)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(proposal)
}

func (s *RecoveryService) AcceptMeetupEndpoint(c *fiber.Ctx) error {
	callerID := c.Locals("user_id").(string)
	eventID := c.Params("id")
	proposalID := c.Params("proposal_id")

	proposal, err := s.AcceptMeetup(eventID, proposalID, callerID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(proposal)
}
