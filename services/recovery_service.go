// services/recovery_service.go
package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"disc-recovery-system/models"
	"disc-recovery-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RecoveryService owns the RecoveryEvent state machine. Every guarded
// transition is a single conditional UPDATE (status must still match) with
// RowsAffected checked — never a read-then-write pair — because both
// participants can race on the same event from separate requests.
type RecoveryService struct {
	DB       *gorm.DB
	Notifier *NotificationService
	Discs    *DiscService

	now func() time.Time
}

func NewRecoveryService(db *gorm.DB, notifier *NotificationService, discs *DiscService) *RecoveryService {
	return &RecoveryService{
		DB:       db,
		Notifier: notifier,
		Discs:    discs,
		now:      time.Now,
	}
}

// surrenderableStatuses: the owner can hand the disc over any time before a
// drop-off happens.
var surrenderableStatuses = []string{
	models.RecoveryStatusFound,
	models.RecoveryStatusMeetupProposed,
	models.RecoveryStatusMeetupConfirmed,
}

// loadEvent fetches the event with its disc. Missing rows map to NotFound.
func (s *RecoveryService) loadEvent(eventID string) (*models.RecoveryEvent, error) {
	var event models.RecoveryEvent
	if err := s.DB.Preload("Disc").First(&event, "id = ?", eventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &event, nil
}

// isParticipant: the finder, or whoever owns the disc *right now*. Ownership
// is read through the disc on every call, never cached on the event.
func isParticipant(event *models.RecoveryEvent, userID string) bool {
	return event.FinderID == userID || event.Disc.OwnedBy(userID)
}

// invalidStateFromFresh re-reads the event's status after a conditional
// write affected zero rows, so the error reports what the row looks like now.
func (s *RecoveryService) invalidStateFromFresh(db *gorm.DB, eventID string) error {
	var cur models.RecoveryEvent
	if err := db.Select("status").First(&cur, "id = ?", eventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	return &InvalidStateError{Current: cur.Status}
}

// ReportFound opens a recovery for a disc the caller just found. The
// "at most one non-terminal recovery per disc" invariant is enforced by the
// insert itself (INSERT … WHERE NOT EXISTS), not by a prior read.
func (s *RecoveryService) ReportFound(discID, finderID string) (*models.RecoveryEvent, error) {
	var disc models.Disc
	if err := s.DB.First(&disc, "id = ?", discID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if disc.OwnerID == nil {
		// Nothing to return to anyone — the finder should claim it instead.
		return nil, ErrNotFound
	}
	if *disc.OwnerID == finderID {
		return nil, ErrForbidden
	}

	id := uuid.NewString()
	now := s.now()
	res := s.DB.Exec(`
		INSERT INTO recovery_events (id, disc_id, finder_id, status, found_at, created_at, updated_at)
		SELECT ?, ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM recovery_events
			WHERE disc_id = ? AND deleted_at IS NULL AND status NOT IN ?
		)`,
		id, discID, finderID, models.RecoveryStatusFound, now, now, now,
		discID, models.RecoveryTerminalStatuses,
	)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrConflict // another recovery is already in flight
	}

	event, err := s.loadEvent(id)
	if err != nil {
		return nil, err
	}

	s.Notifier.Notify(*disc.OwnerID, NotificationTypeDiscFound,
		"Your disc was found! 🥏",
		fmt.Sprintf("%s reported finding your %s.", s.Notifier.DisplayName(finderID), disc.Name),
		map[string]string{"recovery_event_id": event.ID, "disc_id": disc.ID})

	return event, nil
}

// Surrender permanently hands the disc to the finder. The only transition
// that also mutates disc ownership: event CAS + owner move commit together,
// QR reassignment follows best-effort.
func (s *RecoveryService) Surrender(eventID, callerID string) (*models.RecoveryEvent, error) {
	event, err := s.loadEvent(eventID)
	if err != nil {
		return nil, err
	}
	// Terminal wins over ownership: after a surrender the disc belongs to the
	// finder, so an original-owner retry would otherwise read as forbidden
	// instead of reporting the closed lifecycle.
	if models.IsTerminalRecoveryStatus(event.Status) {
		return nil, &InvalidStateError{Current: event.Status}
	}
	if !event.Disc.OwnedBy(callerID) {
		return nil, ErrForbidden
	}

	now := s.now()
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.RecoveryEvent{}).
			Where("id = ? AND status IN ?", event.ID, surrenderableStatuses).
			Updates(map[string]interface{}{
				"status":            models.RecoveryStatusSurrendered,
				"surrendered_at":    now,
				"original_owner_id": callerID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return s.invalidStateFromFresh(tx, event.ID)
		}

		return s.Discs.Transfer(tx, event.DiscID, event.FinderID)
	})
	if err != nil {
		return nil, err
	}

	// The code stays on the disc; its assignee follows the new owner.
	// Failure here never unwinds the surrender.
	s.Discs.ReassignQRCode(event.DiscID, event.FinderID)

	s.Notifier.Notify(event.FinderID, NotificationTypeDiscSurrendered,
		"The disc is yours! 🎉",
		fmt.Sprintf("The owner surrendered the %s to you. It's yours to keep.", event.Disc.Name),
		map[string]string{"recovery_event_id": event.ID, "disc_id": event.DiscID})

	return s.loadEvent(event.ID)
}

// MarkRetrieved confirms the owner picked the disc up from the drop-off spot.
func (s *RecoveryService) MarkRetrieved(eventID, callerID string) (*models.RecoveryEvent, error) {
	event, err := s.loadEvent(eventID)
	if err != nil {
		return nil, err
	}
	if !event.Disc.OwnedBy(callerID) {
		return nil, ErrForbidden
	}
	if event.Status != models.RecoveryStatusDroppedOff {
		return nil, &InvalidStateError{Current: event.Status}
	}

	var dropOff models.DropOff
	if err := s.DB.First(&dropOff, "recovery_event_id = ?", event.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDropOffMissing
		}
		return nil, err
	}

	now := s.now()
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.RecoveryEvent{}).
			Where("id = ? AND status = ?", event.ID, models.RecoveryStatusDroppedOff).
			Updates(map[string]interface{}{
				"status":       models.RecoveryStatusRecovered,
				"recovered_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return s.invalidStateFromFresh(tx, event.ID)
		}

		return tx.Model(&models.DropOff{}).
			Where("id = ? AND retrieved_at IS NULL", dropOff.ID).
			Update("retrieved_at", now).Error
	})
	if err != nil {
		return nil, err
	}

	s.Notifier.Notify(event.FinderID, NotificationTypeDiscRetrieved,
		"Disc retrieved ✅",
		fmt.Sprintf("The owner picked up the %s. Thanks for the good karma!", event.Disc.Name),
		map[string]string{"recovery_event_id": event.ID, "disc_id": event.DiscID})

	return s.loadEvent(event.ID)
}

// closeAbandonedRecoveries closes any abandoned event for the disc once a new
// claimant takes over. Closed with its own terminal value rather than
// overloading "recovered" — nobody got a disc back, it just needs no further
// action.
func closeAbandonedRecoveries(db *gorm.DB, discID string, now time.Time) (int64, error) {
	res := db.Model(&models.RecoveryEvent{}).
		Where("disc_id = ? AND status = ?", discID, models.RecoveryStatusAbandoned).
		Updates(map[string]interface{}{
			"status":       models.RecoveryStatusClosedOnReclaim,
			"recovered_at": now,
		})
	return res.RowsAffected, res.Error
}

// --- Endpoints ---

func (s *RecoveryService) ReportFoundEndpoint(c *fiber.Ctx) error {
	callerID := c.Locals("user_id").(string)

	var req struct {
		DiscID    string `json:"disc_id"`
		ShortCode string `json:"short_code"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	discID := req.DiscID
	if discID == "" && req.ShortCode != "" {
		// Finder scanned the sticker — resolve the disc through the code.
		var qr models.QRCode
		if err := s.DB.First(&qr, "short_code = ? AND status = ?",
			utils.NormalizeShortCode(req.ShortCode), models.QRStatusActive).Error; err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
		}
		var disc models.Disc
		if err := s.DB.First(&disc, "qr_code_id = ?", qr.ID).Error; err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
		}
		discID = disc.ID
	}
	if discID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "disc_id or short_code is required"})
	}

	event, err := s.ReportFound(discID, callerID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(event)
}

func (s *RecoveryService) SurrenderEndpoint(c *fiber.Ctx) error {
	callerID := c.Locals("user_id").(string)
	eventID := c.Params("id")
	if _, err := uuid.Parse(eventID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid recovery ID"})
	}

	event, err := s.Surrender(eventID, callerID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{
		"recovery":     event,
		"new_owner_id": event.FinderID,
	})
}

func (s *RecoveryService) MarkRetrievedEndpoint(c *fiber.Ctx) error {
	callerID := c.Locals("user_id").(string)
	eventID := c.Params("id")
	if _, err := uuid.Parse(eventID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid recovery ID"})
	}

	event, err := s.MarkRetrieved(eventID, callerID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "recovery": event})
}

// GetRecoveryByID returns the full event for its participants. Non-participants
// get 404, not 403 — visibility and existence are deliberately merged.
func (s *RecoveryService) GetRecoveryByID(c *fiber.Ctx) error {
	callerID := c.Locals("user_id").(string)
	eventID := c.Params("id")

	var event models.RecoveryEvent
	err := s.DB.Preload("Disc").
		Preload("Proposals", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Preload("DropOff").
		First(&event, "id = ?", eventID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
		}
		log.Printf("ERROR fetching recovery %s: %v", eventID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	if !isParticipant(&event, callerID) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
	}
	return c.JSON(event)
}

// GetMyRecoveries lists events where the caller is finder or current owner.
func (s *RecoveryService) GetMyRecoveries(c *fiber.Ctx) error {
	callerID := c.Locals("user_id").(string)

	var events []models.RecoveryEvent
	err := s.DB.Preload("Disc").
		Where("finder_id = ? OR disc_id IN (?)",
			callerID,
			s.DB.Model(&models.Disc{}).Select("id").Where("owner_id = ?", callerID)).
		Order("created_at DESC").
		Find(&events).Error
	if err != nil {
		log.Printf("ERROR fetching recoveries for %s: %v", callerID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch recoveries"})
	}
	return c.JSON(events)
}
