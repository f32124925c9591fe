// services/dropoff_service.go
package services

import (
	"fmt"
	"path/filepath"
	"strconv"

	"disc-recovery-system/models"
	"disc-recovery-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// CreateDropOff records the drop-off and moves the event found → dropped_off.
// Photo storage happens before this is called; only the resulting URL lands
// here, so a failed upload never leaves a half-finished transition.
func (s *RecoveryService) CreateDropOff(eventID, callerID, photoURL string, lat, lng float64, notes string) (*models.DropOff, error) {
	event, err := s.loadEvent(eventID)
	if err != nil {
		return nil, err
	}
	if event.FinderID != callerID {
		return nil, ErrForbidden
	}
	if event.Status != models.RecoveryStatusFound {
		return nil, &InvalidStateError{Current: event.Status}
	}

	dropOff := models.DropOff{
		ID:              uuid.NewString(),
		RecoveryEventID: event.ID,
		PhotoURL:        photoURL,
		Latitude:        lat,
		Longitude:       lng,
		Notes:           notes,
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.RecoveryEvent{}).
			Where("id = ? AND status = ?", event.ID, models.RecoveryStatusFound).
			Update("status", models.RecoveryStatusDroppedOff)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return s.invalidStateFromFresh(tx, event.ID)
		}
		return tx.Create(&dropOff).Error
	})
	if err != nil {
		return nil, err
	}

	if event.Disc.OwnerID != nil {
		s.Notifier.Notify(*event.Disc.OwnerID, NotificationTypeDropOffRecorded,
			"Your disc was dropped off 📦",
			fmt.Sprintf("%s left your %s at %s for pickup.",
				s.Notifier.DisplayName(callerID), event.Disc.Name, dropOff.Notes),
			map[string]string{"recovery_event_id": event.ID, "drop_off_id": dropOff.ID})
	}

	return &dropOff, nil
}

// RecordDropOffEndpoint handles the multipart form: photo + coordinates.
func (s *RecoveryService) RecordDropOffEndpoint(c *fiber.Ctx) error {
	callerID := c.Locals("user_id").(string)
	eventID := c.Params("id")
	if _, err := uuid.Parse(eventID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid recovery ID"})
	}

	// Authorization and state are re-checked inside CreateDropOff; this early
	// load just avoids uploading a photo for a request that can't succeed.
	event, err := s.loadEvent(eventID)
	if err != nil {
		return respondServiceError(c, err)
	}
	if event.FinderID != callerID {
		return respondServiceError(c, ErrForbidden)
	}
	if event.Status != models.RecoveryStatusFound {
		return respondServiceError(c, &InvalidStateError{Current: event.Status})
	}

	photo, err := c.FormFile("photo")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "photo is required"})
	}
	if err := utils.ValidatePhotoUpload(photo); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	lat, err := strconv.ParseFloat(c.FormValue("latitude"), 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "latitude must be a number"})
	}
	lng, err := strconv.ParseFloat(c.FormValue("longitude"), 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "longitude must be a number"})
	}
	notes := c.FormValue("notes")

	ext := filepath.Ext(photo.Filename)
	if ext == "" {
		ext = ".jpg"
	}
	key := fmt.Sprintf("dropoffs/%s-%s%s", slug.Make(event.Disc.Name), uuid.NewString(), ext)

	var photoURL string
	if utils.R2Enabled() {
		photoURL, err = utils.UploadFileToR2(photo, key)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to upload photo"})
		}
	} else {
		// No R2 configured — keep the photo on local disk, served via /uploads.
		localPath := utils.GetUploadPath(key)
		if err := utils.SaveFile(photo, localPath); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to save photo"})
		}
		photoURL = "/uploads/" + key
	}

	dropOff, err := s.CreateDropOff(eventID, callerID, photoURL, lat, lng, notes)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"drop_off":  dropOff,
		"photo_url": photoURL,
	})
}
