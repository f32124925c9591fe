// services/disc_service.go
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
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

type DiscService struct {
	DB       *gorm.DB
	Notifier *NotificationService

	now func() time.Time
	// QR rows conceptually live in the code registry, which may not share a
	// transaction with the disc table. Deletes go through this hook so the
	// compensation path in UnlinkQR stays honest (and testable).
	deleteQRCode func(db *gorm.DB, id string) error
}

func NewDiscService(db *gorm.DB, notifier *NotificationService) *DiscService {
	return &DiscService{
		DB:       db,
		Notifier: notifier,
		now:      time.Now,
		deleteQRCode: func(db *gorm.DB, id string) error {
			return db.Unscoped().Delete(&models.QRCode{}, "id = ?", id).Error
		},
	}
}

// OwnerOf resolves the disc's current owner at call time. Ownership can move
// mid-negotiation (surrender), so callers must not cache this.
func (s *DiscService) OwnerOf(discID string) (*string, error) {
	var disc models.Disc
	if err := s.DB.Select("owner_id").First(&disc, "id = ?", discID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return disc.OwnerID, nil
}

// ClaimDisc takes ownership of an unowned disc. The owner_id check and the
// write are one conditional UPDATE so two concurrent claimants can't both
// win; the loser sees AlreadyOwned.
func (s *DiscService) ClaimDisc(discID, callerID string) (*models.Disc, error) {
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Disc{}).
			Where("id = ? AND owner_id IS NULL", discID).
			Update("owner_id", callerID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var disc models.Disc
			if err := tx.First(&disc, "id = ?", discID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrNotFound
				}
				return err
			}
			return ErrAlreadyOwned
		}

		// An abandoned recovery on this disc needs no further action now that
		// someone owns it again. Same transaction: a claim never commits with
		// the abandoned event still open.
		n, err := closeAbandonedRecoveries(tx, discID, s.now())
		if err != nil {
			return err
		}
		if n > 0 {
			log.Printf("✅ [CLAIM] closed %d abandoned recovery(ies) for disc %s", n, discID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var disc models.Disc
	if err := s.DB.First(&disc, "id = ?", discID).Error; err != nil {
		return nil, err
	}
	return &disc, nil
}

// ReleaseDisc gives up ownership. Any in-flight recovery goes to abandoned in
// the same transaction, so an unowned disc never has a live negotiation.
func (s *DiscService) ReleaseDisc(discID, callerID string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Disc{}).
			Where("id = ? AND owner_id = ?", discID, callerID).
			Update("owner_id", nil)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var disc models.Disc
			if err := tx.First(&disc, "id = ?", discID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrNotFound
				}
				return err
			}
			return ErrForbidden
		}

		return tx.Model(&models.RecoveryEvent{}).
			Where("disc_id = ? AND status NOT IN ? AND status <> ?",
				discID, models.RecoveryTerminalStatuses, models.RecoveryStatusAbandoned).
			Update("status", models.RecoveryStatusAbandoned).Error
	})
}

// Transfer moves disc ownership to newOwnerID on the given transaction.
// Only the disc row: QR reassignment is deliberately non-transactional —
// see ReassignQRCode.
func (s *DiscService) Transfer(tx *gorm.DB, discID, newOwnerID string) error {
	res := tx.Model(&models.Disc{}).
		Where("id = ?", discID).
		Update("owner_id", newOwnerID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ReassignQRCode points the disc's active QR at the new owner. The code stays
// active (it's still glued to the same plastic); only the assignee changes.
// Best-effort: losing the code binding is recoverable, failing the surrender
// that triggered this is not, so errors are logged and swallowed.
func (s *DiscService) ReassignQRCode(discID, newOwnerID string) {
	var disc models.Disc
	if err := s.DB.First(&disc, "id = ?", discID).Error; err != nil {
		log.Printf("⚠️ [QR] cannot load disc %s for reassignment: %v", discID, err)
		return
	}
	if disc.QRCodeID == nil {
		return
	}
	if err := s.DB.Model(&models.QRCode{}).
		Where("id = ? AND status = ?", *disc.QRCodeID, models.QRStatusActive).
		Update("assigned_to", newOwnerID).Error; err != nil {
		log.Printf("⚠️ [QR] failed to reassign code %s to %s: %v", *disc.QRCodeID, newOwnerID, err)
	}
}

// LinkQR binds a minted code to the caller's disc and activates it.
func (s *DiscService) LinkQR(discID, callerID, shortCode string) (*models.Disc, error) {
	var disc models.Disc
	if err := s.DB.First(&disc, "id = ?", discID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !disc.OwnedBy(callerID) {
		return nil, ErrForbidden
	}
	if disc.QRCodeID != nil {
		return nil, ErrAlreadyLinked
	}

	code := utils.NormalizeShortCode(shortCode)
	var qr models.QRCode
	if err := s.DB.First(&qr, "short_code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.QRCode{}).
			Where("id = ? AND status IN ?", qr.ID, []string{models.QRStatusGenerated, models.QRStatusAssigned}).
			Updates(map[string]interface{}{
				"status":      models.QRStatusActive,
				"assigned_to": callerID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict // already active or deactivated
		}

		res = tx.Model(&models.Disc{}).
			Where("id = ? AND qr_code_id IS NULL", discID).
			Update("qr_code_id", qr.ID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.DB.Preload("QRCode").First(&disc, "id = ?", discID).Error; err != nil {
		return nil, err
	}
	return &disc, nil
}

// UnlinkQR removes the disc↔code binding and deletes the code row. The two
// writes span conceptually different ownership domains (disc record vs. code
// registry), so instead of a cross-domain transaction the first write is
// compensated when the second fails: the binding is restored before the
// error surfaces, leaving either both sides cleared or neither.
func (s *DiscService) UnlinkQR(discID, callerID string) (*models.Disc, error) {
	var disc models.Disc
	if err := s.DB.First(&disc, "id = ?", discID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !disc.OwnedBy(callerID) {
		return nil, ErrForbidden
	}
	if disc.QRCodeID == nil {
		return nil, ErrNoQRCode
	}
	qrID := *disc.QRCodeID

	res := s.DB.Model(&models.Disc{}).
		Where("id = ? AND qr_code_id = ?", discID, qrID).
		Update("qr_code_id", nil)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrConflict
	}

	if err := s.deleteQRCode(s.DB, qrID); err != nil {
		// Compensate: restore the binding before reporting failure.
		if rbErr := s.DB.Model(&models.Disc{}).
			Where("id = ? AND qr_code_id IS NULL", discID).
			Update("qr_code_id", qrID).Error; rbErr != nil {
			log.Printf("❌ [QR] compensation failed for disc %s, code %s left orphaned: %v", discID, qrID, rbErr)
		}
		return nil, fmt.Errorf("deleting QR code %s: %w", qrID, err)
	}

	disc.QRCodeID = nil
	return &disc, nil
}

// --- Endpoints ---

// RegisterDisc creates a disc owned by the caller.
func (s *DiscService) RegisterDisc(c *fiber.Ctx) error {
	callerID := c.Locals("user_id").(string)

	var req struct {
		Name         string  `json:"name"`
		Manufacturer string  `json:"manufacturer"`
		Mold         string  `json:"mold"`
		Plastic      string  `json:"plastic"`
		Color        string  `json:"color"`
		Speed        float64 `json:"speed"`
		Glide        float64 `json:"glide"`
		Turn         float64 `json:"turn"`
		Fade         float64 `json:"fade"`
		RewardAmount float64 `json:"reward_amount"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name is required"})
	}
	if req.RewardAmount < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "reward_amount must be non-negative"})
	}

	disc := models.Disc{
		ID:           uuid.NewString(),
		OwnerID:      &callerID,
		Name:         req.Name,
		Manufacturer: req.Manufacturer,
		Mold:         req.Mold,
		Plastic:      req.Plastic,
		Color:        req.Color,
		Speed:        req.Speed,
		Glide:        req.Glide,
		Turn:         req.Turn,
		Fade:         req.Fade,
		RewardAmount: req.RewardAmount,
	}
	if err := s.DB.Create(&disc).Error; err != nil {
		log.Printf("DB Error creating disc: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create disc"})
	}
	return c.Status(fiber.StatusCreated).JSON(disc)
}

// GetMyDiscs lists the caller's discs with their QR codes.
func (s *DiscService) GetMyDiscs(c *fiber.Ctx) error {
	callerID := c.Locals("user_id").(string)

	var discs []models.Disc
	if err := s.DB.Preload("QRCode").
		Where("owner_id = ?", callerID).
		Order("created_at DESC").
		Find(&discs).Error; err != nil {
		log.Printf("ERROR fetching discs for %s: %v", callerID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch discs"})
	}
	return c.JSON(discs)
}

func (s *DiscService) ClaimDiscEndpoint(c *fiber.Ctx) error {
	callerID := c.Locals("user_id").(string)
	discID := c.Params("id")
	if _, err := uuid.Parse(discID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid disc ID"})
	}

	disc, err := s.ClaimDisc(discID, callerID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(disc)
}

func (s *DiscService) ReleaseDiscEndpoint(c *fiber.Ctx) error {
	callerID := c.Locals("user_id").(string)
	discID := c.Params("id")
	if _, err := uuid.Parse(discID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid disc ID"})
	}

	if err := s.ReleaseDisc(discID, callerID); err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"released": true})
}

func (s *DiscService) LinkQREndpoint(c *fiber.Ctx) error {
	callerID := c.Locals("user_id").(string)
	discID := c.Params("id")

	var req struct {
		ShortCode string `json:"short_code"`
	}
	if err := c.BodyParser(&req); err != nil || req.ShortCode == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "short_code is required"})
	}

	disc, err := s.LinkQR(discID, callerID, req.ShortCode)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(disc)
}

func (s *DiscService) UnlinkQREndpoint(c *fiber.Ctx) error {
	callerID := c.Locals("user_id").(string)
	discID := c.Params("id")

	disc, err := s.UnlinkQR(discID, callerID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(disc)
}

// PublicLookup resolves a scanned short code with no auth. Always 200 with a
// soft-fail shape so sticker scans never dead-end, and never leaks owner PII.
func (s *DiscService) PublicLookup(c *fiber.Ctx) error {
	code := utils.NormalizeShortCode(c.Params("code"))

	var qr models.QRCode
	if err := s.DB.First(&qr, "short_code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(fiber.Map{"status": "unknown"})
		}
		log.Printf("ERROR looking up code %s: %v", code, err)
		return c.JSON(fiber.Map{"status": "unknown"})
	}

	switch qr.Status {
	case models.QRStatusDeactivated:
		return c.JSON(fiber.Map{"status": models.QRStatusDeactivated})
	case models.QRStatusGenerated, models.QRStatusAssigned:
		return c.JSON(fiber.Map{"status": qr.Status})
	}

	var disc models.Disc
	if err := s.DB.First(&disc, "qr_code_id = ?", qr.ID).Error; err != nil {
		// Active code with no disc — binding was lost (e.g. a failed
		// reassignment). Don't 500 a sticker scan over it.
		log.Printf("⚠️ [LOOKUP] active code %s has no disc: %v", qr.ID, err)
		return c.JSON(fiber.Map{"status": "unknown"})
	}

	summary := fiber.Map{
		"status":    models.QRStatusActive,
		"claimable": disc.OwnerID == nil,
		"disc": fiber.Map{
			"id":            disc.ID,
			"name":          disc.Name,
			"manufacturer":  disc.Manufacturer,
			"mold":          disc.Mold,
			"plastic":       disc.Plastic,
			"color":         disc.Color,
			"speed":         disc.Speed,
			"glide":         disc.Glide,
			"turn":          disc.Turn,
			"fade":          disc.Fade,
			"reward_amount": disc.RewardAmount,
		},
		"deep_link": fmt.Sprintf("/found/%s/%s", slug.Make(disc.Name), disc.ID),
	}
	return c.JSON(summary)
}

// MintQRCodesEndpoint creates a batch of fresh codes (admin only).
func (s *DiscService) MintQRCodesEndpoint(c *fiber.Ctx) error {
	roles, _ := c.Locals("user_roles").([]string)
	isAdmin := false
	for _, r := range roles {
		if r == "admin" {
			isAdmin = true
			break
		}
	}
	if !isAdmin {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "admin role required"})
	}

	var req struct {
		Count int `json:"count"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Count < 1 || req.Count > 1000 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "count must be between 1 and 1000"})
	}

	codes := make([]models.QRCode, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		short, err := utils.GenerateShortCode()
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to generate codes"})
		}
		codes = append(codes, models.QRCode{
			ID:        uuid.NewString(),
			ShortCode: short,
			Status:    models.QRStatusGenerated,
		})
	}
	if err := s.DB.Create(&codes).Error; err != nil {
		log.Printf("DB Error minting %d QR codes: %v", req.Count, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to mint codes"})
	}

	log.Printf("✅ Minted %d QR codes", len(codes))
	return c.Status(fiber.StatusCreated).JSON(codes)
}
