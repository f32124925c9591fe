package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	QRStatusGenerated   = "generated"   // minted, not yet shipped/claimed by anyone
	QRStatusAssigned    = "assigned"    // sold/handed to a user, not yet on a disc
	QRStatusActive      = "active"      // bound to a disc
	QRStatusDeactivated = "deactivated" // retired, lookup returns status only
)

// QRCode is a physical sticker token. ShortCode is what gets printed and is
// matched case-insensitively (stored uppercase). Invariant: status = active
// implies exactly one Disc.qr_code_id points at this row.
type QRCode struct {
	ID         string  `json:"id" gorm:"primaryKey"`
	ShortCode  string  `json:"short_code" gorm:"uniqueIndex;not null"`
	Status     string  `json:"status" gorm:"default:'generated';index"`
	AssignedTo *string `json:"assigned_to,omitempty" gorm:"index"`

	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}
