// models/disc.go
package models

import (
	"time"

	"gorm.io/gorm"
)

// Disc is a tracked item. OwnerID is nil for an unowned disc, which anyone
// may claim; QRCodeID is nil when no code is physically bound to it.
type Disc struct {
	ID       string  `json:"id" gorm:"primaryKey"`
	OwnerID  *string `json:"owner_id" gorm:"index"`
	QRCodeID *string `json:"qr_code_id" gorm:"index"`

	Name         string `json:"name" gorm:"not null"`
	Manufacturer string `json:"manufacturer"`
	Mold         string `json:"mold"`
	Plastic      string `json:"plastic"`
	Color        string `json:"color"`

	// Flight numbers (opaque to the engine, shown on the public lookup page)
	Speed float64 `json:"speed"`
	Glide float64 `json:"glide"`
	Turn  float64 `json:"turn"`
	Fade  float64 `json:"fade"`

	// 💰 Reward offered for a successful return. 0 = no reward.
	RewardAmount float64 `json:"reward_amount" gorm:"default:0"`

	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`

	// 🔗 Relationships
	QRCode     *QRCode         `json:"qr_code,omitempty" gorm:"foreignKey:QRCodeID"`
	Recoveries []RecoveryEvent `json:"recoveries,omitempty" gorm:"foreignKey:DiscID"`
}

// HasReward reports whether the disc carries a reward worth acknowledging.
func (d *Disc) HasReward() bool {
	return d.RewardAmount > 0
}

// OwnedBy reports whether userID is the disc's current owner.
func (d *Disc) OwnedBy(userID string) bool {
	return d.OwnerID != nil && *d.OwnerID == userID
}
