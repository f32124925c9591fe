package models

import "time"

// Notification is an in-app notification row written by the engine after a
// lifecycle transition commits. Push/SMS/email fan-out reads these; delivery
// failures never roll anything back.
type Notification struct {
	ID     string `json:"id" gorm:"primaryKey"`
	UserID string `json:"user_id" gorm:"index;not null"`
	Type   string `json:"type" gorm:"not null"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	// Opaque payload referencing the triggering recovery/disc, JSON-encoded.
	Data string `json:"data" gorm:"type:jsonb"`

	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at" gorm:"autoCreateTime;index"`
}
