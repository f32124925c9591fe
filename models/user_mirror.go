package models

import (
	"time"

	"gorm.io/gorm"
)

// RecoveryUser is a local snapshot of user data the recovery flows need
// (display name for the other participant, push token for delivery).
// Owned solely by this service; populated by the profile sync worker.
type RecoveryUser struct {
	ID             string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	ExternalUserID string `gorm:"uniqueIndex;not null" json:"external_user_id"`

	Username  string  `gorm:"index;not null" json:"username"`
	Email     string  `json:"email,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`

	// Push delivery
	PushToken           *string `json:"push_token,omitempty"`
	AllowsNotifications bool    `json:"allows_notifications" gorm:"default:true"`

	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
