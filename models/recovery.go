package models

import (
	"time"

	"gorm.io/gorm"
)

// RecoveryEvent lifecycle:
//
//	found → meetup_proposed → meetup_confirmed → dropped_off → recovered
//	found | meetup_proposed | meetup_confirmed → surrendered
//	any non-terminal → cancelled (reserved, no endpoint sets it yet)
//	abandoned: disc lost its owner mid-recovery; reclaimable
//	closed_on_reclaim: an abandoned event closed by a new claim
const (
	RecoveryStatusFound           = "found"
	RecoveryStatusMeetupProposed  = "meetup_proposed"
	RecoveryStatusMeetupConfirmed = "meetup_confirmed"
	RecoveryStatusDroppedOff      = "dropped_off"
	RecoveryStatusRecovered       = "recovered"
	RecoveryStatusSurrendered     = "surrendered"
	RecoveryStatusCancelled       = "cancelled"
	RecoveryStatusAbandoned       = "abandoned"
	RecoveryStatusClosedOnReclaim = "closed_on_reclaim"
)

// RecoveryTerminalStatuses are states no transition may leave.
// abandoned is deliberately not here: a claim can still close it.
var RecoveryTerminalStatuses = []string{
	RecoveryStatusRecovered,
	RecoveryStatusSurrendered,
	RecoveryStatusCancelled,
	RecoveryStatusClosedOnReclaim,
}

// IsTerminalRecoveryStatus reports whether status is in RecoveryTerminalStatuses.
func IsTerminalRecoveryStatus(status string) bool {
	for _, s := range RecoveryTerminalStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// RecoveryEvent is one attempt to return a specific disc found by a specific
// finder. Rows are never deleted; they only reach a terminal status.
// OriginalOwnerID is captured at surrender time because ownership moves to
// the finder in the same transaction.
type RecoveryEvent struct {
	ID       string `json:"id" gorm:"primaryKey"`
	DiscID   string `json:"disc_id" gorm:"index;not null"`
	FinderID string `json:"finder_id" gorm:"index;not null"`
	Status   string `json:"status" gorm:"default:'found';index"`

	FoundAt         time.Time  `json:"found_at"`
	SurrenderedAt   *time.Time `json:"surrendered_at,omitempty"`
	RecoveredAt     *time.Time `json:"recovered_at,omitempty"`
	OriginalOwnerID *string    `json:"original_owner_id,omitempty"`
	RewardPaidAt    *time.Time `json:"reward_paid_at,omitempty"`

	Timestamps

	// 🔗 Relationships
	Disc      Disc             `json:"disc,omitempty" gorm:"foreignKey:DiscID"`
	Proposals []MeetupProposal `json:"proposals,omitempty" gorm:"foreignKey:RecoveryEventID"`
	DropOff   *DropOff         `json:"drop_off,omitempty" gorm:"foreignKey:RecoveryEventID"`
}

const (
	ProposalStatusPending  = "pending"
	ProposalStatusDeclined = "declined"
	ProposalStatusAccepted = "accepted"
)

// MeetupProposal is a single proposed meeting. Proposals accumulate per
// event; the negotiation protocol keeps at most one pending at a time.
type MeetupProposal struct {
	ID              string `json:"id" gorm:"primaryKey"`
	RecoveryEventID string `json:"recovery_event_id" gorm:"index;not null"`
	ProposedBy      string `json:"proposed_by" gorm:"not null"`

	LocationName     string    `json:"location_name" gorm:"not null"`
	Latitude         *float64  `json:"latitude,omitempty"`
	Longitude        *float64  `json:"longitude,omitempty"`
	ProposedDatetime time.Time `json:"proposed_datetime"`
	Message          string    `json:"message,omitempty"`
	Status           string    `json:"status" gorm:"default:'pending';index"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// DropOff records the finder leaving the disc somewhere for pickup.
// RetrievedAt is set when the owner confirms they have it.
type DropOff struct {
	ID              string `json:"id" gorm:"primaryKey"`
	RecoveryEventID string `json:"recovery_event_id" gorm:"uniqueIndex;not null"`

	PhotoURL  string  `json:"photo_url"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Notes     string  `json:"notes,omitempty"`

	RetrievedAt *time.Time `json:"retrieved_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime"`
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
