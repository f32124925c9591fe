// services/testutil_test.go
package services

import (
	"testing"
	"time"

	"disc-recovery-system/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens an in-memory sqlite database with the recovery schema.
// recovery_users is left out: its uuid default is postgres-only, and every
// read of it degrades gracefully when the table is absent.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection so every query sees the same in-memory database.
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Disc{},
		&models.QRCode{},
		&models.RecoveryEvent{},
		&models.MeetupProposal{},
		&models.DropOff{},
		&models.Notification{},
	))
	return db
}

func newTestServices(t *testing.T) (*gorm.DB, *DiscService, *RecoveryService) {
	t.Helper()
	db := newTestDB(t)
	notifier := NewNotificationService(db)
	discs := NewDiscService(db, notifier)
	recoveries := NewRecoveryService(db, notifier, discs)
	return db, discs, recoveries
}

func ptr(s string) *string { return &s }

func seedDisc(t *testing.T, db *gorm.DB, ownerID *string, reward float64) *models.Disc {
	t.Helper()
	disc := &models.Disc{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		Name:         "Destroyer",
		Manufacturer: "Innova",
		Mold:         "Destroyer",
		Plastic:      "Star",
		Color:        "red",
		Speed:        12, Glide: 5, Turn: -1, Fade: 3,
		RewardAmount: reward,
	}
	require.NoError(t, db.Create(disc).Error)
	return disc
}

func seedRecovery(t *testing.T, db *gorm.DB, discID, finderID, status string) *models.RecoveryEvent {
	t.Helper()
	event := &models.RecoveryEvent{
		ID:       uuid.NewString(),
		DiscID:   discID,
		FinderID: finderID,
		Status:   status,
		FoundAt:  time.Now(),
	}
	require.NoError(t, db.Create(event).Error)
	return event
}

func seedQRCode(t *testing.T, db *gorm.DB, shortCode, status string, assignedTo *string) *models.QRCode {
	t.Helper()
	qr := &models.QRCode{
		ID:         uuid.NewString(),
		ShortCode:  shortCode,
		Status:     status,
		AssignedTo: assignedTo,
	}
	require.NoError(t, db.Create(qr).Error)
	return qr
}

func eventStatus(t *testing.T, db *gorm.DB, eventID string) string {
	t.Helper()
	var event models.RecoveryEvent
	require.NoError(t, db.First(&event, "id = ?", eventID).Error)
	return event.Status
}

func notificationCount(t *testing.T, db *gorm.DB, userID, ntype string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.Notification{}).
		Where("user_id = ? AND type = ?", userID, ntype).
		Count(&n).Error)
	return n
}
