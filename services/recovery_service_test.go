// services/recovery_service_test.go
package services

import (
	"testing"
	"time"

	"disc-recovery-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportFound(t *testing.T) {
	db, _, recoveries := newTestServices(t)
	disc := seedDisc(t, db, ptr("owner-1"), 0)

	event, err := recoveries.ReportFound(disc.ID, "finder-1")
	require.NoError(t, err)
	assert.Equal(t, models.RecoveryStatusFound, event.Status)
	assert.Equal(t, "finder-1", event.FinderID)
	assert.False(t, event.FoundAt.IsZero())

	// Owner gets notified
	assert.EqualValues(t, 1, notificationCount(t, db, "owner-1", NotificationTypeDiscFound))
}

func TestReportFound_OwnDisc(t *testing.T) {
	db, _, recoveries := newTestServices(t)
	disc := seedDisc(t, db, ptr("owner-1"), 0)

	_, err := recoveries.ReportFound(disc.ID, "owner-1")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestReportFound_UnownedDisc(t *testing.T) {
	db, _, recoveries := newTestServices(t)
	disc := seedDisc(t, db, nil, 0)

	// Nothing to return to anyone — the finder should claim instead
	_, err := recoveries.ReportFound(disc.ID, "finder-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReportFound_OneNonTerminalPerDisc(t *testing.T) {
	db, _, recoveries := newTestServices(t)
	disc := seedDisc(t, db, ptr("owner-1"), 0)

	first, err := recoveries.ReportFound(disc.ID, "finder-1")
	require.NoError(t, err)

	// A second report while the first is live loses
	_, err = recoveries.ReportFound(disc.ID, "finder-2")
	assert.ErrorIs(t, err, ErrConflict)

	// Once the first reaches a terminal state, a new one may open
	require.NoError(t, db.Model(&models.RecoveryEvent{}).
		Where("id = ?", first.ID).
		Update("status", models.RecoveryStatusRecovered).Error)

	_, err = recoveries.ReportFound(disc.ID, "finder-2")
	assert.NoError(t, err)
}

func TestSurrender(t *testing.T) {
	db, discs, recoveries := newTestServices(t)
	fixed := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	recoveries.now = func() time.Time { return fixed }

	disc := seedDisc(t, db, ptr("owner-1"), 0)
	qr := seedQRCode(t, db, "ABCD2345", models.QRStatusGenerated, nil)
	_, err := discs.LinkQR(disc.ID, "owner-1", "ABCD2345")
	require.NoError(t, err)

	event := seedRecovery(t, db, disc.ID, "finder-1", models.RecoveryStatusMeetupProposed)

	result, err := recoveries.Surrender(event.ID, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, models.RecoveryStatusSurrendered, result.Status)
	require.NotNil(t, result.SurrenderedAt)
	assert.True(t, result.SurrenderedAt.Equal(fixed))
	require.NotNil(t, result.OriginalOwnerID)
	assert.Equal(t, "owner-1", *result.OriginalOwnerID)

	// Ownership moved to the finder
	var freshDisc models.Disc
	require.NoError(t, db.First(&freshDisc, "id = ?", disc.ID).Error)
	require.NotNil(t, freshDisc.OwnerID)
	assert.Equal(t, "finder-1", *freshDisc.OwnerID)

	// The QR code stays active but follows the new owner
	var freshQR models.QRCode
	require.NoError(t, db.First(&freshQR, "id = ?", qr.ID).Error)
	assert.Equal(t, models.QRStatusActive, freshQR.Status)
	require.NotNil(t, freshQR.AssignedTo)
	assert.Equal(t, "finder-1", *freshQR.AssignedTo)

	assert.EqualValues(t, 1, notificationCount(t, db, "finder-1", NotificationTypeDiscSurrendered))
}

func TestSurrender_OnlyOwner(t *testing.T) {
	db, _, recoveries := newTestServices(t)
	disc := seedDisc(t, db, ptr("owner-1"), 0)
	event := seedRecovery(t, db, disc.ID, "finder-1", models.RecoveryStatusFound)

	_, err := recoveries.Surrender(event.ID, "finder-1")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestSurrender_InvalidAfterDropOff(t *testing.T) {
	db, _, recoveries := newTestServices(t)
	disc := seedDisc(t, db, ptr("owner-1"), 0)
	event := seedRecovery(t, db, disc.ID, "finder-1", models.RecoveryStatusDroppedOff)

	_, err := recoveries.Surrender(event.ID, "owner-1")
	var stateErr *InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, models.RecoveryStatusDroppedOff, stateErr.Current)
}

func TestSurrender_AlreadySurrendered(t *testing.T) {
	db, _, recoveries := newTestServices(t)
	disc := seedDisc(t, db, ptr("owner-1"), 0)
	event := seedRecovery(t, db, disc.ID, "finder-1", models.RecoveryStatusFound)

	_, err := recoveries.Surrender(event.ID, "owner-1")
	require.NoError(t, err)

	// A retry by the original owner reports the closed lifecycle, even though
	// ownership already moved to the finder.
	_, err = recoveries.Surrender(event.ID, "owner-1")
	var stateErr *InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, models.RecoveryStatusSurrendered, stateErr.Current)

	// Same for the new owner.
	_, err = recoveries.Surrender(event.ID, "finder-1")
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, models.RecoveryStatusSurrendered, stateErr.Current)
}

func TestMarkRetrieved(t *testing.T) {
	db, _, recoveries := newTestServices(t)
	fixed := time.Date(2026, 8, 2, 9, 30, 0, 0, time.UTC)
	recoveries.now = func() time.Time { return fixed }

	disc := seedDisc(t, db, ptr("owner-1"), 0)
	event := seedRecovery(t, db, disc.ID, "finder-1", models.RecoveryStatusFound)

	_, err := recoveries.CreateDropOff(event.ID, "finder-1", "/uploads/dropoffs/x.jpg", 46.05, 14.51, "under the bench at hole 7")
	require.NoError(t, err)

	result, err := recoveries.MarkRetrieved(event.ID, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, models.RecoveryStatusRecovered, result.Status)
	require.NotNil(t, result.RecoveredAt)
	assert.True(t, result.RecoveredAt.Equal(fixed))

	var dropOff models.DropOff
	require.NoError(t, db.First(&dropOff, "recovery_event_id = ?", event.ID).Error)
	require.NotNil(t, dropOff.RetrievedAt)

	assert.EqualValues(t, 1, notificationCount(t, db, "finder-1", NotificationTypeDiscRetrieved))
}

func TestMarkRetrieved_WrongState(t *testing.T) {
	db, _, recoveries := newTestServices(t)
	disc := seedDisc(t, db, ptr("owner-1"), 0)
	event := seedRecovery(t, db, disc.ID, "finder-1", models.RecoveryStatusFound)

	_, err := recoveries.MarkRetrieved(event.ID, "owner-1")
	var stateErr *InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, models.RecoveryStatusFound, stateErr.Current)
}

func TestMarkRetrieved_DropOffMissing(t *testing.T) {
	db, _, recoveries := newTestServices(t)
	disc := seedDisc(t, db, ptr("owner-1"), 0)
	// dropped_off status without a drop-off row (data drift)
	event := seedRecovery(t, db, disc.ID, "finder-1", models.RecoveryStatusDroppedOff)

	_, err := recoveries.MarkRetrieved(event.ID, "owner-1")
	assert.ErrorIs(t, err, ErrDropOffMissing)
}

func TestCreateDropOff_OnlyFinder(t *testing.T) {
	db, _, recoveries := newTestServices(t)
	disc := seedDisc(t, db, ptr("owner-1"), 0)
	event := seedRecovery(t, db, disc.ID, "finder-1", models.RecoveryStatusFound)

	_, err := recoveries.CreateDropOff(event.ID, "owner-1", "/uploads/x.jpg", 0, 0, "")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCreateDropOff_WrongState(t *testing.T) {
	db, _, recoveries := newTestServices(t)
	disc := seedDisc(t, db, ptr("owner-1"), 0)
	event := seedRecovery(t, db, disc.ID, "finder-1", models.RecoveryStatusMeetupConfirmed)

	// Drop-off only applies from found; a confirmed meetup means the
	// parties planned to meet in person instead.
	_, err := recoveries.CreateDropOff(event.ID, "finder-1", "/uploads/x.jpg", 0, 0, "")
	var stateErr *InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, models.RecoveryStatusMeetupConfirmed, stateErr.Current)
}
