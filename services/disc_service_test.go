// services/disc_service_test.go
package services

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"disc-recovery-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestClaimDisc(t *testing.T) {
	db, discs, _ := newTestServices(t)
	disc := seedDisc(t, db, nil, 0)

	claimed, err := discs.ClaimDisc(disc.ID, "user-a")
	require.NoError(t, err)
	require.NotNil(t, claimed.OwnerID)
	assert.Equal(t, "user-a", *claimed.OwnerID)
}

func TestClaimDisc_AlreadyOwned(t *testing.T) {
	db, discs, _ := newTestServices(t)
	disc := seedDisc(t, db, ptr("user-a"), 0)

	_, err := discs.ClaimDisc(disc.ID, "user-b")
	assert.ErrorIs(t, err, ErrAlreadyOwned)

	// Owner unchanged
	var fresh models.Disc
	require.NoError(t, db.First(&fresh, "id = ?", disc.ID).Error)
	assert.Equal(t, "user-a", *fresh.OwnerID)
}

func TestClaimDisc_ConcurrentClaimants(t *testing.T) {
	db, discs, _ := newTestServices(t)
	disc := seedDisc(t, db, nil, 0)

	const claimants = 8
	results := make(chan error, claimants)
	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < claimants; i++ {
		userID := fmt.Sprintf("user-%d", i)
		go func() {
			start.Wait()
			_, err := discs.ClaimDisc(disc.ID, userID)
			results <- err
		}()
	}
	start.Done()

	var wins, losses int
	for i := 0; i < claimants; i++ {
		switch err := <-results; {
		case err == nil:
			wins++
		case errors.Is(err, ErrAlreadyOwned):
			losses++
		default:
			t.Fatalf("unexpected claim error: %v", err)
		}
	}
	// Exactly one claimant may win the owner_id IS NULL write
	assert.Equal(t, 1, wins)
	assert.Equal(t, claimants-1, losses)
}

func TestClaimDisc_NotFound(t *testing.T) {
	_, discs, _ := newTestServices(t)

	_, err := discs.ClaimDisc("00000000-0000-0000-0000-000000000000", "user-a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClaimDisc_ClosesAbandonedRecovery(t *testing.T) {
	db, discs, _ := newTestServices(t)
	fixed := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	discs.now = func() time.Time { return fixed }

	disc := seedDisc(t, db, nil, 0)
	abandoned := seedRecovery(t, db, disc.ID, "finder-1", models.RecoveryStatusAbandoned)

	_, err := discs.ClaimDisc(disc.ID, "new-owner")
	require.NoError(t, err)

	var event models.RecoveryEvent
	require.NoError(t, db.First(&event, "id = ?", abandoned.ID).Error)
	assert.Equal(t, models.RecoveryStatusClosedOnReclaim, event.Status)
	require.NotNil(t, event.RecoveredAt)
	assert.True(t, event.RecoveredAt.Equal(fixed))
}

func TestClaimDisc_RollsBackWhenCloseFails(t *testing.T) {
	db, discs, _ := newTestServices(t)
	disc := seedDisc(t, db, nil, 0)
	seedRecovery(t, db, disc.ID, "finder-1", models.RecoveryStatusAbandoned)

	// Make the abandoned-event close blow up mid-transaction
	require.NoError(t, db.Migrator().DropTable(&models.RecoveryEvent{}))

	_, err := discs.ClaimDisc(disc.ID, "new-owner")
	require.Error(t, err)

	// The claim must not have committed without the close
	var fresh models.Disc
	require.NoError(t, db.First(&fresh, "id = ?", disc.ID).Error)
	assert.Nil(t, fresh.OwnerID)
}

func TestReleaseDisc_AbandonsActiveRecovery(t *testing.T) {
	db, discs, _ := newTestServices(t)
	disc := seedDisc(t, db, ptr("owner-1"), 0)
	active := seedRecovery(t, db, disc.ID, "finder-1", models.RecoveryStatusMeetupProposed)
	done := seedRecovery(t, db, disc.ID, "finder-0", models.RecoveryStatusRecovered)

	require.NoError(t, discs.ReleaseDisc(disc.ID, "owner-1"))

	var fresh models.Disc
	require.NoError(t, db.First(&fresh, "id = ?", disc.ID).Error)
	assert.Nil(t, fresh.OwnerID)

	assert.Equal(t, models.RecoveryStatusAbandoned, eventStatus(t, db, active.ID))
	// Terminal events are left alone
	assert.Equal(t, models.RecoveryStatusRecovered, eventStatus(t, db, done.ID))
}

func TestReleaseDisc_OnlyOwner(t *testing.T) {
	db, discs, _ := newTestServices(t)
	disc := seedDisc(t, db, ptr("owner-1"), 0)

	err := discs.ReleaseDisc(disc.ID, "someone-else")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestLinkQR(t *testing.T) {
	db, discs, _ := newTestServices(t)
	disc := seedDisc(t, db, ptr("owner-1"), 0)
	qr := seedQRCode(t, db, "ABCD2345", models.QRStatusGenerated, nil)

	linked, err := discs.LinkQR(disc.ID, "owner-1", "abcd2345") // case-insensitive
	require.NoError(t, err)
	require.NotNil(t, linked.QRCodeID)
	assert.Equal(t, qr.ID, *linked.QRCodeID)

	var freshQR models.QRCode
	require.NoError(t, db.First(&freshQR, "id = ?", qr.ID).Error)
	assert.Equal(t, models.QRStatusActive, freshQR.Status)
	require.NotNil(t, freshQR.AssignedTo)
	assert.Equal(t, "owner-1", *freshQR.AssignedTo)
}

func TestLinkQR_DiscAlreadyLinked(t *testing.T) {
	db, discs, _ := newTestServices(t)
	disc := seedDisc(t, db, ptr("owner-1"), 0)
	seedQRCode(t, db, "ABCD2345", models.QRStatusGenerated, nil)
	seedQRCode(t, db, "EFGH6789", models.QRStatusGenerated, nil)

	_, err := discs.LinkQR(disc.ID, "owner-1", "ABCD2345")
	require.NoError(t, err)

	_, err = discs.LinkQR(disc.ID, "owner-1", "EFGH6789")
	assert.ErrorIs(t, err, ErrAlreadyLinked)
}

func TestLinkQR_CodeNotLinkable(t *testing.T) {
	db, discs, _ := newTestServices(t)
	disc := seedDisc(t, db, ptr("owner-1"), 0)
	seedQRCode(t, db, "DEAD2345", models.QRStatusDeactivated, nil)

	_, err := discs.LinkQR(disc.ID, "owner-1", "DEAD2345")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestLinkQR_OnlyOwner(t *testing.T) {
	db, discs, _ := newTestServices(t)
	disc := seedDisc(t, db, ptr("owner-1"), 0)
	seedQRCode(t, db, "ABCD2345", models.QRStatusGenerated, nil)

	_, err := discs.LinkQR(disc.ID, "stranger", "ABCD2345")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestUnlinkQR_DeletesCode(t *testing.T) {
	db, discs, _ := newTestServices(t)
	disc := seedDisc(t, db, ptr("owner-1"), 0)
	qr := seedQRCode(t, db, "ABCD2345", models.QRStatusGenerated, nil)
	_, err := discs.LinkQR(disc.ID, "owner-1", "ABCD2345")
	require.NoError(t, err)

	unlinked, err := discs.UnlinkQR(disc.ID, "owner-1")
	require.NoError(t, err)
	assert.Nil(t, unlinked.QRCodeID)

	var count int64
	require.NoError(t, db.Unscoped().Model(&models.QRCode{}).
		Where("id = ?", qr.ID).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestUnlinkQR_NoCode(t *testing.T) {
	db, discs, _ := newTestServices(t)
	disc := seedDisc(t, db, ptr("owner-1"), 0)

	_, err := discs.UnlinkQR(disc.ID, "owner-1")
	assert.ErrorIs(t, err, ErrNoQRCode)
}

func TestUnlinkQR_CompensatesOnDeleteFailure(t *testing.T) {
	db, discs, _ := newTestServices(t)
	disc := seedDisc(t, db, ptr("owner-1"), 0)
	qr := seedQRCode(t, db, "ABCD2345", models.QRStatusGenerated, nil)
	_, err := discs.LinkQR(disc.ID, "owner-1", "ABCD2345")
	require.NoError(t, err)

	boom := errors.New("registry unavailable")
	discs.deleteQRCode = func(_ *gorm.DB, _ string) error { return boom }

	_, err = discs.UnlinkQR(disc.ID, "owner-1")
	require.ErrorIs(t, err, boom)

	// Binding restored: either both sides cleared or neither.
	var fresh models.Disc
	require.NoError(t, db.First(&fresh, "id = ?", disc.ID).Error)
	require.NotNil(t, fresh.QRCodeID)
	assert.Equal(t, qr.ID, *fresh.QRCodeID)
}
