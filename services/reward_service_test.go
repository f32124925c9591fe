// services/reward_service_test.go
package services

import (
	"testing"
	"time"

	"disc-recovery-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkRewardPaid(t *testing.T) {
	db, _, recoveries := newTestServices(t)
	fixed := time.Date(2026, 8, 3, 15, 0, 0, 0, time.UTC)
	recoveries.now = func() time.Time { return fixed }

	disc := seedDisc(t, db, ptr("owner-1"), 20)
	event := seedRecovery(t, db, disc.ID, "finder-1", models.RecoveryStatusRecovered)

	result, err := recoveries.MarkRewardPaid(event.ID, "finder-1")
	require.NoError(t, err)
	require.NotNil(t, result.RewardPaidAt)
	assert.True(t, result.RewardPaidAt.Equal(fixed))

	assert.EqualValues(t, 1, notificationCount(t, db, "owner-1", NotificationTypeRewardAcknowledged))
}

func TestMarkRewardPaid_Idempotent(t *testing.T) {
	db, _, recoveries := newTestServices(t)
	fixed := time.Date(2026, 8, 3, 15, 0, 0, 0, time.UTC)
	recoveries.now = func() time.Time { return fixed }

	disc := seedDisc(t, db, ptr("owner-1"), 20)
	event := seedRecovery(t, db, disc.ID, "finder-1", models.RecoveryStatusRecovered)

	first, err := recoveries.MarkRewardPaid(event.ID, "finder-1")
	require.NoError(t, err)

	// Clock moves on, the retry must not
	recoveries.now = func() time.Time { return fixed.Add(time.Hour) }

	second, err := recoveries.MarkRewardPaid(event.ID, "finder-1")
	require.NoError(t, err)
	require.NotNil(t, second.RewardPaidAt)
	assert.True(t, second.RewardPaidAt.Equal(*first.RewardPaidAt))

	// The owner is not re-notified on retries
	assert.EqualValues(t, 1, notificationCount(t, db, "owner-1", NotificationTypeRewardAcknowledged))
}

func TestMarkRewardPaid_OnlyFinder(t *testing.T) {
	db, _, recoveries := newTestServices(t)
	disc := seedDisc(t, db, ptr("owner-1"), 20)
	event := seedRecovery(t, db, disc.ID, "finder-1", models.RecoveryStatusRecovered)

	_, err := recoveries.MarkRewardPaid(event.ID, "owner-1")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestMarkRewardPaid_NoReward(t *testing.T) {
	db, _, recoveries := newTestServices(t)
	disc := seedDisc(t, db, ptr("owner-1"), 0)
	event := seedRecovery(t, db, disc.ID, "finder-1", models.RecoveryStatusRecovered)

	_, err := recoveries.MarkRewardPaid(event.ID, "finder-1")
	assert.ErrorIs(t, err, ErrNoReward)
}

func TestMarkRewardPaid_NotRecovered(t *testing.T) {
	db, _, recoveries := newTestServices(t)
	disc := seedDisc(t, db, ptr("owner-1"), 20)
	event := seedRecovery(t, db, disc.ID, "finder-1", models.RecoveryStatusDroppedOff)

	_, err := recoveries.MarkRewardPaid(event.ID, "finder-1")
	var stateErr *InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, models.RecoveryStatusDroppedOff, stateErr.Current)
}
