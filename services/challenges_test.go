package services

import (
	"errors"
	"testing"
	"time"

	"progression-engine/models"
	"progression-engine/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newChallengeService(t *testing.T) (*ChallengeService, *gorm.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	ledger := NewLedgerService(db, DefaultEngineConfig())
	return NewChallengeService(db, ledger), db
}

func seedChallenge(t *testing.T, db *gorm.DB, challengeType string, target int, xpReward int64, active bool, endsIn time.Duration) *models.Challenge {
	t.Helper()
	ch := &models.Challenge{
		ID:            uuid.NewString(),
		Slug:          "test-" + uuid.NewString()[:8],
		Title:         "Test Challenge",
		ChallengeType: challengeType,
		TargetCount:   target,
		XPReward:      xpReward,
		StartDate:     time.Now().Add(-time.Hour),
		EndDate:       time.Now().Add(endsIn),
		IsActive:      active,
	}
	require.NoError(t, db.Create(ch).Error)
	return ch
}

func TestJoin_OnceOnly(t *testing.T) {
	svc, db := newChallengeService(t)
	ch := seedChallenge(t, db, ActionRecipeUpload, 5, 500, true, 24*time.Hour)

	progress, err := svc.Join(db, "user-1", ch.ID, time.Now())
	require.NoError(t, err)
	assert.Zero(t, progress.CurrentProgress)
	assert.False(t, progress.Completed)

	_, err = svc.Join(db, "user-1", ch.ID, time.Now())
	assert.True(t, errors.Is(err, ErrAlreadyJoined))

	// A different user can still join
	_, err = svc.Join(db, "user-2", ch.ID, time.Now())
	require.NoError(t, err)
}

func TestJoin_Refusals(t *testing.T) {
	svc, db := newChallengeService(t)

	_, err := svc.Join(db, "user-1", uuid.NewString(), time.Now())
	assert.True(t, IsValidation(err))

	inactive := seedChallenge(t, db, ActionRecipeUpload, 5, 500, false, 24*time.Hour)
	_, err = svc.Join(db, "user-1", inactive.ID, time.Now())
	assert.True(t, errors.Is(err, ErrChallengeInactive))

	expired := seedChallenge(t, db, ActionRecipeUpload, 5, 500, true, -time.Hour)
	_, err = svc.Join(db, "user-1", expired.ID, time.Now())
	assert.True(t, errors.Is(err, ErrChallengeExpired))
}

func TestAdvance_CompletesExactlyOnce(t *testing.T) {
	svc, db := newChallengeService(t)
	ch := seedChallenge(t, db, ActionRecipeUpload, 2, 500, true, 24*time.Hour)

	_, err := svc.Join(db, "user-1", ch.ID, time.Now())
	require.NoError(t, err)

	completed, err := svc.Advance(db, "user-1", ActionRecipeUpload, 1, time.Now())
	require.NoError(t, err)
	assert.Empty(t, completed)

	completed, err = svc.Advance(db, "user-1", ActionRecipeUpload, 1, time.Now())
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.True(t, completed[0].Completed)
	assert.NotNil(t, completed[0].CompletedAt)

	// Completion reward landed in the ledger once
	total, err := svc.Ledger.TotalXP(db, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(500), total)

	// Further advances on a completed challenge do nothing
	completed, err = svc.Advance(db, "user-1", ActionRecipeUpload, 1, time.Now())
	require.NoError(t, err)
	assert.Empty(t, completed)

	total, err = svc.Ledger.TotalXP(db, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(500), total)
}

func TestAdvance_CapsAtTarget(t *testing.T) {
	svc, db := newChallengeService(t)
	ch := seedChallenge(t, db, ActionRecipeUpload, 3, 100, true, 24*time.Hour)

	_, err := svc.Join(db, "user-1", ch.ID, time.Now())
	require.NoError(t, err)

	// One oversized increment still lands exactly on the target
	completed, err := svc.Advance(db, "user-1", ActionRecipeUpload, 10, time.Now())
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, 3, completed[0].CurrentProgress)
}

func TestAdvance_SkipsUnjoinedAndOtherTypes(t *testing.T) {
	svc, db := newChallengeService(t)
	recipes := seedChallenge(t, db, ActionRecipeUpload, 2, 100, true, 24*time.Hour)
	seedChallenge(t, db, ActionCommentPosted, 2, 100, true, 24*time.Hour)

	_, err := svc.Join(db, "user-1", recipes.ID, time.Now())
	require.NoError(t, err)

	// Advancing a type the user joined leaves the other untouched
	_, err = svc.Advance(db, "user-1", ActionRecipeUpload, 1, time.Now())
	require.NoError(t, err)

	var rows []models.ChallengeProgress
	require.NoError(t, db.Where("user_id = ?", "user-1").Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].CurrentProgress)

	// A user who never joined gets no progress rows at all
	_, err = svc.Advance(db, "user-2", ActionRecipeUpload, 1, time.Now())
	require.NoError(t, err)
	var count int64
	db.Model(&models.ChallengeProgress{}).Where("user_id = ?", "user-2").Count(&count)
	assert.Zero(t, count)
}

func TestAdvance_IgnoresExpiredChallenges(t *testing.T) {
	svc, db := newChallengeService(t)
	ch := seedChallenge(t, db, ActionRecipeUpload, 2, 100, true, time.Hour)

	_, err := svc.Join(db, "user-1", ch.ID, time.Now())
	require.NoError(t, err)

	// Advance after the end date leaves progress frozen
	after := time.Now().Add(2 * time.Hour)
	completed, err := svc.Advance(db, "user-1", ActionRecipeUpload, 1, after)
	require.NoError(t, err)
	assert.Empty(t, completed)

	var row models.ChallengeProgress
	require.NoError(t, db.Where("user_id = ?", "user-1").First(&row).Error)
	assert.Zero(t, row.CurrentProgress)
}

func TestDeactivateExpired(t *testing.T) {
	svc, db := newChallengeService(t)
	seedChallenge(t, db, ActionRecipeUpload, 2, 100, true, -time.Hour)
	live := seedChallenge(t, db, ActionRecipeUpload, 2, 100, true, 24*time.Hour)

	n, err := svc.DeactivateExpired(time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var fresh models.Challenge
	require.NoError(t, db.First(&fresh, "id = ?", live.ID).Error)
	assert.True(t, fresh.IsActive)
}

func TestListActive(t *testing.T) {
	svc, db := newChallengeService(t)
	ch := seedChallenge(t, db, ActionRecipeUpload, 2, 100, true, 24*time.Hour)
	seedChallenge(t, db, ActionCommentPosted, 2, 100, false, 24*time.Hour)

	_, err := svc.Join(db, "user-1", ch.ID, time.Now())
	require.NoError(t, err)

	list, err := svc.ListActive(db, "user-1", time.Now())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, true, list[0]["joined"])
	assert.Equal(t, int64(1), list[0]["participant_count"])

	list, err = svc.ListActive(db, "user-2", time.Now())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, false, list[0]["joined"])
}
