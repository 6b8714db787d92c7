package services

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"progression-engine/models"
	"progression-engine/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProgressionService(t *testing.T) *ProgressionService {
	t.Helper()
	db := testutil.SetupTestDB(t)
	svc := NewProgressionService(db, DefaultEngineConfig(), NewEventBus(), nil)
	require.NoError(t, svc.Achievements.SeedRules())
	return svc
}

func TestRecordAction_GrantsXPAndAchievement(t *testing.T) {
	svc := newProgressionService(t)

	result, err := svc.RecordAction("user-1", ActionRecipeUpload, "recipe-1", "Shared a recipe")
	require.NoError(t, err)

	assert.Equal(t, int64(100), result.Grant.Amount)
	assert.False(t, result.Deduplicated)
	assert.False(t, result.LeveledUp)

	// First recipe also earns FIRST_RECIPE (+50)
	require.Len(t, result.NewAchievements, 1)
	assert.Equal(t, "FIRST_RECIPE", result.NewAchievements[0].Name)
	assert.Equal(t, int64(150), result.State.TotalXP)
	assert.Equal(t, 1, result.State.Level)
	assert.Equal(t, 1, result.State.StreakDays)

	// Cached state agrees with the ledger
	total, err := svc.Ledger.TotalXP(svc.DB, "user-1")
	require.NoError(t, err)
	assert.Equal(t, result.State.TotalXP, total)
}

func TestRecordAction_Validation(t *testing.T) {
	svc := newProgressionService(t)

	_, err := svc.RecordAction("", ActionRecipeUpload, "", "")
	assert.True(t, IsValidation(err))

	_, err = svc.RecordAction("user-1", "made_up_action", "", "")
	assert.True(t, IsValidation(err))

	// Engine-internal reward actions are not reportable by callers
	_, err = svc.RecordAction("user-1", ActionChallengeReward, "", "")
	assert.True(t, IsValidation(err))
}

func TestRecordAction_ReplayIsDeduplicated(t *testing.T) {
	svc := newProgressionService(t)

	first, err := svc.RecordAction("user-1", ActionRecipeUpload, "recipe-1", "")
	require.NoError(t, err)

	second, err := svc.RecordAction("user-1", ActionRecipeUpload, "recipe-1", "")
	require.NoError(t, err)
	assert.True(t, second.Deduplicated)
	assert.Equal(t, first.Grant.ID, second.Grant.ID)
	assert.Equal(t, first.State.TotalXP, second.State.TotalXP)

	var grants int64
	svc.DB.Model(&models.XPGrant{}).
		Where("user_id = ? AND action_type = ?", "user-1", ActionRecipeUpload).
		Count(&grants)
	assert.Equal(t, int64(1), grants)
}

func TestRecordAction_QuotaRefusedRecordsNothing(t *testing.T) {
	svc := newProgressionService(t)

	for i := 0; i < 10; i++ {
		_, err := svc.RecordAction("user-1", ActionAIGeneration, "", "")
		require.NoError(t, err, "call %d within quota", i+1)
	}

	_, err := svc.RecordAction("user-1", ActionAIGeneration, "", "")
	require.Error(t, err)
	assert.True(t, IsQuotaExceeded(err))

	var qe *QuotaExceededError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, ActionAIGeneration, qe.ActionType)
	assert.False(t, qe.ResetsAt.IsZero())

	// The refused call left no ledger trace
	count, cErr := svc.Ledger.CountByAction(svc.DB, "user-1", ActionAIGeneration)
	require.NoError(t, cErr)
	assert.Equal(t, int64(10), count)
}

func TestRecordAction_ConcurrentGrantsSum(t *testing.T) {
	svc := newProgressionService(t)

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.RecordAction("user-1", ActionRecipeLike, fmt.Sprintf("like-%d", i), "")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	var state models.ProgressionState
	require.NoError(t, svc.DB.Where("user_id = ?", "user-1").First(&state).Error)
	assert.Equal(t, int64(n*10), state.TotalXP)

	total, err := svc.Ledger.TotalXP(svc.DB, "user-1")
	require.NoError(t, err)
	assert.Equal(t, state.TotalXP, total)
}

func TestRecordAction_CountsOneGrantPerAction(t *testing.T) {
	svc := newProgressionService(t)

	// The achievement reward folds into the same action: XP rises by the
	// combined amount but the activity counter moves by one
	result, err := svc.RecordAction("user-1", ActionRecipeUpload, "recipe-1", "")
	require.NoError(t, err)
	require.Len(t, result.NewAchievements, 1)
	assert.Equal(t, int64(150), result.State.TotalXP)
	assert.Equal(t, int64(1), result.State.TotalGrants)

	result, err = svc.RecordAction("user-1", ActionRecipeLike, "like-1", "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.State.TotalGrants)

	var state models.ProgressionState
	require.NoError(t, svc.DB.Where("user_id = ?", "user-1").First(&state).Error)
	assert.Equal(t, int64(2), state.TotalGrants)
}

func TestRecordAction_LevelUp(t *testing.T) {
	svc := newProgressionService(t)

	// 7 course completions: 1050 XP, past the 1000 threshold
	var last *ActionResult
	for i := 0; i < 7; i++ {
		var err error
		last, err = svc.RecordAction("user-1", ActionCourseComplete, fmt.Sprintf("course-%d", i), "")
		require.NoError(t, err)
	}
	assert.True(t, last.LeveledUp)
	assert.Equal(t, 2, last.State.Level)
	assert.Equal(t, int64(50), last.State.CurrentXP)
	assert.NotNil(t, last.State.LastLevelUpAt)
}

func TestRecordAction_ChallengeCompletionFlow(t *testing.T) {
	svc := newProgressionService(t)

	ch := &models.Challenge{
		ID:            uuid.NewString(),
		Slug:          "first-recipe-week",
		Title:         "First Recipe Week",
		ChallengeType: ActionRecipeUpload,
		TargetCount:   1,
		XPReward:      500,
		BadgeReward:   "CHALLENGE_FIRST",
		StartDate:     time.Now().Add(-time.Hour),
		EndDate:       time.Now().Add(24 * time.Hour),
		IsActive:      true,
	}
	require.NoError(t, svc.DB.Create(ch).Error)
	_, err := svc.Challenges.Join(svc.DB, "user-1", ch.ID, time.Now())
	require.NoError(t, err)

	result, err := svc.RecordAction("user-1", ActionRecipeUpload, "recipe-1", "")
	require.NoError(t, err)

	require.Len(t, result.CompletedChallenges, 1)
	assert.True(t, result.CompletedChallenges[0].Completed)

	// 100 action + 500 challenge + 50 FIRST_RECIPE + 100 CHALLENGE_FIRST
	assert.Equal(t, int64(750), result.State.TotalXP)

	names := make(map[string]bool)
	for _, a := range result.NewAchievements {
		names[a.Name] = true
	}
	assert.True(t, names["FIRST_RECIPE"])
	assert.True(t, names["CHALLENGE_FIRST"])

	// Ledger agrees with the cached total
	total, err := svc.Ledger.TotalXP(svc.DB, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(750), total)
}

func TestAdminGrant(t *testing.T) {
	svc := newProgressionService(t)

	_, err := svc.AdminGrant("user-1", 0, "nope")
	assert.True(t, IsValidation(err))

	result, err := svc.AdminGrant("user-1", 5000, "migration backfill")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), result.State.TotalXP)
	assert.Equal(t, 3, result.State.Level)
	assert.True(t, result.LeveledUp)
}

func TestGetProgression(t *testing.T) {
	svc := newProgressionService(t)

	// Unknown users read as a fresh level-1 state
	view, err := svc.GetProgression("nobody")
	require.NoError(t, err)
	assert.Equal(t, 1, view["level"])
	assert.Equal(t, int64(0), view["total_xp"])

	_, err = svc.RecordAction("user-1", ActionRecipeUpload, "recipe-1", "")
	require.NoError(t, err)

	view, err = svc.GetProgression("user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(150), view["total_xp"])
	assert.Equal(t, "150 XP", view["formatted_xp"])
	assert.NotEmpty(t, view["recent_grants"])
}

func TestGetLeaderboard_Ordering(t *testing.T) {
	svc := newProgressionService(t)

	_, err := svc.AdminGrant("user-a", 300, "")
	require.NoError(t, err)
	_, err = svc.AdminGrant("user-b", 900, "")
	require.NoError(t, err)
	_, err = svc.AdminGrant("user-c", 600, "")
	require.NoError(t, err)

	entries, err := svc.GetLeaderboard(10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "user-b", entries[0].UserID)
	assert.Equal(t, "user-c", entries[1].UserID)
	assert.Equal(t, "user-a", entries[2].UserID)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, 3, entries[2].Rank)
}

func TestGetLeaderboard_UsesProfileNames(t *testing.T) {
	svc := newProgressionService(t)

	display := "Chef Ada"
	require.NoError(t, svc.DB.Create(&models.CommunityProfile{
		ID:             uuid.NewString(),
		ExternalUserID: "user-a",
		Username:       "ada",
		DisplayName:    &display,
	}).Error)

	_, err := svc.AdminGrant("user-a", 100, "")
	require.NoError(t, err)

	entries, err := svc.GetLeaderboard(10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Chef Ada", entries[0].Username)
}

func TestRebuildState_RepairsFromLedger(t *testing.T) {
	svc := newProgressionService(t)

	_, err := svc.RecordAction("user-1", ActionRecipeUpload, "recipe-1", "")
	require.NoError(t, err)

	// Corrupt the cached projection
	require.NoError(t, svc.DB.Model(&models.ProgressionState{}).
		Where("user_id = ?", "user-1").
		Update("total_xp", 999999).Error)

	state, err := svc.RebuildState("user-1")
	require.NoError(t, err)

	total, err := svc.Ledger.TotalXP(svc.DB, "user-1")
	require.NoError(t, err)
	assert.Equal(t, total, state.TotalXP)
	assert.Equal(t, svc.Levels.LevelFor(total), state.Level)
}

func TestAfterCommit_PublishesEvents(t *testing.T) {
	db := testutil.SetupTestDB(t)
	bus := NewEventBus()
	events := bus.Subscribe(16)
	svc := NewProgressionService(db, DefaultEngineConfig(), bus, nil)
	require.NoError(t, svc.Achievements.SeedRules())

	_, err := svc.RecordAction("user-1", ActionRecipeUpload, "recipe-1", "")
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, EventAchievementEarned, ev.Type)
		assert.Equal(t, "user-1", ev.UserID)
		assert.Equal(t, "FIRST_RECIPE", ev.Name)
	default:
		t.Fatal("expected an achievement_earned event after commit")
	}
}
