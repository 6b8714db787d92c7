package services

import (
	"context"
	"errors"
	"log"
	"time"

	"progression-engine/models"
	"progression-engine/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const leaderboardKey = "progression:leaderboard"

// ProgressionService is the facade every other platform service calls.
// One RecordAction call applies quota gate, ledger append, state
// recompute, challenge advance, and achievement evaluation as a single
// transaction: either all effects commit or none do.
type ProgressionService struct {
	DB           *gorm.DB
	Cfg          EngineConfig
	Levels       LevelPolicy
	Ledger       *LedgerService
	Quota        *QuotaService
	Achievements *AchievementService
	Challenges   *ChallengeService
	Bus          *EventBus

	// Optional leaderboard mirror; nil means SQL-only leaderboards.
	Redis *redis.Client
}

func NewProgressionService(db *gorm.DB, cfg EngineConfig, bus *EventBus, rdb *redis.Client) *ProgressionService {
	ledger := NewLedgerService(db, cfg)
	return &ProgressionService{
		DB:           db,
		Cfg:          cfg,
		Levels:       NewLevelPolicy(cfg.BaseXPPerLevel),
		Ledger:       ledger,
		Quota:        NewQuotaService(db),
		Achievements: NewAchievementService(db, ledger),
		Challenges:   NewChallengeService(db, ledger),
		Bus:          bus,
		Redis:        rdb,
	}
}

// ActionResult is what a committed RecordAction reports back to the caller.
type ActionResult struct {
	Grant               *models.XPGrant            `json:"grant"`
	State               *models.ProgressionState   `json:"state"`
	Quota               *QuotaStatus               `json:"quota,omitempty"`
	LeveledUp           bool                       `json:"leveled_up"`
	CompletedChallenges []models.ChallengeProgress `json:"completed_challenges,omitempty"`
	NewAchievements     []models.Achievement       `json:"new_achievements,omitempty"`
	Deduplicated        bool                       `json:"deduplicated,omitempty"` // replay of an already-recorded action
}

// RecordAction is the single entry point for "user did X" events.
// Quota-gated actions abort with QuotaExceededError before anything is
// recorded. Business-rule refusals come back as their explicit error
// types; storage failures come back as TransientError with all effects
// rolled back.
func (s *ProgressionService) RecordAction(userID, actionType, sourceEntityID, description string) (*ActionResult, error) {
	action, ok := s.Cfg.Actions[actionType]
	if !ok || !s.Cfg.IsCallerAction(actionType) {
		return nil, &ValidationError{Field: "action_type", Reason: "unknown action type: " + actionType}
	}
	if userID == "" {
		return nil, &ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	return s.record(userID, actionType, action, action.XP, sourceEntityID, description)
}

// AdminGrant records a manual XP grant outside the action catalog.
func (s *ProgressionService) AdminGrant(userID string, xp int64, reason string) (*ActionResult, error) {
	if xp < 1 {
		return nil, &ValidationError{Field: "xp", Reason: "must be positive"}
	}
	return s.record(userID, ActionAdminGrant, ActionConfig{}, xp, "", reason)
}

func (s *ProgressionService) record(userID, actionType string, action ActionConfig, amount int64, sourceEntityID, description string) (*ActionResult, error) {
	now := time.Now()
	result := &ActionResult{}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		// Idempotent replay check before consuming quota: retrying an
		// ambiguous failure must not double-grant or burn quota.
		if sourceEntityID != "" {
			var existing models.XPGrant
			err := tx.Where("user_id = ? AND action_type = ? AND source_entity_id = ?",
				userID, actionType, sourceEntityID).First(&existing).Error
			if err == nil {
				state, stErr := s.ensureState(tx, userID)
				if stErr != nil {
					return stErr
				}
				result.Grant = &existing
				result.State = state
				result.Deduplicated = true
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		// 1. Quota gate. A refused action records nothing at all.
		if action.DailyLimit > 0 {
			status, err := s.Quota.Consume(tx, userID, actionType, action.DailyLimit, now)
			if err != nil {
				return err
			}
			if !status.CanProceed {
				return &QuotaExceededError{
					ActionType: actionType,
					Limit:      action.DailyLimit,
					ResetsAt:   status.ResetsAt,
				}
			}
			result.Quota = status
		}

		// 2. Append to the ledger.
		grant, created, err := s.Ledger.Append(tx, userID, actionType, amount, sourceEntityID, description)
		if err != nil {
			return err
		}
		result.Grant = grant
		if !created {
			result.Deduplicated = true
			state, stErr := s.ensureState(tx, userID)
			if stErr != nil {
				return stErr
			}
			result.State = state
			return nil
		}

		xpDelta := grant.Amount

		// 3. Advance matching challenges; completions add their rewards.
		if action.ChallengeType != "" {
			completed, err := s.Challenges.Advance(tx, userID, action.ChallengeType, 1, now)
			if err != nil {
				return err
			}
			result.CompletedChallenges = completed
			for _, cp := range completed {
				xpDelta += cp.Challenge.XPReward
			}
		}

		// 4. Fold the XP into the cached state and recompute the level.
		state, leveledUp, err := s.applyXP(tx, userID, xpDelta, now, true)
		if err != nil {
			return err
		}
		result.State = state
		result.LeveledUp = leveledUp

		// 5. Evaluate achievement rules against the updated state.
		snap, err := s.buildSnapshot(tx, userID, state)
		if err != nil {
			return err
		}
		earned, err := s.Achievements.Evaluate(tx, userID, models.TriggerActionGranted, snap)
		if err != nil {
			return err
		}
		if leveledUp {
			more, err := s.Achievements.Evaluate(tx, userID, models.TriggerLevelChanged, snap)
			if err != nil {
				return err
			}
			earned = append(earned, more...)
		}
		for _, cp := range result.CompletedChallenges {
			if cp.Challenge.BadgeReward == "" {
				continue
			}
			more, err := s.Achievements.Evaluate(tx, userID, models.TriggerChallengeCompleted, snap)
			if err != nil {
				return err
			}
			earned = append(earned, more...)
		}
		result.NewAchievements = earned

		// Achievement rewards feed the total too; one more recompute,
		// without re-running evaluation (no cascading grants).
		var rewardXP int64
		for _, a := range earned {
			rewardXP += a.XPAwarded
		}
		if rewardXP > 0 {
			state, moreLevels, err := s.applyXP(tx, userID, rewardXP, now, false)
			if err != nil {
				return err
			}
			result.State = state
			result.LeveledUp = result.LeveledUp || moreLevels
		}
		return nil
	})
	if err != nil {
		if IsValidation(err) || IsQuotaExceeded(err) ||
			errors.Is(err, ErrAlreadyJoined) || errors.Is(err, ErrChallengeExpired) || errors.Is(err, ErrChallengeInactive) {
			return nil, err
		}
		var ce *ConsistencyError
		if errors.As(err, &ce) {
			log.Printf("🐛 [PROGRESSION] %v", err)
			return nil, err
		}
		return nil, &TransientError{Op: "record_action", Err: err}
	}

	s.afterCommit(result)

	if !result.Deduplicated {
		log.Printf("🎮 XP Awarded: %s → +%d (%s), XP=%d, Lvl=%d",
			userID, result.Grant.Amount, actionType, result.State.TotalXP, result.State.Level)
	}
	return result, nil
}

// afterCommit publishes events and refreshes the leaderboard mirror.
// Runs only once the transaction is durable, so subscribers never hear
// about rolled-back effects.
func (s *ProgressionService) afterCommit(result *ActionResult) {
	if result.Deduplicated {
		return
	}
	if result.LeveledUp && result.State != nil {
		s.Bus.Publish(Event{
			Type:   EventLevelUp,
			UserID: result.State.UserID,
			Level:  result.State.Level,
		})
	}
	for _, cp := range result.CompletedChallenges {
		s.Bus.Publish(Event{
			Type:      EventChallengeCompleted,
			UserID:    cp.UserID,
			Name:      cp.Challenge.Slug,
			Title:     cp.Challenge.Title,
			XPAwarded: cp.Challenge.XPReward,
		})
	}
	for _, a := range result.NewAchievements {
		s.Bus.Publish(Event{
			Type:      EventAchievementEarned,
			UserID:    a.UserID,
			Name:      a.Name,
			XPAwarded: a.XPAwarded,
		})
	}

	if s.Redis != nil && result.State != nil {
		err := s.Redis.ZAdd(context.Background(), leaderboardKey, redis.Z{
			Score:  float64(result.State.TotalXP),
			Member: result.State.UserID,
		}).Err()
		if err != nil {
			log.Printf("⚠️ [LEADERBOARD] Redis update failed: %v", err)
		}
	}
}

// ensureState ensures a ProgressionState row exists (idempotent).
func (s *ProgressionService) ensureState(tx *gorm.DB, userID string) (*models.ProgressionState, error) {
	var state models.ProgressionState
	err := tx.Where("user_id = ?", userID).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		state = models.ProgressionState{
			ID:     uuid.NewString(),
			UserID: userID,
			Level:  1,
		}
		if err := tx.Create(&state).Error; err != nil {
			return nil, err
		}
		return &state, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// applyXP adds to total_xp with an atomic increment (the UPDATE takes the
// row lock that serializes concurrent grants for the same user), then
// recomputes the cached level fields from the read-back total. Only the
// primary call for an action touches the activity counters and streak;
// the reward-fold call adds XP alone, so one action counts as one grant.
func (s *ProgressionService) applyXP(tx *gorm.DB, userID string, amount int64, now time.Time, primary bool) (*models.ProgressionState, bool, error) {
	if _, err := s.ensureState(tx, userID); err != nil {
		return nil, false, err
	}

	increments := map[string]interface{}{
		"total_xp": gorm.Expr("total_xp + ?", amount),
	}
	if primary {
		increments["total_grants"] = gorm.Expr("total_grants + 1")
		increments["last_grant_at"] = now
	}
	if err := tx.Model(&models.ProgressionState{}).
		Where("user_id = ?", userID).
		Updates(increments).Error; err != nil {
		return nil, false, err
	}

	var state models.ProgressionState
	if err := tx.Where("user_id = ?", userID).First(&state).Error; err != nil {
		return nil, false, err
	}

	oldLevel := state.Level
	level, currentXP, _ := s.Levels.Snapshot(state.TotalXP)
	updates := map[string]interface{}{
		"level":      level,
		"current_xp": currentXP,
	}
	leveledUp := level > oldLevel
	if leveledUp {
		updates["last_level_up_at"] = now
		state.LastLevelUpAt = &now
	}

	if primary {
		today := DayKey(now)
		yesterday := DayKey(now.AddDate(0, 0, -1))
		switch state.LastActiveDate {
		case today:
			// already counted today
		case yesterday:
			state.StreakDays++
			updates["streak_days"] = state.StreakDays
			updates["last_active_date"] = today
			state.LastActiveDate = today
		default:
			state.StreakDays = 1
			updates["streak_days"] = 1
			updates["last_active_date"] = today
			state.LastActiveDate = today
		}
	}

	if err := tx.Model(&models.ProgressionState{}).
		Where("user_id = ?", userID).
		Updates(updates).Error; err != nil {
		return nil, false, err
	}

	state.Level = level
	state.CurrentXP = currentXP
	state.LastGrantAt = &now
	return &state, leveledUp, nil
}

func (s *ProgressionService) buildSnapshot(tx *gorm.DB, userID string, state *models.ProgressionState) (*ProgressSnapshot, error) {
	counts, err := s.Ledger.ActionCounts(tx, userID)
	if err != nil {
		return nil, err
	}
	challengesDone, err := s.Challenges.CompletedCount(tx, userID)
	if err != nil {
		return nil, err
	}
	return &ProgressSnapshot{
		TotalXP:             state.TotalXP,
		Level:               state.Level,
		StreakDays:          state.StreakDays,
		ChallengesCompleted: challengesDone,
		ActionCounts:        counts,
	}, nil
}

// GetProgression returns the display projection for a user: level,
// totals, progress fraction, streak, and recent ledger history.
func (s *ProgressionService) GetProgression(userID string) (fiber.Map, error) {
	var state models.ProgressionState
	err := s.DB.Where("user_id = ?", userID).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		state = models.ProgressionState{UserID: userID, Level: 1}
	} else if err != nil {
		return nil, &TransientError{Op: "get_progression", Err: err}
	}

	level, currentXP, fraction := s.Levels.Snapshot(state.TotalXP)
	recent, err := s.Ledger.RecentGrants(s.DB, userID, 10)
	if err != nil {
		return nil, &TransientError{Op: "get_progression", Err: err}
	}

	return fiber.Map{
		"user_id":           userID,
		"level":             level,
		"total_xp":          state.TotalXP,
		"current_xp":        currentXP,
		"progress_fraction": fraction,
		"xp_to_next_level":  s.Levels.XPToAdvance(level) - currentXP,
		"formatted_xp":      utils.FormatXP(state.TotalXP),
		"streak_days":       state.StreakDays,
		"total_grants":      state.TotalGrants,
		"last_level_up_at":  state.LastLevelUpAt,
		"recent_grants":     recent,
	}, nil
}

// LeaderboardEntry is one ranked row of the XP leaderboard.
type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"user_id"`
	Username    string `json:"username,omitempty"`
	Level       int    `json:"level"`
	TotalXP     int64  `json:"total_xp"`
	FormattedXP string `json:"formatted_xp"`
}

// GetLeaderboard returns the top users by lifetime XP. Reads go through
// the Redis mirror when configured, falling back to SQL. Ties break by
// who reached the total first, then by user ID for determinism.
func (s *ProgressionService) GetLeaderboard(limit int) ([]LeaderboardEntry, error) {
	if limit < 1 || limit > 100 {
		limit = 25
	}

	if s.Redis != nil {
		entries, err := s.leaderboardFromRedis(limit)
		if err == nil {
			return entries, nil
		}
		log.Printf("⚠️ [LEADERBOARD] Redis read failed, falling back to SQL: %v", err)
	}
	return s.leaderboardFromSQL(limit)
}

func (s *ProgressionService) leaderboardFromSQL(limit int) ([]LeaderboardEntry, error) {
	var states []models.ProgressionState
	err := s.DB.Where("total_xp > 0").
		Order("total_xp DESC, last_grant_at ASC, user_id ASC").
		Limit(limit).
		Find(&states).Error
	if err != nil {
		return nil, &TransientError{Op: "leaderboard", Err: err}
	}

	entries := make([]LeaderboardEntry, 0, len(states))
	for i, st := range states {
		entries = append(entries, LeaderboardEntry{
			Rank:        i + 1,
			UserID:      st.UserID,
			Username:    s.usernameFor(st.UserID),
			Level:       st.Level,
			TotalXP:     st.TotalXP,
			FormattedXP: utils.FormatXP(st.TotalXP),
		})
	}
	return entries, nil
}

func (s *ProgressionService) leaderboardFromRedis(limit int) ([]LeaderboardEntry, error) {
	zs, err := s.Redis.ZRevRangeWithScores(context.Background(), leaderboardKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]LeaderboardEntry, 0, len(zs))
	for i, z := range zs {
		userID, _ := z.Member.(string)
		totalXP := int64(z.Score)
		entries = append(entries, LeaderboardEntry{
			Rank:        i + 1,
			UserID:      userID,
			Username:    s.usernameFor(userID),
			Level:       s.Levels.LevelFor(totalXP),
			TotalXP:     totalXP,
			FormattedXP: utils.FormatXP(totalXP),
		})
	}
	return entries, nil
}

func (s *ProgressionService) usernameFor(externalUserID string) string {
	var profile models.CommunityProfile
	if err := s.DB.Where("external_user_id = ?", externalUserID).First(&profile).Error; err != nil {
		return ""
	}
	if profile.DisplayName != nil && *profile.DisplayName != "" {
		return *profile.DisplayName
	}
	return profile.Username
}

// RebuildState recomputes a user's cached state from the ledger (repair
// path; the ledger is the source of truth).
func (s *ProgressionService) RebuildState(userID string) (*models.ProgressionState, error) {
	var rebuilt *models.ProgressionState
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		total, err := s.Ledger.TotalXP(tx, userID)
		if err != nil {
			return err
		}
		state, err := s.ensureState(tx, userID)
		if err != nil {
			return err
		}
		level, currentXP, _ := s.Levels.Snapshot(total)
		if err := tx.Model(&models.ProgressionState{}).
			Where("user_id = ?", userID).
			Updates(map[string]interface{}{
				"total_xp":   total,
				"level":      level,
				"current_xp": currentXP,
			}).Error; err != nil {
			return err
		}
		state.TotalXP = total
		state.Level = level
		state.CurrentXP = currentXP
		rebuilt = state
		return nil
	})
	if err != nil {
		return nil, &TransientError{Op: "rebuild_state", Err: err}
	}
	return rebuilt, nil
}
