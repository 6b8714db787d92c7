package services

import (
	"os"
	"strconv"
)

// ActionConfig describes one qualifying action type: how much XP it is
// worth, whether it is quota-gated, and which challenge type it advances.
type ActionConfig struct {
	XP            int64
	DailyLimit    int // 0 = unlimited
	ChallengeType string
}

// EngineConfig carries all product policy knobs. It is built once in main
// and injected into every service — no package-level mutable flags.
type EngineConfig struct {
	Actions            map[string]ActionConfig
	BaseXPPerLevel     int64
	QuotaRetentionDays int
}

// Action types reported by the platform services. XP weights are relative
// values (tunable via env later); ai_generation is the one quota-gated
// action observed in product policy (10/day).
const (
	ActionRecipeUpload      = "recipe_upload"
	ActionRecipeLike        = "recipe_like"
	ActionCommentPosted     = "comment_posted"
	ActionClubJoin          = "club_join"
	ActionCourseComplete    = "course_complete"
	ActionAIGeneration      = "ai_generation"
	ActionDailyCheckin      = "daily_checkin"
	ActionChallengeReward   = "challenge_reward"
	ActionAchievementReward = "achievement_reward"
	ActionAdminGrant        = "admin_grant"
)

// DefaultEngineConfig returns the observed product policy defaults.
// Exact thresholds are product choices, not invariants — override via env.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Actions: map[string]ActionConfig{
			ActionRecipeUpload:   {XP: 100, ChallengeType: ActionRecipeUpload},
			ActionRecipeLike:     {XP: 10, ChallengeType: ActionRecipeLike},
			ActionCommentPosted:  {XP: 15, ChallengeType: ActionCommentPosted},
			ActionClubJoin:       {XP: 50, ChallengeType: ActionClubJoin},
			ActionCourseComplete: {XP: 150, ChallengeType: ActionCourseComplete},
			ActionAIGeneration:   {XP: 25, DailyLimit: 10, ChallengeType: ActionAIGeneration},
			ActionDailyCheckin:   {XP: 20, DailyLimit: 1},

			// Internal reward actions: appended by the engine itself, never
			// reported by callers and never quota-gated.
			ActionChallengeReward:   {},
			ActionAchievementReward: {},
			ActionAdminGrant:        {},
		},
		BaseXPPerLevel:     1000,
		QuotaRetentionDays: 90,
	}
}

// LoadEngineConfig applies env overrides on top of the defaults.
func LoadEngineConfig() EngineConfig {
	cfg := DefaultEngineConfig()
	if v := os.Getenv("BASE_XP_PER_LEVEL"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.BaseXPPerLevel = n
		}
	}
	if v := os.Getenv("AI_GENERATION_DAILY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			ac := cfg.Actions[ActionAIGeneration]
			ac.DailyLimit = n
			cfg.Actions[ActionAIGeneration] = ac
		}
	}
	if v := os.Getenv("QUOTA_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.QuotaRetentionDays = n
		}
	}
	return cfg
}

// IsCallerAction reports whether the action type may be reported by
// external callers (reward actions are engine-internal).
func (c EngineConfig) IsCallerAction(actionType string) bool {
	switch actionType {
	case ActionChallengeReward, ActionAchievementReward, ActionAdminGrant:
		return false
	}
	_, ok := c.Actions[actionType]
	return ok
}
