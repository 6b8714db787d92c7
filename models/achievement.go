package models

import (
	"time"

	"gorm.io/datatypes"
)

// AchievementRule: data-driven rule config (seeded from code, editable in DB).
// New achievements can be added without touching the engine itself.
type AchievementRule struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	Name        string `gorm:"uniqueIndex;not null" json:"name"` // e.g., "FIRST_RECIPE", "STREAK_7"
	Title       string `gorm:"not null" json:"title"`            // "First Recipe!", "Week-long Streak"
	Description string `json:"description,omitempty"`
	Trigger     string `gorm:"column:trigger_type;type:varchar(32);not null;index" json:"trigger"` // action_granted, level_changed, challenge_completed
	Rarity      string `gorm:"type:varchar(16);default:'common'" json:"rarity"`
	XPAwarded   int64  `gorm:"default:0" json:"xp_awarded"`

	// Threshold keys checked against the user's progress snapshot,
	// e.g. {"recipe_upload": 10}, {"level": 5}, {"streak_days": 7}
	Threshold datatypes.JSONMap `gorm:"type:jsonb" json:"threshold"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Achievement: earned instance. (UserID, Name) is unique — an achievement
// can be earned at most once per user; the index is what makes evaluation
// idempotent under concurrent triggers.
type Achievement struct {
	ID        string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID    string `gorm:"not null;uniqueIndex:idx_user_achievement;index" json:"user_id"`
	Name      string `gorm:"not null;uniqueIndex:idx_user_achievement" json:"achievement_name"`
	Type      string `gorm:"type:varchar(32)" json:"achievement_type"` // mirrors the rule trigger
	XPAwarded int64  `gorm:"default:0" json:"xp_awarded"`

	EarnedAt time.Time `gorm:"autoCreateTime" json:"earned_at"`
}

// DefaultAchievementRules seed the rule table on startup (upsert by name).
var DefaultAchievementRules = []AchievementRule{
	{
		Name:        "FIRST_RECIPE",
		Title:       "First Recipe!",
		Description: "Shared your first recipe with the community",
		Trigger:     TriggerActionGranted,
		Rarity:      "common",
		XPAwarded:   50,
		Threshold:   datatypes.JSONMap{"recipe_upload": 1},
	},
	{
		Name:        "RECIPE_10",
		Title:       "Home Chef",
		Description: "Shared 10 recipes",
		Trigger:     TriggerActionGranted,
		Rarity:      "rare",
		XPAwarded:   200,
		Threshold:   datatypes.JSONMap{"recipe_upload": 10},
	},
	{
		Name:        "SOCIAL_BUTTERFLY",
		Title:       "Social Butterfly",
		Description: "Joined 3 cooking clubs",
		Trigger:     TriggerActionGranted,
		Rarity:      "common",
		XPAwarded:   75,
		Threshold:   datatypes.JSONMap{"club_join": 3},
	},
	{
		Name:        "CURIOUS_CHEF",
		Title:       "Curious Chef",
		Description: "Generated 10 AI recipe ideas",
		Rarity:      "common",
		Trigger:     TriggerActionGranted,
		XPAwarded:   50,
		Threshold:   datatypes.JSONMap{"ai_generation": 10},
	},
	{
		Name:        "LEVEL_5",
		Title:       "Rising Star",
		Description: "Reached level 5",
		Trigger:     TriggerLevelChanged,
		Rarity:      "rare",
		XPAwarded:   100,
		Threshold:   datatypes.JSONMap{"level": 5},
	},
	{
		Name:        "LEVEL_10",
		Title:       "Kitchen Veteran",
		Description: "Reached level 10",
		Trigger:     TriggerLevelChanged,
		Rarity:      "epic",
		XPAwarded:   250,
		Threshold:   datatypes.JSONMap{"level": 10},
	},
	{
		Name:        "STREAK_7",
		Title:       "Week-long Streak",
		Description: "Active 7 days in a row",
		Trigger:     TriggerActionGranted,
		Rarity:      "rare",
		XPAwarded:   150,
		Threshold:   datatypes.JSONMap{"streak_days": 7},
	},
	{
		Name:        "CHALLENGE_FIRST",
		Title:       "Challenger",
		Description: "Completed your first community challenge",
		Trigger:     TriggerChallengeCompleted,
		Rarity:      "rare",
		XPAwarded:   100,
		Threshold:   datatypes.JSONMap{"challenges_completed": 1},
	},
}

// Rule trigger types
const (
	TriggerActionGranted      = "action_granted"
	TriggerLevelChanged       = "level_changed"
	TriggerChallengeCompleted = "challenge_completed"
)
