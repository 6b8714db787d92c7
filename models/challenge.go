package models

import "time"

// Challenge represents a time-boxed, admin-defined community goal
// ("Upload 5 soup recipes this month"). Read-only to the engine once
// past its end date.
type Challenge struct {
	ID          string `json:"id" gorm:"primaryKey;type:uuid"`
	Slug        string `json:"slug" gorm:"uniqueIndex;not null"` // derived from title
	Title       string `json:"title" gorm:"not null"`
	Description string `json:"description" gorm:"type:text"`

	ChallengeType string `json:"challenge_type" gorm:"type:varchar(32);not null;index"` // action type it tracks
	TargetCount   int    `json:"target_count" gorm:"not null"`
	XPReward      int64  `json:"xp_reward" gorm:"not null"`
	BadgeReward   string `json:"badge_reward,omitempty"` // achievement rule name, optional

	StartDate time.Time `json:"start_date" gorm:"not null"`
	EndDate   time.Time `json:"end_date" gorm:"not null;index"`
	// No default tag: GORM would omit an explicit false on Create and the
	// column default would resurrect the challenge as active.
	IsActive bool `json:"is_active" gorm:"index"`

	Timestamps

	// Calculated fields (not stored in DB)
	ParticipantCount int64 `json:"participant_count,omitempty" gorm:"-"`
}

// ChallengeProgress tracks one user against one challenge.
// (UserID, ChallengeID) is unique; CurrentProgress only moves up, capped
// at TargetCount, and Completed flips to true exactly once.
type ChallengeProgress struct {
	ID          string `json:"id" gorm:"primaryKey;type:uuid"`
	UserID      string `json:"user_id" gorm:"not null;uniqueIndex:idx_user_challenge;index"`
	ChallengeID string `json:"challenge_id" gorm:"not null;uniqueIndex:idx_user_challenge;index"`

	CurrentProgress int        `json:"current_progress" gorm:"default:0"`
	Completed       bool       `json:"completed" gorm:"default:false"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`

	Timestamps

	Challenge Challenge `json:"challenge,omitempty" gorm:"foreignKey:ChallengeID"`
}
