package models

import (
	"time"

	"gorm.io/gorm"
)

// ProgressionState is the per-user projection of the XP ledger
// (denormalized for performance). One row per user, created lazily
// on the first grant.
type ProgressionState struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID string `gorm:"uniqueIndex;not null" json:"user_id"` // links to profile service

	// Core progression
	TotalXP   int64 `json:"total_xp" gorm:"default:0"`
	CurrentXP int64 `json:"current_xp" gorm:"default:0"` // XP within the current level
	Level     int   `json:"level" gorm:"default:1"`

	// Activity counters
	TotalGrants int64 `json:"total_grants" gorm:"default:0"`

	// Daily activity streak
	StreakDays     int    `json:"streak_days" gorm:"default:0"`
	LastActiveDate string `json:"last_active_date,omitempty" gorm:"type:varchar(10)"` // UTC day key, e.g. 2026-09-01

	// Milestones
	LastGrantAt   *time.Time `json:"last_grant_at,omitempty"`
	LastLevelUpAt *time.Time `json:"last_level_up_at,omitempty"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
