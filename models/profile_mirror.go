package models

import (
	"time"

	"gorm.io/gorm"
)

// CommunityProfile is a local snapshot of user display data needed for
// leaderboards. Owned solely by the progression service; populated via
// sync worker from the profile service.
type CommunityProfile struct {
	ID             string  `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string  `gorm:"uniqueIndex;not null" json:"external_user_id"` // the profile service's UUID
	Username       string  `gorm:"index;not null" json:"username"`
	DisplayName    *string `json:"display_name,omitempty"`
	AvatarURL      *string `json:"avatar_url,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	// Soft delete so a deactivated account drops off the leaderboard
	// without losing grant history.
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
