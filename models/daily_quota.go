package models

import "time"

// DailyQuota counts how many times a rate-limited action was performed
// by a user on a given UTC calendar day. A new day key yields a fresh
// counter; old rows are pruned by the retention job, never reset in place.
type DailyQuota struct {
	ID         string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID     string `gorm:"not null;uniqueIndex:idx_quota_day" json:"user_id"`
	ActionType string `gorm:"type:varchar(32);not null;uniqueIndex:idx_quota_day" json:"action_type"`
	Date       string `gorm:"type:varchar(10);not null;uniqueIndex:idx_quota_day;index" json:"date"` // UTC day key

	Count      int `gorm:"not null;default:0" json:"count"`
	LimitCount int `gorm:"column:limit_count;not null" json:"limit"` // limit in effect when the row was created

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName overrides the default pluralization ("daily_quota", not "daily_quotas")
func (DailyQuota) TableName() string {
	return "daily_quota"
}
