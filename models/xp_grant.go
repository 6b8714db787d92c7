package models

import "time"

// XPGrant is one row of the append-only XP ledger. Grants are never
// updated or deleted; every other progression table is derived from them.
type XPGrant struct {
	ID             string  `gorm:"primaryKey;type:uuid" json:"id"`
	UserID         string  `gorm:"index;not null;uniqueIndex:idx_grant_source" json:"user_id"`
	ActionType     string  `gorm:"type:varchar(32);not null;index;uniqueIndex:idx_grant_source" json:"action_type"`
	SourceEntityID *string `gorm:"uniqueIndex:idx_grant_source" json:"source_entity_id,omitempty"` // e.g., recipe ID; nil = no dedup key

	Amount      int64  `gorm:"not null" json:"amount"`
	Description string `gorm:"type:text" json:"description,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
