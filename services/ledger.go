package services

import (
	"time"

	"progression-engine/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerService owns the append-only XP ledger. Grants are atomic and
// durable; nothing in normal operation ever mutates or deletes one.
type LedgerService struct {
	DB  *gorm.DB
	Cfg EngineConfig
}

func NewLedgerService(db *gorm.DB, cfg EngineConfig) *LedgerService {
	return &LedgerService{DB: db, Cfg: cfg}
}

// Append writes one grant inside the caller's transaction. When a source
// entity ID is supplied it doubles as an idempotency key: a second append
// for the same (user, action, source) returns the existing grant with
// created=false instead of double-granting.
func (s *LedgerService) Append(tx *gorm.DB, userID, actionType string, amount int64, sourceEntityID, description string) (*models.XPGrant, bool, error) {
	if userID == "" {
		return nil, false, &ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	if amount < 0 {
		return nil, false, &ValidationError{Field: "amount", Reason: "must not be negative"}
	}
	if _, ok := s.Cfg.Actions[actionType]; !ok {
		return nil, false, &ValidationError{Field: "action_type", Reason: "unknown action type: " + actionType}
	}

	grant := models.XPGrant{
		ID:          uuid.NewString(),
		UserID:      userID,
		ActionType:  actionType,
		Amount:      amount,
		Description: description,
	}
	if sourceEntityID != "" {
		grant.SourceEntityID = &sourceEntityID
	}

	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&grant)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		// Idempotent replay: the grant for this source entity already exists.
		var existing models.XPGrant
		if err := tx.Where("user_id = ? AND action_type = ? AND source_entity_id = ?",
			userID, actionType, sourceEntityID).First(&existing).Error; err != nil {
			return nil, false, &ConsistencyError{Detail: "grant conflicted but no existing row found"}
		}
		return &existing, false, nil
	}
	return &grant, true, nil
}

// TotalXP sums the ledger for a user. The ledger, not the cached state,
// is the source of truth.
func (s *LedgerService) TotalXP(db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.Model(&models.XPGrant{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}

// CountByAction returns how many grants of an action type a user has,
// used by achievement predicates ("shared 10 recipes").
func (s *LedgerService) CountByAction(db *gorm.DB, userID, actionType string) (int64, error) {
	var count int64
	err := db.Model(&models.XPGrant{}).
		Where("user_id = ? AND action_type = ?", userID, actionType).
		Count(&count).Error
	return count, err
}

// ActionCounts returns the per-action grant counts for a user in one query.
func (s *LedgerService) ActionCounts(db *gorm.DB, userID string) (map[string]int64, error) {
	type row struct {
		ActionType string
		N          int64
	}
	var rows []row
	err := db.Model(&models.XPGrant{}).
		Where("user_id = ?", userID).
		Select("action_type, COUNT(*) AS n").
		Group("action_type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.ActionType] = r.N
	}
	return counts, nil
}

// RecentGrants returns the newest grants for a user, for history display.
func (s *LedgerService) RecentGrants(db *gorm.DB, userID string, limit int) ([]models.XPGrant, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}
	var grants []models.XPGrant
	err := db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&grants).Error
	return grants, err
}

// GrantsSince returns grants in the last N days.
func (s *LedgerService) GrantsSince(db *gorm.DB, userID string, days int) ([]models.XPGrant, error) {
	var grants []models.XPGrant
	since := time.Now().AddDate(0, 0, -days)
	err := db.Where("user_id = ? AND created_at >= ?", userID, since).
		Order("created_at DESC").
		Find(&grants).Error
	return grants, err
}
