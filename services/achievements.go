package services

import (
	"encoding/json"
	"log"

	"progression-engine/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProgressSnapshot is the state an achievement predicate is evaluated
// against: ledger totals, per-action counts, and derived values.
type ProgressSnapshot struct {
	TotalXP             int64
	Level               int
	StreakDays          int
	ChallengesCompleted int64
	ActionCounts        map[string]int64
}

// AchievementService evaluates the data-driven rule table and grants each
// achievement at most once per user. Idempotency is enforced by the
// (user_id, achievement_name) unique index, so re-running a trigger after
// a grant is a no-op.
type AchievementService struct {
	DB     *gorm.DB
	Ledger *LedgerService
}

func NewAchievementService(db *gorm.DB, ledger *LedgerService) *AchievementService {
	return &AchievementService{DB: db, Ledger: ledger}
}

// SeedRules upserts the default rule set by name so a fresh database has
// the built-in achievements without wiping admin-added ones.
func (s *AchievementService) SeedRules() error {
	for i := range models.DefaultAchievementRules {
		rule := models.DefaultAchievementRules[i]
		rule.ID = uuid.NewString()
		if err := s.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoNothing: true,
		}).Create(&rule).Error; err != nil {
			return err
		}
	}
	return nil
}

// Evaluate checks every rule registered for the trigger against the
// snapshot and grants the newly satisfied ones. Each new grant also
// appends an XPGrant for the rule's reward; the caller folds that XP
// into the progression state and publishes the events after commit.
func (s *AchievementService) Evaluate(tx *gorm.DB, userID, trigger string, snap *ProgressSnapshot) ([]models.Achievement, error) {
	var rules []models.AchievementRule
	if err := tx.Where("trigger_type = ?", trigger).Find(&rules).Error; err != nil {
		return nil, err
	}

	var earned []models.Achievement
	for _, rule := range rules {
		if !s.meetsThreshold(snap, rule.Threshold) {
			continue
		}

		achievement := models.Achievement{
			ID:        uuid.NewString(),
			UserID:    userID,
			Name:      rule.Name,
			Type:      rule.Trigger,
			XPAwarded: rule.XPAwarded,
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&achievement)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			continue // already earned
		}

		if rule.XPAwarded > 0 {
			if _, _, err := s.Ledger.Append(tx, userID, ActionAchievementReward, rule.XPAwarded,
				"achievement:"+rule.Name, "Achievement earned: "+rule.Title); err != nil {
				return nil, err
			}
		}

		log.Printf("🎖️ Achievement earned: %s → %s (+%d XP)", rule.Name, userID, rule.XPAwarded)
		earned = append(earned, achievement)
	}
	return earned, nil
}

// ListForUser returns a user's earned achievements, newest first.
func (s *AchievementService) ListForUser(db *gorm.DB, userID string) ([]models.Achievement, error) {
	var achievements []models.Achievement
	err := db.Where("user_id = ?", userID).
		Order("earned_at DESC").
		Find(&achievements).Error
	return achievements, err
}

// Rules returns the full rule table (for display alongside earned state).
func (s *AchievementService) Rules(db *gorm.DB) ([]models.AchievementRule, error) {
	var rules []models.AchievementRule
	err := db.Order("created_at ASC").Find(&rules).Error
	return rules, err
}

func (s *AchievementService) meetsThreshold(snap *ProgressSnapshot, threshold map[string]interface{}) bool {
	if len(threshold) == 0 {
		return false
	}
	for key, raw := range threshold {
		required, ok := thresholdValue(raw)
		if !ok {
			return false
		}
		switch key {
		case "level":
			if int64(snap.Level) < required {
				return false
			}
		case "total_xp":
			if snap.TotalXP < required {
				return false
			}
		case "streak_days":
			if int64(snap.StreakDays) < required {
				return false
			}
		case "challenges_completed":
			if snap.ChallengesCompleted < required {
				return false
			}
		default: // any other key is an action-type count
			if snap.ActionCounts[key] < required {
				return false
			}
		}
	}
	return true
}

// thresholdValue normalizes the numeric representations a threshold can
// arrive in: json.Number when the rule is read back from the database
// (JSONMap decodes with UseNumber), float64 from plain JSON decoding,
// and int/int64 from the in-code seed list.
func thresholdValue(raw interface{}) (int64, bool) {
	switch v := raw.(type) {
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	}
	return 0, false
}
