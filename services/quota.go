package services

import (
	"time"

	"progression-engine/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QuotaStatus is the result of a quota check for one (user, action, day).
type QuotaStatus struct {
	CurrentCount   int       `json:"current_count"`
	RemainingCount int       `json:"remaining_count"`
	Limit          int       `json:"limit"`
	CanProceed     bool      `json:"can_proceed"`
	ResetsAt       time.Time `json:"resets_at"`
}

// QuotaService tracks per-user daily action counters. Counters reset
// implicitly: a new UTC day key produces a fresh row at zero.
type QuotaService struct {
	DB *gorm.DB
}

func NewQuotaService(db *gorm.DB) *QuotaService {
	return &QuotaService{DB: db}
}

// DayKey returns the UTC calendar-day key used to bucket counters.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// NextReset returns the next UTC midnight after t.
func NextReset(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

// Consume atomically checks and increments the counter. The increment is a
// single conditional UPDATE (count < limit), so concurrent callers can never
// push the stored count past the limit — check-then-increment as two steps
// would be a race. Refusal is reported in the status, not as an error.
func (s *QuotaService) Consume(db *gorm.DB, userID, actionType string, limit int, now time.Time) (*QuotaStatus, error) {
	if limit <= 0 {
		return nil, &ValidationError{Field: "limit", Reason: "must be positive"}
	}
	day := DayKey(now)

	// Ensure today's row exists at count=0 before evaluating.
	seed := models.DailyQuota{
		ID:         uuid.NewString(),
		UserID:     userID,
		ActionType: actionType,
		Date:       day,
		Count:      0,
		LimitCount: limit,
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "action_type"}, {Name: "date"}},
		DoNothing: true,
	}).Create(&seed).Error; err != nil {
		return nil, err
	}

	res := db.Model(&models.DailyQuota{}).
		Where("user_id = ? AND action_type = ? AND date = ? AND count < ?", userID, actionType, day, limit).
		Update("count", gorm.Expr("count + 1"))
	if res.Error != nil {
		return nil, res.Error
	}

	status, err := s.read(db, userID, actionType, day, limit, now)
	if err != nil {
		return nil, err
	}
	status.CanProceed = res.RowsAffected == 1
	return status, nil
}

// Peek reports the counter without consuming quota, for UI display.
func (s *QuotaService) Peek(db *gorm.DB, userID, actionType string, limit int, now time.Time) (*QuotaStatus, error) {
	if limit <= 0 {
		return nil, &ValidationError{Field: "limit", Reason: "must be positive"}
	}
	status, err := s.read(db, userID, actionType, DayKey(now), limit, now)
	if err != nil {
		return nil, err
	}
	status.CanProceed = status.CurrentCount < limit
	return status, nil
}

func (s *QuotaService) read(db *gorm.DB, userID, actionType, day string, limit int, now time.Time) (*QuotaStatus, error) {
	var row models.DailyQuota
	err := db.Where("user_id = ? AND action_type = ? AND date = ?", userID, actionType, day).
		First(&row).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, err
	}
	status := &QuotaStatus{
		CurrentCount: row.Count,
		Limit:        limit,
		ResetsAt:     NextReset(now),
	}
	status.RemainingCount = limit - row.Count
	if status.RemainingCount < 0 {
		status.RemainingCount = 0
	}
	return status, nil
}

// CountersFor returns all of a user's counters for a day (admin inspection).
func (s *QuotaService) CountersFor(db *gorm.DB, userID string, now time.Time) ([]models.DailyQuota, error) {
	var rows []models.DailyQuota
	err := db.Where("user_id = ? AND date = ?", userID, DayKey(now)).
		Order("action_type ASC").
		Find(&rows).Error
	return rows, err
}

// DeleteBefore prunes counters older than the cutoff day (retention cleanup).
func (s *QuotaService) DeleteBefore(cutoff time.Time) (int64, error) {
	res := s.DB.Where("date < ?", DayKey(cutoff)).Delete(&models.DailyQuota{})
	return res.RowsAffected, res.Error
}
