// services/challenges.go
package services

import (
	"errors"
	"log"
	"time"

	"progression-engine/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChallengeService tracks users against time-boxed challenges. Challenges
// themselves are admin-defined; past end_date they are read-only and both
// join and advance refuse.
type ChallengeService struct {
	DB     *gorm.DB
	Ledger *LedgerService
}

func NewChallengeService(db *gorm.DB, ledger *LedgerService) *ChallengeService {
	return &ChallengeService{DB: db, Ledger: ledger}
}

// Join creates a progress row at zero. A second join for the same
// (user, challenge) hits the unique index and reports ErrAlreadyJoined —
// a benign conflict, not a failure.
func (s *ChallengeService) Join(db *gorm.DB, userID, challengeID string, now time.Time) (*models.ChallengeProgress, error) {
	var challenge models.Challenge
	if err := db.Where("id = ?", challengeID).First(&challenge).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ValidationError{Field: "challenge_id", Reason: "unknown challenge: " + challengeID}
		}
		return nil, err
	}
	if !challenge.IsActive {
		return nil, ErrChallengeInactive
	}
	if now.After(challenge.EndDate) {
		return nil, ErrChallengeExpired
	}

	progress := models.ChallengeProgress{
		ID:          uuid.NewString(),
		UserID:      userID,
		ChallengeID: challengeID,
	}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&progress)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrAlreadyJoined
	}
	return &progress, nil
}

// Advance bumps progress on every active, joined, incomplete challenge of
// the given type. Completion happens exactly once per row: the guarded
// UPDATE below flips completed under the transaction's row lock, so a
// concurrent advance cannot double-issue the reward.
func (s *ChallengeService) Advance(tx *gorm.DB, userID, challengeType string, increment int, now time.Time) ([]models.ChallengeProgress, error) {
	if increment < 1 {
		increment = 1
	}

	var joined []models.ChallengeProgress
	err := tx.Joins("Challenge").
		Where("challenge_progresses.user_id = ? AND challenge_progresses.completed = ?", userID, false).
		Where("\"Challenge\".challenge_type = ? AND \"Challenge\".is_active = ? AND \"Challenge\".end_date >= ?",
			challengeType, true, now).
		Find(&joined).Error
	if err != nil {
		return nil, err
	}

	var completed []models.ChallengeProgress
	for i := range joined {
		cp := &joined[i]
		target := cp.Challenge.TargetCount

		// Cap at target in a single statement; no read-modify-write.
		if err := tx.Model(&models.ChallengeProgress{}).
			Where("id = ? AND completed = ?", cp.ID, false).
			Update("current_progress",
				gorm.Expr("CASE WHEN current_progress + ? >= ? THEN ? ELSE current_progress + ? END",
					increment, target, target, increment)).Error; err != nil {
			return nil, err
		}

		var fresh models.ChallengeProgress
		if err := tx.Where("id = ?", cp.ID).First(&fresh).Error; err != nil {
			return nil, err
		}
		if fresh.CurrentProgress < target || fresh.Completed {
			continue
		}

		completedAt := now
		res := tx.Model(&models.ChallengeProgress{}).
			Where("id = ? AND completed = ?", cp.ID, false).
			Updates(map[string]interface{}{
				"completed":    true,
				"completed_at": completedAt,
			})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			continue // another writer completed it first
		}

		if cp.Challenge.XPReward > 0 {
			if _, _, err := s.Ledger.Append(tx, userID, ActionChallengeReward, cp.Challenge.XPReward,
				"challenge:"+cp.ChallengeID, "Completed challenge: "+cp.Challenge.Title); err != nil {
				return nil, err
			}
		}

		fresh.Completed = true
		fresh.CompletedAt = &completedAt
		fresh.Challenge = cp.Challenge
		completed = append(completed, fresh)
		log.Printf("🏆 Challenge completed: %s → %s (+%d XP)", cp.Challenge.Slug, userID, cp.Challenge.XPReward)
	}
	return completed, nil
}

// ListActive returns active, unexpired challenges with the caller's
// progress attached (nil CurrentProgress fields default to zero values).
func (s *ChallengeService) ListActive(db *gorm.DB, userID string, now time.Time) ([]fiber.Map, error) {
	var challenges []models.Challenge
	err := db.Where("is_active = ? AND start_date <= ? AND end_date >= ?", true, now, now).
		Order("end_date ASC").
		Find(&challenges).Error
	if err != nil {
		return nil, err
	}

	out := make([]fiber.Map, 0, len(challenges))
	for _, ch := range challenges {
		var progress models.ChallengeProgress
		joined := true
		if err := db.Where("user_id = ? AND challenge_id = ?", userID, ch.ID).
			First(&progress).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, err
			}
			joined = false
		}

		var participants int64
		db.Model(&models.ChallengeProgress{}).Where("challenge_id = ?", ch.ID).Count(&participants)

		entry := fiber.Map{
			"challenge":         ch,
			"joined":            joined,
			"participant_count": participants,
		}
		if joined {
			entry["current_progress"] = progress.CurrentProgress
			entry["completed"] = progress.Completed
			entry["completed_at"] = progress.CompletedAt
		}
		out = append(out, entry)
	}
	return out, nil
}

// CompletedCount returns how many challenges a user has finished.
func (s *ChallengeService) CompletedCount(db *gorm.DB, userID string) (int64, error) {
	var count int64
	err := db.Model(&models.ChallengeProgress{}).
		Where("user_id = ? AND completed = ?", userID, true).
		Count(&count).Error
	return count, err
}

// DeactivateExpired flips is_active off for challenges past their end date.
// Called by the maintenance scheduler.
func (s *ChallengeService) DeactivateExpired(now time.Time) (int64, error) {
	res := s.DB.Model(&models.Challenge{}).
		Where("is_active = ? AND end_date < ?", true, now).
		Update("is_active", false)
	return res.RowsAffected, res.Error
}

// --- Admin Handlers ---

// CreateChallenge creates a new challenge (Admin only)
func (s *ChallengeService) CreateChallenge(c *fiber.Ctx) error {
	var req struct {
		Title         string    `json:"title" validate:"required"`
		Description   string    `json:"description"`
		ChallengeType string    `json:"challenge_type" validate:"required"`
		TargetCount   int       `json:"target_count" validate:"required,min=1"`
		XPReward      int64     `json:"xp_reward" validate:"min=0"`
		BadgeReward   string    `json:"badge_reward"`
		StartDate     time.Time `json:"start_date"`
		EndDate       time.Time `json:"end_date" validate:"required"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if req.Title == "" || req.ChallengeType == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "title and challenge_type are required"})
	}
	if req.TargetCount < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "target_count must be at least 1"})
	}
	if req.StartDate.IsZero() {
		req.StartDate = time.Now()
	}
	if !req.EndDate.After(req.StartDate) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "end_date must be after start_date"})
	}

	challenge := &models.Challenge{
		ID:            uuid.NewString(),
		Slug:          slug.Make(req.Title),
		Title:         req.Title,
		Description:   req.Description,
		ChallengeType: req.ChallengeType,
		TargetCount:   req.TargetCount,
		XPReward:      req.XPReward,
		BadgeReward:   req.BadgeReward,
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
		IsActive:      true,
	}

	if err := s.DB.Create(challenge).Error; err != nil {
		log.Printf("DB Error creating challenge: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create challenge"})
	}

	return c.Status(fiber.StatusCreated).JSON(challenge)
}

// UpdateChallenge updates an existing challenge (Admin only)
func (s *ChallengeService) UpdateChallenge(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid challenge ID"})
	}

	var existing models.Challenge
	if err := s.DB.First(&existing, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Challenge not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	var req struct {
		Title       *string    `json:"title"`
		Description *string    `json:"description"`
		TargetCount *int       `json:"target_count"`
		XPReward    *int64     `json:"xp_reward"`
		BadgeReward *string    `json:"badge_reward"`
		EndDate     *time.Time `json:"end_date"`
		IsActive    *bool      `json:"is_active"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if req.Title != nil {
		existing.Title = *req.Title
		existing.Slug = slug.Make(*req.Title)
	}
	if req.Description != nil {
		existing.Description = *req.Description
	}
	if req.TargetCount != nil {
		if *req.TargetCount < 1 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "target_count must be at least 1"})
		}
		existing.TargetCount = *req.TargetCount
	}
	if req.XPReward != nil {
		existing.XPReward = *req.XPReward
	}
	if req.BadgeReward != nil {
		existing.BadgeReward = *req.BadgeReward
	}
	if req.EndDate != nil {
		existing.EndDate = *req.EndDate
	}
	if req.IsActive != nil {
		existing.IsActive = *req.IsActive
	}

	if err := s.DB.Save(&existing).Error; err != nil {
		log.Printf("DB Error updating challenge: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update challenge"})
	}

	return c.JSON(existing)
}

// GetAllChallenges fetches all challenges (Admin only)
func (s *ChallengeService) GetAllChallenges(c *fiber.Ctx) error {
	var challenges []models.Challenge
	if err := s.DB.Order("end_date DESC").Find(&challenges).Error; err != nil {
		log.Printf("DB Error fetching challenges: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch challenges"})
	}
	for i := range challenges {
		s.DB.Model(&models.ChallengeProgress{}).
			Where("challenge_id = ?", challenges[i].ID).
			Count(&challenges[i].ParticipantCount)
	}
	return c.JSON(challenges)
}
