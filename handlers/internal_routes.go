// handlers/internal_routes.go
package handlers

import (
	"errors"
	"time"

	"progression-engine/services"

	"github.com/gofiber/fiber/v2"
)

// SetupInternalRoutes wires the service-to-service endpoints. Sibling
// services (recipes, social, courses, AI) report user actions here; the
// gateway token check already ran, so no user context is required.
func SetupInternalRoutes(app *fiber.App, progression *services.ProgressionService) {
	internal := app.Group("/internal")

	internal.Post("/actions", func(c *fiber.Ctx) error {
		type Req struct {
			UserID         string `json:"user_id" validate:"required"`
			ActionType     string `json:"action_type" validate:"required"`
			SourceEntityID string `json:"source_entity_id"`
			Description    string `json:"description"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}

		result, err := progression.RecordAction(req.UserID, req.ActionType, req.SourceEntityID, req.Description)
		if err != nil {
			return writeActionError(c, err)
		}

		status := fiber.StatusCreated
		if result.Deduplicated {
			status = fiber.StatusOK
		}
		return c.Status(status).JSON(result)
	})

	// Standalone quota consume for actions that carry no XP (e.g. a service
	// gating an expensive operation without recording a grant).
	internal.Post("/quota/consume", func(c *fiber.Ctx) error {
		type Req struct {
			UserID     string `json:"user_id" validate:"required"`
			ActionType string `json:"action_type" validate:"required"`
			Limit      int    `json:"limit"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}
		if req.UserID == "" || req.ActionType == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "user_id and action_type are required",
			})
		}

		limit := req.Limit
		if limit <= 0 {
			if action, ok := progression.Cfg.Actions[req.ActionType]; ok && action.DailyLimit > 0 {
				limit = action.DailyLimit
			} else {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "no limit configured for action type: " + req.ActionType,
				})
			}
		}

		status, err := progression.Quota.Consume(progression.DB, req.UserID, req.ActionType, limit, time.Now())
		if err != nil {
			if services.IsValidation(err) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "quota consume failed",
				"cause": err.Error(),
			})
		}
		if !status.CanProceed {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error":     "daily quota exceeded",
				"quota":     status,
				"resets_at": status.ResetsAt,
			})
		}
		return c.JSON(status)
	})
}

// writeActionError maps the engine's error taxonomy onto HTTP statuses.
func writeActionError(c *fiber.Ctx, err error) error {
	var qe *services.QuotaExceededError
	switch {
	case errors.As(err, &qe):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":       qe.Error(),
			"action_type": qe.ActionType,
			"limit":       qe.Limit,
			"resets_at":   qe.ResetsAt,
		})
	case services.IsValidation(err):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrChallengeExpired), errors.Is(err, services.ErrChallengeInactive):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case services.IsTransient(err):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "temporary storage failure, retry with the same source_entity_id",
			"cause": err.Error(),
		})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "action recording failed",
		"cause": err.Error(),
	})
}
