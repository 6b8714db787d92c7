// handlers/progression_routes.go
package handlers

import (
	"strconv"
	"time"

	"progression-engine/middleware"
	"progression-engine/services"

	"github.com/gofiber/fiber/v2"
)

func SetupProgressionRoutes(app *fiber.App, progression *services.ProgressionService, authClient *services.AuthServiceClient) {
	// 🔐 Secured routes — require user context (userID, roles)
	// The gateway forwards paths like /api/v1/progression/user/progression -> /user/progression
	securedGroup := app.Group("/", middleware.UserContextMiddleware())

	securedGroup.Get("/user/progression", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		view, err := progression.GetProgression(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to get progression",
				"cause": err.Error(),
			})
		}
		return c.JSON(view)
	})

	securedGroup.Get("/user/achievements", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		earned, err := progression.Achievements.ListForUser(progression.DB, userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to get achievements",
				"cause": err.Error(),
			})
		}
		rules, err := progression.Achievements.Rules(progression.DB)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to get achievement catalog",
				"cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{
			"earned":  earned,
			"catalog": rules,
		})
	})

	// Peek only — never consumes quota. UI uses this to grey out buttons.
	securedGroup.Get("/user/quota/:action", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		actionType := c.Params("action")

		action, ok := progression.Cfg.Actions[actionType]
		if !ok {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "unknown action type: " + actionType,
			})
		}
		if action.DailyLimit <= 0 {
			return c.JSON(fiber.Map{
				"action_type": actionType,
				"limited":     false,
			})
		}

		status, err := progression.Quota.Peek(progression.DB, userID, actionType, action.DailyLimit, time.Now())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to read quota",
				"cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{
			"action_type": actionType,
			"limited":     true,
			"quota":       status,
		})
	})

	// SSE achievement stream — authenticated via query token, not gateway headers
	app.Get("/user/progression/stream", middleware.SSEAuthMiddleware(authClient), progression.StreamUserProgressSSE)

	// Public leaderboard
	app.Get("/leaderboard", func(c *fiber.Ctx) error {
		limit, _ := strconv.Atoi(c.Query("limit", "25"))
		entries, err := progression.GetLeaderboard(limit)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to get leaderboard",
				"cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{
			"entries": entries,
		})
	})

	// Admin endpoints
	adminGroup := app.Group("/admin", middleware.UserContextMiddleware(), middleware.RequireAdmin())

	adminGroup.Post("/xp/grant", func(c *fiber.Ctx) error {
		type Req struct {
			UserID string `json:"user_id" validate:"required,uuid"`
			XP     int64  `json:"xp" validate:"required,min=1"`
			Reason string `json:"reason" validate:"max=255"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}

		result, err := progression.AdminGrant(req.UserID, req.XP, req.Reason)
		if err != nil {
			if services.IsValidation(err) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "XP award failed",
				"cause": err.Error(),
			})
		}

		return c.JSON(fiber.Map{
			"message": "XP granted successfully",
			"user_id": req.UserID,
			"xp":      req.XP,
			"state":   result.State,
		})
	})

	adminGroup.Get("/quota/:user", func(c *fiber.Ctx) error {
		userID := c.Params("user")
		counters, err := progression.Quota.CountersFor(progression.DB, userID, time.Now())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to read quota counters",
				"cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{
			"user_id":  userID,
			"counters": counters,
		})
	})

	adminGroup.Post("/state/:user/rebuild", func(c *fiber.Ctx) error {
		state, err := progression.RebuildState(c.Params("user"))
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "rebuild failed",
				"cause": err.Error(),
			})
		}
		return c.JSON(state)
	})
}
