// handlers/challenge_routes.go
package handlers

import (
	"errors"
	"time"

	"progression-engine/middleware"
	"progression-engine/services"

	"github.com/gofiber/fiber/v2"
)

func SetupChallengeRoutes(app *fiber.App, progression *services.ProgressionService) {
	securedGroup := app.Group("/", middleware.UserContextMiddleware())

	securedGroup.Get("/user/challenges", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		list, err := progression.Challenges.ListActive(progression.DB, userID, time.Now())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to list challenges",
				"cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{"challenges": list})
	})

	securedGroup.Post("/user/challenges/:id/join", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		challengeID := c.Params("id")

		progress, err := progression.Challenges.Join(progression.DB, userID, challengeID, time.Now())
		if err != nil {
			switch {
			case errors.Is(err, services.ErrAlreadyJoined):
				// Benign: surface as a conflict state, not a failure
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{
					"error": "already joined",
				})
			case errors.Is(err, services.ErrChallengeExpired):
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{
					"error": "challenge has ended",
				})
			case errors.Is(err, services.ErrChallengeInactive):
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{
					"error": "challenge is not active",
				})
			case services.IsValidation(err):
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": err.Error(),
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to join challenge",
				"cause": err.Error(),
			})
		}
		return c.Status(fiber.StatusCreated).JSON(progress)
	})

	// Admin challenge management
	adminGroup := app.Group("/admin/challenges", middleware.UserContextMiddleware(), middleware.RequireAdmin())
	adminGroup.Get("/", progression.Challenges.GetAllChallenges)
	adminGroup.Post("/", progression.Challenges.CreateChallenge)
	adminGroup.Patch("/:id", progression.Challenges.UpdateChallenge)
}
