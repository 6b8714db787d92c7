package middleware

import (
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contextEchoApp() *fiber.App {
	app := fiber.New()
	app.Use(UserContextMiddleware())
	app.Get("/user/progression", func(c *fiber.Ctx) error {
		roles, _ := c.Locals("user_roles").([]string)
		return c.JSON(fiber.Map{
			"user_id": c.Locals("user_id"),
			"roles":   roles,
		})
	})
	app.Get("/leaderboard", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	adminOnly := app.Group("/admin", RequireAdmin())
	adminOnly.Get("/quota/u1", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestUserContext_RequiredOnSecuredRoutes(t *testing.T) {
	app := contextEchoApp()

	req, _ := http.NewRequest("GET", "/user/progression", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req, _ = http.NewRequest("GET", "/user/progression", nil)
	req.Header.Set("X-User-ID", "user-1")
	req.Header.Set("X-User-Roles", "chef, admin")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestUserContext_PublicRoutesPass(t *testing.T) {
	app := contextEchoApp()

	req, _ := http.NewRequest("GET", "/leaderboard", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRequireAdmin(t *testing.T) {
	app := contextEchoApp()

	req, _ := http.NewRequest("GET", "/admin/quota/u1", nil)
	req.Header.Set("X-User-ID", "user-1")
	req.Header.Set("X-User-Roles", "chef")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	req, _ = http.NewRequest("GET", "/admin/quota/u1", nil)
	req.Header.Set("X-User-ID", "user-1")
	req.Header.Set("X-User-Roles", "admin")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
