package middleware

import (
	"net/http/httptest"
	"testing"

	"go-dbsync/pkg/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(skipAuth bool) *fiber.App {
	app := fiber.New()
	app.Get("/open", AuthMiddleware(skipAuth), func(c *fiber.Ctx) error {
		return c.SendString(CurrentUser(c))
	})
	app.Post("/admin", AuthMiddleware(skipAuth), RequireRole(RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func TestAuthMiddleware(t *testing.T) {
	utils.SetSecret("mw-secret")
	defer utils.SetSecret("secret")

	adminToken, err := utils.GenerateToken("alice", []string{RoleAdmin})
	require.NoError(t, err)
	viewerToken, err := utils.GenerateToken("bob", []string{RoleOperator})
	require.NoError(t, err)

	tests := []struct {
		name     string
		skipAuth bool
		method   string
		path     string
		header   string
		status   int
	}{
		{"Missing Header", false, "GET", "/open", "", fiber.StatusUnauthorized},
		{"Bad Scheme", false, "GET", "/open", "Token abc", fiber.StatusUnauthorized},
		{"Invalid Token", false, "GET", "/open", "Bearer nope", fiber.StatusUnauthorized},
		{"Valid Token", false, "GET", "/open", "Bearer " + viewerToken, fiber.StatusOK},
		{"Admin Allowed", false, "POST", "/admin", "Bearer " + adminToken, fiber.StatusNoContent},
		{"Operator Forbidden", false, "POST", "/admin", "Bearer " + viewerToken, fiber.StatusForbidden},
		{"Skip Auth Is Admin", true, "POST", "/admin", "", fiber.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(tt.skipAuth)
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}
