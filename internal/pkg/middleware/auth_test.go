package middleware

import (
	"encoding/base64"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func basicAuth(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

func newAuthApp(t *testing.T, hash string) *fiber.App {
	t.Helper()
	app := fiber.New()
	app.Post("/tasks", RequireTaskAuth("tasks", hash), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func TestRequireTaskAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	app := newAuthApp(t, string(hash))

	tests := []struct {
		name     string
		header   string
		expected int
	}{
		{"valid credentials", basicAuth("tasks", "s3cret"), fiber.StatusNoContent},
		{"wrong password", basicAuth("tasks", "nope"), fiber.StatusUnauthorized},
		{"wrong user", basicAuth("admin", "s3cret"), fiber.StatusUnauthorized},
		{"no header", "", fiber.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodPost, "/tasks", nil)
			if tt.header != "" {
				req.Header.Set(fiber.HeaderAuthorization, tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, resp.StatusCode)
		})
	}
}

func TestRequireTaskAuth_EmptyHashRejectsAll(t *testing.T) {
	app := newAuthApp(t, "")

	req := httptest.NewRequest(fiber.MethodPost, "/tasks", nil)
	req.Header.Set(fiber.HeaderAuthorization, basicAuth("tasks", ""))
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.True(t, checkCredentials("tasks", hash, "tasks", "s3cret"))
	assert.False(t, checkCredentials("tasks", hash, "tasks", "other"))
}
