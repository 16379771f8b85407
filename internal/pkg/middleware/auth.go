package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"golang.org/x/crypto/bcrypt"
)

// RequireTaskAuth protects the internal task and metrics endpoints with basic auth. The password
// is checked against a bcrypt hash. An empty hash rejects every request.
func RequireTaskAuth(username, passwordHash string) fiber.Handler {
	if passwordHash == "" {
		log.Warn("[Auth] TASKS_PASSWORD_HASH is not set, internal endpoints will reject all requests")
	}
	return basicauth.New(basicauth.Config{
		Realm: "SignFlow internal",
		Authorizer: func(user, pass string) bool {
			return checkCredentials(username, passwordHash, user, pass)
		},
		Unauthorized: func(c *fiber.Ctx) error {
			c.Set(fiber.HeaderWWWAuthenticate, `Basic realm="SignFlow internal"`)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid credentials"})
		},
	})
}

func checkCredentials(username, passwordHash, user, pass string) bool {
	if passwordHash == "" {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
	passOK := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(pass)) == nil
	return userOK && passOK
}

// HashPassword returns the bcrypt hash to put into TASKS_PASSWORD_HASH
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}
