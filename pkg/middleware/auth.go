package middleware

import (
	"strings"

	"finman/pkg/auth"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// LocalUserID is the fiber Locals key holding the authenticated user's id.
const LocalUserID = "userID"

// UserID returns the id stored by AuthMiddleware, or "" on unauthenticated routes.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalUserID).(string)
	return id
}

// AuthMiddleware admits requests carrying a valid access token and stores
// the token's subject under LocalUserID. Refresh tokens are rejected.
func AuthMiddleware(jwtManager *auth.JWTManager, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
		if !ok {
			logger.Warn("Missing bearer token", zap.String("path", c.Path()))
			return unauthorized(c, "Authorization token required")
		}

		claims, err := jwtManager.ValidateToken(token)
		if err != nil {
			logger.Warn("Rejected access token", zap.String("path", c.Path()), zap.Error(err))
			return unauthorized(c, "Invalid or expired token")
		}

		c.Locals(LocalUserID, claims.UserID)
		return c.Next()
	}
}

// bearerToken extracts the credentials of a "Bearer" Authorization header.
// The scheme is matched case-insensitively.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(c *fiber.Ctx, msg string) error {
	c.Set(fiber.HeaderWWWAuthenticate, `Bearer realm="finman"`)
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": msg})
}
