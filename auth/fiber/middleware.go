// Package fiber provides request-authentication middleware for Fiber apps
// built on the hub's identity store.
package fiber

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"findler.com/hubauth/auth"
	"findler.com/hubauth/permissions"
)

// AuthContext is what authenticated handlers read from locals.
type AuthContext struct {
	User         *auth.User
	RefreshToken *auth.RefreshToken
	Permissions  permissions.Checker
}

const authContextKey = "auth_context"

// RequireAuth validates the bearer access token, records token usage, and
// stores the auth context in fiber locals.
func RequireAuth(store *auth.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, err := extractBearer(c.Get("Authorization"))
		if err != nil {
			return writeAuthError(c, err)
		}

		refresh, err := store.ValidateAccessToken(c.Context(), tokenString)
		if err != nil {
			return writeAuthError(c, err)
		}

		if err := store.LogRefreshTokenUsage(c.Context(), refresh, c.IP()); err != nil {
			return writeAuthError(c, err)
		}

		c.Locals(authContextKey, &AuthContext{
			User:         refresh.User,
			RefreshToken: refresh,
			Permissions:  store.UserPermissions(refresh.User),
		})
		return c.Next()
	}
}

// RequireEntityAccess gates a handler on one entity grant, e.g.
// RequireEntityAccess("light.kitchen", permissions.KeyControl).
func RequireEntityAccess(entityID, key string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authCtx, ok := c.Locals(authContextKey).(*AuthContext)
		if !ok {
			return writeAuthError(c, auth.ErrMissingToken)
		}
		if !authCtx.Permissions.CheckEntity(entityID, key) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Access denied",
			})
		}
		return c.Next()
	}
}

// GetAuthContext extracts the auth context set by RequireAuth.
func GetAuthContext(c *fiber.Ctx) (*AuthContext, error) {
	authCtx, ok := c.Locals(authContextKey).(*AuthContext)
	if !ok {
		return nil, fiber.NewError(fiber.StatusBadRequest, "No authentication context found")
	}
	return authCtx, nil
}

func extractBearer(header string) (string, error) {
	if header == "" {
		return "", auth.ErrMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", auth.ErrInvalidToken
	}
	return strings.TrimSpace(parts[1]), nil
}

func writeAuthError(c *fiber.Ctx, err error) error {
	if authErr, ok := err.(*auth.Error); ok {
		return c.Status(authErr.Code).JSON(fiber.Map{"error": authErr.Message})
	}
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
}
