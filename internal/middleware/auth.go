// Package middleware provides HTTP middleware components for the application.
// It includes authentication, authorization, and other request processing middleware
// that can be used with the fiber web framework.
package middleware

import (
	"strings"

	"medipay/internal/models"
	"medipay/internal/utils"
	"medipay/internal/utils/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// AuthMiddleware handles JWT token validation.
type AuthMiddleware struct {
	secret string
}

func NewAuthMiddleware(secret string) *AuthMiddleware {
	return &AuthMiddleware{secret: secret}
}

// Handler validates the bearer token and stores the claims, and the wallet
// owner they name, in the request locals.
func (m *AuthMiddleware) Handler(c *fiber.Ctx) error {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization header"})
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid authorization format"})
	}

	claims, err := utils.ParseToken(strings.TrimPrefix(authHeader, "Bearer "), m.secret)
	if err != nil {
		log.Debug().Err(err).Msg("token validation failed")
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
	}

	c.Locals(utils.LocalsClaims, claims)
	if owner, err := claims.Owner(); err == nil {
		c.Locals(utils.LocalsOwner, owner)
	}
	return c.Next()
}

// AdminAuthMiddleware verifies that the request has valid admin claims.
func AdminAuthMiddleware(c *fiber.Ctx) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return response.Unauthorized(c)
	}
	if claims.Role != models.RoleAdmin {
		log.Warn().Str("user_id", claims.UserID).Str("role", claims.Role).Msg("admin access denied")
		return response.Forbidden(c, "Insufficient permissions")
	}
	return c.Next()
}

// RequireOwner rejects callers whose token does not name a wallet owner.
func RequireOwner(c *fiber.Ctx) error {
	if _, err := utils.GetOwner(c); err != nil {
		return response.Forbidden(c, "this endpoint requires a wallet owner")
	}
	return c.Next()
}

// RequireProfessional rejects callers who are not professionals.
func RequireProfessional(c *fiber.Ctx) error {
	owner, err := utils.GetOwner(c)
	if err != nil || !owner.IsProfessional() {
		return response.Forbidden(c, "only professionals can access this endpoint")
	}
	return c.Next()
}

// HasPermission returns a middleware that checks for a specific permission.
func HasPermission(permission string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := utils.GetUserClaims(c)
		if err != nil {
			return response.Unauthorized(c)
		}
		if claims.HasPermission(permission) {
			return c.Next()
		}
		return response.Forbidden(c, "Insufficient permissions")
	}
}
