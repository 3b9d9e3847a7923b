package utils

import (
	"errors"

	"medipay/internal/models"

	"github.com/gofiber/fiber/v2"
)

// Locals keys set by the auth middleware.
const (
	LocalsClaims = "claims"
	LocalsOwner  = "owner"
)

// GetUserClaims extracts the user claims from the Fiber context.
// It returns an error if the claims are missing or of an invalid type.
func GetUserClaims(c *fiber.Ctx) (*models.UserClaims, error) {
	v := c.Locals(LocalsClaims)
	if v == nil {
		return nil, errors.New("claims not found in context")
	}

	claims, ok := v.(*models.UserClaims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}
	return claims, nil
}

// GetOwner returns the wallet owner of the authenticated caller.
func GetOwner(c *fiber.Ctx) (models.OwnerRef, error) {
	owner, ok := c.Locals(LocalsOwner).(models.OwnerRef)
	if !ok {
		return models.OwnerRef{}, models.ErrInvalidOwner
	}
	return owner, nil
}
