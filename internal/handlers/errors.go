package handlers

import (
	"errors"

	"medipay/internal/services/deposit"
	"medipay/internal/services/ledger"
	"medipay/internal/services/withdrawal"
	"medipay/internal/utils/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// handleServiceError maps service errors to HTTP responses.
func handleServiceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return response.BadRequest(c, "Insufficient funds")
	case isBadRequest(err):
		return response.BadRequest(c, err.Error())
	case errors.Is(err, withdrawal.ErrNotProfessional):
		return response.Forbidden(c, err.Error())
	case errors.Is(err, ledger.ErrHoldNotFound):
		return response.NotFound(c, "Hold not found")
	case errors.Is(err, ledger.ErrNotFound):
		return response.NotFound(c, "Transaction not found")
	case errors.Is(err, ledger.ErrConflict):
		return response.Conflict(c, "Concurrent update, please retry")
	case errors.Is(err, ledger.ErrDuplicateReference):
		return response.Conflict(c, "Duplicate reference")
	case errors.Is(err, ledger.ErrHoldAlreadyResolved), errors.Is(err, ledger.ErrAlreadyResolved):
		return response.Conflict(c, "Already resolved")
	default:
		log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
		return response.ServerError(c, "Internal server error")
	}
}

func isBadRequest(err error) bool {
	return ledger.IsValidationError(err) ||
		errors.Is(err, deposit.ErrInvalidOutcome) ||
		errors.Is(err, deposit.ErrPhoneRequired) ||
		errors.Is(err, withdrawal.ErrDestinationRequired) ||
		errors.Is(err, withdrawal.ErrOperatorRequired)
}
