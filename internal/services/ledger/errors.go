package ledger

import (
	"errors"

	"medipay/internal/models"
)

// Service errors
var (
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrHoldNotFound        = errors.New("hold not found")
	ErrHoldAlreadyResolved = errors.New("hold already resolved")
	ErrDuplicateReference  = errors.New("duplicate reference")
	ErrConflict            = errors.New("concurrent update conflict")
	ErrNotFound            = errors.New("transaction not found")
	ErrAlreadyResolved     = errors.New("transaction already resolved")

	// Validation errors
	ErrInvalidAmount     = errors.New("amount must be a non-zero whole number of FCFA")
	ErrInvalidOwner      = models.ErrInvalidOwner
	ErrInvalidKind       = errors.New("invalid transaction kind")
	ErrInvalidStatus     = errors.New("invalid transaction status")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnknownOperator   = errors.New("unknown payment operator")
	ErrInvalidPayee      = errors.New("invalid payee")
	ErrMultipleWallets   = errors.New("resolution would change more than one wallet")
	ErrAmountTooLarge    = errors.New("amount exceeds the largest balance a wallet can hold")
)

// IsValidationError reports whether err was caused by bad caller input.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrInvalidAmount, ErrInvalidOwner, ErrInvalidKind, ErrInvalidStatus,
		ErrInvalidTransition, ErrUnknownOperator, ErrInvalidPayee, ErrAmountTooLarge,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// errorType is the low-cardinality label used for error metrics.
func errorType(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrDuplicateReference):
		return "duplicate_reference"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyResolved):
		return "already_resolved"
	case IsValidationError(err):
		return "invalid"
	default:
		return "internal"
	}
}
