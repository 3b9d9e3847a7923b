package handlers

import (
	"errors"

	"medipay/internal/models"
	"medipay/internal/services/deposit"
	"medipay/internal/services/ledger"
	"medipay/internal/services/withdrawal"
	"medipay/internal/utils/response"
	"medipay/internal/utils/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

type webhookInput struct {
	Reference  string `json:"reference" validate:"required"`
	Status     string `json:"status" validate:"required"`
	ExternalID string `json:"externalId"`
}

// WebhookHandler receives operator confirmations. Every terminal outcome,
// including a repeat of one already applied, is acknowledged with 200 so
// the operator stops retrying.
type WebhookHandler struct {
	ledger      ledger.Service
	deposits    deposit.Service
	withdrawals withdrawal.Service
}

func NewWebhookHandler(l ledger.Service, deposits deposit.Service, withdrawals withdrawal.Service) *WebhookHandler {
	return &WebhookHandler{ledger: l, deposits: deposits, withdrawals: withdrawals}
}

// DepositWebhook handles POST /webhook/:operator.
func (h *WebhookHandler) DepositWebhook(c *fiber.Ctx) error {
	input, outcome, ok, err := parseWebhook(c)
	if !ok {
		return err
	}
	if ok, err := h.ownedBy(c, input.Reference, c.Params("operator")); !ok {
		return err
	}

	tx, err := h.deposits.ConfirmDeposit(c.UserContext(), input.Reference, outcome, input.ExternalID)
	if err != nil {
		return h.confirmError(c, err, input.Reference, outcome)
	}
	return c.JSON(fiber.Map{
		"message":   "Webhook processed",
		"reference": input.Reference,
		"status":    tx.Status,
	})
}

// PayoutWebhook handles POST /webhook/payouts/:operator.
func (h *WebhookHandler) PayoutWebhook(c *fiber.Ctx) error {
	input, outcome, ok, err := parseWebhook(c)
	if !ok {
		return err
	}
	if ok, err := h.ownedBy(c, input.Reference, c.Params("operator")); !ok {
		return err
	}

	res, err := h.withdrawals.ConfirmWithdrawal(c.UserContext(), input.Reference, outcome, input.ExternalID)
	if err != nil {
		return h.confirmError(c, err, input.Reference, outcome)
	}
	return c.JSON(fiber.Map{
		"message":   "Webhook processed",
		"reference": input.Reference,
		"status":    res.Transaction.Status,
	})
}

// ownedBy reports whether the transaction behind reference was routed to
// operator. A reference can only be confirmed by the operator handling it.
// When it returns false the response has already been written.
func (h *WebhookHandler) ownedBy(c *fiber.Ctx, reference, operator string) (bool, error) {
	tx, err := h.ledger.GetByReference(c.UserContext(), reference)
	if err != nil {
		return false, webhookError(c, err)
	}
	if tx.Operator != operator {
		log.Warn().
			Str("operator", operator).
			Str("owner_operator", tx.Operator).
			Str("reference", reference).
			Msg("webhook for another operator's transaction")
		return false, response.NotFound(c, "Unknown reference")
	}
	return true, nil
}

// confirmError acknowledges repeats like webhookError, and flags a repeat
// whose outcome contradicts the stored status. That happens when funds
// arrive after the sweeper expired the transaction and needs an operator
// to reconcile by hand.
func (h *WebhookHandler) confirmError(c *fiber.Ctx, err error, reference string, outcome deposit.Outcome) error {
	if errors.Is(err, ledger.ErrAlreadyResolved) {
		if tx, lookupErr := h.ledger.GetByReference(c.UserContext(), reference); lookupErr == nil && !outcomeMatches(outcome, tx.Status) {
			log.Error().
				Str("reference", reference).
				Str("outcome", string(outcome)).
				Str("status", tx.Status).
				Str("operator", tx.Operator).
				Msg("operator outcome contradicts resolved transaction, manual reconciliation required")
		}
	}
	return webhookError(c, err)
}

func outcomeMatches(outcome deposit.Outcome, status string) bool {
	if outcome == deposit.OutcomeSuccess {
		return status == models.StatusCompleted
	}
	return status != models.StatusCompleted
}

func parseWebhook(c *fiber.Ctx) (webhookInput, deposit.Outcome, bool, error) {
	var input webhookInput
	if err := c.BodyParser(&input); err != nil {
		return input, "", false, response.BadRequest(c, "Invalid payload")
	}
	if errs := validation.Struct(input); errs != nil {
		return input, "", false, response.ValidationError(c, "Invalid payload", errs)
	}
	outcome, err := deposit.ParseOutcome(input.Status)
	if err != nil {
		return input, "", false, response.BadRequest(c, err.Error())
	}
	return input, outcome, true, nil
}

func webhookError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ledger.ErrAlreadyResolved):
		return c.JSON(fiber.Map{
			"message":          "Already processed",
			"already_resolved": true,
		})
	case errors.Is(err, ledger.ErrNotFound):
		return response.NotFound(c, "Unknown reference")
	default:
		return handleServiceError(c, err)
	}
}
