package handlers

import (
	"errors"

	"medipay/internal/services/deposit"
	"medipay/internal/services/ledger"
	"medipay/internal/utils/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// StripeSignatureHeader carries the Stripe webhook signature.
const StripeSignatureHeader = "Stripe-Signature"

// StripeWebhookHandler settles card deposits from Stripe payment intent
// events. Stripe signs its payloads, so no operator key is involved.
type StripeWebhookHandler struct {
	webhooks *WebhookHandler
	secret   string
}

func NewStripeWebhookHandler(l ledger.Service, deposits deposit.Service, secret string) *StripeWebhookHandler {
	return &StripeWebhookHandler{
		webhooks: NewWebhookHandler(l, deposits, nil),
		secret:   secret,
	}
}

// Handle handles POST /webhook/stripe.
func (h *StripeWebhookHandler) Handle(c *fiber.Ctx) error {
	ev, ok, err := deposit.ParseStripeEvent(c.Body(), c.Get(StripeSignatureHeader), h.secret)
	if err != nil {
		if errors.Is(err, deposit.ErrInvalidSignature) {
			log.Warn().Err(err).Str("ip", c.IP()).Msg("rejected stripe webhook")
			return response.Error(c, fiber.StatusBadRequest, "Invalid signature")
		}
		log.Error().Err(err).Msg("unusable stripe event")
		return response.BadRequest(c, "Invalid payload")
	}
	if !ok {
		return c.JSON(fiber.Map{"message": "Event ignored"})
	}

	if ok, err := h.webhooks.ownedBy(c, ev.Reference, deposit.OperatorCarteBancaire); !ok {
		return err
	}
	tx, err := h.webhooks.deposits.ConfirmDeposit(c.UserContext(), ev.Reference, ev.Outcome, ev.ExternalID)
	if err != nil {
		return h.webhooks.confirmError(c, err, ev.Reference, ev.Outcome)
	}
	return c.JSON(fiber.Map{
		"message":   "Webhook processed",
		"reference": ev.Reference,
		"status":    tx.Status,
	})
}
