package deposit

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/webhook"
)

var (
	// ErrInvalidSignature means the Stripe-Signature header did not verify.
	ErrInvalidSignature = errors.New("stripe: invalid webhook signature")
	// ErrMissingReference means a payment intent carries no deposit reference.
	ErrMissingReference = errors.New("stripe: payment intent has no deposit reference")
)

// CardEvent is the deposit outcome carried by a Stripe payment intent event.
type CardEvent struct {
	Reference  string
	ExternalID string
	Outcome    Outcome
}

// ParseStripeEvent verifies payload against the Stripe-Signature header and
// extracts the deposit outcome. ok is false for event types that do not
// settle a deposit.
func ParseStripeEvent(payload []byte, signature, secret string) (ev CardEvent, ok bool, err error) {
	event, err := webhook.ConstructEvent(payload, signature, secret)
	if err != nil {
		return CardEvent{}, false, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	switch event.Type {
	case "payment_intent.succeeded":
		ev.Outcome = OutcomeSuccess
	case "payment_intent.payment_failed", "payment_intent.canceled":
		ev.Outcome = OutcomeFailure
	default:
		return CardEvent{}, false, nil
	}

	if event.Data == nil {
		return CardEvent{}, false, fmt.Errorf("stripe: %s event has no data", event.Type)
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return CardEvent{}, false, fmt.Errorf("stripe: failed to decode payment intent: %w", err)
	}
	ev.Reference = pi.Metadata["reference"]
	if ev.Reference == "" {
		return CardEvent{}, false, fmt.Errorf("%w: %s", ErrMissingReference, pi.ID)
	}
	ev.ExternalID = pi.ID
	return ev, true, nil
}
