package deposit

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/paymentintent"
)

// CurrencyXOF is the West African CFA franc; Stripe treats it as zero-decimal.
const CurrencyXOF = "xof"

// StripeCollector collects card deposits through Stripe PaymentIntents. The
// deposit reference travels in the metadata so the webhook can find it.
type StripeCollector struct {
	create func(*stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// NewStripeCollector configures the Stripe client with secretKey.
func NewStripeCollector(secretKey string) *StripeCollector {
	stripe.Key = secretKey
	return &StripeCollector{create: paymentintent.New}
}

func (c *StripeCollector) Collect(ctx context.Context, req CollectionRequest) (Collection, error) {
	if req.Amount <= 0 {
		return Collection{}, errors.New("stripe: amount must be positive")
	}

	params := paymentIntentParams(req)
	params.Context = ctx
	pi, err := c.create(params)
	if err != nil {
		return Collection{}, fmt.Errorf("stripe: failed to create payment intent: %w", err)
	}
	return Collection{ExternalID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func paymentIntentParams(req CollectionRequest) *stripe.PaymentIntentParams {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(req.Amount),
		Currency:           stripe.String(CurrencyXOF),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Description:        stripe.String("Wallet deposit " + req.Reference),
	}
	params.SetIdempotencyKey(req.Reference)
	params.AddMetadata("reference", req.Reference)
	params.AddMetadata("operator", req.Operator)
	return params
}
