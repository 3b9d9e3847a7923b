package deposit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v72"
)

func TestPaymentIntentParams(t *testing.T) {
	params := paymentIntentParams(CollectionRequest{Reference: "DEP_1_ABC", Operator: OperatorCarteBancaire, Amount: 5000})

	assert.Equal(t, int64(5000), *params.Amount)
	assert.Equal(t, CurrencyXOF, *params.Currency)
	require.Len(t, params.PaymentMethodTypes, 1)
	assert.Equal(t, "card", *params.PaymentMethodTypes[0])
	assert.Equal(t, "DEP_1_ABC", params.Metadata["reference"])
	require.NotNil(t, params.IdempotencyKey)
	assert.Equal(t, "DEP_1_ABC", *params.IdempotencyKey)
}

func TestStripeCollector_Collect(t *testing.T) {
	var seen *stripe.PaymentIntentParams
	c := &StripeCollector{create: func(p *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
		seen = p
		return &stripe.PaymentIntent{ID: "pi_123", ClientSecret: "pi_123_secret_abc"}, nil
	}}

	got, err := c.Collect(context.Background(), CollectionRequest{Reference: "DEP_1_ABC", Amount: 5000})
	require.NoError(t, err)
	assert.Equal(t, "pi_123", got.ExternalID)
	assert.Equal(t, "pi_123_secret_abc", got.ClientSecret)
	require.NotNil(t, seen)
	assert.NotNil(t, seen.Context)
}

func TestStripeCollector_Errors(t *testing.T) {
	c := &StripeCollector{create: func(*stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
		return nil, errors.New("card declined")
	}}

	_, err := c.Collect(context.Background(), CollectionRequest{Reference: "DEP_1_ABC", Amount: 5000})
	assert.ErrorContains(t, err, "card declined")

	_, err = c.Collect(context.Background(), CollectionRequest{Reference: "DEP_1_ABC"})
	assert.Error(t, err)
}
