package deposit

import (
	"context"

	"github.com/rs/zerolog/log"
)

// CollectionRequest asks an operator to pull funds from the depositor.
type CollectionRequest struct {
	Reference   string
	Operator    string
	PhoneNumber string
	// Amount is the gross amount the depositor pays, in FCFA.
	Amount int64
}

// Collection is what an operator returns when a collection starts.
type Collection struct {
	ExternalID string
	// ClientSecret lets the depositor's client finish a card payment.
	ClientSecret string
}

// Collector starts a collection with an operator. The outcome arrives later
// through the operator webhook.
type Collector interface {
	Collect(ctx context.Context, req CollectionRequest) (Collection, error)
}

// LoggingCollector records the collection request and relies on the operator
// calling back. It is used for operators without an outbound integration.
type LoggingCollector struct{}

func (LoggingCollector) Collect(_ context.Context, req CollectionRequest) (Collection, error) {
	log.Info().
		Str("reference", req.Reference).
		Str("operator", req.Operator).
		Int64("amount", req.Amount).
		Msg("collection requested, awaiting operator webhook")
	return Collection{}, nil
}
