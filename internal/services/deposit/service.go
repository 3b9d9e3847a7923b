package deposit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"medipay/internal/models"
	"medipay/internal/services/ledger"

	"github.com/rs/zerolog/log"
)

// ReferencePrefix starts every deposit reference.
const ReferencePrefix = "DEP"

// Outcome is the result an operator reports for a collection or payout.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

var ErrInvalidOutcome = errors.New("outcome must be success or failure")

func ParseOutcome(s string) (Outcome, error) {
	switch o := Outcome(strings.ToLower(strings.TrimSpace(s))); o {
	case OutcomeSuccess, OutcomeFailure:
		return o, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidOutcome, s)
	}
}

// ErrPhoneRequired is returned for mobile money deposits without a number.
var ErrPhoneRequired = errors.New("phone number is required for mobile money deposits")

// Initiated describes a freshly recorded pending deposit.
type Initiated struct {
	Reference    string              `json:"reference"`
	GrossAmount  int64               `json:"gross_amount"`
	Fees         int64               `json:"fees"`
	NetAmount    int64               `json:"net_amount"`
	Status       string              `json:"status"`
	CollectionID string              `json:"collection_id,omitempty"`
	ClientSecret string              `json:"client_secret,omitempty"`
	Transaction  *models.Transaction `json:"transaction"`
}

// Service records deposits and reconciles operator confirmations.
type Service interface {
	InitiateDeposit(ctx context.Context, owner models.OwnerRef, gross int64, operator, phoneNumber string) (*Initiated, error)
	ConfirmDeposit(ctx context.Context, reference string, outcome Outcome, externalID string) (*models.Transaction, error)
	ExpireDeposit(ctx context.Context, reference string) (*models.Transaction, error)
	Operators() []Operator
}

type service struct {
	ledger     ledger.Service
	operators  *Registry
	collectors map[string]Collector
	fallback   Collector
	now        func() time.Time
}

// NewService creates the deposit reconciler. Operators without an entry in
// collectors use LoggingCollector.
func NewService(l ledger.Service, operators *Registry, collectors map[string]Collector) Service {
	if collectors == nil {
		collectors = map[string]Collector{}
	}
	return &service{
		ledger:     l,
		operators:  operators,
		collectors: collectors,
		fallback:   LoggingCollector{},
		now:        time.Now,
	}
}

// InitiateDeposit records a pending deposit of the net amount and asks the
// operator to collect the gross amount. No balance changes until the
// operator confirms.
func (s *service) InitiateDeposit(ctx context.Context, owner models.OwnerRef, gross int64, operator, phoneNumber string) (*Initiated, error) {
	if gross <= 0 {
		return nil, ledger.ErrInvalidAmount
	}
	op, err := s.operators.Get(operator)
	if err != nil {
		return nil, err
	}
	phoneNumber = strings.TrimSpace(phoneNumber)
	if op.RequiresPhone() && phoneNumber == "" {
		return nil, ErrPhoneRequired
	}

	fees := op.Fee(gross)
	net := gross - fees
	if net <= 0 {
		return nil, fmt.Errorf("%w: nothing left after %d FCFA fees", ledger.ErrInvalidAmount, fees)
	}

	reference := ledger.NewReference(ReferencePrefix, s.now())
	tx, err := s.ledger.RecordPending(ctx, ledger.DeltaRequest{
		Owner:       owner,
		Amount:      net,
		Kind:        models.KindDeposit,
		Reference:   reference,
		Operator:    op.Name,
		Description: fmt.Sprintf("Deposit via %s", op.DisplayName),
		Metadata: models.JSON{
			"grossAmount": gross,
			"fees":        fees,
			"phoneNumber": phoneNumber,
		},
	})
	if err != nil {
		return nil, err
	}

	out := &Initiated{
		Reference:   reference,
		GrossAmount: gross,
		Fees:        fees,
		NetAmount:   net,
		Status:      tx.Status,
		Transaction: tx,
	}

	collector, ok := s.collectors[op.Name]
	if !ok {
		collector = s.fallback
	}
	collection, err := collector.Collect(ctx, CollectionRequest{
		Reference:   reference,
		Operator:    op.Name,
		PhoneNumber: phoneNumber,
		Amount:      gross,
	})
	if err != nil {
		log.Error().Err(err).Str("reference", reference).Str("operator", op.Name).Msg("failed to start collection")
	} else {
		out.CollectionID = collection.ExternalID
		out.ClientSecret = collection.ClientSecret
	}

	return out, nil
}

// ConfirmDeposit applies the operator outcome to a pending deposit. Success
// credits the net amount; failure marks it failed. A deposit is confirmed at
// most once.
func (s *service) ConfirmDeposit(ctx context.Context, reference string, outcome Outcome, externalID string) (*models.Transaction, error) {
	to := models.StatusCompleted
	switch outcome {
	case OutcomeSuccess:
	case OutcomeFailure:
		to = models.StatusFailed
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidOutcome, outcome)
	}

	res, err := s.ledger.Resolve(ctx, ledger.ResolveRequest{
		Reference:  reference,
		Kind:       models.KindDeposit,
		To:         to,
		ExternalID: externalID,
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("reference", reference).
		Str("status", res.Transaction.Status).
		Str("external_id", externalID).
		Msg("deposit reconciled")
	return res.Transaction, nil
}

// ExpireDeposit fails a deposit the operator never confirmed.
func (s *service) ExpireDeposit(ctx context.Context, reference string) (*models.Transaction, error) {
	res, err := s.ledger.Resolve(ctx, ledger.ResolveRequest{
		Reference: reference,
		Kind:      models.KindDeposit,
		To:        models.StatusFailed,
	})
	if err != nil {
		return nil, err
	}
	log.Warn().Str("reference", reference).Msg("deposit expired")
	return res.Transaction, nil
}

func (s *service) Operators() []Operator {
	return s.operators.List()
}
