package settlement

import (
	"context"
	"errors"
	"fmt"

	"medipay/internal/models"
	"medipay/internal/services/ledger"

	"github.com/rs/zerolog/log"
)

// Reference prefixes for rows derived from a hold.
const (
	SettleRefPrefix = "SETTLE_"
	RefundRefPrefix = "REFUND_"
)

// Settlement is the pair of rows written when a hold is paid out.
type Settlement struct {
	Hold   *models.Transaction `json:"hold"`
	Debit  *models.Transaction `json:"debit"`
	Credit *models.Transaction `json:"credit"`
}

// Cancellation is the outcome of cancelling a hold.
type Cancellation struct {
	Hold   *models.Transaction `json:"hold"`
	Refund *models.Transaction `json:"refund"`
}

// Service finalises holds exactly once.
type Service interface {
	Settle(ctx context.Context, holdID string, payee models.OwnerRef) (*Settlement, error)
	CancelHold(ctx context.Context, holdID string) (*Cancellation, error)
}

type service struct {
	ledger ledger.Service
}

// NewService creates a settlement engine on top of the ledger.
func NewService(l ledger.Service) Service {
	return &service{ledger: l}
}

// Settle completes the hold and credits its absolute amount to the payee.
// The payer's memo debit and the payee credit commit together with the
// status change.
func (s *service) Settle(ctx context.Context, holdID string, payee models.OwnerRef) (*Settlement, error) {
	if err := payee.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrInvalidPayee, err)
	}

	res, err := s.ledger.Resolve(ctx, ledger.ResolveRequest{
		ID:   holdID,
		Kind: models.KindHold,
		To:   models.StatusCompleted,
		FollowUps: func(hold *models.Transaction) ([]ledger.DeltaRequest, error) {
			payer := hold.Owner()
			if payer == payee {
				return nil, fmt.Errorf("%w: payee is the payer", ledger.ErrInvalidPayee)
			}
			amount := -hold.Amount
			return []ledger.DeltaRequest{
				{
					Owner:         payer,
					Amount:        -amount,
					Kind:          models.KindSettlementDebit,
					RelatedEntity: hold.RelatedEntity,
					Counterparty:  &payee,
					Description:   fmt.Sprintf("Payment for %s", hold.RelatedEntity),
				},
				{
					Owner:         payee,
					Amount:        amount,
					Kind:          models.KindSettlementCredit,
					RelatedEntity: hold.RelatedEntity,
					Reference:     SettleRefPrefix + hold.ID,
					Counterparty:  &payer,
					Description:   fmt.Sprintf("Payment received for %s", hold.RelatedEntity),
				},
			}, nil
		},
	})
	if err != nil {
		return nil, holdError(err)
	}

	log.Info().Str("hold_id", holdID).Str("payee", payee.Key()).Msg("hold settled")
	return &Settlement{Hold: res.Transaction, Debit: res.FollowUps[0], Credit: res.FollowUps[1]}, nil
}

// CancelHold cancels the hold and refunds the payer.
func (s *service) CancelHold(ctx context.Context, holdID string) (*Cancellation, error) {
	res, err := s.ledger.Resolve(ctx, ledger.ResolveRequest{
		ID:   holdID,
		Kind: models.KindHold,
		To:   models.StatusCancelled,
		FollowUps: func(hold *models.Transaction) ([]ledger.DeltaRequest, error) {
			return []ledger.DeltaRequest{{
				Owner:         hold.Owner(),
				Amount:        -hold.Amount,
				Kind:          models.KindRefund,
				RelatedEntity: hold.RelatedEntity,
				Reference:     RefundRefPrefix + hold.ID,
				Description:   fmt.Sprintf("Refund for %s", hold.RelatedEntity),
			}}, nil
		},
	})
	if err != nil {
		return nil, holdError(err)
	}

	log.Info().Str("hold_id", holdID).Msg("hold cancelled")
	return &Cancellation{Hold: res.Transaction, Refund: res.FollowUps[0]}, nil
}

func holdError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return ledger.ErrHoldNotFound
	case errors.Is(err, ledger.ErrAlreadyResolved):
		return ledger.ErrHoldAlreadyResolved
	default:
		return err
	}
}
