package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"medipay/internal/models"
	"medipay/internal/services/deposit"
	"medipay/internal/services/ledger"

	"github.com/rs/zerolog/log"
)

// Reference prefixes
const (
	ReferencePrefix = "WDR"
	RefundRefPrefix = "REFUND_"
)

var (
	ErrNotProfessional     = errors.New("only professionals can withdraw")
	ErrDestinationRequired = errors.New("withdrawal destination is required")
	ErrOperatorRequired    = errors.New("payout operator is required")
)

// Service pays professional earnings out to an external account.
type Service interface {
	RequestWithdrawal(ctx context.Context, payee models.OwnerRef, amount int64, operator, destination string) (*models.Transaction, error)
	ConfirmWithdrawal(ctx context.Context, reference string, outcome deposit.Outcome, externalID string) (*ledger.Resolution, error)
	ExpireWithdrawal(ctx context.Context, reference string) (*ledger.Resolution, error)
}

type service struct {
	ledger ledger.Service
	now    func() time.Time
}

func NewService(l ledger.Service) Service {
	return &service{ledger: l, now: time.Now}
}

// RequestWithdrawal debits the payee immediately and leaves the withdrawal
// pending until operator reports the payout.
func (s *service) RequestWithdrawal(ctx context.Context, payee models.OwnerRef, amount int64, operator, destination string) (*models.Transaction, error) {
	if err := payee.Validate(); err != nil {
		return nil, err
	}
	if !payee.IsProfessional() {
		return nil, ErrNotProfessional
	}
	if amount <= 0 {
		return nil, ledger.ErrInvalidAmount
	}
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return nil, ErrDestinationRequired
	}
	operator = strings.ToLower(strings.TrimSpace(operator))
	if operator == "" {
		return nil, ErrOperatorRequired
	}

	tx, err := s.ledger.ApplyDelta(ctx, ledger.DeltaRequest{
		Owner:       payee,
		Amount:      -amount,
		Kind:        models.KindWithdrawal,
		Status:      models.StatusPending,
		Reference:   ledger.NewReference(ReferencePrefix, s.now()),
		Operator:    operator,
		Description: "Withdrawal to " + destination,
		Metadata:    models.JSON{"destination": destination},
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// ConfirmWithdrawal completes a successful payout. A failed payout is marked
// failed and the amount is refunded in the same database transaction.
func (s *service) ConfirmWithdrawal(ctx context.Context, reference string, outcome deposit.Outcome, externalID string) (*ledger.Resolution, error) {
	switch outcome {
	case deposit.OutcomeSuccess:
		return s.resolve(ctx, reference, models.StatusCompleted, externalID)
	case deposit.OutcomeFailure:
		return s.resolve(ctx, reference, models.StatusFailed, externalID)
	default:
		return nil, fmt.Errorf("%w: %q", deposit.ErrInvalidOutcome, outcome)
	}
}

// ExpireWithdrawal fails a payout the operator never confirmed and refunds it.
func (s *service) ExpireWithdrawal(ctx context.Context, reference string) (*ledger.Resolution, error) {
	return s.resolve(ctx, reference, models.StatusFailed, "")
}

func (s *service) resolve(ctx context.Context, reference, to, externalID string) (*ledger.Resolution, error) {
	req := ledger.ResolveRequest{
		Reference:  reference,
		Kind:       models.KindWithdrawal,
		To:         to,
		ExternalID: externalID,
	}
	if to == models.StatusFailed {
		req.FollowUps = func(w *models.Transaction) ([]ledger.DeltaRequest, error) {
			return []ledger.DeltaRequest{{
				Owner:       w.Owner(),
				Amount:      -w.Amount,
				Kind:        models.KindRefund,
				Reference:   RefundRefPrefix + w.ID,
				Description: "Refund of failed withdrawal " + reference,
			}}, nil
		}
	}

	res, err := s.ledger.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	log.Info().Str("reference", reference).Str("status", to).Msg("withdrawal reconciled")
	return res, nil
}
