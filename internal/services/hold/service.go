package hold

import (
	"context"
	"errors"
	"fmt"

	"medipay/internal/models"
	"medipay/internal/services/ledger"

	"github.com/rs/zerolog/log"
)

// Service reserves payer funds for a pending service.
type Service interface {
	CreateHold(ctx context.Context, payer models.OwnerRef, amount int64, relatedEntity string) (*models.Transaction, error)
	AvailableBalance(ctx context.Context, owner models.OwnerRef) (int64, error)
	Get(ctx context.Context, holdID string) (*models.Transaction, error)
}

type service struct {
	ledger ledger.Service
}

// NewService creates a hold engine on top of the ledger.
func NewService(l ledger.Service) Service {
	return &service{ledger: l}
}

// CreateHold debits amount from the payer immediately and records a pending
// hold. The returned transaction ID is the hold ID.
func (s *service) CreateHold(ctx context.Context, payer models.OwnerRef, amount int64, relatedEntity string) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, ledger.ErrInvalidAmount
	}

	tx, err := s.ledger.ApplyDelta(ctx, ledger.DeltaRequest{
		Owner:         payer,
		Amount:        -amount,
		Kind:          models.KindHold,
		Status:        models.StatusPending,
		RelatedEntity: relatedEntity,
		Description:   fmt.Sprintf("Hold for %s", relatedEntity),
	})
	if err != nil {
		if !errors.Is(err, ledger.ErrInsufficientFunds) {
			log.Error().Err(err).Str("payer", payer.Key()).Int64("amount", amount).Msg("failed to create hold")
		}
		return nil, err
	}
	return tx, nil
}

// AvailableBalance is the wallet balance, which is already net of pending holds.
func (s *service) AvailableBalance(ctx context.Context, owner models.OwnerRef) (int64, error) {
	return s.ledger.GetBalance(ctx, owner)
}

func (s *service) Get(ctx context.Context, holdID string) (*models.Transaction, error) {
	tx, err := s.ledger.GetTransaction(ctx, holdID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, ledger.ErrHoldNotFound
		}
		return nil, err
	}
	if tx.Kind != models.KindHold {
		return nil, ledger.ErrHoldNotFound
	}
	return tx, nil
}
