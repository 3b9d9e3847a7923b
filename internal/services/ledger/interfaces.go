package ledger

import (
	"context"
	"time"

	"medipay/internal/models"
	"medipay/internal/repositories"
)

// Service is the ledger store: the only component allowed to change a balance.
type Service interface {
	// ApplyDelta writes one row and applies its balance effect atomically.
	ApplyDelta(ctx context.Context, req DeltaRequest) (*models.Transaction, error)
	// RecordPending writes a pending row that does not touch a balance yet.
	RecordPending(ctx context.Context, req DeltaRequest) (*models.Transaction, error)
	// Resolve moves a pending row to a terminal status, exactly once.
	Resolve(ctx context.Context, req ResolveRequest) (*Resolution, error)

	GetBalance(ctx context.Context, owner models.OwnerRef) (int64, error)
	ListTransactions(ctx context.Context, owner models.OwnerRef, filter repositories.TransactionFilter) ([]models.Transaction, int64, error)
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	GetByReference(ctx context.Context, reference string) (*models.Transaction, error)
	VerifyWallet(ctx context.Context, owner models.OwnerRef) (*Verification, error)
	// TotalEarnings sums the owner's completed settlement credits.
	TotalEarnings(ctx context.Context, owner models.OwnerRef) (int64, error)
	ListStale(ctx context.Context, kind, status string, before time.Time, limit int) ([]models.Transaction, error)
}
