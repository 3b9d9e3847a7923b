package repositories

import (
	"context"
	"errors"
	"time"

	"medipay/internal/models"
)

var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrDuplicateReference  = errors.New("duplicate transaction reference")
	// ErrVersionConflict means the wallet changed between read and write.
	ErrVersionConflict = errors.New("wallet version conflict")
	// ErrStatusConflict means the transaction left the expected status first.
	ErrStatusConflict = errors.New("transaction status conflict")
)

// TransactionFilter narrows ListTransactions. Zero values match everything.
type TransactionFilter struct {
	Kind   string
	Status string
	Limit  int
	Offset int
}

// StatusTransition moves one transaction out of From. ExternalID is recorded
// when set.
type StatusTransition struct {
	ID         string
	From       string
	To         string
	ExternalID string
	At         time.Time
}

// LedgerRepository defines the storage operations behind the ledger.
// Mutating calls made inside ExecuteInTransaction commit or roll back together.
type LedgerRepository interface {
	// Wallets
	EnsureWallet(ctx context.Context, owner models.OwnerRef) (*models.Wallet, error)
	GetWallet(ctx context.Context, owner models.OwnerRef) (*models.Wallet, error)
	// UpdateBalance writes newBalance and bumps the version only if the stored
	// version still equals expectedVersion, returning ErrVersionConflict otherwise.
	UpdateBalance(ctx context.Context, walletID uint, expectedVersion, newBalance int64) error

	// Transactions
	CreateTransaction(ctx context.Context, tx *models.Transaction) error
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	GetByReference(ctx context.Context, reference string) (*models.Transaction, error)
	TransitionStatus(ctx context.Context, t StatusTransition) error
	ListTransactions(ctx context.Context, owner models.OwnerRef, filter TransactionFilter) ([]models.Transaction, int64, error)
	ListStale(ctx context.Context, kind, status string, before time.Time, limit int) ([]models.Transaction, error)
	SumBalanceEffects(ctx context.Context, owner models.OwnerRef) (int64, error)
	// SumCompleted totals the owner's completed rows of one kind.
	SumCompleted(ctx context.Context, owner models.OwnerRef, kind string) (int64, error)

	ExecuteInTransaction(ctx context.Context, fn func(LedgerRepository) error) error
}
