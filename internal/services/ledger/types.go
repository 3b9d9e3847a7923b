package ledger

import (
	"context"
	"time"

	"medipay/internal/models"
)

// Config holds configuration for ledger operations
type Config struct {
	// MaxRetries is the number of extra attempts after a version conflict.
	MaxRetries int
	// RetryDelay is the base backoff between attempts; jitter is added.
	RetryDelay time.Duration
}

// DeltaRequest describes one transaction row and the balance change it implies.
type DeltaRequest struct {
	Owner models.OwnerRef
	// Amount is signed: negative debits the owner, positive credits.
	Amount int64
	Kind   string
	// Status defaults to models.DefaultStatus(Kind).
	Status        string
	RelatedEntity string
	Reference     string
	ParentID      string
	Counterparty  *models.OwnerRef
	Operator      string
	Description   string
	Metadata      models.JSON
}

// ResolveRequest moves one pending transaction to a terminal status.
// Exactly one of ID and Reference identifies it.
type ResolveRequest struct {
	ID         string
	Reference  string
	Kind       string
	To         string
	ExternalID string
	// FollowUps derives the rows written in the same database transaction
	// from the pending row being resolved.
	FollowUps func(orig *models.Transaction) ([]DeltaRequest, error)
}

// Resolution is the committed outcome of Resolve.
type Resolution struct {
	Transaction *models.Transaction
	FollowUps   []*models.Transaction
}

// Verification compares a stored balance with the sum of its ledger rows.
type Verification struct {
	Owner      models.OwnerRef `json:"owner"`
	Balance    int64           `json:"balance"`
	Computed   int64           `json:"computed"`
	Version    int64           `json:"version"`
	Consistent bool            `json:"consistent"`
}

// MetricsCollector defines the interface for collecting ledger metrics
type MetricsCollector interface {
	// Operation metrics
	RecordOperationDuration(operation string, duration time.Duration)
	RecordOperationResult(operation, result string)
	RecordRetry(operation string)

	// Cache metrics
	RecordCacheHit(key string)
	RecordCacheMiss(key string)

	// Error metrics
	RecordError(operation, errType string)

	// Transaction metrics
	RecordTransaction(kind string, amount int64)
}

// BalanceCache defines the caching operations used for balance reads.
// CacheBalance must ignore a write whose version is older than the cached one.
type BalanceCache interface {
	GetBalance(ctx context.Context, owner models.OwnerRef) (int64, bool, error)
	CacheBalance(ctx context.Context, owner models.OwnerRef, balance, version int64) error
	InvalidateBalance(ctx context.Context, owner models.OwnerRef) error
}

type noopCache struct{}

func (noopCache) GetBalance(context.Context, models.OwnerRef) (int64, bool, error) {
	return 0, false, nil
}
func (noopCache) CacheBalance(context.Context, models.OwnerRef, int64, int64) error { return nil }
func (noopCache) InvalidateBalance(context.Context, models.OwnerRef) error          { return nil }
