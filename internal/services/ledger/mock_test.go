package ledger

import (
	"context"
	"sync"
	"time"

	"medipay/internal/models"
	"medipay/internal/repositories"

	"github.com/stretchr/testify/mock"
)

// MockLedgerRepository is a testify mock of repositories.LedgerRepository.
type MockLedgerRepository struct {
	mock.Mock
}

func (m *MockLedgerRepository) EnsureWallet(ctx context.Context, owner models.OwnerRef) (*models.Wallet, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Wallet), args.Error(1)
}

func (m *MockLedgerRepository) GetWallet(ctx context.Context, owner models.OwnerRef) (*models.Wallet, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Wallet), args.Error(1)
}

func (m *MockLedgerRepository) UpdateBalance(ctx context.Context, walletID uint, expectedVersion, newBalance int64) error {
	return m.Called(ctx, walletID, expectedVersion, newBalance).Error(0)
}

func (m *MockLedgerRepository) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	return m.Called(ctx, tx).Error(0)
}

func (m *MockLedgerRepository) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *MockLedgerRepository) GetByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *MockLedgerRepository) TransitionStatus(ctx context.Context, t repositories.StatusTransition) error {
	return m.Called(ctx, t).Error(0)
}

func (m *MockLedgerRepository) ListTransactions(ctx context.Context, owner models.OwnerRef, filter repositories.TransactionFilter) ([]models.Transaction, int64, error) {
	args := m.Called(ctx, owner, filter)
	return args.Get(0).([]models.Transaction), args.Get(1).(int64), args.Error(2)
}

func (m *MockLedgerRepository) ListStale(ctx context.Context, kind, status string, before time.Time, limit int) ([]models.Transaction, error) {
	args := m.Called(ctx, kind, status, before, limit)
	return args.Get(0).([]models.Transaction), args.Error(1)
}

func (m *MockLedgerRepository) SumBalanceEffects(ctx context.Context, owner models.OwnerRef) (int64, error) {
	args := m.Called(ctx, owner)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedgerRepository) SumCompleted(ctx context.Context, owner models.OwnerRef, kind string) (int64, error) {
	args := m.Called(ctx, owner, kind)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedgerRepository) ExecuteInTransaction(ctx context.Context, fn func(repositories.LedgerRepository) error) error {
	return m.Called(ctx, fn).Error(0)
}

// MockBalanceCache is a testify mock of BalanceCache.
type MockBalanceCache struct {
	mock.Mock
}

func (m *MockBalanceCache) GetBalance(ctx context.Context, owner models.OwnerRef) (int64, bool, error) {
	args := m.Called(ctx, owner)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

func (m *MockBalanceCache) CacheBalance(ctx context.Context, owner models.OwnerRef, balance, version int64) error {
	return m.Called(ctx, owner, balance, version).Error(0)
}

func (m *MockBalanceCache) InvalidateBalance(ctx context.Context, owner models.OwnerRef) error {
	return m.Called(ctx, owner).Error(0)
}

// flakyRepository fails the first n transactions with a version conflict
// before delegating to the wrapped repository.
type flakyRepository struct {
	repositories.LedgerRepository
	mu        sync.Mutex
	conflicts int
	calls     int
}

func (f *flakyRepository) ExecuteInTransaction(ctx context.Context, fn func(repositories.LedgerRepository) error) error {
	f.mu.Lock()
	f.calls++
	if f.conflicts > 0 {
		f.conflicts--
		f.mu.Unlock()
		return repositories.ErrVersionConflict
	}
	f.mu.Unlock()
	return f.LedgerRepository.ExecuteInTransaction(ctx, fn)
}

// recordingPublisher keeps every published routing key.
type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, _ interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	return nil
}

func (p *recordingPublisher) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}
