package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"medipay/internal/models"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const pqUniqueViolation = "23505"

type ledgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepository{
		db: db,
	}
}

func (r *ledgerRepository) EnsureWallet(ctx context.Context, owner models.OwnerRef) (*models.Wallet, error) {
	wallet := models.NewWallet(owner)
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_type"}, {Name: "owner_id"}},
		DoNothing: true,
	}).Create(wallet)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", result.Error)
	}
	return r.GetWallet(ctx, owner)
}

func (r *ledgerRepository) GetWallet(ctx context.Context, owner models.OwnerRef) (*models.Wallet, error) {
	var wallet models.Wallet
	err := r.db.WithContext(ctx).
		Where("owner_type = ? AND owner_id = ?", owner.Type, owner.ID).
		First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &wallet, nil
}

func (r *ledgerRepository) UpdateBalance(ctx context.Context, walletID uint, expectedVersion, newBalance int64) error {
	result := r.db.WithContext(ctx).Model(&models.Wallet{}).
		Where("id = ? AND version = ?", walletID, expectedVersion).
		Updates(map[string]interface{}{
			"balance":    newBalance,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update wallet balance: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (r *ledgerRepository) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	if err := r.db.WithContext(ctx).Create(tx).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateReference
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (r *ledgerRepository) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	var tx models.Transaction
	if err := r.db.WithContext(ctx).First(&tx, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &tx, nil
}

func (r *ledgerRepository) GetByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	var tx models.Transaction
	if err := r.db.WithContext(ctx).Where("reference = ?", reference).First(&tx).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction by reference: %w", err)
	}
	return &tx, nil
}

func (r *ledgerRepository) TransitionStatus(ctx context.Context, t StatusTransition) error {
	updates := map[string]interface{}{
		"status":      t.To,
		"resolved_at": t.At,
		"updated_at":  t.At,
	}
	if t.ExternalID != "" {
		updates["external_id"] = t.ExternalID
	}

	result := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND status = ?", t.ID, t.From).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update transaction status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (r *ledgerRepository) ListTransactions(ctx context.Context, owner models.OwnerRef, filter TransactionFilter) ([]models.Transaction, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("owner_type = ? AND owner_id = ?", owner.Type, owner.ID)
	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	var txs []models.Transaction
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit).Offset(filter.Offset)
	}
	if err := query.Order("created_at DESC").Find(&txs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, total, nil
}

func (r *ledgerRepository) ListStale(ctx context.Context, kind, status string, before time.Time, limit int) ([]models.Transaction, error) {
	var txs []models.Transaction
	query := r.db.WithContext(ctx).
		Where("kind = ? AND status = ? AND created_at < ?", kind, status, before).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("failed to list stale transactions: %w", err)
	}
	return txs, nil
}

func (r *ledgerRepository) SumBalanceEffects(ctx context.Context, owner models.OwnerRef) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("owner_type = ? AND owner_id = ?", owner.Type, owner.ID).
		Where("(kind IN ? OR (kind IN ? AND status = ?))",
			[]string{models.KindHold, models.KindWithdrawal},
			[]string{models.KindDeposit, models.KindSettlementCredit, models.KindRefund},
			models.StatusCompleted,
		).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum transactions: %w", err)
	}
	return total, nil
}

func (r *ledgerRepository) SumCompleted(ctx context.Context, owner models.OwnerRef, kind string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("owner_type = ? AND owner_id = ? AND kind = ? AND status = ?", owner.Type, owner.ID, kind, models.StatusCompleted).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum %s transactions: %w", kind, err)
	}
	return total, nil
}

func (r *ledgerRepository) ExecuteInTransaction(ctx context.Context, fn func(LedgerRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepo := &ledgerRepository{db: tx}
		return fn(txRepo)
	})
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
