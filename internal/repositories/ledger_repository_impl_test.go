package repositories

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"medipay/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// openTestDB connects to TEST_DATABASE_DSN and migrates it. Tests that need
// PostgreSQL skip when it is unset. Every test uses fresh owners and
// references, so the database can be shared between runs.
func openTestDB(t *testing.T) LedgerRepository {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}

	db, err := gorm.Open(postgres.New(postgres.Config{DriverName: "postgres", DSN: dsn}), &gorm.Config{
		Logger: logger.Discard,
	})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return NewLedgerRepository(db)
}

func freshOwner(prefix string) models.OwnerRef {
	return models.UserOwner(prefix + "-" + uuid.NewString())
}

func freshTx(owner models.OwnerRef, kind, status string, amount int64, ref string) *models.Transaction {
	tx := newTx(uuid.NewString(), owner, kind, status, amount, "")
	if ref != "" {
		tx.Reference = models.StringPtr(ref + "_" + uuid.NewString())
	} else {
		tx.Reference = nil
	}
	return tx
}

func TestLedgerRepository_EnsureWalletIsIdempotent(t *testing.T) {
	repo := openTestDB(t)
	ctx := context.Background()
	owner := freshOwner("u")

	ids := make([]uint, 8)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w, err := repo.EnsureWallet(ctx, owner)
			if assert.NoError(t, err) {
				ids[i] = w.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id, "racing creators share one wallet")
	}

	_, err := repo.GetWallet(ctx, models.ProfessionalOwner(owner.ID))
	assert.ErrorIs(t, err, ErrWalletNotFound)
}

func TestLedgerRepository_UpdateBalanceChecksVersion(t *testing.T) {
	repo := openTestDB(t)
	ctx := context.Background()
	owner := freshOwner("u")
	w, err := repo.EnsureWallet(ctx, owner)
	require.NoError(t, err)
	require.Equal(t, int64(0), w.Version)

	require.NoError(t, repo.UpdateBalance(ctx, w.ID, 0, 100))
	assert.ErrorIs(t, repo.UpdateBalance(ctx, w.ID, 0, 999), ErrVersionConflict)

	stored, err := repo.GetWallet(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(100), stored.Balance)
	assert.Equal(t, int64(1), stored.Version)
}

func TestLedgerRepository_ConcurrentWritersOneWins(t *testing.T) {
	repo := openTestDB(t)
	ctx := context.Background()
	owner := freshOwner("u")
	_, err := repo.EnsureWallet(ctx, owner)
	require.NoError(t, err)

	var (
		read sync.WaitGroup
		done sync.WaitGroup
	)
	results := make([]error, 2)
	read.Add(len(results))
	for i := range results {
		done.Add(1)
		go func(i int) {
			defer done.Done()
			results[i] = repo.ExecuteInTransaction(ctx, func(tx LedgerRepository) error {
				w, err := tx.GetWallet(ctx, owner)
				read.Done()
				if err != nil {
					return err
				}
				// both writers hold the same version before either updates
				read.Wait()
				return tx.UpdateBalance(ctx, w.ID, w.Version, w.Balance+int64(100*(i+1)))
			})
		}(i)
	}
	done.Wait()

	var wins int
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, ErrVersionConflict)
	}
	assert.Equal(t, 1, wins)

	stored, err := repo.GetWallet(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)
	assert.Contains(t, []int64{100, 200}, stored.Balance)
}

func TestLedgerRepository_RollbackOnError(t *testing.T) {
	repo := openTestDB(t)
	ctx := context.Background()
	owner := freshOwner("u")
	w, err := repo.EnsureWallet(ctx, owner)
	require.NoError(t, err)

	row := freshTx(owner, models.KindDeposit, models.StatusCompleted, 300, "DEP")
	err = repo.ExecuteInTransaction(ctx, func(tx LedgerRepository) error {
		require.NoError(t, tx.UpdateBalance(ctx, w.ID, 0, 300))
		require.NoError(t, tx.CreateTransaction(ctx, row))
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	stored, err := repo.GetWallet(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.Balance)
	_, err = repo.GetTransaction(ctx, row.ID)
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestLedgerRepository_DuplicateReference(t *testing.T) {
	repo := openTestDB(t)
	ctx := context.Background()
	owner := freshOwner("u")

	first := freshTx(owner, models.KindDeposit, models.StatusPending, 100, "DEP")
	require.NoError(t, repo.CreateTransaction(ctx, first))

	dup := freshTx(owner, models.KindDeposit, models.StatusPending, 100, "")
	dup.Reference = first.Reference
	assert.ErrorIs(t, repo.CreateTransaction(ctx, dup), ErrDuplicateReference)

	// rows without a reference never collide
	require.NoError(t, repo.CreateTransaction(ctx, freshTx(owner, models.KindHold, models.StatusPending, -5, "")))
	require.NoError(t, repo.CreateTransaction(ctx, freshTx(owner, models.KindHold, models.StatusPending, -5, "")))

	found, err := repo.GetByReference(ctx, *first.Reference)
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
}

func TestLedgerRepository_TransitionStatusOnce(t *testing.T) {
	repo := openTestDB(t)
	ctx := context.Background()
	owner := freshOwner("u")
	hold := freshTx(owner, models.KindHold, models.StatusPending, -500, "")
	require.NoError(t, repo.CreateTransaction(ctx, hold))

	now := time.Now()
	require.NoError(t, repo.TransitionStatus(ctx, StatusTransition{ID: hold.ID, From: models.StatusPending, To: models.StatusCompleted, At: now, ExternalID: "ext-1"}))
	err := repo.TransitionStatus(ctx, StatusTransition{ID: hold.ID, From: models.StatusPending, To: models.StatusCancelled, At: now})
	assert.ErrorIs(t, err, ErrStatusConflict)

	stored, err := repo.GetTransaction(ctx, hold.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)
	require.NotNil(t, stored.ResolvedAt)
	require.NotNil(t, stored.ExternalID)
	assert.Equal(t, "ext-1", *stored.ExternalID)
}

func TestLedgerRepository_ListAndSum(t *testing.T) {
	repo := openTestDB(t)
	ctx := context.Background()
	owner := freshOwner("u")
	other := freshOwner("u")

	rows := []*models.Transaction{
		freshTx(owner, models.KindDeposit, models.StatusCompleted, 1000, "DEP"),
		freshTx(owner, models.KindDeposit, models.StatusPending, 700, "DEP"),
		freshTx(owner, models.KindHold, models.StatusCompleted, -400, ""),
		freshTx(owner, models.KindSettlementDebit, models.StatusCompleted, -400, ""),
		freshTx(owner, models.KindSettlementCredit, models.StatusCompleted, 250, "SET"),
		freshTx(owner, models.KindSettlementCredit, models.StatusPending, 90, "SET"),
		freshTx(other, models.KindDeposit, models.StatusCompleted, 9999, "DEP"),
	}
	for i, row := range rows {
		row.CreatedAt = time.Now().Add(time.Duration(i-len(rows)) * time.Minute)
		require.NoError(t, repo.CreateTransaction(ctx, row))
	}

	all, total, err := repo.ListTransactions(ctx, owner, TransactionFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(6), total)
	assert.Equal(t, rows[5].ID, all[0].ID, "newest first")

	deposits, total, err := repo.ListTransactions(ctx, owner, TransactionFilter{Kind: models.KindDeposit, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, deposits, 1)

	sum, err := repo.SumBalanceEffects(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(1000-400+250), sum, "pending credits and settlement memos do not count")

	earned, err := repo.SumCompleted(ctx, owner, models.KindSettlementCredit)
	require.NoError(t, err)
	assert.Equal(t, int64(250), earned)
}
