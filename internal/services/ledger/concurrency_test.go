package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"medipay/internal/models"
	"medipay/internal/repositories"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentHolds_OnlyOneFits(t *testing.T) {
	svc, _ := newTestService(t)
	concurrentHoldsOnlyOneFits(t, svc, patient)
}

func TestConcurrentDeltas_ConserveMoney(t *testing.T) {
	repo := repositories.NewMemoryLedgerRepository()
	svc := NewService(repo, nil, nil, Config{MaxRetries: 50, RetryDelay: time.Millisecond}, nil)
	concurrentDeltasConserveMoney(t, svc, patient)
}

func TestConcurrentResolve_SingleWinner(t *testing.T) {
	svc, _ := newTestService(t)
	concurrentResolveSingleWinner(t, svc, patient, doctor)
}

func concurrentHoldsOnlyOneFits(t *testing.T, svc Service, patient models.OwnerRef) {
	t.Helper()
	ctx := context.Background()
	fund(t, svc, patient, 20000)

	var wg sync.WaitGroup
	results := make([]error, 2)
	start := make(chan struct{})
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, results[i] = svc.ApplyDelta(ctx, DeltaRequest{Owner: patient, Amount: -15000, Kind: models.KindHold})
		}(i)
	}
	close(start)
	wg.Wait()

	var succeeded, insufficient int
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrInsufficientFunds):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, insufficient)

	balance, err := svc.GetBalance(ctx, patient)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), balance)
	assertConsistent(t, svc, patient)
}

func concurrentDeltasConserveMoney(t *testing.T, svc Service, patient models.OwnerRef) {
	t.Helper()
	ctx := context.Background()
	fund(t, svc, patient, 10000)

	const workers = 20
	var (
		wg      sync.WaitGroup
		applied atomic.Int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			amount := int64(-1000)
			if i%2 == 0 {
				amount = 700
			}
			tx, err := svc.ApplyDelta(ctx, DeltaRequest{Owner: patient, Amount: amount, Kind: kindFor(amount)})
			switch {
			case err == nil:
				applied.Add(tx.Amount)
			case errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrConflict):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	balance, err := svc.GetBalance(ctx, patient)
	require.NoError(t, err)
	assert.Equal(t, 10000+applied.Load(), balance)
	assert.GreaterOrEqual(t, balance, int64(0))
	assertConsistent(t, svc, patient)
}

func concurrentResolveSingleWinner(t *testing.T, svc Service, patient, doctor models.OwnerRef) {
	t.Helper()
	ctx := context.Background()
	fund(t, svc, patient, 5000)
	hold, err := svc.ApplyDelta(ctx, DeltaRequest{Owner: patient, Amount: -5000, Kind: models.KindHold})
	require.NoError(t, err)

	settle := ResolveRequest{
		ID: hold.ID, Kind: models.KindHold, To: models.StatusCompleted,
		FollowUps: func(orig *models.Transaction) ([]DeltaRequest, error) {
			return []DeltaRequest{{Owner: doctor, Amount: -orig.Amount, Kind: models.KindSettlementCredit, Reference: "SETTLE_" + orig.ID}}, nil
		},
	}
	cancel := ResolveRequest{
		ID: hold.ID, Kind: models.KindHold, To: models.StatusCancelled,
		FollowUps: func(orig *models.Transaction) ([]DeltaRequest, error) {
			return []DeltaRequest{{Owner: orig.Owner(), Amount: -orig.Amount, Kind: models.KindRefund, Reference: "REFUND_" + orig.ID}}, nil
		},
	}

	const attempts = 10
	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		req := settle
		if i%2 == 1 {
			req = cancel
		}
		wg.Add(1)
		go func(req ResolveRequest) {
			defer wg.Done()
			<-start
			_, err := svc.Resolve(ctx, req)
			if err == nil {
				wins.Add(1)
				return
			}
			if !errors.Is(err, ErrAlreadyResolved) {
				t.Errorf("unexpected error: %v", err)
			}
		}(req)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())

	patientBalance, _ := svc.GetBalance(ctx, patient)
	doctorBalance, _ := svc.GetBalance(ctx, doctor)
	assert.Equal(t, int64(5000), patientBalance+doctorBalance, "the held amount lands in exactly one wallet")
	assertConsistent(t, svc, patient)
	assertConsistent(t, svc, doctor)
}

func kindFor(amount int64) string {
	if amount < 0 {
		return models.KindHold
	}
	return models.KindRefund
}
