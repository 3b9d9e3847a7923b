package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"medipay/internal/config"
	"medipay/internal/models"
	"medipay/internal/repositories"
	"medipay/internal/services/deposit"
	"medipay/internal/services/hold"
	"medipay/internal/services/ledger"
	"medipay/internal/services/settlement"
	"medipay/internal/services/withdrawal"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	patient = models.UserOwner("patient-1")
	doctor  = models.ProfessionalOwner("doctor-1")
)

type fixture struct {
	ledger      ledger.Service
	holds       hold.Service
	settlement  settlement.Service
	deposits    deposit.Service
	withdrawals withdrawal.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	l := ledger.NewService(repositories.NewMemoryLedgerRepository(), nil, nil, ledger.Config{}, nil)
	reg, err := deposit.NewRegistry(nil)
	require.NoError(t, err)
	return &fixture{
		ledger:      l,
		holds:       hold.NewService(l),
		settlement:  settlement.NewService(l),
		deposits:    deposit.NewService(l, reg, nil),
		withdrawals: withdrawal.NewService(l),
	}
}

func (f *fixture) sweeper(cfg config.SweeperConfig, at time.Time) *Sweeper {
	s := NewSweeper(cfg, f.ledger, f.settlement, f.deposits, f.withdrawals)
	s.now = func() time.Time { return at }
	return s
}

func (f *fixture) balance(t *testing.T, owner models.OwnerRef) int64 {
	t.Helper()
	b, err := f.ledger.GetBalance(context.Background(), owner)
	require.NoError(t, err)
	return b
}

func TestRunOnce_ResolvesExpiredItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.ApplyDelta(ctx, ledger.DeltaRequest{Owner: patient, Amount: 10000, Kind: models.KindRefund})
	require.NoError(t, err)
	_, err = f.ledger.ApplyDelta(ctx, ledger.DeltaRequest{Owner: doctor, Amount: 8000, Kind: models.KindSettlementCredit})
	require.NoError(t, err)

	h, err := f.holds.CreateHold(ctx, patient, 4000, "appointment-1")
	require.NoError(t, err)
	dep, err := f.deposits.InitiateDeposit(ctx, patient, 5000, deposit.OperatorMoov, "+22890000000")
	require.NoError(t, err)
	w, err := f.withdrawals.RequestWithdrawal(ctx, doctor, 8000, "mtn-payouts", "+22891111111")
	require.NoError(t, err)

	s := f.sweeper(config.SweeperConfig{
		HoldTTL:       time.Hour,
		DepositTTL:    time.Hour,
		WithdrawalTTL: time.Hour,
	}, time.Now().Add(2*time.Hour))

	report, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.HoldsCancelled)
	assert.Equal(t, 1, report.DepositsFailed)
	assert.Equal(t, 1, report.WithdrawalsFailed)
	assert.Empty(t, report.Errors)

	assert.Equal(t, int64(10000), f.balance(t, patient))
	assert.Equal(t, int64(8000), f.balance(t, doctor))

	got, err := f.ledger.GetTransaction(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
	got, err = f.ledger.GetByReference(ctx, dep.Reference)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	got, err = f.ledger.GetTransaction(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)

	// nothing left to do on the next pass
	report, err = s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.HoldsCancelled+report.DepositsFailed+report.WithdrawalsFailed)
}

func TestRunOnce_ZeroTTLDisablesKind(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.ApplyDelta(ctx, ledger.DeltaRequest{Owner: patient, Amount: 1000, Kind: models.KindRefund})
	require.NoError(t, err)
	h, err := f.holds.CreateHold(ctx, patient, 1000, "appointment-1")
	require.NoError(t, err)

	s := f.sweeper(config.SweeperConfig{DepositTTL: time.Minute}, time.Now().Add(24*time.Hour))
	report, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.HoldsCancelled)

	got, err := f.holds.Get(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
}

func TestRunOnce_FreshItemsUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dep, err := f.deposits.InitiateDeposit(ctx, patient, 5000, deposit.OperatorMoov, "+22890000000")
	require.NoError(t, err)

	s := f.sweeper(config.SweeperConfig{DepositTTL: time.Hour}, time.Now())
	report, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.DepositsFailed)

	got, err := f.ledger.GetByReference(ctx, dep.Reference)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
}

type racingExpirer struct{}

func (racingExpirer) ExpireDeposit(context.Context, string) (*models.Transaction, error) {
	return nil, ledger.ErrAlreadyResolved
}

type brokenLister struct{}

func (brokenLister) ListStale(context.Context, string, string, time.Time, int) ([]models.Transaction, error) {
	return nil, errors.New("db down")
}

func TestRunOnce_SkipsItemsResolvedConcurrently(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.deposits.InitiateDeposit(ctx, patient, 5000, deposit.OperatorMoov, "+22890000000")
	require.NoError(t, err)

	s := NewSweeper(config.SweeperConfig{DepositTTL: time.Second}, f.ledger, f.settlement, racingExpirer{}, f.withdrawals)
	s.now = func() time.Time { return time.Now().Add(time.Minute) }

	report, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.AlreadyResolved)
	assert.Empty(t, report.Errors)
}

func TestRunOnce_ReportsListErrors(t *testing.T) {
	f := newFixture(t)
	s := NewSweeper(config.SweeperConfig{HoldTTL: time.Second}, brokenLister{}, f.settlement, f.deposits, f.withdrawals)

	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "db down")
}

func TestRunOnce_RejectsOverlap(t *testing.T) {
	f := newFixture(t)
	s := f.sweeper(config.SweeperConfig{}, time.Now())

	s.running.Lock()
	_, err := s.RunOnce(context.Background())
	s.running.Unlock()
	assert.ErrorIs(t, err, ErrSweepRunning)
}

func TestStart_InvalidSchedule(t *testing.T) {
	f := newFixture(t)
	s := f.sweeper(config.SweeperConfig{Schedule: "not a schedule"}, time.Now())
	assert.Error(t, s.Start())
}

func TestStartStop(t *testing.T) {
	f := newFixture(t)
	s := f.sweeper(config.SweeperConfig{Schedule: "@every 1h"}, time.Now())
	require.NoError(t, s.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
