package hold

import (
	"context"
	"testing"

	"medipay/internal/models"
	"medipay/internal/repositories"
	"medipay/internal/services/ledger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var patient = models.UserOwner("patient-1")

func setup(t *testing.T, initial int64) (Service, ledger.Service) {
	t.Helper()
	l := ledger.NewService(repositories.NewMemoryLedgerRepository(), nil, nil, ledger.Config{}, nil)
	if initial > 0 {
		_, err := l.ApplyDelta(context.Background(), ledger.DeltaRequest{Owner: patient, Amount: initial, Kind: models.KindRefund})
		require.NoError(t, err)
	}
	return NewService(l), l
}

func TestCreateHold(t *testing.T) {
	svc, _ := setup(t, 20000)
	ctx := context.Background()

	h, err := svc.CreateHold(ctx, patient, 5000, "appointment-42")
	require.NoError(t, err)
	assert.Equal(t, models.KindHold, h.Kind)
	assert.Equal(t, models.StatusPending, h.Status)
	assert.Equal(t, int64(-5000), h.Amount)
	assert.Equal(t, "appointment-42", h.RelatedEntity)

	available, err := svc.AvailableBalance(ctx, patient)
	require.NoError(t, err)
	assert.Equal(t, int64(15000), available)

	got, err := svc.Get(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, h.ID, got.ID)
}

func TestCreateHold_InsufficientFunds(t *testing.T) {
	svc, _ := setup(t, 1000)
	ctx := context.Background()

	_, err := svc.CreateHold(ctx, patient, 1001, "appointment-1")
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	available, err := svc.AvailableBalance(ctx, patient)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), available)
}

func TestCreateHold_RejectsNonPositiveAmount(t *testing.T) {
	svc, _ := setup(t, 1000)
	for _, amount := range []int64{0, -10} {
		_, err := svc.CreateHold(context.Background(), patient, amount, "x")
		assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
	}
}

func TestGet_NotAHold(t *testing.T) {
	svc, l := setup(t, 0)
	ctx := context.Background()

	refund, err := l.ApplyDelta(ctx, ledger.DeltaRequest{Owner: patient, Amount: 10, Kind: models.KindRefund})
	require.NoError(t, err)

	_, err = svc.Get(ctx, refund.ID)
	assert.ErrorIs(t, err, ledger.ErrHoldNotFound)

	_, err = svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, ledger.ErrHoldNotFound)
}
