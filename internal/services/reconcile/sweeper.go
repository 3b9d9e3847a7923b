package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"medipay/internal/config"
	"medipay/internal/models"
	"medipay/internal/services/ledger"
	"medipay/internal/services/settlement"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// ErrSweepRunning is returned by RunOnce while another sweep is in progress.
var ErrSweepRunning = errors.New("sweep already running")

// StaleLister finds pending rows older than a cutoff.
type StaleLister interface {
	ListStale(ctx context.Context, kind, status string, before time.Time, limit int) ([]models.Transaction, error)
}

type HoldCanceller interface {
	CancelHold(ctx context.Context, holdID string) (*settlement.Cancellation, error)
}

type DepositExpirer interface {
	ExpireDeposit(ctx context.Context, reference string) (*models.Transaction, error)
}

type WithdrawalExpirer interface {
	ExpireWithdrawal(ctx context.Context, reference string) (*ledger.Resolution, error)
}

// Report summarises one sweep.
type Report struct {
	StartedAt         time.Time     `json:"started_at"`
	Duration          time.Duration `json:"duration"`
	HoldsCancelled    int           `json:"holds_cancelled"`
	DepositsFailed    int           `json:"deposits_failed"`
	WithdrawalsFailed int           `json:"withdrawals_failed"`
	AlreadyResolved   int           `json:"already_resolved"`
	Errors            []string      `json:"errors,omitempty"`
}

// Sweeper force-resolves pending holds, deposits and withdrawals that have
// been waiting longer than their TTL. A zero TTL disables that kind.
type Sweeper struct {
	cfg         config.SweeperConfig
	ledger      StaleLister
	holds       HoldCanceller
	deposits    DepositExpirer
	withdrawals WithdrawalExpirer

	cron    *cron.Cron
	running sync.Mutex
	now     func() time.Time
}

func NewSweeper(cfg config.SweeperConfig, l StaleLister, holds HoldCanceller, deposits DepositExpirer, withdrawals WithdrawalExpirer) *Sweeper {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Sweeper{
		cfg:         cfg,
		ledger:      l,
		holds:       holds,
		deposits:    deposits,
		withdrawals: withdrawals,
		now:         time.Now,
	}
}

// Start schedules the sweep on cfg.Schedule.
func (s *Sweeper) Start() error {
	c := cron.New()
	_, err := c.AddFunc(s.cfg.Schedule, func() {
		report, err := s.RunOnce(context.Background())
		if err != nil {
			if !errors.Is(err, ErrSweepRunning) {
				log.Error().Err(err).Msg("scheduled sweep failed")
			}
			return
		}
		if report.HoldsCancelled+report.DepositsFailed+report.WithdrawalsFailed > 0 || len(report.Errors) > 0 {
			log.Info().
				Int("holds_cancelled", report.HoldsCancelled).
				Int("deposits_failed", report.DepositsFailed).
				Int("withdrawals_failed", report.WithdrawalsFailed).
				Int("errors", len(report.Errors)).
				Dur("duration", report.Duration).
				Msg("sweep completed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.cfg.Schedule, err)
	}

	s.cron = c
	c.Start()
	log.Info().Str("schedule", s.cfg.Schedule).Msg("sweeper started")
	return nil
}

// Stop unschedules the sweep and waits for a running one to finish or ctx
// to expire.
func (s *Sweeper) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	log.Info().Msg("sweeper stopped")
}

// RunOnce performs one sweep over every kind with a TTL.
func (s *Sweeper) RunOnce(ctx context.Context) (*Report, error) {
	if !s.running.TryLock() {
		return nil, ErrSweepRunning
	}
	defer s.running.Unlock()

	now := s.now()
	report := &Report{StartedAt: now}

	if s.cfg.HoldTTL > 0 {
		s.sweep(ctx, report, models.KindHold, now.Add(-s.cfg.HoldTTL), func(tx models.Transaction) error {
			_, err := s.holds.CancelHold(ctx, tx.ID)
			if err == nil {
				report.HoldsCancelled++
			}
			return err
		})
	}
	if s.cfg.DepositTTL > 0 {
		s.sweep(ctx, report, models.KindDeposit, now.Add(-s.cfg.DepositTTL), func(tx models.Transaction) error {
			_, err := s.deposits.ExpireDeposit(ctx, tx.ReferenceValue())
			if err == nil {
				report.DepositsFailed++
			}
			return err
		})
	}
	if s.cfg.WithdrawalTTL > 0 {
		s.sweep(ctx, report, models.KindWithdrawal, now.Add(-s.cfg.WithdrawalTTL), func(tx models.Transaction) error {
			_, err := s.withdrawals.ExpireWithdrawal(ctx, tx.ReferenceValue())
			if err == nil {
				report.WithdrawalsFailed++
			}
			return err
		})
	}

	report.Duration = time.Since(report.StartedAt)
	return report, ctx.Err()
}

func (s *Sweeper) sweep(ctx context.Context, report *Report, kind string, before time.Time, resolve func(models.Transaction) error) {
	stale, err := s.ledger.ListStale(ctx, kind, models.StatusPending, before, s.cfg.BatchSize)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("list %s: %v", kind, err))
		return
	}

	for _, tx := range stale {
		if ctx.Err() != nil {
			return
		}
		err := resolve(tx)
		switch {
		case err == nil:
		case errors.Is(err, ledger.ErrAlreadyResolved), errors.Is(err, ledger.ErrHoldAlreadyResolved):
			report.AlreadyResolved++
		default:
			log.Warn().Err(err).Str("tx_id", tx.ID).Str("kind", kind).Msg("failed to resolve stale transaction")
			report.Errors = append(report.Errors, fmt.Sprintf("%s %s: %v", kind, tx.ID, err))
		}
	}
}
