package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"medipay/internal/events"
	"medipay/internal/models"
	"medipay/internal/repositories"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type service struct {
	repo      repositories.LedgerRepository
	cache     BalanceCache
	publisher events.Publisher
	config    Config
	metrics   MetricsCollector
	now       func() time.Time
}

// NewService creates a new ledger service
func NewService(
	repo repositories.LedgerRepository,
	cache BalanceCache,
	publisher events.Publisher,
	config Config,
	metrics MetricsCollector,
) Service {
	if repo == nil {
		panic("repo is required")
	}

	if config.MaxRetries == 0 {
		config.MaxRetries = DefaultMaxRetries
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.RetryDelay < 0 {
		config.RetryDelay = 0
	}

	// Cache, publisher and metrics are optional
	if cache == nil {
		cache = noopCache{}
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if metrics == nil {
		metrics = &NoopMetricsCollector{}
	}

	return &service{
		repo:      repo,
		cache:     cache,
		publisher: publisher,
		config:    config,
		metrics:   metrics,
		now:       time.Now,
	}
}

func (s *service) ApplyDelta(ctx context.Context, req DeltaRequest) (*models.Transaction, error) {
	start := time.Now()
	defer func() { s.metrics.RecordOperationDuration(OpApplyDelta, time.Since(start)) }()

	if err := validateDelta(req); err != nil {
		return nil, s.fail(OpApplyDelta, err)
	}
	if _, err := s.repo.EnsureWallet(ctx, req.Owner); err != nil {
		return nil, s.fail(OpApplyDelta, fmt.Errorf("failed to ensure wallet: %w", err))
	}

	var row *models.Transaction
	var states []walletState
	err := s.withRetry(ctx, OpApplyDelta, func(tx repositories.LedgerRepository) error {
		row = s.newRow(req, s.now())
		states = nil
		if effect := row.BalanceEffect(); effect != 0 {
			state, err := applyBalance(ctx, tx, row.Owner(), effect)
			if err != nil {
				return err
			}
			states = append(states, state)
		}
		return insertRow(ctx, tx, row)
	})
	if err != nil {
		return nil, s.fail(OpApplyDelta, err)
	}

	s.metrics.RecordOperationResult(OpApplyDelta, "success")
	s.afterCommit(ctx, []*models.Transaction{row}, states)

	log.Info().
		Str("tx_id", row.ID).
		Str("owner", row.Owner().Key()).
		Str("kind", row.Kind).
		Str("status", row.Status).
		Int64("amount", row.Amount).
		Msg("ledger delta applied")
	return row, nil
}

func (s *service) RecordPending(ctx context.Context, req DeltaRequest) (*models.Transaction, error) {
	req.Status = models.StatusPending
	probe := models.Transaction{Kind: req.Kind, Status: req.Status, Amount: req.Amount}
	if probe.BalanceEffect() != 0 {
		return nil, s.fail(OpApplyDelta, fmt.Errorf("%w: pending %s moves a balance", ErrInvalidKind, req.Kind))
	}
	return s.ApplyDelta(ctx, req)
}

func (s *service) Resolve(ctx context.Context, req ResolveRequest) (*Resolution, error) {
	start := time.Now()
	defer func() { s.metrics.RecordOperationDuration(OpResolve, time.Since(start)) }()

	if err := validateResolve(req); err != nil {
		return nil, s.fail(OpResolve, err)
	}

	orig, err := s.lookup(ctx, req.ID, req.Reference)
	if err != nil {
		return nil, s.fail(OpResolve, err)
	}
	if orig.Kind != req.Kind {
		return nil, s.fail(OpResolve, ErrNotFound)
	}
	if !orig.IsPending() {
		return nil, s.fail(OpResolve, ErrAlreadyResolved)
	}

	var followUps []DeltaRequest
	if req.FollowUps != nil {
		if followUps, err = req.FollowUps(orig); err != nil {
			return nil, s.fail(OpResolve, err)
		}
	}
	for i := range followUps {
		if followUps[i].ParentID == "" {
			followUps[i].ParentID = orig.ID
		}
		if err := validateDelta(followUps[i]); err != nil {
			return nil, s.fail(OpResolve, err)
		}
		if _, err := s.repo.EnsureWallet(ctx, followUps[i].Owner); err != nil {
			return nil, s.fail(OpResolve, fmt.Errorf("failed to ensure wallet: %w", err))
		}
	}

	var res *Resolution
	var states []walletState
	err = s.withRetry(ctx, OpResolve, func(tx repositories.LedgerRepository) error {
		now := s.now()
		err := tx.TransitionStatus(ctx, repositories.StatusTransition{
			ID:         orig.ID,
			From:       models.StatusPending,
			To:         req.To,
			ExternalID: req.ExternalID,
			At:         now,
		})
		if err != nil {
			if errors.Is(err, repositories.ErrStatusConflict) {
				return ErrAlreadyResolved
			}
			return err
		}

		resolved := orig.Clone()
		resolved.Status = req.To
		resolved.ResolvedAt = &now
		resolved.UpdatedAt = now
		if req.ExternalID != "" {
			resolved.ExternalID = models.StringPtr(req.ExternalID)
		}

		deltas := newDeltaSet()
		deltas.add(orig.Owner(), resolved.BalanceEffect()-orig.BalanceEffect())

		rows := make([]*models.Transaction, 0, len(followUps))
		for _, fu := range followUps {
			row := s.newRow(fu, now)
			deltas.add(row.Owner(), row.BalanceEffect())
			rows = append(rows, row)
		}

		changed := deltas.nonZero()
		if len(changed) > 1 {
			return ErrMultipleWallets
		}
		states = nil
		for _, owner := range changed {
			state, err := applyBalance(ctx, tx, owner, deltas.amounts[owner.Key()])
			if err != nil {
				return err
			}
			states = append(states, state)
		}
		for _, row := range rows {
			if err := insertRow(ctx, tx, row); err != nil {
				return err
			}
		}

		res = &Resolution{Transaction: resolved, FollowUps: rows}
		return nil
	})
	if err != nil {
		return nil, s.fail(OpResolve, err)
	}

	s.metrics.RecordOperationResult(OpResolve, "success")
	committed := append([]*models.Transaction{res.Transaction}, res.FollowUps...)
	s.afterCommit(ctx, committed, states)

	log.Info().
		Str("tx_id", res.Transaction.ID).
		Str("kind", res.Transaction.Kind).
		Str("status", res.Transaction.Status).
		Int("follow_ups", len(res.FollowUps)).
		Msg("ledger transaction resolved")
	return res, nil
}

func (s *service) GetBalance(ctx context.Context, owner models.OwnerRef) (int64, error) {
	if err := owner.Validate(); err != nil {
		return 0, err
	}

	key := owner.Key()
	if balance, found, err := s.cache.GetBalance(ctx, owner); err == nil && found {
		s.metrics.RecordCacheHit(key)
		return balance, nil
	} else if err != nil {
		log.Warn().Err(err).Str("owner", key).Msg("balance cache read failed")
	}
	s.metrics.RecordCacheMiss(key)

	wallet, err := s.repo.GetWallet(ctx, owner)
	if err != nil {
		if errors.Is(err, repositories.ErrWalletNotFound) {
			return 0, nil
		}
		return 0, s.fail(OpGetBalance, fmt.Errorf("failed to get wallet: %w", err))
	}

	// the cache keeps the newer version if a commit raced this read
	if err := s.cache.CacheBalance(ctx, owner, wallet.Balance, wallet.Version); err != nil {
		log.Warn().Err(err).Str("owner", key).Msg("balance cache write failed")
	}
	return wallet.Balance, nil
}

func (s *service) ListTransactions(ctx context.Context, owner models.OwnerRef, filter repositories.TransactionFilter) ([]models.Transaction, int64, error) {
	if err := owner.Validate(); err != nil {
		return nil, 0, err
	}
	if filter.Kind != "" && !models.IsKnownKind(filter.Kind) {
		return nil, 0, fmt.Errorf("%w: %q", ErrInvalidKind, filter.Kind)
	}
	if filter.Status != "" && !models.IsKnownStatus(filter.Status) {
		return nil, 0, fmt.Errorf("%w: %q", ErrInvalidStatus, filter.Status)
	}
	return s.repo.ListTransactions(ctx, owner, filter)
}

func (s *service) TotalEarnings(ctx context.Context, owner models.OwnerRef) (int64, error) {
	if err := owner.Validate(); err != nil {
		return 0, err
	}
	return s.repo.SumCompleted(ctx, owner, models.KindSettlementCredit)
}

func (s *service) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	return s.lookup(ctx, id, "")
}

func (s *service) GetByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	return s.lookup(ctx, "", reference)
}

func (s *service) VerifyWallet(ctx context.Context, owner models.OwnerRef) (*Verification, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}

	v := &Verification{Owner: owner}
	wallet, err := s.repo.GetWallet(ctx, owner)
	switch {
	case err == nil:
		v.Balance = wallet.Balance
		v.Version = wallet.Version
	case errors.Is(err, repositories.ErrWalletNotFound):
	default:
		return nil, s.fail(OpVerifyWallet, fmt.Errorf("failed to get wallet: %w", err))
	}

	if v.Computed, err = s.repo.SumBalanceEffects(ctx, owner); err != nil {
		return nil, s.fail(OpVerifyWallet, err)
	}
	v.Consistent = v.Balance == v.Computed
	if !v.Consistent {
		log.Error().
			Str("owner", owner.Key()).
			Int64("balance", v.Balance).
			Int64("computed", v.Computed).
			Msg("wallet balance does not match ledger rows")
	}
	return v, nil
}

func (s *service) ListStale(ctx context.Context, kind, status string, before time.Time, limit int) ([]models.Transaction, error) {
	return s.repo.ListStale(ctx, kind, status, before, limit)
}

func (s *service) lookup(ctx context.Context, id, reference string) (*models.Transaction, error) {
	var (
		tx  *models.Transaction
		err error
	)
	switch {
	case id != "":
		tx, err = s.repo.GetTransaction(ctx, id)
	case reference != "":
		tx, err = s.repo.GetByReference(ctx, reference)
	default:
		return nil, ErrNotFound
	}
	if err != nil {
		if errors.Is(err, repositories.ErrTransactionNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return tx, nil
}

// withRetry runs fn in a database transaction, repeating it when the wallet
// version moved underneath it.
func (s *service) withRetry(ctx context.Context, operation string, fn func(repositories.LedgerRepository) error) error {
	var lastErr error
	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		if attempt > 0 {
			s.metrics.RecordRetry(operation)
			if err := s.backoff(ctx, attempt); err != nil {
				return err
			}
		}

		err := s.repo.ExecuteInTransaction(ctx, fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repositories.ErrVersionConflict) {
			return translateCommitError(err)
		}
		lastErr = err
	}

	log.Warn().Str("operation", operation).Int("attempts", s.config.MaxRetries+1).Msg("giving up after version conflicts")
	return fmt.Errorf("%w: %s after %d attempts: %v", ErrConflict, operation, s.config.MaxRetries+1, lastErr)
}

func (s *service) backoff(ctx context.Context, attempt int) error {
	if s.config.RetryDelay <= 0 {
		return ctx.Err()
	}
	delay := s.config.RetryDelay*time.Duration(attempt) + time.Duration(rand.Int63n(int64(s.config.RetryDelay)))
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *service) newRow(req DeltaRequest, now time.Time) *models.Transaction {
	status := req.Status
	if status == "" {
		status = models.DefaultStatus(req.Kind)
	}
	row := &models.Transaction{
		ID:            uuid.NewString(),
		OwnerType:     req.Owner.Type,
		OwnerID:       req.Owner.ID,
		Kind:          req.Kind,
		Amount:        req.Amount,
		Status:        status,
		Reference:     models.StringPtr(req.Reference),
		ParentID:      models.StringPtr(req.ParentID),
		RelatedEntity: req.RelatedEntity,
		Operator:      req.Operator,
		Description:   req.Description,
		Metadata:      req.Metadata,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.Counterparty != nil {
		row.CounterpartyType = req.Counterparty.Type
		row.CounterpartyID = req.Counterparty.ID
	}
	if status != models.StatusPending {
		row.ResolvedAt = &now
	}
	return row
}

// walletState is a balance as committed, with the version it was written at.
type walletState struct {
	owner   models.OwnerRef
	balance int64
	version int64
}

// afterCommit runs the side effects of a committed change. None of them can
// fail the call.
func (s *service) afterCommit(ctx context.Context, rows []*models.Transaction, states []walletState) {
	for _, st := range states {
		err := s.cache.CacheBalance(ctx, st.owner, st.balance, st.version)
		if err == nil {
			continue
		}
		log.Warn().Err(err).Str("owner", st.owner.Key()).Msg("failed to cache committed balance")
		if err := s.cache.InvalidateBalance(ctx, st.owner); err != nil {
			log.Warn().Err(err).Str("owner", st.owner.Key()).Msg("failed to invalidate balance cache")
		}
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	for _, row := range rows {
		s.metrics.RecordTransaction(row.Kind, row.Amount)
		ev := events.NewLedgerEvent(uuid.NewString(), row, s.now())
		if err := s.publisher.Publish(pubCtx, ev.RoutingKey(), ev); err != nil {
			log.Warn().Err(err).Str("tx_id", row.ID).Msg("failed to publish ledger event")
		}
	}
}

func (s *service) fail(operation string, err error) error {
	s.metrics.RecordError(operation, errorType(err))
	s.metrics.RecordOperationResult(operation, "failure")
	return err
}

func applyBalance(ctx context.Context, tx repositories.LedgerRepository, owner models.OwnerRef, delta int64) (walletState, error) {
	wallet, err := tx.GetWallet(ctx, owner)
	if errors.Is(err, repositories.ErrWalletNotFound) {
		wallet, err = tx.EnsureWallet(ctx, owner)
	}
	if err != nil {
		return walletState{}, fmt.Errorf("failed to get wallet: %w", err)
	}

	if delta > 0 && wallet.Balance > math.MaxInt64-delta {
		return walletState{}, ErrAmountTooLarge
	}
	newBalance := wallet.Balance + delta
	if newBalance < 0 {
		return walletState{}, ErrInsufficientFunds
	}
	if err := tx.UpdateBalance(ctx, wallet.ID, wallet.Version, newBalance); err != nil {
		return walletState{}, err
	}
	return walletState{owner: owner, balance: newBalance, version: wallet.Version + 1}, nil
}

// translateCommitError maps conflicts that a store reports at commit time
// rather than from the individual statement.
func translateCommitError(err error) error {
	switch {
	case errors.Is(err, repositories.ErrStatusConflict):
		return ErrAlreadyResolved
	case errors.Is(err, repositories.ErrDuplicateReference) && !errors.Is(err, ErrDuplicateReference):
		return fmt.Errorf("%w: %v", ErrDuplicateReference, err)
	default:
		return err
	}
}

func insertRow(ctx context.Context, tx repositories.LedgerRepository, row *models.Transaction) error {
	if err := tx.CreateTransaction(ctx, row); err != nil {
		if errors.Is(err, repositories.ErrDuplicateReference) {
			return fmt.Errorf("%w: %s", ErrDuplicateReference, row.ReferenceValue())
		}
		return err
	}
	return nil
}

func validateDelta(req DeltaRequest) error {
	if err := req.Owner.Validate(); err != nil {
		return err
	}
	if !models.IsKnownKind(req.Kind) {
		return fmt.Errorf("%w: %q", ErrInvalidKind, req.Kind)
	}
	if req.Status != "" && !models.IsKnownStatus(req.Status) {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, req.Status)
	}
	if req.Amount == 0 {
		return ErrInvalidAmount
	}
	if req.Amount > MaxAmount || req.Amount < -MaxAmount {
		return ErrAmountTooLarge
	}
	return nil
}

func validateResolve(req ResolveRequest) error {
	if req.ID == "" && req.Reference == "" {
		return ErrNotFound
	}
	if !models.IsKnownKind(req.Kind) {
		return fmt.Errorf("%w: %q", ErrInvalidKind, req.Kind)
	}
	switch req.To {
	case models.StatusCompleted, models.StatusCancelled, models.StatusFailed:
		return nil
	default:
		return fmt.Errorf("%w: to %q", ErrInvalidTransition, req.To)
	}
}

// deltaSet accumulates balance changes per owner in insertion order.
type deltaSet struct {
	order   []models.OwnerRef
	amounts map[string]int64
}

func newDeltaSet() *deltaSet {
	return &deltaSet{amounts: make(map[string]int64)}
}

func (d *deltaSet) add(owner models.OwnerRef, amount int64) {
	key := owner.Key()
	if _, ok := d.amounts[key]; !ok {
		d.order = append(d.order, owner)
	}
	d.amounts[key] += amount
}

func (d *deltaSet) nonZero() []models.OwnerRef {
	var out []models.OwnerRef
	for _, owner := range d.order {
		if d.amounts[owner.Key()] != 0 {
			out = append(out, owner)
		}
	}
	return out
}
