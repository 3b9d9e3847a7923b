package repositories

import (
	"context"
	"fmt"
	"sync"
	"time"

	"medipay/internal/models"
)

// MemoryLedgerRepository keeps the ledger in process memory. Writes made
// inside ExecuteInTransaction are buffered and validated against the
// committed state under one lock at commit, so concurrent writers see the
// same ErrVersionConflict and ErrStatusConflict outcomes as with PostgreSQL.
type MemoryLedgerRepository struct {
	mu      sync.RWMutex
	wallets map[string]*models.Wallet
	byID    map[uint]*models.Wallet
	txs     map[string]*models.Transaction
	refs    map[string]string
	order   []string
	nextID  uint
}

func NewMemoryLedgerRepository() *MemoryLedgerRepository {
	return &MemoryLedgerRepository{
		wallets: make(map[string]*models.Wallet),
		byID:    make(map[uint]*models.Wallet),
		txs:     make(map[string]*models.Transaction),
		refs:    make(map[string]string),
	}
}

func (r *MemoryLedgerRepository) EnsureWallet(_ context.Context, owner models.OwnerRef) (*models.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.wallets[owner.Key()]; ok {
		c := *w
		return &c, nil
	}

	r.nextID++
	now := time.Now()
	w := models.NewWallet(owner)
	w.ID = r.nextID
	w.CreatedAt = now
	w.UpdatedAt = now
	r.wallets[owner.Key()] = w
	r.byID[w.ID] = w

	c := *w
	return &c, nil
}

func (r *MemoryLedgerRepository) GetWallet(_ context.Context, owner models.OwnerRef) (*models.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.wallets[owner.Key()]
	if !ok {
		return nil, ErrWalletNotFound
	}
	c := *w
	return &c, nil
}

func (r *MemoryLedgerRepository) UpdateBalance(ctx context.Context, walletID uint, expectedVersion, newBalance int64) error {
	return r.ExecuteInTransaction(ctx, func(tx LedgerRepository) error {
		return tx.UpdateBalance(ctx, walletID, expectedVersion, newBalance)
	})
}

func (r *MemoryLedgerRepository) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	return r.ExecuteInTransaction(ctx, func(repo LedgerRepository) error {
		return repo.CreateTransaction(ctx, tx)
	})
}

func (r *MemoryLedgerRepository) GetTransaction(_ context.Context, id string) (*models.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tx, ok := r.txs[id]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	return tx.Clone(), nil
}

func (r *MemoryLedgerRepository) GetByReference(_ context.Context, reference string) (*models.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.refs[reference]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	return r.txs[id].Clone(), nil
}

func (r *MemoryLedgerRepository) TransitionStatus(ctx context.Context, t StatusTransition) error {
	return r.ExecuteInTransaction(ctx, func(tx LedgerRepository) error {
		return tx.TransitionStatus(ctx, t)
	})
}

func (r *MemoryLedgerRepository) ListTransactions(_ context.Context, owner models.OwnerRef, filter TransactionFilter) ([]models.Transaction, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []models.Transaction
	for i := len(r.order) - 1; i >= 0; i-- {
		tx := r.txs[r.order[i]]
		if tx.OwnerType != owner.Type || tx.OwnerID != owner.ID {
			continue
		}
		if filter.Kind != "" && tx.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && tx.Status != filter.Status {
			continue
		}
		matched = append(matched, *tx.Clone())
	}

	total := int64(len(matched))
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []models.Transaction{}, total, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (r *MemoryLedgerRepository) ListStale(_ context.Context, kind, status string, before time.Time, limit int) ([]models.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stale []models.Transaction
	for _, id := range r.order {
		tx := r.txs[id]
		if tx.Kind != kind || tx.Status != status || !tx.CreatedAt.Before(before) {
			continue
		}
		stale = append(stale, *tx.Clone())
		if limit > 0 && len(stale) == limit {
			break
		}
	}
	return stale, nil
}

func (r *MemoryLedgerRepository) SumBalanceEffects(_ context.Context, owner models.OwnerRef) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total int64
	for _, tx := range r.txs {
		if tx.OwnerType == owner.Type && tx.OwnerID == owner.ID {
			total += tx.BalanceEffect()
		}
	}
	return total, nil
}

func (r *MemoryLedgerRepository) SumCompleted(_ context.Context, owner models.OwnerRef, kind string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total int64
	for _, tx := range r.txs {
		if tx.OwnerType == owner.Type && tx.OwnerID == owner.ID && tx.Kind == kind && tx.Status == models.StatusCompleted {
			total += tx.Amount
		}
	}
	return total, nil
}

func (r *MemoryLedgerRepository) ExecuteInTransaction(_ context.Context, fn func(LedgerRepository) error) error {
	tx := &memoryTx{
		base:     r,
		balances: make(map[uint]*balanceWrite),
		statuses: make(map[string]*statusWrite),
	}
	if err := fn(tx); err != nil {
		return err
	}
	return r.commit(tx)
}

func (r *MemoryLedgerRepository) commit(tx *memoryTx) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, bw := range tx.balances {
		w, ok := r.byID[id]
		if !ok {
			return ErrWalletNotFound
		}
		if w.Version != bw.baseVersion {
			return ErrVersionConflict
		}
	}
	for id, sw := range tx.statuses {
		stored, ok := r.txs[id]
		if !ok {
			return ErrTransactionNotFound
		}
		if stored.Status != sw.baseStatus {
			return ErrStatusConflict
		}
	}
	for _, ins := range tx.inserts {
		if _, ok := r.txs[ins.ID]; ok {
			return fmt.Errorf("transaction %s already exists", ins.ID)
		}
		if ref := ins.ReferenceValue(); ref != "" {
			if _, ok := r.refs[ref]; ok {
				return ErrDuplicateReference
			}
		}
	}

	now := time.Now()
	for id, bw := range tx.balances {
		w := r.byID[id]
		w.Balance = bw.balance
		w.Version = bw.version
		w.UpdatedAt = now
	}
	for id, sw := range tx.statuses {
		applyTransition(r.txs[id], sw.last)
	}
	for _, ins := range tx.inserts {
		r.txs[ins.ID] = ins
		r.order = append(r.order, ins.ID)
		if ref := ins.ReferenceValue(); ref != "" {
			r.refs[ref] = ins.ID
		}
	}
	return nil
}

type balanceWrite struct {
	baseVersion int64
	version     int64
	balance     int64
}

type statusWrite struct {
	baseStatus string
	last       StatusTransition
}

// memoryTx is the buffered view handed to ExecuteInTransaction callbacks.
// Reads see committed state overlaid with this transaction's own writes.
type memoryTx struct {
	base     *MemoryLedgerRepository
	balances map[uint]*balanceWrite
	statuses map[string]*statusWrite
	inserts  []*models.Transaction
}

func (t *memoryTx) EnsureWallet(ctx context.Context, owner models.OwnerRef) (*models.Wallet, error) {
	w, err := t.base.EnsureWallet(ctx, owner)
	if err != nil {
		return nil, err
	}
	t.overlayWallet(w)
	return w, nil
}

func (t *memoryTx) GetWallet(ctx context.Context, owner models.OwnerRef) (*models.Wallet, error) {
	w, err := t.base.GetWallet(ctx, owner)
	if err != nil {
		return nil, err
	}
	t.overlayWallet(w)
	return w, nil
}

func (t *memoryTx) overlayWallet(w *models.Wallet) {
	if bw, ok := t.balances[w.ID]; ok {
		w.Balance = bw.balance
		w.Version = bw.version
	}
}

func (t *memoryTx) UpdateBalance(_ context.Context, walletID uint, expectedVersion, newBalance int64) error {
	if newBalance < 0 {
		return fmt.Errorf("wallet %d: balance check violated", walletID)
	}

	bw, ok := t.balances[walletID]
	if !ok {
		t.base.mu.RLock()
		w, found := t.base.byID[walletID]
		var current int64
		if found {
			current = w.Version
		}
		t.base.mu.RUnlock()
		if !found {
			return ErrWalletNotFound
		}
		if current != expectedVersion {
			return ErrVersionConflict
		}
		bw = &balanceWrite{baseVersion: current, version: current}
		t.balances[walletID] = bw
	} else if bw.version != expectedVersion {
		return ErrVersionConflict
	}

	bw.version = expectedVersion + 1
	bw.balance = newBalance
	return nil
}

func (t *memoryTx) CreateTransaction(_ context.Context, tx *models.Transaction) error {
	ref := tx.ReferenceValue()
	if ref != "" {
		t.base.mu.RLock()
		_, taken := t.base.refs[ref]
		t.base.mu.RUnlock()
		if taken {
			return ErrDuplicateReference
		}
		for _, ins := range t.inserts {
			if ins.ReferenceValue() == ref {
				return ErrDuplicateReference
			}
		}
	}
	t.inserts = append(t.inserts, tx.Clone())
	return nil
}

func (t *memoryTx) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	for _, ins := range t.inserts {
		if ins.ID == id {
			return ins.Clone(), nil
		}
	}
	tx, err := t.base.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if sw, ok := t.statuses[id]; ok {
		applyTransition(tx, sw.last)
	}
	return tx, nil
}

func (t *memoryTx) GetByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	for _, ins := range t.inserts {
		if ins.ReferenceValue() == reference {
			return ins.Clone(), nil
		}
	}
	tx, err := t.base.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if sw, ok := t.statuses[tx.ID]; ok {
		applyTransition(tx, sw.last)
	}
	return tx, nil
}

func (t *memoryTx) TransitionStatus(ctx context.Context, st StatusTransition) error {
	for _, ins := range t.inserts {
		if ins.ID == st.ID {
			if ins.Status != st.From {
				return ErrStatusConflict
			}
			applyTransition(ins, st)
			return nil
		}
	}

	if sw, ok := t.statuses[st.ID]; ok {
		if sw.last.To != st.From {
			return ErrStatusConflict
		}
		sw.last = st
		return nil
	}

	stored, err := t.base.GetTransaction(ctx, st.ID)
	if err != nil {
		return ErrStatusConflict
	}
	if stored.Status != st.From {
		return ErrStatusConflict
	}
	t.statuses[st.ID] = &statusWrite{baseStatus: stored.Status, last: st}
	return nil
}

func (t *memoryTx) ListTransactions(ctx context.Context, owner models.OwnerRef, filter TransactionFilter) ([]models.Transaction, int64, error) {
	return t.base.ListTransactions(ctx, owner, filter)
}

func (t *memoryTx) ListStale(ctx context.Context, kind, status string, before time.Time, limit int) ([]models.Transaction, error) {
	return t.base.ListStale(ctx, kind, status, before, limit)
}

func (t *memoryTx) SumBalanceEffects(ctx context.Context, owner models.OwnerRef) (int64, error) {
	return t.base.SumBalanceEffects(ctx, owner)
}

func (t *memoryTx) SumCompleted(ctx context.Context, owner models.OwnerRef, kind string) (int64, error) {
	return t.base.SumCompleted(ctx, owner, kind)
}

func (t *memoryTx) ExecuteInTransaction(_ context.Context, fn func(LedgerRepository) error) error {
	return fn(t)
}

func applyTransition(tx *models.Transaction, st StatusTransition) {
	tx.Status = st.To
	at := st.At
	tx.ResolvedAt = &at
	tx.UpdatedAt = at
	if st.ExternalID != "" {
		ext := st.ExternalID
		tx.ExternalID = &ext
	}
}
