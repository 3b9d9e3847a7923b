package models

import (
	"time"
)

// Transaction kinds
const (
	KindDeposit          = "deposit"
	KindHold             = "hold"
	KindSettlementDebit  = "settlement-debit"
	KindSettlementCredit = "settlement-credit"
	KindRefund           = "refund"
	KindWithdrawal       = "withdrawal"
)

// Transaction statuses
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// Transaction is an immutable ledger record. Only Status, ResolvedAt and
// ExternalID change after insert, and Status only moves out of pending once.
type Transaction struct {
	ID               string     `gorm:"primarykey;size:36" json:"id"`
	OwnerType        string     `gorm:"size:32;not null;index:idx_tx_owner" json:"owner_type"`
	OwnerID          string     `gorm:"size:64;not null;index:idx_tx_owner" json:"owner_id"`
	Kind             string     `gorm:"size:32;not null;index:idx_tx_kind_status" json:"type"`
	Amount           int64      `gorm:"not null" json:"amount"`
	Status           string     `gorm:"size:16;not null;default:'pending';index:idx_tx_kind_status" json:"status"`
	Reference        *string    `gorm:"size:128;uniqueIndex:idx_tx_reference" json:"reference,omitempty"`
	ExternalID       *string    `gorm:"size:128" json:"external_id,omitempty"`
	ParentID         *string    `gorm:"size:36;index" json:"parent_id,omitempty"`
	RelatedEntity    string     `gorm:"size:128;index" json:"related_entity,omitempty"`
	CounterpartyType string     `gorm:"size:32" json:"counterparty_type,omitempty"`
	CounterpartyID   string     `gorm:"size:64" json:"counterparty_id,omitempty"`
	Operator         string     `gorm:"size:32" json:"operator,omitempty"`
	Description      string     `json:"description,omitempty"`
	Metadata         JSON       `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt        time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
}

// DefaultStatus is the status a freshly written transaction of the given kind
// starts in. Holds and withdrawals wait for an outcome; deposits are recorded
// pending without touching a balance.
func DefaultStatus(kind string) string {
	switch kind {
	case KindHold, KindWithdrawal, KindDeposit:
		return StatusPending
	default:
		return StatusCompleted
	}
}

func IsKnownKind(kind string) bool {
	switch kind {
	case KindDeposit, KindHold, KindSettlementDebit, KindSettlementCredit, KindRefund, KindWithdrawal:
		return true
	}
	return false
}

func IsKnownStatus(status string) bool {
	switch status {
	case StatusPending, StatusCompleted, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// AffectsBalance reports whether the row is reflected in the owner's wallet
// balance. A wallet balance always equals the sum of Amount over its rows for
// which this returns true.
func (t *Transaction) AffectsBalance() bool {
	switch t.Kind {
	case KindHold, KindWithdrawal:
		return true
	case KindDeposit, KindSettlementCredit, KindRefund:
		return t.Status == StatusCompleted
	default:
		// settlement-debit rows record the finalisation of a hold whose
		// debit already happened.
		return false
	}
}

// BalanceEffect is the signed amount this row contributes to the balance.
func (t *Transaction) BalanceEffect() int64 {
	if t.AffectsBalance() {
		return t.Amount
	}
	return 0
}

func (t *Transaction) IsPending() bool {
	return t.Status == StatusPending
}

func (t *Transaction) Owner() OwnerRef {
	return OwnerRef{Type: t.OwnerType, ID: t.OwnerID}
}

func (t *Transaction) Counterparty() (OwnerRef, bool) {
	if t.CounterpartyType == "" {
		return OwnerRef{}, false
	}
	return OwnerRef{Type: t.CounterpartyType, ID: t.CounterpartyID}, true
}

func (t *Transaction) ReferenceValue() string {
	if t.Reference == nil {
		return ""
	}
	return *t.Reference
}

// Clone returns a deep copy so in-memory stores never hand out shared rows.
func (t *Transaction) Clone() *Transaction {
	c := *t
	if t.Reference != nil {
		ref := *t.Reference
		c.Reference = &ref
	}
	if t.ExternalID != nil {
		ext := *t.ExternalID
		c.ExternalID = &ext
	}
	if t.ParentID != nil {
		p := *t.ParentID
		c.ParentID = &p
	}
	if t.ResolvedAt != nil {
		r := *t.ResolvedAt
		c.ResolvedAt = &r
	}
	if t.Metadata != nil {
		c.Metadata = make(JSON, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// StringPtr returns nil for the empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
