// Package events publishes ledger changes to the message broker once they are
// committed. Publishing is best effort: a broker outage never fails a ledger
// operation.
package events

import (
	"context"
	"fmt"
	"time"

	"medipay/internal/models"
)

const DefaultExchange = "ledger_events"

// LedgerEvent is the message body for every committed transaction change.
type LedgerEvent struct {
	EventID       string    `json:"event_id"`
	TransactionID string    `json:"transaction_id"`
	OwnerType     string    `json:"owner_type"`
	OwnerID       string    `json:"owner_id"`
	Kind          string    `json:"kind"`
	Status        string    `json:"status"`
	Amount        int64     `json:"amount"`
	Reference     string    `json:"reference,omitempty"`
	ParentID      string    `json:"parent_id,omitempty"`
	RelatedEntity string    `json:"related_entity,omitempty"`
	Operator      string    `json:"operator,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// RoutingKey is ledger.<kind>.<status>, e.g. ledger.hold.pending.
func (e LedgerEvent) RoutingKey() string {
	return fmt.Sprintf("ledger.%s.%s", e.Kind, e.Status)
}

// NewLedgerEvent snapshots a transaction as it was committed.
func NewLedgerEvent(eventID string, tx *models.Transaction, at time.Time) LedgerEvent {
	ev := LedgerEvent{
		EventID:       eventID,
		TransactionID: tx.ID,
		OwnerType:     tx.OwnerType,
		OwnerID:       tx.OwnerID,
		Kind:          tx.Kind,
		Status:        tx.Status,
		Amount:        tx.Amount,
		Reference:     tx.ReferenceValue(),
		RelatedEntity: tx.RelatedEntity,
		Operator:      tx.Operator,
		OccurredAt:    at,
	}
	if tx.ParentID != nil {
		ev.ParentID = *tx.ParentID
	}
	return ev
}

// Publisher sends an event body under a routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body interface{}) error
}

// NoopPublisher drops every event. It is used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, interface{}) error { return nil }
