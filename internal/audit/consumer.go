package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"medipay/internal/events"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// ErrMalformedEvent marks a message that can never be stored.
var ErrMalformedEvent = errors.New("malformed ledger event")

// ErrDeliveriesClosed is returned by Run when the broker closes the stream.
var ErrDeliveriesClosed = errors.New("delivery channel closed")

const defaultSaveTimeout = 5 * time.Second

// Consumer turns ledger events into audit documents.
type Consumer struct {
	store       Store
	saveTimeout time.Duration
	now         func() time.Time
}

func NewConsumer(store Store) *Consumer {
	return &Consumer{store: store, saveTimeout: defaultSaveTimeout, now: time.Now}
}

// HandleMessage decodes and stores one event body.
func (c *Consumer) HandleMessage(ctx context.Context, routingKey string, body []byte) error {
	var ev events.LedgerEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if ev.EventID == "" || ev.TransactionID == "" {
		return fmt.Errorf("%w: missing event or transaction id", ErrMalformedEvent)
	}

	saveCtx, cancel := context.WithTimeout(ctx, c.saveTimeout)
	defer cancel()
	return c.store.Save(saveCtx, AuditLog{
		ID:            ev.EventID,
		RoutingKey:    routingKey,
		TransactionID: ev.TransactionID,
		OwnerType:     ev.OwnerType,
		OwnerID:       ev.OwnerID,
		Kind:          ev.Kind,
		Status:        ev.Status,
		Amount:        ev.Amount,
		Reference:     ev.Reference,
		ParentID:      ev.ParentID,
		RelatedEntity: ev.RelatedEntity,
		Operator:      ev.Operator,
		OccurredAt:    ev.OccurredAt,
		ProcessedAt:   c.now(),
	})
}

// Handle stores a delivery and acknowledges it. Malformed messages are
// dropped; storage failures are requeued.
func (c *Consumer) Handle(ctx context.Context, d amqp.Delivery) {
	err := c.HandleMessage(ctx, d.RoutingKey, d.Body)
	switch {
	case err == nil:
		if err := d.Ack(false); err != nil {
			log.Error().Err(err).Msg("failed to ack delivery")
		}
	case errors.Is(err, ErrMalformedEvent):
		log.Warn().Err(err).Str("routing_key", d.RoutingKey).Msg("dropping malformed event")
		if err := d.Nack(false, false); err != nil {
			log.Error().Err(err).Msg("failed to nack delivery")
		}
	default:
		log.Error().Err(err).Str("routing_key", d.RoutingKey).Msg("failed to store audit log, requeueing")
		if err := d.Nack(false, true); err != nil {
			log.Error().Err(err).Msg("failed to nack delivery")
		}
	}
}

// Run handles deliveries until ctx is cancelled or the channel closes.
func (c *Consumer) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return ErrDeliveriesClosed
			}
			c.Handle(ctx, d)
		}
	}
}

// Subscribe declares the durable audit queue, binds it to every ledger event
// and starts a manual-ack consumer.
func Subscribe(ch *amqp.Channel, exchange, queue string) (<-chan amqp.Delivery, error) {
	// one unacknowledged message at a time
	if err := ch.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}

	q, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, "ledger.#", exchange, false, nil); err != nil {
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	msgs, err := ch.Consume(
		q.Name,         // queue
		"audit_worker", // consumer tag
		false,          // auto-ack
		false,          // exclusive
		false,          // no-local
		false,          // no-wait
		nil,            // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}
	return msgs, nil
}
