// Package audit keeps an append-only copy of every ledger event outside the
// ledger database.
package audit

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
)

const Collection = "ledger_audit"

// AuditLog is the document stored per ledger event. The event ID is the
// document ID so a redelivered message is stored once.
type AuditLog struct {
	ID            string    `bson:"_id"`
	RoutingKey    string    `bson:"routing_key"`
	TransactionID string    `bson:"transaction_id"`
	OwnerType     string    `bson:"owner_type"`
	OwnerID       string    `bson:"owner_id"`
	Kind          string    `bson:"kind"`
	Status        string    `bson:"status"`
	Amount        int64     `bson:"amount"`
	Reference     string    `bson:"reference,omitempty"`
	ParentID      string    `bson:"parent_id,omitempty"`
	RelatedEntity string    `bson:"related_entity,omitempty"`
	Operator      string    `bson:"operator,omitempty"`
	OccurredAt    time.Time `bson:"occurred_at"`
	ProcessedAt   time.Time `bson:"processed_at"`
}

// Store persists audit documents.
type Store interface {
	Save(ctx context.Context, log AuditLog) error
}

type MongoStore struct {
	collection *mongo.Collection
}

func NewMongoStore(client *mongo.Client, dbName string) *MongoStore {
	return &MongoStore{collection: client.Database(dbName).Collection(Collection)}
}

func (s *MongoStore) Save(ctx context.Context, log AuditLog) error {
	if log.ProcessedAt.IsZero() {
		log.ProcessedAt = time.Now()
	}

	_, err := s.collection.InsertOne(ctx, log)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}
