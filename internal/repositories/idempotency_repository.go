package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const idempotencyPrefix = "idempotency:"

// CachedResponse is a replayable HTTP response stored under an Idempotency-Key.
type CachedResponse struct {
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
	// InFlight marks a reservation whose request has not finished yet.
	InFlight bool `json:"in_flight,omitempty"`
}

type IdempotencyRepository struct {
	client *redis.Client
}

func NewIdempotencyRepository(client *redis.Client) *IdempotencyRepository {
	return &IdempotencyRepository{client: client}
}

// Get returns nil without error on a cache miss.
func (r *IdempotencyRepository) Get(ctx context.Context, key string) (*CachedResponse, error) {
	val, err := r.client.Get(ctx, idempotencyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get idempotency key: %w", err)
	}

	var resp CachedResponse
	if err := json.Unmarshal(val, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached response: %w", err)
	}
	return &resp, nil
}

func (r *IdempotencyRepository) Save(ctx context.Context, key string, response CachedResponse, ttl time.Duration) error {
	data, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}
	return r.client.Set(ctx, idempotencyPrefix+key, data, ttl).Err()
}

// Reserve claims key for a request about to run. It returns false when the
// key already holds a reservation or a stored response.
func (r *IdempotencyRepository) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(CachedResponse{InFlight: true})
	if err != nil {
		return false, fmt.Errorf("failed to marshal reservation: %w", err)
	}
	ok, err := r.client.SetNX(ctx, idempotencyPrefix+key, data, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to reserve idempotency key: %w", err)
	}
	return ok, nil
}

// Release drops a reservation so the request can be retried.
func (r *IdempotencyRepository) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, idempotencyPrefix+key).Err()
}
