package middleware

import (
	"context"
	"time"

	"medipay/internal/repositories"
	"medipay/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	IdempotencyHitHeader = "X-Idempotency-Hit"
	idempotencyTTL       = 24 * time.Hour
	// reservations outlive any request but expire if the process dies mid-request
	idempotencyLockTTL = 30 * time.Second
)

// IdempotencyStore keeps responses by key.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*repositories.CachedResponse, error)
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Save(ctx context.Context, key string, resp repositories.CachedResponse, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

// Idempotency replays the stored response for a repeated Idempotency-Key.
// Keys are scoped to the caller so two owners cannot collide. A key is
// reserved before the handler runs, so a duplicate that arrives while the
// first request is still running gets 409 instead of running twice. Server
// errors and conflicts release the key so the client can retry them. A store
// outage lets the request through.
func Idempotency(store IdempotencyStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get(IdempotencyKeyHeader)
		if key == "" || store == nil {
			return c.Next()
		}

		scope := "anonymous"
		if claims, err := utils.GetUserClaims(c); err == nil {
			scope = claims.Role + ":" + claims.UserID
		}
		scopedKey := scope + ":" + c.Method() + ":" + c.Path() + ":" + key
		ctx := c.UserContext()

		cached, err := store.Get(ctx, scopedKey)
		if err != nil {
			log.Error().Err(err).Msg("failed to read idempotency key")
			return c.Next()
		}
		if cached != nil {
			return replay(c, key, cached)
		}

		reserved, err := store.Reserve(ctx, scopedKey, idempotencyLockTTL)
		if err != nil {
			log.Error().Err(err).Msg("failed to reserve idempotency key")
			return c.Next()
		}
		if !reserved {
			// lost the race: the winner either finished or is still running
			cached, err := store.Get(ctx, scopedKey)
			if err == nil && cached != nil {
				return replay(c, key, cached)
			}
			return inProgress(c, key)
		}

		if err := c.Next(); err != nil {
			release(ctx, store, scopedKey)
			return err
		}

		status := c.Response().StatusCode()
		if status >= fiber.StatusInternalServerError || status == fiber.StatusConflict {
			release(ctx, store, scopedKey)
			return nil
		}
		resp := repositories.CachedResponse{
			StatusCode:  status,
			ContentType: string(c.Response().Header.ContentType()),
			Body:        append([]byte(nil), c.Response().Body()...),
		}
		if err := store.Save(ctx, scopedKey, resp, idempotencyTTL); err != nil {
			log.Error().Err(err).Msg("failed to save idempotency key")
		}
		return nil
	}
}

func replay(c *fiber.Ctx, key string, cached *repositories.CachedResponse) error {
	if cached.InFlight {
		return inProgress(c, key)
	}
	log.Info().Str("key", key).Msg("idempotency cache hit")
	c.Set(IdempotencyHitHeader, "true")
	if cached.ContentType != "" {
		c.Set(fiber.HeaderContentType, cached.ContentType)
	}
	return c.Status(cached.StatusCode).Send(cached.Body)
}

func inProgress(c *fiber.Ctx, key string) error {
	log.Warn().Str("key", key).Msg("duplicate request while the first is still running")
	return c.Status(fiber.StatusConflict).JSON(fiber.Map{
		"error": "A request with this Idempotency-Key is still being processed",
	})
}

func release(ctx context.Context, store IdempotencyStore, key string) {
	if err := store.Release(ctx, key); err != nil {
		log.Error().Err(err).Msg("failed to release idempotency key")
	}
}
