package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyRepository_SaveAndGet(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	repo := NewIdempotencyRepository(client)
	ctx := context.Background()

	cached, err := repo.Get(ctx, "user:1:abc")
	require.NoError(t, err)
	assert.Nil(t, cached)

	resp := CachedResponse{StatusCode: 201, ContentType: "application/json", Body: []byte(`{"ok":true}`)}
	require.NoError(t, repo.Save(ctx, "user:1:abc", resp, time.Minute))

	cached, err = repo.Get(ctx, "user:1:abc")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, resp, *cached)

	s.FastForward(2 * time.Minute)
	cached, err = repo.Get(ctx, "user:1:abc")
	require.NoError(t, err)
	assert.Nil(t, cached)
}

func TestIdempotencyRepository_Reserve(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	repo := NewIdempotencyRepository(client)
	ctx := context.Background()

	ok, err := repo.Reserve(ctx, "user:1:abc", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Reserve(ctx, "user:1:abc", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second reservation must lose")

	cached, err := repo.Get(ctx, "user:1:abc")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.True(t, cached.InFlight)

	// the finished response replaces the reservation
	require.NoError(t, repo.Save(ctx, "user:1:abc", CachedResponse{StatusCode: 201}, time.Hour))
	cached, err = repo.Get(ctx, "user:1:abc")
	require.NoError(t, err)
	assert.False(t, cached.InFlight)
	assert.Equal(t, 201, cached.StatusCode)

	ok, err = repo.Reserve(ctx, "user:1:other", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, repo.Release(ctx, "user:1:other"))
	ok, err = repo.Reserve(ctx, "user:1:other", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "released key can be reserved again")
}
