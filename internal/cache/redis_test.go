package cache

import (
	"context"
	"testing"
	"time"

	"foodbank-checkin-backend/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisCache(client, "")
}

func TestRedisCache_RenewalExpires(t *testing.T) {
	mr, c := setupMiniredis(t)
	ctx := context.Background()

	snap := models.RenewalSnapshot{RegistrationID: "doc-1", FormData: models.FormData{LastName: "Doe"}}
	require.NoError(t, c.SaveRenewal(ctx, "tok", snap, 30*time.Minute))
	assert.True(t, mr.Exists("foodbank:renewal:tok"))

	got, err := c.GetRenewal(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "Doe", got.FormData.LastName)

	mr.FastForward(31 * time.Minute)
	_, err = c.GetRenewal(ctx, "tok")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCache_CorruptSnapshot(t *testing.T) {
	mr, c := setupMiniredis(t)
	require.NoError(t, mr.Set("foodbank:renewal:bad", "{not json"))

	_, err := c.GetRenewal(context.Background(), "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCache_SignatureTTL(t *testing.T) {
	mr, c := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, c.SetSignature(ctx, "admin-1", "data:image/png;base64,AAAA", time.Hour))
	assert.Equal(t, time.Hour, mr.TTL("foodbank:signature:admin-1"))

	got, err := c.GetSignature(ctx, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,AAAA", got)
}

func TestNewRedisClient_PingFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisClient(context.Background(), Options{Addr: addr})
	assert.Error(t, err)
}

func TestRedisCache_ConfiguredPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), Options{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	c := NewRedisCache(client, "pantry-east")
	require.NoError(t, c.SetSignature(context.Background(), "admin-1", "data:image/png;base64,AAAA", time.Hour))
	assert.Equal(t, []string{"pantry-east:signature:admin-1"}, mr.Keys())
}
