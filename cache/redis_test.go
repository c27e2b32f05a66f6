package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/enrollment-engine/domain"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewRedis(client, "test:", time.Minute, zap.NewNop())
}

func roster(ids ...string) []domain.Student {
	out := make([]domain.Student, len(ids))
	for i, id := range ids {
		out[i] = domain.Student{ID: id, Name: "Student " + id, Status: domain.StatusEnrolled}
	}
	return out
}

func TestRedis_RosterRoundTrip(t *testing.T) {
	mr, c := setupTestRedis(t)
	ctx := context.Background()

	_, ok, err := c.GetRoster(ctx, "b-1")
	require.NoError(t, err)
	assert.False(t, ok, "miss before set")

	require.NoError(t, c.SetRoster(ctx, "b-1", roster("s1", "s2")))

	got, ok, err := c.GetRoster(ctx, "b-1")
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, "s1", got[0].ID)

	assert.True(t, mr.Exists("test:batch:b-1:roster"))
	assert.Equal(t, time.Minute, mr.TTL("test:batch:b-1:roster"))
}

func TestRedis_EmptyRosterIsAHit(t *testing.T) {
	_, c := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.SetRoster(ctx, "b-empty", nil))

	got, ok, err := c.GetRoster(ctx, "b-empty")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, got)
}

func TestRedis_TTLExpires(t *testing.T) {
	mr, c := setupTestRedis(t)
	ctx := context.Background()
	require.NoError(t, c.SetRoster(ctx, "b-1", roster("s1")))

	mr.FastForward(2 * time.Minute)

	_, ok, err := c.GetRoster(ctx, "b-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_InvalidateBatches(t *testing.T) {
	// GIVEN: Cached rosters for two batches plus another key under b-1
	// WHEN: Invalidating b-1 only
	// THEN: Everything under b-1 is gone, b-2 is untouched
	mr, c := setupTestRedis(t)
	ctx := context.Background()
	require.NoError(t, c.SetRoster(ctx, "b-1", roster("s1")))
	require.NoError(t, c.SetRoster(ctx, "b-2", roster("s2")))
	require.NoError(t, mr.Set("test:batch:b-1:health", "{}"))

	require.NoError(t, c.InvalidateBatches(ctx, []string{"b-1", "b-unknown"}))

	assert.False(t, mr.Exists("test:batch:b-1:roster"))
	assert.False(t, mr.Exists("test:batch:b-1:health"))
	assert.True(t, mr.Exists("test:batch:b-2:roster"))
}

func TestRedis_CorruptEntry(t *testing.T) {
	mr, c := setupTestRedis(t)
	require.NoError(t, mr.Set("test:batch:b-1:roster", "not json"))

	_, ok, err := c.GetRoster(context.Background(), "b-1")

	assert.Error(t, err)
	assert.False(t, ok)
}

func TestRedis_ServerDown(t *testing.T) {
	mr, c := setupTestRedis(t)
	mr.Close()

	_, _, err := c.GetRoster(context.Background(), "b-1")
	assert.Error(t, err)
	assert.Error(t, c.InvalidateBatches(context.Background(), []string{"b-1"}))
}

func TestDial(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := Dial(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	client.Close()

	mr.Close()
	_, err = Dial(context.Background(), mr.Addr(), "", 0)
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	var c Roster = Nop{}
	ctx := context.Background()

	require.NoError(t, c.SetRoster(ctx, "b-1", roster("s1")))
	_, ok, err := c.GetRoster(ctx, "b-1")
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, c.InvalidateBatches(ctx, []string{"b-1"}))
}
