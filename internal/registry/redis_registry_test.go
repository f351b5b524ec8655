package registry

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, ttl, interval time.Duration) (*RedisRegistry, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisRegistry(client, "collab:relay", ttl, interval), mr
}

func TestRedisRegistry_RegisterCountDeregister(t *testing.T) {
	ctx := context.Background()
	reg, mr := newTestRegistry(t, time.Minute, time.Second)

	require.NoError(t, reg.Register(ctx, "ab3k-9f2pq", "s1", "p1"))
	require.NoError(t, reg.Register(ctx, "ab3k-9f2pq", "s2", "p2"))
	require.NoError(t, reg.Register(ctx, "zzzz-00000", "s3", "p3"))

	got, err := mr.Get("collab:relay:room:ab3k-9f2pq:session:s1")
	require.NoError(t, err)
	assert.Equal(t, "p1", got)

	n, err := reg.Count(ctx, "ab3k-9f2pq")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, reg.Deregister(ctx, "ab3k-9f2pq", "s1"))
	n, err = reg.Count(ctx, "ab3k-9f2pq")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = reg.Count(ctx, "qqqq-11111")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisRegistry_KeysExpireWithoutHeartbeat(t *testing.T) {
	ctx := context.Background()
	reg, mr := newTestRegistry(t, 10*time.Second, time.Second)

	require.NoError(t, reg.Register(ctx, "ab3k-9f2pq", "s1", "p1"))
	mr.FastForward(11 * time.Second)

	n, err := reg.Count(ctx, "ab3k-9f2pq")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisRegistry_RefreshKeys(t *testing.T) {
	ctx := context.Background()
	reg, mr := newTestRegistry(t, 10*time.Second, time.Second)

	require.NoError(t, reg.Register(ctx, "ab3k-9f2pq", "s1", "p1"))
	mr.FastForward(8 * time.Second)
	reg.refreshKeys(ctx)

	assert.Equal(t, 10*time.Second, mr.TTL("collab:relay:room:ab3k-9f2pq:session:s1"))
}

func TestRedisRegistry_StartHeartbeatRejectsZeroInterval(t *testing.T) {
	reg, _ := newTestRegistry(t, time.Minute, 0)
	assert.Error(t, reg.StartHeartbeat(context.Background()))
}
