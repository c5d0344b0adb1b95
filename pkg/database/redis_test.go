package database

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRedisConfig(t *testing.T) {
	cfg := DefaultRedisConfig()
	assert.Equal(t, "localhost:6379", cfg.Addr)
	assert.Equal(t, 20, cfg.PoolSize)
}

func TestNewRedisClient_RequiresAddr(t *testing.T) {
	_, err := NewRedisClient(context.Background(), RedisConfig{})
	assert.ErrorContains(t, err, "address is required")
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewRedisClient(ctx, RedisConfig{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond})
	assert.ErrorContains(t, err, "ping redis 127.0.0.1:1")
}

func TestNewRedisClient_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	cfg := DefaultRedisConfig()
	cfg.Addr = addr
	client, err := NewRedisClient(context.Background(), cfg)
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, PingRedis(client)(context.Background()))
}

type fakePool struct{ stats redis.PoolStats }

func (f fakePool) PoolStats() *redis.PoolStats { return &f.stats }

func TestRedisPoolCollector(t *testing.T) {
	c := NewRedisPoolCollector(fakePool{stats: redis.PoolStats{
		Hits: 10, Misses: 2, Timeouts: 1, TotalConns: 5, IdleConns: 3, StaleConns: 4,
	}}, "search")

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))

	count, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 6, count)

	expected := `
# HELP redis_pool_hits_total Times a free connection was found in the pool
# TYPE redis_pool_hits_total counter
redis_pool_hits_total{service="search"} 10
# HELP redis_pool_idle_connections Number of idle connections in the pool
# TYPE redis_pool_idle_connections gauge
redis_pool_idle_connections{service="search"} 3
`
	assert.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"redis_pool_hits_total", "redis_pool_idle_connections"))
}
