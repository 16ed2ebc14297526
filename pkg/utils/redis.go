package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig controls redis client behavior.
// Zero values fall back to conservative defaults.
type RedisConfig struct {
	Addr string

	// Basic timeouts
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Pool tuning
	PoolSize        int
	MinIdleConns    int
	PoolTimeout     time.Duration
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration

	PingTimeout time.Duration
}

func (c RedisConfig) withDefaults() RedisConfig {
	out := c
	if out.DialTimeout <= 0 {
		out.DialTimeout = 3 * time.Second
	}
	// Reads and writes sit on the cast path and the limiter fails open, so a
	// slow Redis gives up quickly instead of holding the vote.
	if out.ReadTimeout <= 0 {
		out.ReadTimeout = 500 * time.Millisecond
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = 500 * time.Millisecond
	}
	if out.PoolSize <= 0 {
		out.PoolSize = 20
	}
	if out.MinIdleConns < 0 {
		out.MinIdleConns = 0
	}
	if out.PoolTimeout <= 0 {
		out.PoolTimeout = time.Second
	}
	if out.ConnMaxIdleTime <= 0 {
		out.ConnMaxIdleTime = 5 * time.Minute
	}
	if out.ConnMaxLifetime <= 0 {
		out.ConnMaxLifetime = 30 * time.Minute
	}
	if out.PingTimeout <= 0 {
		out.PingTimeout = 2 * time.Second
	}
	return out
}

// OpenRedis initializes a Redis client and validates connectivity via PING.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	cfg = cfg.withDefaults()
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		DialTimeout:     cfg.DialTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		PoolSize:        cfg.PoolSize,
		MinIdleConns:    cfg.MinIdleConns,
		PoolTimeout:     cfg.PoolTimeout,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

const (
	// CastSlotPrefix namespaces per-voter in-flight cast counters.
	CastSlotPrefix = "election:cast:inflight:"

	// DefaultCastSlotTTL bounds how long a slot survives an API process that
	// died mid-cast.
	DefaultCastSlotTTL = 10 * time.Second
)

// CastSlotKey is the Redis key holding voterID's in-flight cast count.
func CastSlotKey(voterID string) string {
	return CastSlotPrefix + voterID
}

// KEYS[1] slot key, ARGV[1] limit, ARGV[2] ttl ms.
// Returns the in-flight count after taking a slot, or 0 when the voter is at
// the limit. The TTL is refreshed on every acquire so a voter casting
// back to back keeps one live counter.
var castAcquireScript = redis.NewScript(`
local limit = tonumber(ARGV[1])
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current >= limit then
  if redis.call('PTTL', KEYS[1]) < 0 then
    redis.call('PEXPIRE', KEYS[1], ARGV[2])
  end
  return 0
end
current = redis.call('INCR', KEYS[1])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return current
`)

// KEYS[1] slot key. Returns the in-flight count left; the key is dropped at zero.
var castReleaseScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
local current = redis.call('DECR', KEYS[1])
if current <= 0 then
  redis.call('DEL', KEYS[1])
  return 0
end
return current
`)

// CastSlots caps how many casts one voter may have running at once across
// every API instance.
type CastSlots struct {
	rdb   *redis.Client
	limit int
	ttl   time.Duration
}

// NewCastSlots returns a limiter allowing limit concurrent casts per voter.
// A non-positive ttl uses DefaultCastSlotTTL.
func NewCastSlots(rdb *redis.Client, limit int, ttl time.Duration) (*CastSlots, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("cast slot limit must be > 0, got %d", limit)
	}
	if ttl <= 0 {
		ttl = DefaultCastSlotTTL
	}
	return &CastSlots{rdb: rdb, limit: limit, ttl: ttl}, nil
}

// Acquire takes a slot for voterID. It reports false when the voter already
// has limit casts in flight.
func (s *CastSlots) Acquire(ctx context.Context, voterID string) (bool, error) {
	if voterID == "" {
		return false, fmt.Errorf("voter id is required")
	}
	n, err := castAcquireScript.Run(ctx, s.rdb, []string{CastSlotKey(voterID)}, s.limit, s.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("acquire cast slot: %w", err)
	}
	return n > 0, nil
}

// Release returns a slot taken by Acquire. Releasing after the TTL expired
// is a no-op.
func (s *CastSlots) Release(ctx context.Context, voterID string) error {
	if voterID == "" {
		return fmt.Errorf("voter id is required")
	}
	if err := castReleaseScript.Run(ctx, s.rdb, []string{CastSlotKey(voterID)}).Err(); err != nil {
		return fmt.Errorf("release cast slot: %w", err)
	}
	return nil
}

// InFlight reports how many casts voterID currently holds slots for.
func (s *CastSlots) InFlight(ctx context.Context, voterID string) (int64, error) {
	n, err := s.rdb.Get(ctx, CastSlotKey(voterID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}
