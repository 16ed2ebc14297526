package utils

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestCastScriptsInitialized(t *testing.T) {
	if castAcquireScript == nil || castReleaseScript == nil {
		t.Fatalf("expected scripts to be initialized")
	}
}

func TestCastSlotKey(t *testing.T) {
	if got := CastSlotKey("v-1"); got != "election:cast:inflight:v-1" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestNewCastSlots_Validates(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()

	if _, err := NewCastSlots(nil, 1, time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if _, err := NewCastSlots(rdb, 0, time.Second); err == nil {
		t.Fatalf("expected error for zero limit")
	}
	s, err := NewCastSlots(rdb, 1, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ttl != DefaultCastSlotTTL {
		t.Fatalf("expected default ttl, got %s", s.ttl)
	}
}

func TestCastSlots_RequireVoterID(t *testing.T) {
	ctx := t.Context()
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()
	s, err := NewCastSlots(rdb, 1, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := s.Acquire(ctx, ""); err == nil {
		t.Fatalf("expected error for empty voter id")
	}
	if err := s.Release(ctx, ""); err == nil {
		t.Fatalf("expected error for empty voter id")
	}
}

func TestRedisConfig_CastPathDefaults(t *testing.T) {
	c := RedisConfig{Addr: "redis:6379"}.withDefaults()
	if c.ReadTimeout != 500*time.Millisecond || c.WriteTimeout != 500*time.Millisecond {
		t.Fatalf("unexpected io timeouts %s/%s", c.ReadTimeout, c.WriteTimeout)
	}
	if c.PoolTimeout != time.Second {
		t.Fatalf("unexpected pool timeout %s", c.PoolTimeout)
	}
}

func TestOpenRedis_RequiresAddr(t *testing.T) {
	if _, err := OpenRedis(t.Context(), RedisConfig{}); err == nil {
		t.Fatalf("expected error for empty addr")
	}
}
