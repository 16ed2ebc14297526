//go:build integration

package utils_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"election-platform/pkg/testutil/containers"
	"election-platform/pkg/utils"
)

func TestCastSlots_LimitAcrossClients(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := t.Context()

	slots, err := utils.NewCastSlots(rc.Client, 2, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var (
		wg  sync.WaitGroup
		got atomic.Int32
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := slots.Acquire(ctx, "voter-1")
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			if ok {
				got.Add(1)
			}
		}()
	}
	wg.Wait()

	if got.Load() != 2 {
		t.Fatalf("expected 2 slots granted, got %d", got.Load())
	}
	if n, _ := slots.InFlight(ctx, "voter-1"); n != 2 {
		t.Fatalf("expected 2 in flight, got %d", n)
	}
	// Other voters are unaffected.
	if ok, err := slots.Acquire(ctx, "voter-2"); err != nil || !ok {
		t.Fatalf("expected slot for another voter, ok=%v err=%v", ok, err)
	}

	for range 2 {
		if err := slots.Release(ctx, "voter-1"); err != nil {
			t.Fatalf("release: %v", err)
		}
	}
	if exists, _ := rc.Client.Exists(ctx, utils.CastSlotKey("voter-1")).Result(); exists != 0 {
		t.Fatalf("expected slot key removed after last release")
	}
	// A stray release must not drive the counter negative.
	if err := slots.Release(ctx, "voter-1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := slots.Acquire(ctx, "voter-1"); !ok {
		t.Fatalf("expected slot after release")
	}
	if n, _ := slots.InFlight(ctx, "voter-1"); n != 1 {
		t.Fatalf("expected 1 in flight, got %d", n)
	}
}

func TestCastSlots_TTLReleasesLeakedSlot(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := t.Context()

	slots, err := utils.NewCastSlots(rc.Client, 1, 200*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok, _ := slots.Acquire(ctx, "voter-1"); !ok {
		t.Fatalf("expected first slot")
	}
	if ok, _ := slots.Acquire(ctx, "voter-1"); ok {
		t.Fatalf("expected second acquire rejected")
	}
	ttl, err := rc.Client.PTTL(ctx, utils.CastSlotKey("voter-1")).Result()
	if err != nil || ttl <= 0 {
		t.Fatalf("expected ttl on slot key, got %s err=%v", ttl, err)
	}

	time.Sleep(400 * time.Millisecond)
	if ok, _ := slots.Acquire(ctx, "voter-1"); !ok {
		t.Fatalf("expected slot after ttl expiry")
	}
}
