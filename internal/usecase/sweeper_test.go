package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"

	"github.com/arklim/social-identity/internal/core/domain"
	redisrepo "github.com/arklim/social-identity/internal/repository/redis"
)

func newLocker(t *testing.T) (*redisrepo.LockRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := red.NewClient(&red.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redisrepo.NewLockRepository(client, "identity"), mr
}

func TestCodeSweeperClearsExpiredSlots(t *testing.T) {
	h := newHarness(t)
	h.register(t, "jane@example.com")
	h.register(t, "john@example.com")

	sweeper, err := NewCodeSweeper(h.users, nil, "", WithClock(h.clock.Now), WithMetrics(h.metrics))
	if err != nil {
		t.Fatalf("NewCodeSweeper: %v", err)
	}

	cleared, err := sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep returned error: %v", err)
	}
	if cleared != 0 {
		t.Fatalf("live codes are kept, got %d cleared", cleared)
	}

	h.clock.Advance(DefaultCodeTTL + time.Second)
	cleared, err = sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep returned error: %v", err)
	}
	if cleared != 2 {
		t.Fatalf("expected 2 slots cleared, got %d", cleared)
	}

	stored := h.users.snapshot(t, "jane@example.com")
	if stored.Code != (domain.CodeSlot{}) {
		t.Fatalf("expected empty slot, got %+v", stored.Code)
	}
}

func TestCodeSweeperSkipsWhenLockHeldElsewhere(t *testing.T) {
	h := newHarness(t)
	h.register(t, "jane@example.com")
	h.clock.Advance(DefaultCodeTTL + time.Second)

	locker, mr := newLocker(t)
	first, err := NewCodeSweeper(h.users, locker, "code-sweeper", WithClock(h.clock.Now))
	if err != nil {
		t.Fatalf("NewCodeSweeper: %v", err)
	}
	second, err := NewCodeSweeper(h.users, locker, "code-sweeper", WithClock(h.clock.Now))
	if err != nil {
		t.Fatalf("NewCodeSweeper: %v", err)
	}

	n, swept, err := first.SweepLocked(context.Background(), time.Minute)
	if err != nil {
		t.Fatalf("SweepLocked returned error: %v", err)
	}
	if !swept || n != 1 {
		t.Fatalf("expected first sweeper to clear 1 slot, got swept=%v n=%d", swept, n)
	}

	if _, swept, err = second.SweepLocked(context.Background(), time.Minute); err != nil {
		t.Fatalf("SweepLocked returned error: %v", err)
	}
	if swept {
		t.Fatal("lock is held for the rest of the window")
	}

	mr.FastForward(time.Minute + time.Second)
	if _, swept, err = second.SweepLocked(context.Background(), time.Minute); err != nil {
		t.Fatalf("SweepLocked returned error: %v", err)
	}
	if !swept {
		t.Fatal("expected sweep once the lock expired")
	}
}

func TestCodeSweeperRunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	sweeper, err := NewCodeSweeper(h.users, nil, "")
	if err != nil {
		t.Fatalf("NewCodeSweeper: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}

	sweeper.Run(context.Background(), 0)
}
