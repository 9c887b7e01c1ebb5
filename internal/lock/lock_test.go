package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeyed_MutualExclusion(t *testing.T) {
	k := NewKeyed()
	ctx := context.Background()

	var (
		inside  atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := k.Acquire(ctx, "expense-1")
			if err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			n := inside.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			release()
		}()
	}
	wg.Wait()

	if got := maxSeen.Load(); got != 1 {
		t.Errorf("expected at most one holder, saw %d", got)
	}
	if k.Len() != 0 {
		t.Errorf("expected no keys left, got %d", k.Len())
	}
}

func TestKeyed_IndependentKeys(t *testing.T) {
	k := NewKeyed()
	ctx := context.Background()

	releaseA, err := k.Acquire(ctx, "a")
	if err != nil {
		t.Fatalf("Acquire a: %v", err)
	}
	defer releaseA()

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	releaseB, err := k.Acquire(ctx, "b")
	if err != nil {
		t.Fatalf("Acquire b should not block on a: %v", err)
	}
	releaseB()
}

func TestKeyed_Timeout(t *testing.T) {
	k := NewKeyed()

	release, err := k.Acquire(context.Background(), "a")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := k.Acquire(ctx, "a"); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}

	release()
	if k.Len() != 0 {
		t.Errorf("expected no keys left, got %d", k.Len())
	}
}

func TestKeyed_ReleaseIdempotent(t *testing.T) {
	k := NewKeyed()

	release, err := k.Acquire(context.Background(), "a")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	release()
	release()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	again, err := k.Acquire(ctx, "a")
	if err != nil {
		t.Fatalf("re-Acquire: %v", err)
	}
	again()
}
