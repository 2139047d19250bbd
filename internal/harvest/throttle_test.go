package harvest

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestGatesEnforceMinimumInterval(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}
	gates := NewGates()
	interval := 50 * time.Millisecond
	gates.Register("slow", interval)

	ctx := context.Background()
	var starts []time.Time
	for i := 0; i < 4; i++ {
		if err := gates.Wait(ctx, "slow"); err != nil {
			t.Fatal(err)
		}
		starts = append(starts, time.Now())
	}
	for i := 1; i < len(starts); i++ {
		if gap := starts[i].Sub(starts[i-1]); gap < interval-5*time.Millisecond {
			t.Errorf("gap %d = %v, want >= %v", i, gap, interval)
		}
	}
}

func TestGatesSharedAcrossGoroutines(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}
	gates := NewGates()
	interval := 40 * time.Millisecond
	gates.Register("shared", interval)

	var (
		mu     sync.Mutex
		starts []time.Time
		wg     sync.WaitGroup
	)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := gates.Wait(context.Background(), "shared"); err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			starts = append(starts, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for i := range starts {
		for j := i + 1; j < len(starts); j++ {
			gap := starts[j].Sub(starts[i])
			if gap < 0 {
				gap = -gap
			}
			if gap < interval-5*time.Millisecond {
				t.Errorf("calls %d and %d only %v apart, want >= %v", i, j, gap, interval)
			}
		}
	}
}

func TestUnregisteredProviderPassesThrough(t *testing.T) {
	gates := NewGates()
	start := time.Now()
	for i := 0; i < 100; i++ {
		if err := gates.Wait(context.Background(), "unthrottled"); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("100 unthrottled waits took %v", elapsed)
	}
}

func TestWaitHonoursCancellation(t *testing.T) {
	gates := NewGates()
	gates.Register("slow", time.Hour)

	ctx := context.Background()
	if err := gates.Wait(ctx, "slow"); err != nil {
		t.Fatal(err)
	}
	cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := gates.Wait(cctx, "slow"); err == nil {
		t.Fatal("expected a deadline error while gated")
	}
}
