package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_NeverExceedsLimit(t *testing.T) {
	const limit = 3
	const units = 25
	p := New(limit)

	var inFlight, peak atomic.Int32
	items := make([]int, units)
	for i := range items {
		items[i] = i
	}

	results := Map(context.Background(), p, items, func(_ int, n int) (int, error) {
		cur := inFlight.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return n * 2, nil
	})

	if got := peak.Load(); got > limit {
		t.Fatalf("observed %d units in flight, limit %d", got, limit)
	}
	if got := peak.Load(); got < 2 {
		t.Errorf("expected some concurrency, peak was %d", got)
	}
	for i, r := range results {
		if r.Err != nil {
			t.Errorf("unit %d: unexpected error %v", i, r.Err)
		}
		if r.Value != i*2 {
			t.Errorf("unit %d: expected %d, got %d", i, i*2, r.Value)
		}
	}
	if p.Running() != 0 || p.Queued() != 0 {
		t.Errorf("expected idle pool, running=%d queued=%d", p.Running(), p.Queued())
	}
}

func TestPool_FailureDoesNotAffectSiblings(t *testing.T) {
	p := New(2)
	boom := errors.New("boom")

	items := []int{0, 1, 2, 3, 4}
	results := Map(context.Background(), p, items, func(i int, _ int) (string, error) {
		if i == 1 {
			return "", boom
		}
		if i == 3 {
			panic("unit three exploded")
		}
		return "ok", nil
	})

	for i, r := range results {
		switch i {
		case 1:
			if !errors.Is(r.Err, boom) {
				t.Errorf("unit 1: expected boom, got %v", r.Err)
			}
		case 3:
			if r.Err == nil {
				t.Error("unit 3: expected panic converted to error")
			}
		default:
			if r.Err != nil || r.Value != "ok" {
				t.Errorf("unit %d: expected ok, got %q / %v", i, r.Value, r.Err)
			}
		}
	}
}

func TestPool_QueuedUnitsStartInFIFOOrder(t *testing.T) {
	p := New(1)
	release := make(chan struct{})

	var mu sync.Mutex
	var order []int

	blocker := Submit(p, func() (int, error) {
		<-release
		return -1, nil
	})

	var futures []*Future[int]
	for i := range 5 {
		futures = append(futures, Submit(p, func() (int, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return i, nil
		}))
	}

	if q := p.Queued(); q != 5 {
		t.Fatalf("expected 5 queued units, got %d", q)
	}
	close(release)

	ctx := context.Background()
	if _, err := blocker.Wait(ctx); err != nil {
		t.Fatalf("blocker: %v", err)
	}
	for _, f := range futures {
		if _, err := f.Wait(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	for i, v := range order {
		if v != i {
			t.Fatalf("expected FIFO start order, got %v", order)
		}
	}
}

func TestPool_SubmitDoesNotBlock(t *testing.T) {
	p := New(1)
	release := make(chan struct{})
	defer close(release)

	done := make(chan struct{})
	go func() {
		for range 10 {
			Submit(p, func() (struct{}, error) {
				<-release
				return struct{}{}, nil
			})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Submit blocked while the pool was saturated")
	}
}

func TestFuture_WaitHonoursContext(t *testing.T) {
	p := New(1)
	release := make(chan struct{})
	defer close(release)

	f := Submit(p, func() (int, error) {
		<-release
		return 1, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := f.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestNew_ClampsLimit(t *testing.T) {
	if New(0).Limit() != 1 {
		t.Error("expected limit clamped to 1")
	}
}
