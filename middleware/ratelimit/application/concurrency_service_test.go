package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
	"admission-gateway/middleware/ratelimit/infra"
)

func TestConcurrencyLimiterService_RejectsThirdWhileTwoInFlight(t *testing.T) {
	pool := infra.NewAtomicPool(2)
	layer := NewConcurrencyLimiterLayer[int, int](pool)

	release := make(chan struct{})
	started := make(chan struct{}, 2)
	inner := ServiceFunc[int, int](func(_ context.Context, v int) (int, error) {
		started <- struct{}{}
		<-release
		return v, nil
	})
	svc := layer.Layer(inner)

	var wg sync.WaitGroup
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Call(context.Background(), i); err != nil {
				t.Errorf("expected in-flight call %d to be admitted, got %v", i, err)
			}
		}()
	}
	for range 2 {
		select {
		case <-started:
		case <-time.After(time.Second):
			close(release)
			t.Fatalf("timeout waiting handlers to start")
		}
	}

	if _, err := svc.Call(context.Background(), 3); !errors.Is(err, domain.ErrConcurrencyLimited) {
		close(release)
		t.Fatalf("expected ErrConcurrencyLimited, got %v", err)
	}

	close(release)
	wg.Wait()

	if got := pool.InFlight(); got != 0 {
		t.Fatalf("expected counter back to 0, got %d", got)
	}
	if _, err := svc.Call(context.Background(), 4); err != nil {
		t.Fatalf("expected admission after release, got %v", err)
	}
}

func TestConcurrencyLimiterService_ReleasesOnInnerError(t *testing.T) {
	pool := infra.NewAtomicPool(1)
	boom := errors.New("boom")
	svc := NewConcurrencyLimiterLayer[int, int](pool).Layer(
		ServiceFunc[int, int](func(context.Context, int) (int, error) { return 0, boom }),
	)

	for range 3 {
		out, err := svc.Call(context.Background(), 1)
		if err != nil {
			t.Fatalf("expected admission, got %v", err)
		}
		if out.Err != boom {
			t.Fatalf("expected inner error in outcome, got %v", out.Err)
		}
	}
	if got := pool.InFlight(); got != 0 {
		t.Fatalf("expected 0 in flight, got %d", got)
	}
}

func TestConcurrencyLimiterService_ReleasesOnPanic(t *testing.T) {
	pool := infra.NewAtomicPool(1)
	svc := NewConcurrencyLimiterLayer[int, int](pool).Layer(
		ServiceFunc[int, int](func(context.Context, int) (int, error) { panic("handler exploded") }),
	)

	func() {
		defer func() { _ = recover() }()
		_, _ = svc.Call(context.Background(), 1)
	}()

	if got := pool.InFlight(); got != 0 {
		t.Fatalf("expected slot released after panic, got %d in flight", got)
	}
}

func TestConcurrencyLimiterService_NilPoolAllows(t *testing.T) {
	calls := 0
	svc := NewConcurrencyLimiterLayer[string, string](nil).Layer(echo(&calls))
	if _, err := svc.Call(context.Background(), "x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected inner to be called")
	}
}

func TestConcurrencyLimiterService_RecordsDenial(t *testing.T) {
	stats := &recordingStats{}
	svc := NewConcurrencyLimiterLayer[string, string](infra.NewAtomicPool(0), WithStats(stats)).
		Layer(ServiceFunc[string, string](func(context.Context, string) (string, error) { return "", nil }))

	_, err := svc.Call(context.Background(), "x")
	if err == nil || err.Error() != "concurrency limited" {
		t.Fatalf("expected concurrency limited, got %v", err)
	}
	if len(stats.events) != 1 || stats.events[0].Allowed || stats.events[0].Kind != domain.KindConcurrency {
		t.Fatalf("unexpected events %+v", stats.events)
	}
}
