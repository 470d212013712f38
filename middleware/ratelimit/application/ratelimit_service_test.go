package application

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"admission-gateway/middleware/ratelimit/domain"
)

// countingLimiter concede os primeiros n Acquire.
type countingLimiter struct {
	left   atomic.Int64
	closed atomic.Int32
}

func newCountingLimiter(n int64) *countingLimiter {
	l := &countingLimiter{}
	l.left.Store(n)
	return l
}

func (l *countingLimiter) Acquire() bool { return l.left.Add(-1) >= 0 }
func (l *countingLimiter) Close() error  { l.closed.Add(1); return nil }

type recordingStats struct {
	events []domain.StatsEvent
	err    error
}

func (r *recordingStats) Record(_ context.Context, ev domain.StatsEvent) error {
	r.events = append(r.events, ev)
	return r.err
}

func echo(calls *int) Service[string, string] {
	return ServiceFunc[string, string](func(_ context.Context, req string) (string, error) {
		*calls++
		return "echo:" + req, nil
	})
}

func TestRateLimiterService_RejectsWithoutCallingInner(t *testing.T) {
	calls := 0
	svc := NewRateLimiterLayer[string, string](newCountingLimiter(1)).Layer(echo(&calls))

	out, err := svc.Call(context.Background(), "a")
	if err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
	if out.Response != "echo:a" || out.Err != nil {
		t.Fatalf("unexpected outcome %+v", out)
	}

	_, err = svc.Call(context.Background(), "b")
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err.Error() != "rate limited" {
		t.Fatalf("expected message %q, got %q", "rate limited", err.Error())
	}
	if calls != 1 {
		t.Fatalf("expected inner to be called once, got %d", calls)
	}
}

func TestRateLimiterService_InnerErrorTravelsInOutcome(t *testing.T) {
	boom := errors.New("boom")
	inner := ServiceFunc[int, int](func(context.Context, int) (int, error) { return 7, boom })
	svc := NewRateLimiterLayer[int, int](newCountingLimiter(10)).Layer(inner)

	out, err := svc.Call(context.Background(), 1)
	if err != nil {
		t.Fatalf("expected no limiter error, got %v", err)
	}
	if out.Err != boom || out.Response != 7 {
		t.Fatalf("expected inner result untouched, got %+v", out)
	}
}

func TestRateLimiterLayer_CopiesShareLimiter(t *testing.T) {
	layer := NewRateLimiterLayer[string, string](newCountingLimiter(2))
	copyOfLayer := layer

	calls := 0
	a := layer.Layer(echo(&calls))
	b := copyOfLayer.Layer(echo(&calls))

	if _, err := a.Call(context.Background(), "1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := b.Call(context.Background(), "2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := a.Call(context.Background(), "3"); !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected shared quota to be exhausted, got %v", err)
	}
}

func TestRateLimiterLayer_CloseDelegatesToLimiter(t *testing.T) {
	lim := newCountingLimiter(1)
	layer := NewRateLimiterLayer[string, string](lim)
	if err := layer.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lim.closed.Load() != 1 {
		t.Fatalf("expected limiter to be closed once")
	}

	if err := NewRateLimiterLayer[string, string](nil).Close(); err != nil {
		t.Fatalf("expected nil limiter close to be a no-op, got %v", err)
	}
}

func TestRateLimiterService_RecordsStats(t *testing.T) {
	stats := &recordingStats{err: errors.New("stats down")}
	var statsErrs int

	calls := 0
	svc := NewRateLimiterLayer[string, string](
		newCountingLimiter(1),
		WithStats(stats),
		WithKey("global"),
		WithStatsErrorHandler(func(error) { statsErrs++ }),
	).Layer(echo(&calls))

	ctx := ContextWithRoute(context.Background(), "GET", "/x")
	_, _ = svc.Call(ctx, "a")
	_, _ = svc.Call(ContextWithKey(ctx, "client-1"), "b")

	if len(stats.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(stats.events))
	}
	first, second := stats.events[0], stats.events[1]
	if !first.Allowed || first.Key != "global" || first.Kind != domain.KindRate || first.Path != "/x" {
		t.Fatalf("unexpected first event %+v", first)
	}
	if second.Allowed || second.Key != "client-1" || second.Method != "GET" {
		t.Fatalf("unexpected second event %+v", second)
	}
	if statsErrs != 2 {
		t.Fatalf("expected stats errors to reach the handler, got %d", statsErrs)
	}
	if calls != 1 {
		t.Fatalf("stats failure must not change the decision, got %d calls", calls)
	}
}

func TestFlatten_MapsOnlyLimiterRejection(t *testing.T) {
	boom := errors.New("boom")
	mapped := errors.New("mapped")
	mapErr := func(err error) error {
		if domain.IsLimited(err) {
			return mapped
		}
		return err
	}

	fail := true
	inner := ServiceFunc[string, string](func(context.Context, string) (string, error) {
		if fail {
			return "", boom
		}
		return "ok", nil
	})
	flat := Flatten(NewRateLimiterLayer[string, string](newCountingLimiter(2)).Layer(inner), mapErr)

	if _, err := flat.Call(context.Background(), "a"); err != boom {
		t.Fatalf("expected inner error unchanged, got %v", err)
	}
	fail = false
	if resp, err := flat.Call(context.Background(), "b"); err != nil || resp != "ok" {
		t.Fatalf("expected ok, got %q %v", resp, err)
	}
	if _, err := flat.Call(context.Background(), "c"); err != mapped {
		t.Fatalf("expected mapped rejection, got %v", err)
	}
}
