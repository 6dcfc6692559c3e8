package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBackoffDoublesAndCaps(t *testing.T) {
	p := Policy{MaxAttempts: 5, Base: 100 * time.Millisecond, Max: 300 * time.Millisecond}
	if got := p.Backoff(1); got != 100*time.Millisecond {
		t.Fatalf("attempt 1: got %v", got)
	}
	if got := p.Backoff(2); got != 200*time.Millisecond {
		t.Fatalf("attempt 2: got %v", got)
	}
	if got := p.Backoff(3); got != 300*time.Millisecond {
		t.Fatalf("attempt 3 should cap: got %v", got)
	}
	if got := p.Backoff(10); got != 300*time.Millisecond {
		t.Fatalf("attempt 10 should cap: got %v", got)
	}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	p := Policy{MaxAttempts: 3, Base: time.Millisecond, Max: time.Millisecond}
	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	p := Policy{MaxAttempts: 3, Base: time.Millisecond, Max: time.Millisecond}
	calls := 0
	want := errors.New("still failing")
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDoStopsOnPermanent(t *testing.T) {
	p := Policy{MaxAttempts: 5, Base: time.Millisecond, Max: time.Millisecond}
	calls := 0
	want := errors.New("bad request")
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Permanent{Err: want}
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("permanent error must not retry, got %d calls", calls)
	}
}

func TestDoRespectsCancellation(t *testing.T) {
	p := Policy{MaxAttempts: 10, Base: time.Hour, Max: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := p.Do(ctx, func(ctx context.Context) error {
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
