package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/emeryray2002/mcp-secops-v3/internal/clock"
	"github.com/emeryray2002/mcp-secops-v3/internal/retry"
)

var errTransient = errors.New("transient")

func newPolicy(fake *clock.Fake, attempts int) retry.Policy {
	return retry.Policy{
		Config: retry.Config{
			MaxAttempts: attempts,
			BaseDelay:   100 * time.Millisecond,
			MaxDelay:    300 * time.Millisecond,
			Multiplier:  2,
		},
		Clock:     fake,
		Retryable: func(err error) bool { return errors.Is(err, errTransient) },
	}
}

func TestDoRetriesTransientErrorsWithBackoff(t *testing.T) {
	t.Parallel()

	fake := clock.NewFake(time.Unix(0, 0))
	calls := 0
	err := newPolicy(fake, 4).Do(context.Background(), "op", func(context.Context) error {
		calls++
		if calls < 4 {
			return errTransient
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 4 {
		t.Fatalf("expected 4 calls, got %d", calls)
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond}
	got := fake.Waits()
	if len(got) != len(want) {
		t.Fatalf("expected waits %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("wait %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	t.Parallel()

	fake := clock.NewFake(time.Unix(0, 0))
	permanent := errors.New("bad request")
	calls := 0
	err := newPolicy(fake, 5).Do(context.Background(), "op", func(context.Context) error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected single call, got %d", calls)
	}
	if len(fake.Waits()) != 0 {
		t.Fatalf("expected no waits, got %v", fake.Waits())
	}
}

func TestDoReturnsLastErrorWhenAttemptsExhausted(t *testing.T) {
	t.Parallel()

	fake := clock.NewFake(time.Unix(0, 0))
	calls := 0
	err := newPolicy(fake, 3).Do(context.Background(), "op", func(context.Context) error {
		calls++
		return errTransient
	})
	if !errors.Is(err, errTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDoHonoursHintCappedAtMaxDelay(t *testing.T) {
	t.Parallel()

	fake := clock.NewFake(time.Unix(0, 0))
	policy := newPolicy(fake, 2)
	policy.Hint = func(error) time.Duration { return time.Minute }
	calls := 0
	_ = policy.Do(context.Background(), "op", func(context.Context) error {
		calls++
		if calls == 1 {
			return errTransient
		}
		return nil
	})
	waits := fake.Waits()
	if len(waits) != 1 || waits[0] != 300*time.Millisecond {
		t.Fatalf("expected hint capped at 300ms, got %v", waits)
	}
}

func TestDoAbortsWhenContextDone(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	policy := retry.Policy{
		Config:    retry.Config{MaxAttempts: 3, BaseDelay: time.Hour},
		Clock:     blockingClock{},
		Retryable: func(error) bool { return true },
	}
	err := policy.Do(ctx, "op", func(context.Context) error { return errTransient })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type blockingClock struct{}

func (blockingClock) Now() time.Time                       { return time.Unix(0, 0) }
func (blockingClock) After(time.Duration) <-chan time.Time { return make(chan time.Time) }
