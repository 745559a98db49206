package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNilCacheIsPassThrough(t *testing.T) {
	t.Parallel()

	c := New[string](0, time.Minute)
	if c != nil {
		t.Fatal("expected nil cache for zero size")
	}
	calls := 0
	for i := 0; i < 2; i++ {
		v, hit, err := c.Load(context.Background(), "k", func(context.Context) (string, error) {
			calls++
			return "v", nil
		})
		if err != nil || hit || v != "v" {
			t.Fatalf("unexpected load result %q hit=%v err=%v", v, hit, err)
		}
	}
	if calls != 2 {
		t.Fatalf("expected loader to run twice, ran %d", calls)
	}
}

func TestLoadCachesSuccess(t *testing.T) {
	t.Parallel()

	c := New[int](4, time.Hour)
	calls := 0
	load := func(context.Context) (int, error) {
		calls++
		return 42, nil
	}
	if _, hit, _ := c.Load(context.Background(), "k", load); hit {
		t.Fatal("first load should miss")
	}
	v, hit, err := c.Load(context.Background(), "k", load)
	if err != nil || !hit || v != 42 {
		t.Fatalf("expected cached 42, got %d hit=%v err=%v", v, hit, err)
	}
	if calls != 1 {
		t.Fatalf("expected one loader call, got %d", calls)
	}
}

func TestLoadDoesNotCacheErrors(t *testing.T) {
	t.Parallel()

	c := New[int](4, time.Hour)
	boom := errors.New("boom")
	if _, _, err := c.Load(context.Background(), "k", func(context.Context) (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("expected empty cache, got %d entries", c.Len())
	}
}

func TestEvictsOldest(t *testing.T) {
	t.Parallel()

	c := New[int](2, time.Hour)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected a to be evicted")
	}
	if v, ok := c.Get("c"); !ok || v != 3 {
		t.Fatalf("expected c=3, got %d ok=%v", v, ok)
	}
}

func TestConcurrentMissesShareOneLoad(t *testing.T) {
	t.Parallel()

	c := New[[]string](4, time.Hour)
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	load := func(context.Context) ([]string, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return []string{"rule"}, nil
	}

	var wg sync.WaitGroup
	results := make([][]string, 8)
	errs := make([]error, 8)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _, errs[0] = c.Load(context.Background(), "rules", load)
	}()
	<-started
	for i := 1; i < len(results); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _, errs[i] = c.Load(context.Background(), "rules", load)
		}(i)
	}
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("expected one upstream load, got %d", got)
	}
	for i := range results {
		if errs[i] != nil || len(results[i]) != 1 || results[i][0] != "rule" {
			t.Fatalf("caller %d got %v err=%v", i, results[i], errs[i])
		}
	}
}

func TestLoadReturnsWhenCallerCancels(t *testing.T) {
	t.Parallel()

	c := New[int](4, time.Hour)
	release := make(chan struct{})
	loaderCtxErr := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, _, err := c.Load(ctx, "k", func(ctx context.Context) (int, error) {
			<-release
			loaderCtxErr <- ctx.Err()
			return 7, nil
		})
		done <- err
	}()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Load did not return after cancellation")
	}

	close(release)
	if err := <-loaderCtxErr; err != nil {
		t.Fatalf("loader context was cancelled with the caller: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		if v, ok := c.Get("k"); ok {
			if v != 7 {
				t.Fatalf("expected 7, got %d", v)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("detached load never populated the cache")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
