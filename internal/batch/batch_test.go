package batch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JonMunkholm/catalogxlate/internal/clock"
)

func TestMinDurationFor(t *testing.T) {
	tests := []struct {
		name      string
		batchSize int
		rps       float64
		want      time.Duration
	}{
		{"ten at five per second", 10, 5, 2 * time.Second},
		{"three at six per second", 3, 6, 500 * time.Millisecond},
		{"zero rate disables pacing", 10, 0, 0},
		{"zero batch disables pacing", 0, 5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MinDurationFor(tt.batchSize, tt.rps); got != tt.want {
				t.Errorf("MinDurationFor(%d, %v) = %v, want %v", tt.batchSize, tt.rps, got, tt.want)
			}
		})
	}
}

func TestRun_EmptyInput(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	called := false

	got, err := Run(context.Background(), []int{}, func(ctx context.Context, n int) (int, error) {
		called = true
		return n, nil
	}, Options{BatchSize: 2, MinDuration: time.Second, Clock: fc})

	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("len(results) = %d, want 0", len(got))
	}
	if called {
		t.Error("process called for empty input")
	}
	if n := len(fc.Sleeps()); n != 0 {
		t.Errorf("sleeps = %d, want 0", n)
	}
}

func TestRun_SingleChunkDoesNotSleep(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))

	got, err := Run(context.Background(), []int{1, 2, 3}, func(ctx context.Context, n int) (int, error) {
		return n * 10, nil
	}, Options{BatchSize: 5, MinDuration: time.Minute, Clock: fc})

	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := []int{10, 20, 30}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("results[%d] = %d, want %d", i, got[i], want[i])
		}
	}
	if n := len(fc.Sleeps()); n != 0 {
		t.Errorf("sleeps = %d, want 0", n)
	}
}

func TestRun_PacesBetweenChunks(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	minDur := MinDurationFor(2, 4) // 500ms per chunk

	_, err := Run(context.Background(), []int{1, 2, 3, 4, 5}, func(ctx context.Context, n int) (int, error) {
		return n, nil
	}, Options{BatchSize: 2, MinDuration: minDur, Clock: fc})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	sleeps := fc.Sleeps()
	if len(sleeps) != 2 {
		t.Fatalf("sleeps = %v, want 2 entries", sleeps)
	}
	for i, d := range sleeps {
		if d != minDur {
			t.Errorf("sleep[%d] = %v, want %v", i, d, minDur)
		}
	}

	// Three chunks at 2 items / 500ms: elapsed time covers the two paced gaps.
	if elapsed := fc.Now().Sub(time.Unix(0, 0)); elapsed < 2*minDur {
		t.Errorf("elapsed = %v, want >= %v", elapsed, 2*minDur)
	}
}

func TestRun_SleepsOnlyTheRemainder(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))

	_, err := Run(context.Background(), []int{1, 2, 3, 4}, func(ctx context.Context, n int) (int, error) {
		fc.Advance(100 * time.Millisecond)
		return n, nil
	}, Options{BatchSize: 2, MinDuration: time.Second, Clock: fc})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	sleeps := fc.Sleeps()
	if len(sleeps) != 1 {
		t.Fatalf("sleeps = %v, want 1 entry", sleeps)
	}
	if sleeps[0] != 800*time.Millisecond {
		t.Errorf("sleep = %v, want 800ms", sleeps[0])
	}
}

func TestRun_BoundsInFlight(t *testing.T) {
	const batchSize = 3
	var inFlight, peak atomic.Int32
	var mu sync.Mutex
	release := make(chan struct{})

	items := make([]int, 10)
	for i := range items {
		items[i] = i
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = Run(context.Background(), items, func(ctx context.Context, n int) (int, error) {
			cur := inFlight.Add(1)
			mu.Lock()
			if cur > peak.Load() {
				peak.Store(cur)
			}
			mu.Unlock()
			<-release
			inFlight.Add(-1)
			return n, nil
		}, Options{BatchSize: batchSize, Clock: clock.NewFake(time.Unix(0, 0))})
	}()

	// Let each chunk fill up before releasing it.
	for released := 0; released < len(items); {
		deadline := time.Now().Add(2 * time.Second)
		want := int32(min(batchSize, len(items)-released))
		for inFlight.Load() < want {
			if time.Now().After(deadline) {
				t.Fatalf("in-flight = %d, want %d", inFlight.Load(), want)
			}
			time.Sleep(time.Millisecond)
		}
		for i := int32(0); i < want; i++ {
			release <- struct{}{}
		}
		released += int(want)
	}
	<-done

	if got := peak.Load(); got != batchSize {
		t.Errorf("peak in-flight = %d, want %d", got, batchSize)
	}
}

func TestRun_SettlesAllAndAggregates(t *testing.T) {
	errOdd := errors.New("odd")
	var calls atomic.Int32

	got, err := Run(context.Background(), []int{1, 2, 3, 4, 5}, func(ctx context.Context, n int) (int, error) {
		calls.Add(1)
		if n%2 == 1 {
			return 0, errOdd
		}
		return n, nil
	}, Options{BatchSize: 2, Clock: clock.NewFake(time.Unix(0, 0))})

	if calls.Load() != 5 {
		t.Errorf("calls = %d, want 5", calls.Load())
	}

	agg, ok := AsError(err)
	if !ok {
		t.Fatalf("error = %v, want *Error", err)
	}
	if agg.Total != 5 || len(agg.Failures) != 3 {
		t.Errorf("aggregate = %d/%d, want 3/5", len(agg.Failures), agg.Total)
	}
	wantIdx := []int{0, 2, 4}
	for i, f := range agg.Failures {
		if f.Index != wantIdx[i] {
			t.Errorf("failure[%d].Index = %d, want %d", i, f.Index, wantIdx[i])
		}
	}
	if !errors.Is(err, errOdd) {
		t.Error("errors.Is(err, errOdd) = false, want true")
	}
	if !agg.Failed(2) || agg.Failed(1) {
		t.Error("Failed() does not match failures")
	}
	if got[1] != 2 || got[3] != 4 {
		t.Errorf("results = %v, want successes in place", got)
	}
}

func TestRun_StopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32

	_, err := Run(ctx, []int{1, 2, 3, 4}, func(ctx context.Context, n int) (int, error) {
		calls.Add(1)
		cancel()
		return n, nil
	}, Options{BatchSize: 1, Clock: clock.NewFake(time.Unix(0, 0))})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}
