package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DRSN-tech/metric-embedder/internal/usecase"
	"github.com/DRSN-tech/metric-embedder/pkg/logger"
)

type stubUC struct {
	mu     sync.Mutex
	starts []time.Time
	ends   []time.Time
	took   time.Duration
	fail   bool
	ticked chan struct{}
}

func (s *stubUC) Tick(ctx context.Context) *usecase.TickResult {
	start := time.Now()
	res := usecase.NewTickResult("t", start)
	select {
	case <-time.After(s.took):
	case <-ctx.Done():
	}

	s.mu.Lock()
	s.starts = append(s.starts, start)
	s.ends = append(s.ends, time.Now())
	s.mu.Unlock()

	if s.fail {
		res.FailedStage = usecase.StageFetching
		res.Err = errors.New("exporter down")
	}
	select {
	case s.ticked <- struct{}{}:
	default:
	}
	return res
}

func (s *stubUC) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.starts)
}

func waitTicks(t *testing.T, uc *stubUC, n int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for uc.count() < n {
		select {
		case <-uc.ticked:
		case <-deadline:
			t.Fatalf("only %d of %d ticks ran", uc.count(), n)
		}
	}
}

func TestWorkerKeepsTickingAfterFailures(t *testing.T) {
	uc := &stubUC{fail: true, ticked: make(chan struct{}, 1)}
	w := NewCaptureWorker(uc, 10*time.Millisecond, logger.NewNop())

	w.Start(context.Background())
	waitTicks(t, uc, 3)
	w.Stop()

	last, ticks := w.LastResult()
	if last == nil || last.OK() {
		t.Fatalf("expected failed last result, got %+v", last)
	}
	if ticks < 3 {
		t.Fatalf("expected at least 3 ticks, got %d", ticks)
	}
}

func TestWorkerIntervalCountsFromTickEnd(t *testing.T) {
	const (
		took     = 30 * time.Millisecond
		interval = 20 * time.Millisecond
	)
	uc := &stubUC{took: took, ticked: make(chan struct{}, 1)}
	w := NewCaptureWorker(uc, interval, logger.NewNop())

	w.Start(context.Background())
	waitTicks(t, uc, 3)
	w.Stop()

	uc.mu.Lock()
	defer uc.mu.Unlock()
	for i := 1; i < len(uc.starts); i++ {
		if gap := uc.starts[i].Sub(uc.ends[i-1]); gap < interval {
			t.Fatalf("tick %d started %v after previous ended, want >= %v", i, gap, interval)
		}
		if uc.starts[i].Before(uc.ends[i-1]) {
			t.Fatalf("ticks %d and %d overlap", i-1, i)
		}
	}
}

func TestWorkerStopAbandonsInFlightTick(t *testing.T) {
	uc := &stubUC{took: time.Hour, ticked: make(chan struct{}, 1)}
	w := NewCaptureWorker(uc, time.Hour, logger.NewNop())

	w.Start(context.Background())
	time.Sleep(20 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		w.Stop()
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not interrupt the running tick")
	}
}

func TestWorkerStopsOnContextCancel(t *testing.T) {
	uc := &stubUC{ticked: make(chan struct{}, 1)}
	w := NewCaptureWorker(uc, time.Hour, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	waitTicks(t, uc, 1)
	cancel()

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit after context cancellation")
	}
	if uc.count() != 1 {
		t.Fatalf("expected exactly one tick, got %d", uc.count())
	}
}

func TestWorkerDoesNotRecordInterruptedTick(t *testing.T) {
	uc := &stubUC{took: time.Hour, fail: true, ticked: make(chan struct{}, 1)}
	w := NewCaptureWorker(uc, time.Hour, logger.NewNop())

	w.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	w.Stop()

	if uc.count() != 1 {
		t.Fatalf("expected the running tick to be interrupted, got %d ticks", uc.count())
	}
	if last, ticks := w.LastResult(); last != nil || ticks != 0 {
		t.Fatalf("interrupted tick recorded: %+v (%d)", last, ticks)
	}
}
