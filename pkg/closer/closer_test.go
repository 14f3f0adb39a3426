package closer

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestCloseRunsInReverseOrder(t *testing.T) {
	c := NewCloser(0)
	var order []string
	for _, name := range []string{"buffer", "qdrant", "worker"} {
		c.AddFunc(name, func() error {
			order = append(order, name)
			return nil
		})
	}

	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !reflect.DeepEqual(order, []string{"worker", "qdrant", "buffer"}) {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestCloseCollectsErrors(t *testing.T) {
	c := NewCloser(0)
	closed := false
	c.AddFunc("buffer", func() error { closed = true; return nil })
	c.AddFunc("redis", func() error { return errors.New("connection reset") })

	err := c.Close(context.Background())
	if err == nil || !strings.Contains(err.Error(), "redis: connection reset") {
		t.Fatalf("expected named error, got %v", err)
	}
	if !closed {
		t.Fatal("error in one func must not stop the rest")
	}
}

func TestCloseIsOnce(t *testing.T) {
	c := NewCloser(0)
	calls := 0
	c.AddFunc("x", func() error { calls++; return nil })

	_ = c.Close(context.Background())
	_ = c.Close(context.Background())
	if calls != 1 {
		t.Fatalf("expected one call, got %d", calls)
	}
}

func TestCloseFinishesRemainingOnTimeout(t *testing.T) {
	c := NewCloser(100 * time.Millisecond)
	var (
		mu     sync.Mutex
		closed bool
	)
	c.AddFunc("buffer", func() error {
		mu.Lock()
		closed = true
		mu.Unlock()
		return nil
	})
	c.Add("worker", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.Close(ctx)
	if err == nil || !strings.Contains(err.Error(), "worker") {
		t.Fatalf("expected worker error, got %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if !closed {
		t.Fatal("remaining resources must still be closed")
	}
}
