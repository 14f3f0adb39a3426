package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DRSN-tech/metric-embedder/internal/cfg"
	"github.com/DRSN-tech/metric-embedder/internal/usecase"
	"github.com/DRSN-tech/metric-embedder/pkg/logger"
	"github.com/go-chi/chi/v5"
)

type stubStatusUC struct {
	st  *usecase.Status
	err error
}

func (s stubStatusUC) Status(context.Context) (*usecase.Status, error) { return s.st, s.err }

func newTestRouter(uc usecase.StatusUC) http.Handler {
	r := NewRouter(chi.NewRouter(), logger.NewNop())
	r.Init(uc)
	return r.Handler()
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(stubStatusUC{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}

func TestGetStatus(t *testing.T) {
	last := usecase.NewTickResult("tick-1", time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC))
	last.BatchIDs = []int64{1, 2}
	last.FailedStage = usecase.StageUpserting
	last.Err = errors.New("sink error: unavailable")
	stored := uint64(40)

	uc := stubStatusUC{st: &usecase.Status{
		Collection:        "metrics",
		BufferedSnapshots: 2,
		StoredPoints:      &stored,
		Ticks:             5,
		LastTick:          last,
	}}

	rec := httptest.NewRecorder()
	newTestRouter(uc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var got statusDTO
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.BufferedSnapshots != 2 || got.Ticks != 5 || got.StoredPoints == nil || *got.StoredPoints != 40 {
		t.Fatalf("unexpected body %+v", got)
	}
	if got.LastTick == nil || got.LastTick.OK || got.LastTick.FailedStage != "upserting" || got.LastTick.BatchSize != 2 {
		t.Fatalf("unexpected last tick %+v", got.LastTick)
	}
}

func TestGetStatusError(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(stubStatusUC{err: errors.New("database is locked")}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var got ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Message != "internal server error" {
		t.Fatalf("internal error leaked: %q", got.Message)
	}
}

func TestServerStopEndsRunWithoutError(t *testing.T) {
	srv := NewServer(newTestRouter(stubStatusUC{}), &cfg.HTTPConfig{Port: "0", ReadTimeout: time.Second})

	done := make(chan error, 1)
	go func() { done <- srv.Run() }()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v after stop", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after stop")
	}
}
