package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/DRSN-tech/metric-embedder/internal/cfg"
	"github.com/DRSN-tech/metric-embedder/pkg/e"
)

const exposition = "# HELP up Target is up.\n# TYPE up gauge\nup 1\n"

func TestFetchReturnsBodyVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("unexpected method %s", r.Method)
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(exposition))
	}))
	defer srv.Close()

	f := NewFetcher(&cfg.CaptureCfg{MetricsURL: srv.URL, FetchTimeout: time.Second})
	got, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got != exposition {
		t.Fatalf("body altered: %q", got)
	}
}

func TestFetchReplacesInvalidUTF8(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("a\xffb"))
	}))
	defer srv.Close()

	f := NewFetcherWithClient(srv.URL, time.Second, nil)
	got, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !utf8.ValidString(got) {
		t.Fatalf("payload is not valid UTF-8: %q", got)
	}
	if got != "a\uFFFDb" {
		t.Fatalf("unexpected payload %q", got)
	}
}

func TestFetchFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		timeout time.Duration
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			timeout: time.Second,
		},
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.NotFound(w, r)
			},
			timeout: time.Second,
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-time.After(time.Second):
				case <-r.Context().Done():
				}
			},
			timeout: 50 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			f := NewFetcherWithClient(srv.URL, tt.timeout, nil)
			if _, err := f.Fetch(context.Background()); !errors.Is(err, e.ErrFetch) {
				t.Fatalf("expected ErrFetch, got %v", err)
			}
		})
	}
}

func TestFetchUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	f := NewFetcherWithClient(url, time.Second, nil)
	if _, err := f.Fetch(context.Background()); !errors.Is(err, e.ErrFetch) {
		t.Fatalf("expected ErrFetch, got %v", err)
	}
}
