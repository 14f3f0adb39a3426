package e

import (
	"errors"
	"testing"
)

func TestStageKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")

	err := Stage(ErrFetch, Wrap("Fetcher.Fetch", cause))
	if !errors.Is(err, ErrFetch) {
		t.Fatalf("expected ErrFetch in chain, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause in chain, got %v", err)
	}
	if errors.Is(err, ErrSink) {
		t.Fatalf("unexpected ErrSink in chain: %v", err)
	}
}

func TestStageDoesNotDoubleWrap(t *testing.T) {
	err := Stage(ErrBuffer, errors.New("disk full"))
	again := Stage(ErrBuffer, err)
	if again != err {
		t.Fatalf("expected the same error back, got %v", again)
	}
}

func TestStageNil(t *testing.T) {
	if err := Stage(ErrSink, nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}
