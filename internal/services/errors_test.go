package services

import (
	"context"
	"errors"
	"testing"
)

func TestWrapTagsAndComposesDetail(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(ErrTransient, "segment", "save result", "insert failed", cause)

	if !errors.Is(err, ErrTransient) {
		t.Fatalf("err = %v, want transient marker", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("err = %v, want wrapped cause", err)
	}
	want := "transient failure: segment: save result: insert failed: disk full"
	if err.Error() != want {
		t.Fatalf("message = %q, want %q", err.Error(), want)
	}
}

func TestWrapOmitsEmptyParts(t *testing.T) {
	err := Wrap(ErrNotFound, "", "get batch", "", nil)
	if err.Error() != "not found: get batch" {
		t.Fatalf("message = %q", err.Error())
	}

	err = Wrap(nil, "", "", "", nil)
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("nil marker should default to transient, got %v", err)
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(Wrap(ErrValidation, "parse", "decode", "bad payload", nil)) {
		t.Fatal("validation errors are not retryable")
	}
	if IsRetryable(Wrap(ErrConfiguration, "", "load config", "", nil)) {
		t.Fatal("configuration errors are not retryable")
	}
	if !IsRetryable(Wrap(ErrTransient, "", "", "", nil)) {
		t.Fatal("transient errors are retryable")
	}
	if !IsRetryable(errors.New("unknown")) {
		t.Fatal("unclassified errors default to retryable")
	}
}

func TestContextAnnotations(t *testing.T) {
	ctx := context.Background()

	if _, ok := BatchIDFromContext(ctx); ok {
		t.Fatal("empty context should carry no batch ID")
	}

	ctx = WithBatchID(ctx, 7)
	ctx = WithItemID(ctx, 42)
	ctx = WithStage(ctx, "extract")
	ctx = WithRequestID(ctx, "req-1")

	if id, ok := BatchIDFromContext(ctx); !ok || id != 7 {
		t.Fatalf("batch ID = %d/%v", id, ok)
	}
	if id, ok := ItemIDFromContext(ctx); !ok || id != 42 {
		t.Fatalf("item ID = %d/%v", id, ok)
	}
	if stage, ok := StageFromContext(ctx); !ok || stage != "extract" {
		t.Fatalf("stage = %q/%v", stage, ok)
	}
	if reqID, ok := RequestIDFromContext(ctx); !ok || reqID != "req-1" {
		t.Fatalf("request ID = %q/%v", reqID, ok)
	}

	// Empty values are not stored.
	blank := WithStage(context.Background(), "")
	if _, ok := StageFromContext(blank); ok {
		t.Fatal("empty stage should not annotate context")
	}
}
