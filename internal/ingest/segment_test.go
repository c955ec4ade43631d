package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"chronicle/internal/services"
	"chronicle/internal/store"
)

func sourceUpstream(text string) map[string][]byte {
	return map[string][]byte{store.SourceStage: []byte(text)}
}

func TestSegmenterSplitsOnBlankLinesAndMarkers(t *testing.T) {
	raw := "Alice: hello there\nBob: hi\n\nAlice: different topic now\n---\nBob: and a third one"

	out, err := Segmenter{}.Process(context.Background(), &store.WorkItem{}, sourceUpstream(raw))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	var payload SegmentPayload
	if err := json.Unmarshal(out, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(payload.Segments) != 3 {
		t.Fatalf("len(segments) = %d, want 3", len(payload.Segments))
	}
	for i, segment := range payload.Segments {
		if segment.Index != i {
			t.Fatalf("segments[%d].Index = %d", i, segment.Index)
		}
	}
	if payload.Segments[1].Text != "Alice: different topic now" {
		t.Fatalf("segments[1] = %q", payload.Segments[1].Text)
	}
}

func TestSegmenterSingleBlockYieldsOneSegment(t *testing.T) {
	out, err := Segmenter{}.Process(context.Background(), &store.WorkItem{}, sourceUpstream("just one line"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	var payload SegmentPayload
	if err := json.Unmarshal(out, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(payload.Segments) != 1 || payload.Segments[0].Text != "just one line" {
		t.Fatalf("segments = %+v", payload.Segments)
	}
}

func TestSegmenterRejectsMissingOrBlankSource(t *testing.T) {
	_, err := Segmenter{}.Process(context.Background(), &store.WorkItem{}, map[string][]byte{})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("missing source: err = %v, want not-found", err)
	}
	_, err = Segmenter{}.Process(context.Background(), &store.WorkItem{}, sourceUpstream("   \n  "))
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("blank source: err = %v, want not-found", err)
	}
}

func TestIsBoundaryMarker(t *testing.T) {
	cases := []struct {
		line string
		want bool
	}{
		{"---", true},
		{"=====", true},
		{"***", true},
		{"--", false},
		{"-- stray text", false},
		{"a-b-c", false},
	}
	for _, tc := range cases {
		if got := isBoundaryMarker(tc.line); got != tc.want {
			t.Errorf("isBoundaryMarker(%q) = %v, want %v", tc.line, got, tc.want)
		}
	}
}
