package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"chronicle/internal/services"
	"chronicle/internal/stages"
	"chronicle/internal/store"
)

func segmentUpstream(t *testing.T, texts ...string) map[string][]byte {
	t.Helper()
	payload := SegmentPayload{}
	for i, text := range texts {
		payload.Segments = append(payload.Segments, Segment{Index: i, Text: text})
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal segments: %v", err)
	}
	return map[string][]byte{stages.Segment: raw}
}

func TestParserAttributesSpeakerTurns(t *testing.T) {
	upstream := segmentUpstream(t, "alice: I started a new job.\nbob: congrats!\nthat sounds great")

	out, err := Parser{}.Process(context.Background(), &store.WorkItem{}, upstream)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	var payload ParsePayload
	if err := json.Unmarshal(out, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(payload.Turns) != 2 {
		t.Fatalf("len(turns) = %d, want 2", len(payload.Turns))
	}
	if payload.Turns[0].Speaker != "Alice" {
		t.Fatalf("speaker = %q, want title-cased Alice", payload.Turns[0].Speaker)
	}
	// The unattributed line continues Bob's turn.
	if payload.Turns[1].Speaker != "Bob" || payload.Turns[1].Text != "congrats! that sounds great" {
		t.Fatalf("turns[1] = %+v", payload.Turns[1])
	}
}

func TestParserCreditsLeadingTextToNarrator(t *testing.T) {
	upstream := segmentUpstream(t, "It was a quiet afternoon.\nalice: hello")

	out, err := Parser{}.Process(context.Background(), &store.WorkItem{}, upstream)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	var payload ParsePayload
	if err := json.Unmarshal(out, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Turns[0].Speaker != narratorSpeaker {
		t.Fatalf("speaker = %q, want narrator", payload.Turns[0].Speaker)
	}
}

func TestParserTracksSegmentIndex(t *testing.T) {
	upstream := segmentUpstream(t, "alice: first segment", "bob: second segment")

	out, err := Parser{}.Process(context.Background(), &store.WorkItem{}, upstream)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	var payload ParsePayload
	if err := json.Unmarshal(out, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Turns[0].Segment != 0 || payload.Turns[1].Segment != 1 {
		t.Fatalf("turns = %+v, want per-segment indices", payload.Turns)
	}
}

func TestParserRejectsEmptySegmentPayload(t *testing.T) {
	raw, _ := json.Marshal(SegmentPayload{})
	_, err := Parser{}.Process(context.Background(), &store.WorkItem{}, map[string][]byte{stages.Segment: raw})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestSplitSpeakerHeuristics(t *testing.T) {
	cases := []struct {
		line        string
		wantSpeaker string
		wantOK      bool
	}{
		{"alice: hello", "alice", true},
		{"Dr Smith: take two of these", "Dr Smith", true},
		{"14:30 we left for the airport", "", false},
		{"192.168.0.1: ping", "", false},
		{"alice:", "", false},
		{": orphan text", "", false},
	}
	for _, tc := range cases {
		speaker, _, ok := splitSpeaker(tc.line)
		if ok != tc.wantOK || speaker != tc.wantSpeaker {
			t.Errorf("splitSpeaker(%q) = (%q, %v), want (%q, %v)", tc.line, speaker, ok, tc.wantSpeaker, tc.wantOK)
		}
	}
}
