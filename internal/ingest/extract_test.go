package ingest

import (
	"context"
	"encoding/json"
	"testing"

	"chronicle/internal/stages"
	"chronicle/internal/store"
)

func parseUpstream(t *testing.T, turns ...Turn) map[string][]byte {
	t.Helper()
	raw, err := json.Marshal(ParsePayload{Turns: turns})
	if err != nil {
		t.Fatalf("marshal turns: %v", err)
	}
	return map[string][]byte{stages.Parse: raw}
}

func TestExtractorKeepsDeclarativeSentences(t *testing.T) {
	upstream := parseUpstream(t,
		Turn{Segment: 0, Speaker: "Alice", Text: "My sister lives in Portland. Do you want coffee? She works at a clinic."},
	)

	out, err := Extractor{}.Process(context.Background(), &store.WorkItem{}, upstream)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	var payload ExtractPayload
	if err := json.Unmarshal(out, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(payload.Facts) != 2 {
		t.Fatalf("facts = %+v, want the two declarative sentences", payload.Facts)
	}
	if payload.Facts[0].Text != "My sister lives in Portland." {
		t.Fatalf("facts[0] = %q", payload.Facts[0].Text)
	}
	if payload.Facts[0].Speaker != "Alice" || payload.Facts[0].Segment != 0 {
		t.Fatalf("facts[0] provenance = %+v", payload.Facts[0])
	}
}

func TestExtractorEmptyFactListIsValid(t *testing.T) {
	upstream := parseUpstream(t, Turn{Speaker: "Bob", Text: "ok. sure. sounds good."})

	out, err := Extractor{}.Process(context.Background(), &store.WorkItem{}, upstream)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	var payload ExtractPayload
	if err := json.Unmarshal(out, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(payload.Facts) != 0 {
		t.Fatalf("facts = %+v, want none from small talk", payload.Facts)
	}
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("One here. Two there! Is three a question? trailing fragment")
	want := []string{"One here.", "Two there!", "Is three a question?", "trailing fragment"}
	if len(got) != len(want) {
		t.Fatalf("sentences = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sentences[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestIsDeclarative(t *testing.T) {
	cases := []struct {
		sentence string
		want     bool
	}{
		{"She works downtown.", true},
		{"They were late.", true},
		{"Is it raining?", false},
		{"What a day!", false},
		{"He prefers tea over coffee.", true},
	}
	for _, tc := range cases {
		if got := isDeclarative(tc.sentence); got != tc.want {
			t.Errorf("isDeclarative(%q) = %v, want %v", tc.sentence, got, tc.want)
		}
	}
}
