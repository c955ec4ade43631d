package ingest

import (
	"context"
	"strings"

	"chronicle/internal/stages"
	"chronicle/internal/store"
)

// Extractor implements the extract stage: it keeps the declarative sentences
// from each turn as candidate facts. A sentence counts as declarative when it
// carries a copula or a possessive-style verb, the signals the original
// heuristics keyed on.
type Extractor struct{}

func (Extractor) Stage() string { return stages.Extract }

var factSignals = []string{
	" is ", " are ", " was ", " were ",
	" has ", " have ", " had ",
	" lives ", " works ", " likes ", " prefers ",
}

func (Extractor) Process(ctx context.Context, item *store.WorkItem, upstream map[string][]byte) ([]byte, error) {
	var parsed ParsePayload
	if err := decode(stages.Extract, upstream, stages.Parse, &parsed); err != nil {
		return nil, err
	}

	payload := ExtractPayload{Facts: []Fact{}}
	for _, turn := range parsed.Turns {
		for _, sentence := range splitSentences(turn.Text) {
			if !isDeclarative(sentence) {
				continue
			}
			payload.Facts = append(payload.Facts, Fact{
				Text:    sentence,
				Speaker: turn.Speaker,
				Segment: turn.Segment,
			})
		}
	}
	// An empty fact list is a valid outcome; small talk carries no facts.
	return encode(stages.Extract, payload)
}

func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i, r := range text {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		sentence := strings.TrimSpace(text[start : i+1])
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		start = i + 1
	}
	if tail := strings.TrimSpace(text[start:]); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

func isDeclarative(sentence string) bool {
	if strings.HasSuffix(sentence, "?") {
		return false
	}
	lowered := " " + strings.ToLower(sentence) + " "
	for _, signal := range factSignals {
		if strings.Contains(lowered, signal) {
			return true
		}
	}
	return false
}
