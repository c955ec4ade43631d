package ingest

import (
	"context"
	"strings"

	"chronicle/internal/services"
	"chronicle/internal/stages"
	"chronicle/internal/store"
)

// Segmenter implements the segment stage: boundary detection over the raw
// chunk text a producer recorded under the reserved source stage. Boundaries
// are blank lines and horizontal-rule markers.
type Segmenter struct{}

func (Segmenter) Stage() string { return stages.Segment }

func (Segmenter) Process(ctx context.Context, item *store.WorkItem, upstream map[string][]byte) ([]byte, error) {
	raw, ok := upstream[store.SourceStage]
	if !ok || len(strings.TrimSpace(string(raw))) == 0 {
		return nil, services.Wrap(services.ErrNotFound, stages.Segment, "load source",
			"no source payload recorded for this item", nil)
	}

	payload := SegmentPayload{}
	for _, block := range splitSegments(string(raw)) {
		payload.Segments = append(payload.Segments, Segment{
			Index: len(payload.Segments),
			Text:  block,
		})
	}
	if len(payload.Segments) == 0 {
		return nil, services.Wrap(services.ErrValidation, stages.Segment, "detect boundaries",
			"source text contains no segments", nil)
	}
	return encode(stages.Segment, payload)
}

func splitSegments(text string) []string {
	var (
		segments []string
		current  []string
	)
	flush := func() {
		joined := strings.TrimSpace(strings.Join(current, "\n"))
		if joined != "" {
			segments = append(segments, joined)
		}
		current = current[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || isBoundaryMarker(trimmed) {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()
	return segments
}

func isBoundaryMarker(line string) bool {
	if len(line) < 3 {
		return false
	}
	for _, r := range line {
		if r != '-' && r != '=' && r != '*' {
			return false
		}
	}
	return true
}
