package ingest

import (
	"encoding/json"

	"chronicle/internal/services"
)

// Payload shapes are owned by the producing stage and consumed only by the
// next stage. They are versioned informally through the producer_version
// recorded on each stage result.

// SegmentPayload is the segment stage's output: the chunk split at topic
// boundaries.
type SegmentPayload struct {
	Segments []Segment `json:"segments"`
}

// Segment is one boundary-delimited span of the source text.
type Segment struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// ParsePayload is the parse stage's output: speaker turns per segment.
type ParsePayload struct {
	Turns []Turn `json:"turns"`
}

// Turn is one attributed utterance.
type Turn struct {
	Segment int    `json:"segment"`
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// ExtractPayload is the extract stage's output: declarative facts found in
// the turns.
type ExtractPayload struct {
	Facts []Fact `json:"facts"`
}

// Fact is one extracted statement with its provenance.
type Fact struct {
	Text    string `json:"text"`
	Speaker string `json:"speaker,omitempty"`
	Segment int    `json:"segment"`
}

// Metadata summarizes a chunk for downstream consumers.
type Metadata struct {
	Participants   []string `json:"participants"`
	WordCount      int      `json:"word_count"`
	Keywords       []string `json:"keywords"`
	Source         string   `json:"source,omitempty"`
	ConversationID string   `json:"conversation_id,omitempty"`
	Timestamp      string   `json:"timestamp,omitempty"`
}

// EnrichPayload is the enrich stage's output: the facts annotated with chunk
// metadata.
type EnrichPayload struct {
	Facts    []Fact   `json:"facts"`
	Metadata Metadata `json:"metadata"`
}

// MergePayload is the merge stage's output: one consolidated record per item.
type MergePayload struct {
	Label    string   `json:"label"`
	Facts    []Fact   `json:"facts"`
	Metadata Metadata `json:"metadata"`
}

// ClassifyPayload is the terminal classify stage's output.
type ClassifyPayload struct {
	Label      string   `json:"label"`
	Topics     []string `json:"topics"`
	Confidence float64  `json:"confidence"`
}

func decode[T any](stage string, upstream map[string][]byte, key string, out *T) error {
	raw, ok := upstream[key]
	if !ok || len(raw) == 0 {
		return services.Wrap(services.ErrNotFound, stage, "decode upstream",
			"no payload recorded for stage "+key, nil)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return services.Wrap(services.ErrValidation, stage, "decode upstream",
			"payload from stage "+key+" is not valid JSON", err)
	}
	return nil
}

func encode(stage string, value any) ([]byte, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, stage, "encode payload", "", err)
	}
	return payload, nil
}
