package ingest

import (
	"context"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"chronicle/internal/stages"
	"chronicle/internal/store"
)

// Classifier implements the terminal classify stage: it assigns a topic label
// from keyword evidence in the merged record. Unmatched records fall back to
// a general label with low confidence.
type Classifier struct{}

func (Classifier) Stage() string { return stages.Classify }

// topicTable maps keyword evidence to topic labels. Order matters: earlier
// rows win ties.
var topicTable = []struct {
	topic    string
	keywords []string
}{
	{"work", []string{"work", "works", "project", "meeting", "deadline", "job", "office", "team"}},
	{"health", []string{"doctor", "sleep", "exercise", "diet", "sick", "health", "medication"}},
	{"travel", []string{"trip", "flight", "travel", "hotel", "visit", "vacation"}},
	{"family", []string{"family", "mother", "father", "sister", "brother", "kids", "parents"}},
	{"preferences", []string{"likes", "prefers", "favorite", "enjoys", "hates"}},
}

const fallbackTopic = "general"

var topicCaser = cases.Title(language.English)

func (Classifier) Process(ctx context.Context, item *store.WorkItem, upstream map[string][]byte) ([]byte, error) {
	var merged MergePayload
	if err := decode(stages.Classify, upstream, stages.Merge, &merged); err != nil {
		return nil, err
	}

	evidence := map[string]struct{}{}
	for _, keyword := range merged.Metadata.Keywords {
		evidence[keyword] = struct{}{}
	}

	var (
		topics    []string
		bestTopic string
		bestHits  int
	)
	for _, row := range topicTable {
		hits := 0
		for _, keyword := range row.keywords {
			if _, ok := evidence[keyword]; ok {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		topics = append(topics, row.topic)
		if hits > bestHits {
			bestHits = hits
			bestTopic = row.topic
		}
	}

	payload := ClassifyPayload{}
	if bestTopic == "" {
		payload.Label = topicCaser.String(fallbackTopic)
		payload.Topics = []string{fallbackTopic}
		payload.Confidence = 0.25
	} else {
		payload.Label = topicCaser.String(bestTopic)
		payload.Topics = topics
		payload.Confidence = confidence(bestHits)
	}
	return encode(stages.Classify, payload)
}

func confidence(hits int) float64 {
	score := 0.5 + 0.15*float64(hits)
	if score > 0.95 {
		score = 0.95
	}
	return score
}
