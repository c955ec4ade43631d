package ingest

import (
	"context"
	"strings"

	"chronicle/internal/stages"
	"chronicle/internal/store"
)

// Merger implements the merge stage: it consolidates the enriched facts into
// one record per item, dropping near-duplicate facts (same normalized text)
// while keeping the first occurrence's provenance.
type Merger struct{}

func (Merger) Stage() string { return stages.Merge }

func (Merger) Process(ctx context.Context, item *store.WorkItem, upstream map[string][]byte) ([]byte, error) {
	var enriched EnrichPayload
	if err := decode(stages.Merge, upstream, stages.Enrich, &enriched); err != nil {
		return nil, err
	}

	seen := map[string]struct{}{}
	merged := make([]Fact, 0, len(enriched.Facts))
	for _, fact := range enriched.Facts {
		key := normalizeFact(fact.Text)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, fact)
	}

	payload := MergePayload{
		Label:    item.Label,
		Facts:    merged,
		Metadata: enriched.Metadata,
	}
	return encode(stages.Merge, payload)
}

func normalizeFact(text string) string {
	lowered := strings.ToLower(strings.TrimSpace(text))
	lowered = strings.TrimRight(lowered, ".!?")
	return strings.Join(strings.Fields(lowered), " ")
}
