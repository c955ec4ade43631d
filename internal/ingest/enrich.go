package ingest

import (
	"context"
	"sort"
	"strings"

	"chronicle/internal/services"
	"chronicle/internal/stages"
	"chronicle/internal/store"
)

// Enricher implements the enrich stage: it annotates the extracted facts with
// chunk metadata derived from the parse output and the item's provenance
// fields.
type Enricher struct{}

func (Enricher) Stage() string { return stages.Enrich }

const maxKeywords = 8

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "for": {}, "from": {}, "had": {}, "has": {},
	"have": {}, "he": {}, "her": {}, "his": {}, "i": {}, "in": {}, "is": {},
	"it": {}, "its": {}, "my": {}, "not": {}, "of": {}, "on": {}, "or": {},
	"she": {}, "so": {}, "that": {}, "the": {}, "their": {}, "they": {},
	"this": {}, "to": {}, "was": {}, "we": {}, "were": {}, "with": {},
	"you": {}, "your": {},
}

func (Enricher) Process(ctx context.Context, item *store.WorkItem, upstream map[string][]byte) ([]byte, error) {
	var extracted ExtractPayload
	if err := decode(stages.Enrich, upstream, stages.Extract, &extracted); err != nil {
		return nil, err
	}
	if item == nil {
		return nil, services.Wrap(services.ErrValidation, stages.Enrich, "read item", "work item is nil", nil)
	}

	participants := map[string]struct{}{}
	frequencies := map[string]int{}
	wordCount := 0
	for _, fact := range extracted.Facts {
		if fact.Speaker != "" && fact.Speaker != narratorSpeaker {
			participants[fact.Speaker] = struct{}{}
		}
		for _, word := range strings.Fields(strings.ToLower(fact.Text)) {
			word = strings.Trim(word, ".,!?;:\"'()")
			wordCount++
			if len(word) < 3 {
				continue
			}
			if _, skip := stopwords[word]; skip {
				continue
			}
			frequencies[word]++
		}
	}

	payload := EnrichPayload{
		Facts: extracted.Facts,
		Metadata: Metadata{
			Participants:   sortedKeys(participants),
			WordCount:      wordCount,
			Keywords:       topKeywords(frequencies, maxKeywords),
			Source:         item.Source,
			ConversationID: item.SourceConversationID,
			Timestamp:      item.OriginalTimestamp,
		},
	}
	return encode(stages.Enrich, payload)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func topKeywords(frequencies map[string]int, limit int) []string {
	type entry struct {
		word  string
		count int
	}
	entries := make([]entry, 0, len(frequencies))
	for word, count := range frequencies {
		entries = append(entries, entry{word, count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].word < entries[j].word
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	keywords := make([]string, 0, len(entries))
	for _, e := range entries {
		keywords = append(keywords, e.word)
	}
	return keywords
}
