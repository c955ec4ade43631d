package ingest

import (
	"context"

	"chronicle/internal/pipeline"
	"chronicle/internal/services"
	"chronicle/internal/store"
)

// Producer loads conversation chunks into a batch: one work item plus a raw
// source record per chunk. The source record is what the segment stage reads
// as its upstream input.
type Producer struct {
	coord *pipeline.Coordinator
	store *store.Store
}

// NewProducer constructs a producer over the coordinator and store.
func NewProducer(coord *pipeline.Coordinator, st *store.Store) *Producer {
	return &Producer{coord: coord, store: st}
}

// Chunk is one unit of raw input to load.
type Chunk struct {
	Label                string
	ItemType             string
	Source               string
	SourceConversationID string
	SourceMessageID      string
	OriginalTimestamp    string
	Text                 string
}

// AddChunk inserts the work item and its raw source record.
func (p *Producer) AddChunk(ctx context.Context, batchID int64, chunk Chunk) (*store.WorkItem, error) {
	if chunk.Text == "" {
		return nil, services.Wrap(services.ErrValidation, "", "add chunk", "text is required", nil)
	}
	item, err := p.coord.AddWorkItem(ctx, batchID, pipeline.ItemDraft{
		Label:                chunk.Label,
		ItemType:             chunk.ItemType,
		SourceConversationID: chunk.SourceConversationID,
		SourceMessageID:      chunk.SourceMessageID,
		Source:               chunk.Source,
		OriginalTimestamp:    chunk.OriginalTimestamp,
	})
	if err != nil {
		return nil, err
	}
	// Raw text is stage-owned data, not a pipeline output, so it bypasses the
	// coordinator's stage-name validation on purpose.
	if _, err := p.store.InsertStageResult(ctx, item.ID, store.SourceStage, chunk.Text, nil, chunk.Source); err != nil {
		return nil, err
	}
	return item, nil
}
