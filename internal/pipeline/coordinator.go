package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"chronicle/internal/logging"
	"chronicle/internal/services"
	"chronicle/internal/stages"
	"chronicle/internal/store"
)

// maxErrorMessageLen bounds error messages persisted to stage completions.
const maxErrorMessageLen = 4096

// Coordinator is the single integration point between stage workers and the
// store. It validates stage names against the dependency graph and computes
// eligibility; it performs no retries and surfaces every store error to the
// caller.
type Coordinator struct {
	store  *store.Store
	graph  *stages.Graph
	logger *slog.Logger
}

// NewCoordinator constructs a coordinator over a store and stage graph.
func NewCoordinator(st *store.Store, graph *stages.Graph, logger *slog.Logger) *Coordinator {
	if graph == nil {
		graph = stages.Default()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Coordinator{store: st, graph: graph, logger: logger}
}

// Graph returns the stage dependency graph the coordinator schedules against.
func (c *Coordinator) Graph() *stages.Graph {
	return c.graph
}

// ItemDraft carries the caller-supplied fields of a new work item.
type ItemDraft struct {
	Label                string
	ItemType             string
	SourceConversationID string
	SourceMessageID      string
	Source               string
	OriginalTimestamp    string
}

// EdgeDraft carries the caller-supplied fields of a new relationship edge.
type EdgeDraft struct {
	SourceItemID int64
	TargetItemID int64
	EdgeType     string
	Note         string
}

// CreateBatch inserts a new batch in pending status. An empty name is
// replaced with a generated one; metadata is stored as JSON.
func (c *Coordinator) CreateBatch(ctx context.Context, name string, metadata map[string]string) (*store.Batch, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "batch-" + uuid.NewString()[:8]
	}
	metadataJSON := ""
	if len(metadata) > 0 {
		encoded, err := json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("encode batch metadata: %w", err)
		}
		metadataJSON = string(encoded)
	}
	batch, err := c.store.InsertBatch(ctx, name, metadataJSON)
	if err != nil {
		return nil, err
	}
	c.logger.Info("batch created",
		logging.Int64(logging.FieldBatchID, batch.ID),
		logging.String("name", batch.Name),
	)
	return batch, nil
}

// AddWorkItem inserts a work item into a batch.
func (c *Coordinator) AddWorkItem(ctx context.Context, batchID int64, draft ItemDraft) (*store.WorkItem, error) {
	if strings.TrimSpace(draft.Label) == "" {
		return nil, services.Wrap(services.ErrValidation, "", "add work item", "label is required", nil)
	}
	return c.store.InsertWorkItem(ctx, &store.WorkItem{
		BatchID:              batchID,
		Label:                draft.Label,
		ItemType:             draft.ItemType,
		SourceConversationID: draft.SourceConversationID,
		SourceMessageID:      draft.SourceMessageID,
		Source:               draft.Source,
		OriginalTimestamp:    draft.OriginalTimestamp,
	})
}

// AddEdge inserts a relationship edge into a batch.
func (c *Coordinator) AddEdge(ctx context.Context, batchID int64, draft EdgeDraft) (*store.RelationshipEdge, error) {
	if strings.TrimSpace(draft.EdgeType) == "" {
		return nil, services.Wrap(services.ErrValidation, "", "add edge", "edge type is required", nil)
	}
	return c.store.InsertEdge(ctx, &store.RelationshipEdge{
		BatchID:      batchID,
		SourceItemID: draft.SourceItemID,
		TargetItemID: draft.TargetItemID,
		EdgeType:     draft.EdgeType,
		Note:         draft.Note,
	})
}

// NextEligibleItems returns the work items ready for a stage: every
// prerequisite stage completed and the stage itself not yet completed.
// Scope to one batch with batchID > 0; bound the result with limit > 0.
// This is a read, not a reservation: concurrent callers can observe the
// same items.
func (c *Coordinator) NextEligibleItems(ctx context.Context, stage string, batchID int64, limit int) ([]*store.WorkItem, error) {
	prereqs, ok := c.graph.Prerequisites(stage)
	if !ok {
		return nil, services.Wrap(services.ErrValidation, stage, "next eligible items", "unknown stage", nil)
	}
	return c.store.EligibleItems(ctx, stage, prereqs, batchID, limit)
}

// HasEligible reports whether at least one work item is ready for a stage.
func (c *Coordinator) HasEligible(ctx context.Context, stage string, batchID int64) (bool, error) {
	items, err := c.NextEligibleItems(ctx, stage, batchID, 1)
	if err != nil {
		return false, err
	}
	return len(items) > 0, nil
}

// SaveStageResult appends a stage result row. It does not alter completion
// state; MarkStageComplete is a separate, explicit acknowledgement.
func (c *Coordinator) SaveStageResult(ctx context.Context, itemID int64, stage string, payload []byte, processingTime time.Duration, producerVersion string) (*store.StageResult, error) {
	if !c.graph.Known(stage) {
		return nil, services.Wrap(services.ErrValidation, stage, "save stage result", "unknown stage", nil)
	}
	var seconds *float64
	if processingTime > 0 {
		v := processingTime.Seconds()
		seconds = &v
	}
	return c.store.InsertStageResult(ctx, itemID, stage, string(payload), seconds, producerVersion)
}

// MarkStageProcessing records that a worker has picked up an item for a
// stage. Advisory only; it does not prevent a concurrent claim.
func (c *Coordinator) MarkStageProcessing(ctx context.Context, itemID int64, stage string) error {
	if !c.graph.Known(stage) {
		return services.Wrap(services.ErrValidation, stage, "mark processing", "unknown stage", nil)
	}
	return c.store.MarkProcessing(ctx, itemID, stage)
}

// MarkStageComplete upserts the completion row for (item, stage) to
// completed. Idempotent: calling it twice leaves the same end state.
func (c *Coordinator) MarkStageComplete(ctx context.Context, itemID int64, stage string) error {
	if !c.graph.Known(stage) {
		return services.Wrap(services.ErrValidation, stage, "mark complete", "unknown stage", nil)
	}
	return c.store.MarkCompleted(ctx, itemID, stage)
}

// MarkStageFailed upserts the completion row for (item, stage) to failed,
// storing the error message (truncated when abnormally long) and incrementing
// the retry counter.
func (c *Coordinator) MarkStageFailed(ctx context.Context, itemID int64, stage, errorMessage string) error {
	if !c.graph.Known(stage) {
		return services.Wrap(services.ErrValidation, stage, "mark failed", "unknown stage", nil)
	}
	if len(errorMessage) > maxErrorMessageLen {
		errorMessage = errorMessage[:maxErrorMessageLen]
	}
	return c.store.MarkFailed(ctx, itemID, stage, errorMessage)
}

// StageCompletion returns the completion row for a (work item, stage) pair,
// or nil when none exists.
func (c *Coordinator) StageCompletion(ctx context.Context, itemID int64, stage string) (*store.StageCompletion, error) {
	return c.store.CompletionFor(ctx, itemID, stage)
}

// GetFailedItems returns items whose completion row for a stage is failed,
// for explicit bulk-resume tooling.
func (c *Coordinator) GetFailedItems(ctx context.Context, stage string, batchID int64) ([]*store.WorkItem, error) {
	if !c.graph.Known(stage) {
		return nil, services.Wrap(services.ErrValidation, stage, "get failed items", "unknown stage", nil)
	}
	return c.store.FailedItems(ctx, stage, batchID)
}

// ResetFailedForRetry flips failed completion rows for a stage back to
// pending and clears error state, enabling a fresh pass. Returns the number
// of rows reset.
func (c *Coordinator) ResetFailedForRetry(ctx context.Context, stage string, batchID int64) (int64, error) {
	if !c.graph.Known(stage) {
		return 0, services.Wrap(services.ErrValidation, stage, "reset failed", "unknown stage", nil)
	}
	count, err := c.store.ResetFailed(ctx, stage, batchID)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		c.logger.Info("failed completions reset",
			logging.String(logging.FieldStage, stage),
			logging.Int64(logging.FieldBatchID, batchID),
			logging.Int64("reset_count", count),
		)
	}
	return count, nil
}

// UpstreamPayloads loads the most recent result payload of every prerequisite
// stage for an item, keyed by stage name. For the first stage it loads the
// reserved source record written by the producer, when one exists.
func (c *Coordinator) UpstreamPayloads(ctx context.Context, itemID int64, stage string) (map[string][]byte, error) {
	prereqs, ok := c.graph.Prerequisites(stage)
	if !ok {
		return nil, services.Wrap(services.ErrValidation, stage, "load upstream", "unknown stage", nil)
	}
	upstream := make(map[string][]byte)
	if len(prereqs) == 0 {
		result, err := c.store.LatestStageResult(ctx, itemID, store.SourceStage)
		if err != nil {
			return nil, err
		}
		if result != nil {
			upstream[store.SourceStage] = []byte(result.Payload)
		}
		return upstream, nil
	}
	for _, prereq := range prereqs {
		result, err := c.store.LatestStageResult(ctx, itemID, prereq)
		if err != nil {
			return nil, err
		}
		if result == nil {
			return nil, services.Wrap(services.ErrNotFound, stage, "load upstream",
				fmt.Sprintf("no result recorded for prerequisite stage %s of item %d", prereq, itemID), nil)
		}
		upstream[prereq] = []byte(result.Payload)
	}
	return upstream, nil
}
