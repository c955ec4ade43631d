package pipeline

import (
	"context"
	"time"

	"chronicle/internal/services"
	"chronicle/internal/store"
)

// StageCount reports completion tallies for one stage within a batch.
type StageCount struct {
	Stage      string
	Pending    int
	Processing int
	Completed  int
	Failed     int
}

// BatchReport aggregates per-stage completion counts for a batch alongside
// the batch's own counters.
type BatchReport struct {
	Batch  *store.Batch
	Stages []StageCount
}

// BatchStatus returns, for each stage in order, the completion counts scoped
// to the batch's work items, plus the batch row itself. Counters on the batch
// are refreshed from the store before reporting.
func (c *Coordinator) BatchStatus(ctx context.Context, batchID int64) (*BatchReport, error) {
	if err := c.RefreshBatchCounters(ctx, batchID); err != nil {
		return nil, err
	}
	batch, err := c.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, services.Wrap(services.ErrNotFound, "", "batch status", "batch does not exist", nil)
	}

	counts, err := c.store.StageCounts(ctx, batchID)
	if err != nil {
		return nil, err
	}

	report := &BatchReport{Batch: batch}
	for _, stage := range c.graph.StageOrder() {
		entry := counts[stage]
		report.Stages = append(report.Stages, StageCount{
			Stage:      stage,
			Pending:    entry.Pending,
			Processing: entry.Processing,
			Completed:  entry.Completed,
			Failed:     entry.Failed,
		})
	}
	return report, nil
}

// RefreshBatchCounters recomputes a batch's total/processed/failed counters
// from its work items and terminal-stage completions, and rolls the batch
// status forward when processing starts and when every item has reached a
// terminal outcome.
func (c *Coordinator) RefreshBatchCounters(ctx context.Context, batchID int64) error {
	batch, err := c.store.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if batch == nil {
		return services.Wrap(services.ErrNotFound, "", "refresh batch counters", "batch does not exist", nil)
	}

	total, err := c.store.CountItemsByBatch(ctx, batchID)
	if err != nil {
		return err
	}
	counts, err := c.store.StageCounts(ctx, batchID)
	if err != nil {
		return err
	}

	terminal := counts[c.graph.Terminal()]
	anyActivity := false
	anyFailed := false
	for _, entry := range counts {
		if entry.Pending+entry.Processing+entry.Completed+entry.Failed > 0 {
			anyActivity = true
		}
		if entry.Failed > 0 {
			anyFailed = true
		}
	}

	batch.TotalItems = total
	batch.ProcessedItems = terminal.Completed
	batch.FailedItems = terminal.Failed

	switch {
	case total > 0 && terminal.Completed+terminal.Failed == total:
		if terminal.Failed > 0 {
			batch.Status = store.BatchFailed
		} else {
			batch.Status = store.BatchCompleted
		}
		if batch.CompletedAt == nil {
			now := time.Now().UTC()
			batch.CompletedAt = &now
		}
		if batch.StartedAt == nil {
			batch.StartedAt = batch.CompletedAt
		}
	case anyActivity || anyFailed:
		batch.Status = store.BatchProcessing
		if batch.StartedAt == nil {
			now := time.Now().UTC()
			batch.StartedAt = &now
		}
		batch.CompletedAt = nil
	default:
		batch.Status = store.BatchPending
	}

	return c.store.UpdateBatch(ctx, batch)
}
