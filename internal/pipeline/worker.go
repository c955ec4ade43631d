package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"chronicle/internal/config"
	"chronicle/internal/logging"
	"chronicle/internal/services"
	"chronicle/internal/store"
)

// Processor is the contract stage-specific logic satisfies. Process receives
// the most recent payload of each prerequisite stage keyed by stage name (the
// reserved source record for the first stage) and returns the stage's output
// payload. It must not write to the store itself.
type Processor interface {
	Stage() string
	Process(ctx context.Context, item *store.WorkItem, upstream map[string][]byte) ([]byte, error)
}

// Worker drives one stage: wait for data, claim one eligible item, invoke the
// processor, persist the result and completion. Item failures are isolated;
// the worker records them and moves on.
type Worker struct {
	coord  *Coordinator
	waiter *Waiter
	proc   Processor
	logger *slog.Logger

	pollInterval       time.Duration
	maxWait            time.Duration
	errorRetryInterval time.Duration
	maxRetries         int
	producerVersion    string
}

// NewWorker constructs a worker for the processor's stage using the workflow
// settings from cfg.
func NewWorker(coord *Coordinator, proc Processor, logger *slog.Logger, cfg *config.Config) *Worker {
	if logger == nil {
		logger = logging.NewNop()
	}
	workflow := config.Default().Workflow
	producerVersion := config.Default().Ingest.ProducerVersion
	if cfg != nil {
		workflow = cfg.Workflow
		producerVersion = cfg.Ingest.ProducerVersion
	}
	logger = logger.With(logging.String(logging.FieldStage, proc.Stage()))
	return &Worker{
		coord:              coord,
		waiter:             NewWaiter(coord, logger, time.Duration(workflow.ReportInterval)*time.Second),
		proc:               proc,
		logger:             logger,
		pollInterval:       time.Duration(workflow.PollInterval) * time.Second,
		maxWait:            time.Duration(workflow.MaxWait) * time.Second,
		errorRetryInterval: time.Duration(workflow.ErrorRetryInterval) * time.Second,
		maxRetries:         workflow.MaxRetries,
		producerVersion:    producerVersion,
	}
}

// PassOptions configures a single stage pass.
type PassOptions struct {
	// BatchID scopes the pass to one batch when > 0.
	BatchID int64
	// Limit bounds the number of items processed; <= 0 means all eligible.
	Limit int
	// ResumeFailed resets failed completion rows for the stage before the
	// pass, so previously failed items are re-attempted immediately.
	ResumeFailed bool
}

// PassSummary reports the outcome of one stage pass.
type PassSummary struct {
	Processed int
	Failed    int
	Skipped   int
}

// RunPass processes every currently eligible item for the worker's stage,
// subject to the options. One item's failure never stops the pass.
func (w *Worker) RunPass(ctx context.Context, opts PassOptions) (PassSummary, error) {
	stage := w.proc.Stage()
	summary := PassSummary{}

	if opts.ResumeFailed {
		if _, err := w.coord.ResetFailedForRetry(ctx, stage, opts.BatchID); err != nil {
			return summary, err
		}
	}

	items, err := w.coord.NextEligibleItems(ctx, stage, opts.BatchID, opts.Limit)
	if err != nil {
		return summary, err
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		skip, err := w.retryExhausted(ctx, item)
		if err != nil {
			return summary, err
		}
		if skip {
			summary.Skipped++
			continue
		}
		if err := w.processItem(ctx, item); err != nil {
			if errors.Is(err, context.Canceled) {
				return summary, err
			}
			summary.Failed++
			continue
		}
		summary.Processed++
	}
	return summary, nil
}

// Run loops the stage worker until the context is canceled: wait for eligible
// input, claim a single item, process it. Store errors back the loop off
// rather than crashing it.
func (w *Worker) Run(ctx context.Context) error {
	stage := w.proc.Stage()
	w.logger.Info("worker started", logging.String(logging.FieldEventType, "worker_start"))

	for {
		if err := ctx.Err(); err != nil {
			w.logger.Info("worker stopped", logging.String(logging.FieldEventType, "worker_stop"))
			return nil
		}

		ready, err := w.waiter.WaitForData(ctx, stage, WaitOptions{
			MaxWait:       w.maxWait,
			CheckInterval: w.pollInterval,
		})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				continue
			}
			w.logger.Error("eligibility check failed; backing off",
				logging.Error(err),
				logging.String(logging.FieldEventType, "eligibility_check_failed"),
			)
			select {
			case <-ctx.Done():
			case <-time.After(w.errorRetryInterval):
			}
			continue
		}
		if !ready {
			continue
		}

		// Single-item claim bounds the blast radius of any one failure.
		summary, err := w.RunPass(ctx, PassOptions{Limit: 1})
		if err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("stage pass failed; backing off",
				logging.Error(err),
				logging.String(logging.FieldEventType, "stage_pass_failed"),
			)
			select {
			case <-ctx.Done():
			case <-time.After(w.errorRetryInterval):
			}
			continue
		}
		_ = summary
	}
}

// retryExhausted reports whether an item's failed completion row has reached
// the retry limit. With max_retries = 0 failed items stay eligible forever;
// explicit reset tooling remains the recovery path either way.
func (w *Worker) retryExhausted(ctx context.Context, item *store.WorkItem) (bool, error) {
	if w.maxRetries <= 0 {
		return false, nil
	}
	completion, err := w.coord.StageCompletion(ctx, item.ID, w.proc.Stage())
	if err != nil {
		return false, err
	}
	if completion == nil || completion.Status != store.CompletionFailed {
		return false, nil
	}
	if completion.RetryCount < w.maxRetries {
		return false, nil
	}
	w.logger.Warn("retry limit reached; item needs explicit reset",
		logging.Int64(logging.FieldItemID, item.ID),
		logging.Int("retry_count", completion.RetryCount),
	)
	return true, nil
}

func (w *Worker) processItem(ctx context.Context, item *store.WorkItem) error {
	stage := w.proc.Stage()
	requestID := uuid.NewString()

	itemCtx := services.WithBatchID(ctx, item.BatchID)
	itemCtx = services.WithItemID(itemCtx, item.ID)
	itemCtx = services.WithStage(itemCtx, stage)
	itemCtx = services.WithRequestID(itemCtx, requestID)
	logger := logging.WithContext(itemCtx, w.logger)

	if err := w.coord.MarkStageProcessing(itemCtx, item.ID, stage); err != nil {
		logger.Error("failed to mark item processing", logging.Error(err))
		return err
	}

	upstream, err := w.coord.UpstreamPayloads(itemCtx, item.ID, stage)
	if err != nil {
		return w.recordFailure(itemCtx, logger, item, err)
	}

	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("label", item.Label),
	)
	start := time.Now()
	payload, procErr := w.proc.Process(itemCtx, item, upstream)
	elapsed := time.Since(start)

	if procErr != nil {
		if errors.Is(procErr, context.Canceled) {
			logger.Debug("stage interrupted by shutdown")
			return procErr
		}
		return w.recordFailure(itemCtx, logger, item, procErr)
	}

	if _, err := w.coord.SaveStageResult(itemCtx, item.ID, stage, payload, elapsed, w.producerVersion); err != nil {
		logger.Error("failed to persist stage result", logging.Error(err))
		return err
	}
	if err := w.coord.MarkStageComplete(itemCtx, item.ID, stage); err != nil {
		logger.Error("failed to mark stage complete", logging.Error(err))
		return err
	}

	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("stage_duration", elapsed),
	)

	if stage == w.coord.Graph().Terminal() {
		if err := w.coord.RefreshBatchCounters(itemCtx, item.BatchID); err != nil {
			logger.Warn("failed to refresh batch counters", logging.Error(err))
		}
	}
	return nil
}

// recordFailure persists a failed completion and reports the original
// processing error to the pass loop. A failure to persist takes precedence so
// the caller sees the store problem.
func (w *Worker) recordFailure(ctx context.Context, logger *slog.Logger, item *store.WorkItem, procErr error) error {
	logger.Error("stage failed",
		logging.Error(procErr),
		logging.String(logging.FieldEventType, "stage_failed"),
		logging.Bool("retryable", services.IsRetryable(procErr)),
	)
	if err := w.coord.MarkStageFailed(ctx, item.ID, w.proc.Stage(), procErr.Error()); err != nil {
		logger.Error("failed to persist stage failure", logging.Error(err))
		return err
	}
	return procErr
}
