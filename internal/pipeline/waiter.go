package pipeline

import (
	"context"
	"log/slog"
	"time"

	"chronicle/internal/logging"
)

// Waiter lets a stage worker block until input is likely available instead of
// busy-looping. A positive result is advisory only, not a reservation: a
// concurrent consumer could claim the observed item first.
type Waiter struct {
	coord          *Coordinator
	logger         *slog.Logger
	reportInterval time.Duration
}

// NewWaiter constructs a waiter over a coordinator. reportInterval controls
// how often elapsed wait time is logged while idle, so an operator can tell
// "idle" from "stuck"; zero defaults to one minute.
func NewWaiter(coord *Coordinator, logger *slog.Logger, reportInterval time.Duration) *Waiter {
	if logger == nil {
		logger = logging.NewNop()
	}
	if reportInterval <= 0 {
		reportInterval = time.Minute
	}
	return &Waiter{coord: coord, logger: logger, reportInterval: reportInterval}
}

// WaitOptions configures one wait cycle.
type WaitOptions struct {
	// BatchID scopes the eligibility check to one batch when > 0.
	BatchID int64
	// MaxWait bounds the total wait. Required; the wait is never infinite.
	MaxWait time.Duration
	// CheckInterval is the pause between eligibility polls.
	CheckInterval time.Duration
	// OnTimeout, when set, is invoked exactly once if MaxWait elapses with no
	// eligible item observed.
	OnTimeout func()
}

// WaitForData polls eligibility for a stage until an item is observed, the
// context is canceled, or MaxWait elapses. Returns true as soon as at least
// one eligible item exists; false on timeout or cancellation. Store errors
// end the wait and are returned to the caller.
func (w *Waiter) WaitForData(ctx context.Context, stage string, opts WaitOptions) (bool, error) {
	checkInterval := opts.CheckInterval
	if checkInterval <= 0 {
		checkInterval = 5 * time.Second
	}
	maxWait := opts.MaxWait
	if maxWait <= 0 {
		maxWait = checkInterval
	}

	logger := w.logger.With(logging.String(logging.FieldStage, stage))
	start := time.Now()
	deadline := start.Add(maxWait)
	lastReport := start

	for {
		ready, err := w.coord.HasEligible(ctx, stage, opts.BatchID)
		if err != nil {
			return false, err
		}
		if ready {
			logger.Debug("eligible input observed", logging.Duration("waited", time.Since(start)))
			return true, nil
		}

		now := time.Now()
		if !now.Before(deadline) {
			break
		}
		if now.Sub(lastReport) >= w.reportInterval {
			logger.Info("waiting for eligible input",
				logging.String(logging.FieldEventType, "wait_progress"),
				logging.Duration("elapsed", now.Sub(start)),
				logging.Duration("remaining", deadline.Sub(now)),
			)
			lastReport = now
		}

		pause := checkInterval
		if remaining := time.Until(deadline); remaining < pause {
			pause = remaining
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(pause):
		}
	}

	if opts.OnTimeout != nil {
		opts.OnTimeout()
	}
	logger.Debug("wait expired with no eligible input", logging.Duration("waited", time.Since(start)))
	return false, nil
}
