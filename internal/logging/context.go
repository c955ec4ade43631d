package logging

import (
	"context"
	"log/slog"

	"chronicle/internal/services"
)

// WithContext returns a logger annotated with any pipeline identifiers the
// context carries (batch, item, stage, request).
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return NewNop()
	}
	if ctx == nil {
		return logger
	}
	if batchID, ok := services.BatchIDFromContext(ctx); ok {
		logger = logger.With(Int64(FieldBatchID, batchID))
	}
	if itemID, ok := services.ItemIDFromContext(ctx); ok {
		logger = logger.With(Int64(FieldItemID, itemID))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		logger = logger.With(String(FieldStage, stage))
	}
	if requestID, ok := services.RequestIDFromContext(ctx); ok {
		logger = logger.With(String(FieldRequestID, requestID))
	}
	return logger
}
