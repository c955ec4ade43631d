// Package logging builds slog loggers from configuration and provides the
// attribute helpers and field names shared across the pipeline.
package logging
