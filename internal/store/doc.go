// Package store persists pipeline state in SQLite: batches, work items,
// relationship edges, stage results, and stage completions. It exposes plain
// create/read/update operations; eligibility rules and stage ordering live in
// the pipeline package. Storage errors propagate to callers unmodified.
package store
