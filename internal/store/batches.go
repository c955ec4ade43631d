package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const batchColumns = "id, name, status, created_at, started_at, completed_at, total_items, processed_items, failed_items, metadata_json"

// InsertBatch creates a new batch in pending status.
func (s *Store) InsertBatch(ctx context.Context, name, metadataJSON string) (*Batch, error) {
	timestamp := nowStamp()
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO batches (name, status, created_at, metadata_json) VALUES (?, ?, ?, ?)`,
		name,
		BatchPending,
		timestamp,
		nullableString(metadataJSON),
	)
	if err != nil {
		return nil, fmt.Errorf("insert batch: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetBatch(ctx, id)
}

// GetBatch fetches a batch by identifier. Returns nil when no row exists.
func (s *Store) GetBatch(ctx context.Context, id int64) (*Batch, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM batches WHERE id = ?`, id)
	batch, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return batch, nil
}

// ListBatches returns all batches ordered by creation time.
func (s *Store) ListBatches(ctx context.Context) ([]*Batch, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+batchColumns+` FROM batches ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var batches []*Batch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}
	return batches, rows.Err()
}

// UpdateBatch persists mutable batch fields: status, timestamps, and counters.
func (s *Store) UpdateBatch(ctx context.Context, batch *Batch) error {
	if batch == nil {
		return errors.New("batch is nil")
	}
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE batches
         SET name = ?, status = ?, started_at = ?, completed_at = ?,
             total_items = ?, processed_items = ?, failed_items = ?, metadata_json = ?
         WHERE id = ?`,
		batch.Name,
		batch.Status,
		nullableTime(batch.StartedAt),
		nullableTime(batch.CompletedAt),
		batch.TotalItems,
		batch.ProcessedItems,
		batch.FailedItems,
		nullableString(batch.MetadataJSON),
		batch.ID,
	)
	if err != nil {
		return fmt.Errorf("update batch: %w", err)
	}
	return nil
}

func scanBatch(scanner interface{ Scan(dest ...any) error }) (*Batch, error) {
	var (
		id           int64
		name         string
		statusStr    string
		createdRaw   sql.NullString
		startedRaw   sql.NullString
		completedRaw sql.NullString
		total        int
		processed    int
		failed       int
		metadata     sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&name,
		&statusStr,
		&createdRaw,
		&startedRaw,
		&completedRaw,
		&total,
		&processed,
		&failed,
		&metadata,
	); err != nil {
		return nil, err
	}

	batch := &Batch{
		ID:             id,
		Name:           name,
		Status:         BatchStatus(statusStr),
		StartedAt:      timePointer(startedRaw),
		CompletedAt:    timePointer(completedRaw),
		TotalItems:     total,
		ProcessedItems: processed,
		FailedItems:    failed,
		MetadataJSON:   metadata.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		batch.CreatedAt = created
	}
	return batch, nil
}
