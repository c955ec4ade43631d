package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const resultColumns = "id, work_item_id, stage_name, payload, created_at, processing_time_seconds, producer_version"

// InsertStageResult appends a stage result row. Existing rows for the same
// (work item, stage) pair are never touched; readers take the newest.
func (s *Store) InsertStageResult(ctx context.Context, itemID int64, stage, payload string, processingSeconds *float64, producerVersion string) (*StageResult, error) {
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO stage_results (
            work_item_id, stage_name, payload, created_at, processing_time_seconds, producer_version
        ) VALUES (?, ?, ?, ?, ?, ?)`,
		itemID,
		stage,
		payload,
		nowStamp(),
		nullableFloat(processingSeconds),
		nullableString(producerVersion),
	)
	if err != nil {
		return nil, fmt.Errorf("insert stage result: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+resultColumns+` FROM stage_results WHERE id = ?`, id)
	inserted, err := scanStageResult(row)
	if err != nil {
		return nil, fmt.Errorf("get stage result: %w", err)
	}
	return inserted, nil
}

// LatestStageResult returns the most recently inserted result for a
// (work item, stage) pair, or nil when none exists.
func (s *Store) LatestStageResult(ctx context.Context, itemID int64, stage string) (*StageResult, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+resultColumns+` FROM stage_results WHERE work_item_id = ? AND stage_name = ? ORDER BY id DESC LIMIT 1`,
		itemID,
		stage,
	)
	result, err := scanStageResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest stage result: %w", err)
	}
	return result, nil
}

// ResultsForItem returns every stage result recorded for a work item in
// insertion order, preserving provenance across reruns.
func (s *Store) ResultsForItem(ctx context.Context, itemID int64) ([]*StageResult, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+resultColumns+` FROM stage_results WHERE work_item_id = ? ORDER BY id`, itemID)
	if err != nil {
		return nil, fmt.Errorf("query results for item: %w", err)
	}
	defer rows.Close()

	var results []*StageResult
	for rows.Next() {
		result, err := scanStageResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

func scanStageResult(scanner interface{ Scan(dest ...any) error }) (*StageResult, error) {
	var (
		id         int64
		itemID     int64
		stage      string
		payload    string
		createdRaw sql.NullString
		seconds    sql.NullFloat64
		version    sql.NullString
	)
	if err := scanner.Scan(&id, &itemID, &stage, &payload, &createdRaw, &seconds, &version); err != nil {
		return nil, err
	}

	result := &StageResult{
		ID:              id,
		WorkItemID:      itemID,
		StageName:       stage,
		Payload:         payload,
		ProducerVersion: version.String,
	}
	if seconds.Valid {
		v := seconds.Float64
		result.ProcessingTimeSeconds = &v
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		result.CreatedAt = created
	}
	return result, nil
}
