package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const completionColumns = "id, work_item_id, stage_name, status, started_at, completed_at, error_message, retry_count"

// CompletionFor returns the completion row for a (work item, stage) pair, or
// nil when none exists.
func (s *Store) CompletionFor(ctx context.Context, itemID int64, stage string) (*StageCompletion, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+completionColumns+` FROM stage_completions WHERE work_item_id = ? AND stage_name = ?`,
		itemID,
		stage,
	)
	completion, err := scanCompletion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get completion: %w", err)
	}
	return completion, nil
}

// MarkProcessing upserts a completion row to processing with a start
// timestamp. This is an advisory marker, not an atomic claim; eligibility is
// driven solely by completed rows.
func (s *Store) MarkProcessing(ctx context.Context, itemID int64, stage string) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO stage_completions (work_item_id, stage_name, status, started_at, retry_count)
         VALUES (?, ?, ?, ?, 0)
         ON CONFLICT(work_item_id, stage_name) DO UPDATE SET
             status = excluded.status,
             started_at = excluded.started_at`,
		itemID,
		stage,
		CompletionProcessing,
		nowStamp(),
	)
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	return nil
}

// MarkCompleted upserts a completion row to completed. Idempotent: repeated
// calls leave a single row, with completed_at reflecting the most recent call.
func (s *Store) MarkCompleted(ctx context.Context, itemID int64, stage string) error {
	timestamp := nowStamp()
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO stage_completions (work_item_id, stage_name, status, started_at, completed_at, retry_count)
         VALUES (?, ?, ?, ?, ?, 0)
         ON CONFLICT(work_item_id, stage_name) DO UPDATE SET
             status = excluded.status,
             completed_at = excluded.completed_at,
             started_at = COALESCE(stage_completions.started_at, excluded.started_at),
             error_message = NULL`,
		itemID,
		stage,
		CompletionCompleted,
		timestamp,
		timestamp,
	)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

// MarkFailed upserts a completion row to failed, storing the error message and
// incrementing the retry counter. A first failure starts the counter at 1.
func (s *Store) MarkFailed(ctx context.Context, itemID int64, stage, errorMessage string) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO stage_completions (work_item_id, stage_name, status, started_at, error_message, retry_count)
         VALUES (?, ?, ?, ?, ?, 1)
         ON CONFLICT(work_item_id, stage_name) DO UPDATE SET
             status = excluded.status,
             error_message = excluded.error_message,
             completed_at = NULL,
             started_at = COALESCE(stage_completions.started_at, excluded.started_at),
             retry_count = stage_completions.retry_count + 1`,
		itemID,
		stage,
		CompletionFailed,
		nowStamp(),
		nullableString(errorMessage),
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// EligibleItems returns work items ready for a stage: every prerequisite stage
// has a completed row and the stage itself has none. Failed or processing rows
// for the stage do not exclude an item. Scope to one batch with batchID > 0;
// bound the result with limit > 0.
func (s *Store) EligibleItems(ctx context.Context, stage string, prerequisites []string, batchID int64, limit int) ([]*WorkItem, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + qualifiedItemColumns("w") + ` FROM work_items w
        WHERE NOT EXISTS (
            SELECT 1 FROM stage_completions c
            WHERE c.work_item_id = w.id AND c.stage_name = ? AND c.status = ?
        )`)
	args := []any{stage, CompletionCompleted}

	if len(prerequisites) > 0 {
		sb.WriteString(` AND (
            SELECT COUNT(1) FROM stage_completions p
            WHERE p.work_item_id = w.id AND p.stage_name IN (` + makePlaceholders(len(prerequisites)) + `) AND p.status = ?
        ) = ?`)
		for _, prereq := range prerequisites {
			args = append(args, prereq)
		}
		args = append(args, CompletionCompleted, len(prerequisites))
	}
	if batchID > 0 {
		sb.WriteString(` AND w.batch_id = ?`)
		args = append(args, batchID)
	}
	sb.WriteString(` ORDER BY w.id`)
	if limit > 0 {
		sb.WriteString(` LIMIT ?`)
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query eligible items: %w", err)
	}
	defer rows.Close()

	var items []*WorkItem
	for rows.Next() {
		item, err := scanWorkItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// FailedItems returns work items whose completion row for a stage is failed,
// optionally scoped to one batch.
func (s *Store) FailedItems(ctx context.Context, stage string, batchID int64) ([]*WorkItem, error) {
	query := `SELECT ` + qualifiedItemColumns("w") + ` FROM work_items w
        JOIN stage_completions c ON c.work_item_id = w.id
        WHERE c.stage_name = ? AND c.status = ?`
	args := []any{stage, CompletionFailed}
	if batchID > 0 {
		query += ` AND w.batch_id = ?`
		args = append(args, batchID)
	}
	query += ` ORDER BY w.id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed items: %w", err)
	}
	defer rows.Close()

	var items []*WorkItem
	for rows.Next() {
		item, err := scanWorkItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ResetFailed flips failed completion rows for a stage back to pending and
// clears the error message and timestamps, enabling a fresh pass. The retry
// counter is preserved for provenance.
func (s *Store) ResetFailed(ctx context.Context, stage string, batchID int64) (int64, error) {
	query := `UPDATE stage_completions
        SET status = ?, error_message = NULL, started_at = NULL, completed_at = NULL
        WHERE stage_name = ? AND status = ?`
	args := []any{CompletionPending, stage, CompletionFailed}
	if batchID > 0 {
		query += ` AND work_item_id IN (SELECT id FROM work_items WHERE batch_id = ?)`
		args = append(args, batchID)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("reset failed completions: %w", err)
	}
	return res.RowsAffected()
}

// StageCounts aggregates completion rows per stage and status for one batch.
// Stages with no completion rows are absent from the returned map.
func (s *Store) StageCounts(ctx context.Context, batchID int64) (map[string]StageStatusCounts, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT c.stage_name, c.status, COUNT(1)
         FROM stage_completions c
         JOIN work_items w ON w.id = c.work_item_id
         WHERE w.batch_id = ?
         GROUP BY c.stage_name, c.status`,
		batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("query stage counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]StageStatusCounts)
	for rows.Next() {
		var (
			stage     string
			statusStr string
			count     int
		)
		if err := rows.Scan(&stage, &statusStr, &count); err != nil {
			return nil, err
		}
		entry := counts[stage]
		switch CompletionStatus(statusStr) {
		case CompletionPending:
			entry.Pending += count
		case CompletionProcessing:
			entry.Processing += count
		case CompletionCompleted:
			entry.Completed += count
		case CompletionFailed:
			entry.Failed += count
		}
		counts[stage] = entry
	}
	return counts, rows.Err()
}

func scanCompletion(scanner interface{ Scan(dest ...any) error }) (*StageCompletion, error) {
	var (
		id           int64
		itemID       int64
		stage        string
		statusStr    string
		startedRaw   sql.NullString
		completedRaw sql.NullString
		errorMessage sql.NullString
		retryCount   int
	)
	if err := scanner.Scan(&id, &itemID, &stage, &statusStr, &startedRaw, &completedRaw, &errorMessage, &retryCount); err != nil {
		return nil, err
	}

	return &StageCompletion{
		ID:           id,
		WorkItemID:   itemID,
		StageName:    stage,
		Status:       CompletionStatus(statusStr),
		StartedAt:    timePointer(startedRaw),
		CompletedAt:  timePointer(completedRaw),
		ErrorMessage: errorMessage.String,
		RetryCount:   retryCount,
	}, nil
}

func qualifiedItemColumns(alias string) string {
	columns := strings.Split(itemColumns, ", ")
	for i, column := range columns {
		columns[i] = alias + "." + column
	}
	return strings.Join(columns, ", ")
}
