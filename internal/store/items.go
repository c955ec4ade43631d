package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const itemColumns = "id, batch_id, label, item_type, source_conversation_id, source_message_id, source, original_timestamp, created_at, updated_at"

const edgeColumns = "id, batch_id, source_item_id, target_item_id, edge_type, note, created_at, updated_at"

// InsertWorkItem inserts a new work item. The caller supplies all semantic
// fields; identifiers and timestamps are assigned here.
func (s *Store) InsertWorkItem(ctx context.Context, item *WorkItem) (*WorkItem, error) {
	if item == nil {
		return nil, errors.New("work item is nil")
	}
	timestamp := nowStamp()
	itemType := item.ItemType
	if itemType == "" {
		itemType = "chunk"
	}
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO work_items (
            batch_id, label, item_type, source_conversation_id, source_message_id,
            source, original_timestamp, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.BatchID,
		item.Label,
		itemType,
		nullableString(item.SourceConversationID),
		nullableString(item.SourceMessageID),
		nullableString(item.Source),
		nullableString(item.OriginalTimestamp),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert work item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetWorkItem(ctx, id)
}

// GetWorkItem fetches a work item by identifier. Returns nil when no row exists.
func (s *Store) GetWorkItem(ctx context.Context, id int64) (*WorkItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM work_items WHERE id = ?`, id)
	item, err := scanWorkItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get work item: %w", err)
	}
	return item, nil
}

// ItemsByBatch returns all work items belonging to a batch ordered by identifier.
func (s *Store) ItemsByBatch(ctx context.Context, batchID int64) ([]*WorkItem, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM work_items WHERE batch_id = ? ORDER BY id`, batchID)
	if err != nil {
		return nil, fmt.Errorf("query items by batch: %w", err)
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

// CountItemsByBatch returns the number of work items in a batch.
func (s *Store) CountItemsByBatch(ctx context.Context, batchID int64) (int, error) {
	var count int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM work_items WHERE batch_id = ?`, batchID)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count items by batch: %w", err)
	}
	return count, nil
}

// InsertEdge inserts a directed relationship between two work items.
func (s *Store) InsertEdge(ctx context.Context, edge *RelationshipEdge) (*RelationshipEdge, error) {
	if edge == nil {
		return nil, errors.New("edge is nil")
	}
	timestamp := nowStamp()
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO relationship_edges (
            batch_id, source_item_id, target_item_id, edge_type, note, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		edge.BatchID,
		edge.SourceItemID,
		edge.TargetItemID,
		edge.EdgeType,
		nullableString(edge.Note),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert edge: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+edgeColumns+` FROM relationship_edges WHERE id = ?`, id)
	inserted, err := scanEdge(row)
	if err != nil {
		return nil, fmt.Errorf("get edge: %w", err)
	}
	return inserted, nil
}

// EdgesByBatch returns all relationship edges in a batch ordered by identifier.
func (s *Store) EdgesByBatch(ctx context.Context, batchID int64) ([]*RelationshipEdge, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+edgeColumns+` FROM relationship_edges WHERE batch_id = ? ORDER BY id`, batchID)
	if err != nil {
		return nil, fmt.Errorf("query edges by batch: %w", err)
	}
	defer rows.Close()

	var edges []*RelationshipEdge
	for rows.Next() {
		edge, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		edges = append(edges, edge)
	}
	return edges, rows.Err()
}

func scanWorkItem(scanner interface{ Scan(dest ...any) error }) (*WorkItem, error) {
	var (
		id             int64
		batchID        int64
		label          string
		itemType       string
		conversationID sql.NullString
		messageID      sql.NullString
		source         sql.NullString
		originalTS     sql.NullString
		createdRaw     sql.NullString
		updatedRaw     sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&batchID,
		&label,
		&itemType,
		&conversationID,
		&messageID,
		&source,
		&originalTS,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	item := &WorkItem{
		ID:                   id,
		BatchID:              batchID,
		Label:                label,
		ItemType:             itemType,
		SourceConversationID: conversationID.String,
		SourceMessageID:      messageID.String,
		Source:               source.String,
		OriginalTimestamp:    originalTS.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	return item, nil
}

func scanEdge(scanner interface{ Scan(dest ...any) error }) (*RelationshipEdge, error) {
	var (
		id         int64
		batchID    int64
		sourceID   int64
		targetID   int64
		edgeType   string
		note       sql.NullString
		createdRaw sql.NullString
		updatedRaw sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&batchID,
		&sourceID,
		&targetID,
		&edgeType,
		&note,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	edge := &RelationshipEdge{
		ID:           id,
		BatchID:      batchID,
		SourceItemID: sourceID,
		TargetItemID: targetID,
		EdgeType:     edgeType,
		Note:         note.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		edge.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		edge.UpdatedAt = updated
	}
	return edge, nil
}
