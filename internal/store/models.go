package store

import (
	"strings"
	"time"
)

// BatchStatus represents the lifecycle of an ingestion batch.
type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
)

// CompletionStatus represents the lifecycle of one (work item, stage) pair.
type CompletionStatus string

const (
	CompletionPending    CompletionStatus = "pending"
	CompletionProcessing CompletionStatus = "processing"
	CompletionCompleted  CompletionStatus = "completed"
	CompletionFailed     CompletionStatus = "failed"
)

var completionStatuses = map[CompletionStatus]struct{}{
	CompletionPending:    {},
	CompletionProcessing: {},
	CompletionCompleted:  {},
	CompletionFailed:     {},
}

// ParseCompletionStatus converts a string into a known CompletionStatus.
func ParseCompletionStatus(value string) (CompletionStatus, bool) {
	normalized := CompletionStatus(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := completionStatuses[normalized]
	return normalized, ok
}

// SourceStage is the reserved stage name under which producers persist raw
// chunk payloads before the first pipeline stage runs. It is not part of the
// stage order; the first stage reads it as its upstream input.
const SourceStage = "source"

// Batch is a named grouping of work items submitted together.
type Batch struct {
	ID             int64
	Name           string
	Status         BatchStatus
	CreatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
	TotalItems     int
	ProcessedItems int
	FailedItems    int
	MetadataJSON   string
}

// WorkItem is one unit of pipeline input, typically a conversation chunk.
// Identity fields are immutable once inserted; stage workers only ever touch
// the updated_at timestamp indirectly through completion writes.
type WorkItem struct {
	ID                   int64
	BatchID              int64
	Label                string
	ItemType             string
	SourceConversationID string
	SourceMessageID      string
	Source               string
	OriginalTimestamp    string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// RelationshipEdge is a directed edge between two work items scoped to a batch.
type RelationshipEdge struct {
	ID           int64
	BatchID      int64
	SourceItemID int64
	TargetItemID int64
	EdgeType     string
	Note         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// StageResult is an append-only record of one stage's output for one work
// item. The payload is an opaque blob owned by the producing stage; new runs
// insert new rows rather than overwrite.
type StageResult struct {
	ID                    int64
	WorkItemID            int64
	StageName             string
	Payload               string
	CreatedAt             time.Time
	ProcessingTimeSeconds *float64
	ProducerVersion       string
}

// StageCompletion is the authoritative record of whether a (work item, stage)
// pair has finished. It is kept separate from StageResult so that "data
// produced" and "stage acknowledged" remain independent facts.
type StageCompletion struct {
	ID           int64
	WorkItemID   int64
	StageName    string
	Status       CompletionStatus
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ErrorMessage string
	RetryCount   int
}

// StageStatusCounts aggregates completion rows for one stage within a batch.
type StageStatusCounts struct {
	Pending    int
	Processing int
	Completed  int
	Failed     int
}
