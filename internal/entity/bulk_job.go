package entity

import (
	"fmt"
	"time"
)

// BulkScope selects the candidate set of a bulk job.
type BulkScope string

const (
	ScopeAll              BulkScope = "all"
	ScopeAttachedOnly     BulkScope = "attachedOnly"
	ScopeAttachedProducts BulkScope = "attachedProducts"
)

// ParseBulkScope validates a scope string; empty means all.
func ParseBulkScope(value string) (BulkScope, error) {
	switch BulkScope(value) {
	case "", ScopeAll:
		return ScopeAll, nil
	case ScopeAttachedOnly, ScopeAttachedProducts:
		return BulkScope(value), nil
	}
	return "", fmt.Errorf("unknown bulk scope %q", value)
}

// BulkJob is the resumable cursor persisted between chunks.
type BulkJob struct {
	ID             string        `json:"id"`
	Total          int           `json:"total"`
	ProcessedCount int           `json:"processed_count"`
	ErrorCount     int           `json:"error_count"`
	CandidateIDs   []string      `json:"candidate_ids"`
	Cursor         int           `json:"cursor"`
	ChunkSize      int           `json:"chunk_size"` // fixed at start; a config change must not shift the cursor
	Scope          BulkScope     `json:"scope"`
	ForceUpdate    bool          `json:"force_update"`
	DryRun         bool          `json:"dry_run"`
	StartedAt      time.Time     `json:"started_at"`
	Preview        []PreviewItem `json:"preview,omitempty"`
}

// PreviewItem is one would-be change reported by a dry run.
type PreviewItem struct {
	ImageID string `json:"image_id"`
	OldAlt  string `json:"old_alt"`
	NewAlt  string `json:"new_alt"`
}

// JobProgress is the externally visible state of a bulk job.
type JobProgress struct {
	JobID     string        `json:"job_id"`
	Total     int           `json:"total"`
	Processed int           `json:"processed"`
	Errors    int           `json:"errors"`
	Percent   int           `json:"percent"`
	Complete  bool          `json:"complete"`
	DryRun    bool          `json:"dry_run"`
	Preview   []PreviewItem `json:"preview,omitempty"`
}

// Progress snapshots the job.
func (j *BulkJob) Progress(complete bool) JobProgress {
	percent := 100
	if j.Total > 0 {
		percent = j.ProcessedCount * 100 / j.Total
	}
	return JobProgress{
		JobID:     j.ID,
		Total:     j.Total,
		Processed: j.ProcessedCount,
		Errors:    j.ErrorCount,
		Percent:   percent,
		Complete:  complete,
		DryRun:    j.DryRun,
		Preview:   j.Preview,
	}
}
