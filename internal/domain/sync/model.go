package sync

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ehrsync/ehrsync/internal/domain/provider"
)

// JobStatus is the lifecycle state of a bulk export job. Transitions are
// forward-only: INITIATED -> IN_PROGRESS -> {COMPLETED | FAILED}. Terminal
// states never transition again; retrying a failed export means creating a
// brand-new job.
type JobStatus string

const (
	StatusInitiated  JobStatus = "INITIATED"
	StatusInProgress JobStatus = "IN_PROGRESS"
	StatusCompleted  JobStatus = "COMPLETED"
	StatusFailed     JobStatus = "FAILED"
)

// JobOutput is one NDJSON file listed in a completed export's manifest.
type JobOutput struct {
	ResourceType string `json:"resource_type"`
	URL          string `json:"url"`
	Count        int    `json:"count"`
}

// BulkExportJob is one export attempt against a vendor.
type BulkExportJob struct {
	ID           uuid.UUID           `db:"id" json:"id"`
	ConnectionID uuid.UUID           `db:"connection_id" json:"connection_id"`
	ExportType   provider.ExportType `db:"export_type" json:"export_type"`
	Status       JobStatus           `db:"status" json:"status"`

	KickoffURL string  `db:"kickoff_url" json:"kickoff_url"`
	StatusURL  *string `db:"status_url" json:"status_url,omitempty"`

	RequestedResourceTypes []string   `db:"requested_resource_types" json:"requested_resource_types,omitempty"`
	Since                  *time.Time `db:"since" json:"since,omitempty"`

	Outputs        []JobOutput `db:"outputs" json:"outputs,omitempty"`
	ResourceCount  int         `db:"resource_count" json:"resource_count"`
	TotalSizeBytes int64       `db:"total_size_bytes" json:"total_size_bytes"`

	ErrorMessage *string `db:"error_message" json:"error_message,omitempty"`
	// Retryable is meaningful only on FAILED: whether a fresh job against
	// the same connection stands a chance (transient failure) or not
	// (vendor rejected the request outright).
	Retryable bool `db:"retryable" json:"retryable"`

	TenantID     *string `db:"tenant_id" json:"tenant_id,omitempty"`
	PollAttempts int     `db:"poll_attempts" json:"poll_attempts"`

	// Durable ingestion counters. Per-line failure detail stays in the
	// logs; these bound what the job row accumulates while keeping a
	// lasting signal that something was skipped.
	SkippedFiles    int `db:"skipped_files" json:"skipped_files"`
	SkippedLines    int `db:"skipped_lines" json:"skipped_lines"`
	MappingWarnings int `db:"mapping_warnings" json:"mapping_warnings"`

	StartedAt   time.Time  `db:"started_at" json:"started_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// Terminal reports whether the job has reached COMPLETED or FAILED.
func (j *BulkExportJob) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

var allowedTransitions = map[JobStatus][]JobStatus{
	StatusInitiated:  {StatusInProgress},
	StatusInProgress: {StatusCompleted, StatusFailed},
}

func (j *BulkExportJob) transition(to JobStatus) error {
	for _, allowed := range allowedTransitions[j.Status] {
		if allowed == to {
			j.Status = to
			return nil
		}
	}
	return fmt.Errorf("invalid job transition %s -> %s", j.Status, to)
}

// MarkInProgress records a successful kickoff: the vendor accepted the
// export and handed back a status URL.
func (j *BulkExportJob) MarkInProgress(statusURL string) error {
	if err := j.transition(StatusInProgress); err != nil {
		return err
	}
	j.StatusURL = &statusURL
	return nil
}

// MarkCompleted records the manifest of a finished export. Outputs are only
// ever populated here.
func (j *BulkExportJob) MarkCompleted(outputs []JobOutput, at time.Time) error {
	if err := j.transition(StatusCompleted); err != nil {
		return err
	}
	j.Outputs = outputs
	j.ResourceCount = 0
	for _, o := range outputs {
		j.ResourceCount += o.Count
	}
	j.CompletedAt = &at
	return nil
}

// MarkFailed records a terminal failure.
func (j *BulkExportJob) MarkFailed(message string, retryable bool, at time.Time) error {
	if err := j.transition(StatusFailed); err != nil {
		return err
	}
	j.ErrorMessage = &message
	j.Retryable = retryable
	j.CompletedAt = &at
	return nil
}

// IngestionSummary aggregates the outcome of ingesting one completed job's
// outputs. Partial failure surfaces here, not as an error: a single bad
// vendor file must not invalidate an otherwise-successful export.
type IngestionSummary struct {
	Stored          int   `json:"stored"`
	BytesDownloaded int64 `json:"bytes_downloaded"`
	SkippedFiles    int   `json:"skipped_files"`
	SkippedLines    int   `json:"skipped_lines"`
	MappingWarnings int   `json:"mapping_warnings"`
}
