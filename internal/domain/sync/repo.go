package sync

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrStaleJob is returned by Update when the stored row has already reached
// a different terminal state than the copy being written. Concurrent drivers
// (the poll scheduler and a manual poll request) can race on the same job;
// the store keeps whichever terminal write landed first.
var ErrStaleJob = errors.New("sync: job row already terminal, stale update refused")

type Repository interface {
	Create(ctx context.Context, j *BulkExportJob) error
	GetByID(ctx context.Context, id uuid.UUID) (*BulkExportJob, error)
	// Update writes the job row. A row in COMPLETED or FAILED only accepts
	// writes carrying that same status (the ingestion pipeline updates
	// counters on completed rows); anything else returns ErrStaleJob.
	Update(ctx context.Context, j *BulkExportJob) error
	ListByConnection(ctx context.Context, connectionID uuid.UUID, limit, offset int) ([]*BulkExportJob, int, error)
	// ListOpen returns jobs still in IN_PROGRESS, oldest first, for the
	// poll scheduler to drive.
	ListOpen(ctx context.Context, limit int) ([]*BulkExportJob, error)
}
