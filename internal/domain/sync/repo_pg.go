package sync

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehrsync/ehrsync/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const jobCols = `id, connection_id, export_type, status, kickoff_url, status_url,
	requested_resource_types, since, outputs, resource_count, total_size_bytes,
	error_message, retryable, tenant_id, poll_attempts,
	skipped_files, skipped_lines, mapping_warnings, started_at, completed_at`

func (r *repoPG) scan(row pgx.Row) (*BulkExportJob, error) {
	var j BulkExportJob
	err := row.Scan(&j.ID, &j.ConnectionID, &j.ExportType, &j.Status,
		&j.KickoffURL, &j.StatusURL,
		&j.RequestedResourceTypes, &j.Since, &j.Outputs,
		&j.ResourceCount, &j.TotalSizeBytes,
		&j.ErrorMessage, &j.Retryable, &j.TenantID, &j.PollAttempts,
		&j.SkippedFiles, &j.SkippedLines, &j.MappingWarnings,
		&j.StartedAt, &j.CompletedAt)
	return &j, err
}

func (r *repoPG) Create(ctx context.Context, j *BulkExportJob) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO bulk_export_job (id, connection_id, export_type, status, kickoff_url,
			status_url, requested_resource_types, since, outputs, resource_count,
			total_size_bytes, error_message, retryable, tenant_id, poll_attempts,
			skipped_files, skipped_lines, mapping_warnings, started_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		j.ID, j.ConnectionID, j.ExportType, j.Status, j.KickoffURL,
		j.StatusURL, j.RequestedResourceTypes, j.Since, j.Outputs, j.ResourceCount,
		j.TotalSizeBytes, j.ErrorMessage, j.Retryable, j.TenantID, j.PollAttempts,
		j.SkippedFiles, j.SkippedLines, j.MappingWarnings, j.StartedAt, j.CompletedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*BulkExportJob, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+jobCols+` FROM bulk_export_job WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, j *BulkExportJob) error {
	// The status predicate enforces terminal immutability at the row level:
	// a row already in COMPLETED or FAILED matches only when the incoming
	// status is the same, so a stale copy held by a concurrent driver
	// cannot flip it. Same-status writes still pass, which is what lets
	// the ingestion pipeline persist counters onto a completed row.
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE bulk_export_job SET status=$2, status_url=$3, outputs=$4,
			resource_count=$5, total_size_bytes=$6, error_message=$7, retryable=$8,
			poll_attempts=$9, skipped_files=$10, skipped_lines=$11,
			mapping_warnings=$12, completed_at=$13
		WHERE id = $1
		  AND (status NOT IN ('COMPLETED', 'FAILED') OR status = $2)`,
		j.ID, j.Status, j.StatusURL, j.Outputs,
		j.ResourceCount, j.TotalSizeBytes, j.ErrorMessage, j.Retryable,
		j.PollAttempts, j.SkippedFiles, j.SkippedLines,
		j.MappingWarnings, j.CompletedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleJob
	}
	return nil
}

func (r *repoPG) ListByConnection(ctx context.Context, connectionID uuid.UUID, limit, offset int) ([]*BulkExportJob, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM bulk_export_job WHERE connection_id = $1`, connectionID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+jobCols+` FROM bulk_export_job
		 WHERE connection_id = $1 ORDER BY started_at DESC LIMIT $2 OFFSET $3`,
		connectionID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*BulkExportJob
	for rows.Next() {
		j, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, j)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *repoPG) ListOpen(ctx context.Context, limit int) ([]*BulkExportJob, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+jobCols+` FROM bulk_export_job
		 WHERE status = $1 ORDER BY started_at ASC LIMIT $2`,
		StatusInProgress, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*BulkExportJob
	for rows.Next() {
		j, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, j)
	}
	return items, rows.Err()
}
