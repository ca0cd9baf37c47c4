package record

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

const recordCols = `id, connection_id, fhir_id, resource_type, title, date, status, category,
	raw_payload, enhanced_data, size_bytes, created_at, updated_at`

func (r *repoPG) scan(row pgx.Row) (*ResourceRecord, error) {
	var rec ResourceRecord
	err := row.Scan(&rec.ID, &rec.ConnectionID, &rec.FHIRID, &rec.ResourceType,
		&rec.Title, &rec.Date, &rec.Status, &rec.Category,
		&rec.RawPayload, &rec.EnhancedData, &rec.SizeBytes,
		&rec.CreatedAt, &rec.UpdatedAt)
	return &rec, err
}

func (r *repoPG) Upsert(ctx context.Context, rec *ResourceRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO resource_record (id, connection_id, fhir_id, resource_type, title, date,
			status, category, raw_payload, enhanced_data, size_bytes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (connection_id, fhir_id, resource_type) DO UPDATE SET
			title = EXCLUDED.title,
			date = EXCLUDED.date,
			status = EXCLUDED.status,
			category = EXCLUDED.category,
			raw_payload = EXCLUDED.raw_payload,
			enhanced_data = EXCLUDED.enhanced_data,
			size_bytes = EXCLUDED.size_bytes,
			updated_at = NOW()`,
		rec.ID, rec.ConnectionID, rec.FHIRID, rec.ResourceType, rec.Title, rec.Date,
		rec.Status, rec.Category, rec.RawPayload, rec.EnhancedData, rec.SizeBytes)
	return err
}

func (r *repoPG) GetByNaturalKey(ctx context.Context, connectionID uuid.UUID, fhirID string, rt ResourceType) (*ResourceRecord, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+recordCols+` FROM resource_record
		 WHERE connection_id = $1 AND fhir_id = $2 AND resource_type = $3`,
		connectionID, fhirID, rt))
}

func (r *repoPG) ListByConnection(ctx context.Context, connectionID uuid.UUID, limit, offset int) ([]*ResourceRecord, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM resource_record WHERE connection_id = $1`, connectionID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+recordCols+` FROM resource_record
		 WHERE connection_id = $1 ORDER BY date DESC NULLS LAST LIMIT $2 OFFSET $3`,
		connectionID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return r.collect(rows, total)
}

func (r *repoPG) ListByConnectionAndType(ctx context.Context, connectionID uuid.UUID, rt ResourceType, limit, offset int) ([]*ResourceRecord, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM resource_record WHERE connection_id = $1 AND resource_type = $2`,
		connectionID, rt).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+recordCols+` FROM resource_record
		 WHERE connection_id = $1 AND resource_type = $2
		 ORDER BY date DESC NULLS LAST LIMIT $3 OFFSET $4`,
		connectionID, rt, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return r.collect(rows, total)
}

func (r *repoPG) CountByConnection(ctx context.Context, connectionID uuid.UUID) (int, error) {
	var total int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM resource_record WHERE connection_id = $1`, connectionID).Scan(&total)
	return total, err
}

func (r *repoPG) collect(rows pgx.Rows, total int) ([]*ResourceRecord, int, error) {
	var items []*ResourceRecord
	for rows.Next() {
		rec, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
