package record

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Upsert creates the record or overwrites it when the natural key
	// (connection_id, fhir_id, resource_type) already exists. Repeating an
	// upsert with the same key has no effect beyond the latest payload.
	Upsert(ctx context.Context, r *ResourceRecord) error
	GetByNaturalKey(ctx context.Context, connectionID uuid.UUID, fhirID string, rt ResourceType) (*ResourceRecord, error)
	ListByConnection(ctx context.Context, connectionID uuid.UUID, limit, offset int) ([]*ResourceRecord, int, error)
	ListByConnectionAndType(ctx context.Context, connectionID uuid.UUID, rt ResourceType, limit, offset int) ([]*ResourceRecord, int, error)
	CountByConnection(ctx context.Context, connectionID uuid.UUID) (int, error)
}
