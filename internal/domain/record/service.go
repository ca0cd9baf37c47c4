package record

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Service is the idempotent sink the sync engine writes ingested clinical
// records into.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Ingest upserts one clinical record keyed by (connectionID, fhirID,
// resourceType), deriving the projected display fields from the raw payload.
// enhancedData may be nil when no extractor applies to the type.
func (s *Service) Ingest(ctx context.Context, connectionID uuid.UUID, fhirID string, rt ResourceType, raw map[string]interface{}, enhanced map[string]interface{}) error {
	if connectionID == uuid.Nil {
		return fmt.Errorf("connection_id is required")
	}
	if fhirID == "" {
		return fmt.Errorf("fhir_id is required")
	}
	if rt == "" {
		return fmt.Errorf("resource_type is required")
	}

	projected := Project(raw)

	var size int64
	if encoded, err := json.Marshal(raw); err == nil {
		size = int64(len(encoded))
	}

	rec := &ResourceRecord{
		ConnectionID: connectionID,
		FHIRID:       fhirID,
		ResourceType: rt,
		Title:        projected.Title,
		Date:         projected.Date,
		Status:       projected.Status,
		Category:     projected.Category,
		RawPayload:   raw,
		EnhancedData: enhanced,
		SizeBytes:    size,
	}
	return s.repo.Upsert(ctx, rec)
}

func (s *Service) Get(ctx context.Context, connectionID uuid.UUID, fhirID string, rt ResourceType) (*ResourceRecord, error) {
	return s.repo.GetByNaturalKey(ctx, connectionID, fhirID, rt)
}

func (s *Service) ListByConnection(ctx context.Context, connectionID uuid.UUID, limit, offset int) ([]*ResourceRecord, int, error) {
	return s.repo.ListByConnection(ctx, connectionID, limit, offset)
}

func (s *Service) ListByConnectionAndType(ctx context.Context, connectionID uuid.UUID, rt ResourceType, limit, offset int) ([]*ResourceRecord, int, error) {
	return s.repo.ListByConnectionAndType(ctx, connectionID, rt, limit, offset)
}

func (s *Service) CountByConnection(ctx context.Context, connectionID uuid.UUID) (int, error) {
	return s.repo.CountByConnection(ctx, connectionID)
}
