package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehrsync/ehrsync/internal/domain/connection"
	"github.com/ehrsync/ehrsync/internal/domain/provider"
	"github.com/ehrsync/ehrsync/internal/domain/record"
	"github.com/ehrsync/ehrsync/internal/platform/fhir"
)

// Shared fixtures for the coordinator, pipeline, and direct sync tests.

type memJobRepo struct {
	jobs      map[uuid.UUID]*BulkExportJob
	createErr error
	updateErr error
	updates   int
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: make(map[uuid.UUID]*BulkExportJob)}
}

func (r *memJobRepo) Create(_ context.Context, j *BulkExportJob) error {
	if r.createErr != nil {
		return r.createErr
	}
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	cp := *j
	r.jobs[j.ID] = &cp
	return nil
}

func (r *memJobRepo) GetByID(_ context.Context, id uuid.UUID) (*BulkExportJob, error) {
	j, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s not found", id)
	}
	cp := *j
	return &cp, nil
}

func (r *memJobRepo) Update(_ context.Context, j *BulkExportJob) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	if stored, ok := r.jobs[j.ID]; ok && stored.Terminal() && stored.Status != j.Status {
		return ErrStaleJob
	}
	r.updates++
	cp := *j
	r.jobs[j.ID] = &cp
	return nil
}

func (r *memJobRepo) ListByConnection(_ context.Context, connectionID uuid.UUID, limit, offset int) ([]*BulkExportJob, int, error) {
	var out []*BulkExportJob
	for _, j := range r.jobs {
		if j.ConnectionID == connectionID {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (r *memJobRepo) ListOpen(_ context.Context, limit int) ([]*BulkExportJob, error) {
	var out []*BulkExportJob
	for _, j := range r.jobs {
		if j.Status == StatusInProgress {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

// stubClient scripts the outbound FHIR client.
type stubClient struct {
	kickoffStatusURL string
	kickoffErr       error
	kickoffCalls     int

	pollResult *fhir.PollResult
	pollErr    error
	pollCalls  int

	// files maps output URL to NDJSON body; absent URLs fail the download.
	files         map[string][]byte
	downloadCalls int

	// pages maps search URL to its bundle.
	pages       map[string]*fhir.Bundle
	searchCalls int
}

func (s *stubClient) Kickoff(_ context.Context, _ string, _ fhir.RequestAuth) (string, error) {
	s.kickoffCalls++
	if s.kickoffErr != nil {
		return "", s.kickoffErr
	}
	return s.kickoffStatusURL, nil
}

func (s *stubClient) PollStatus(_ context.Context, _ string, _ fhir.RequestAuth) (*fhir.PollResult, error) {
	s.pollCalls++
	if s.pollErr != nil {
		return nil, s.pollErr
	}
	return s.pollResult, nil
}

func (s *stubClient) Download(_ context.Context, fileURL string, _ fhir.RequestAuth) ([]byte, error) {
	s.downloadCalls++
	body, ok := s.files[fileURL]
	if !ok {
		return nil, &fhir.StatusError{Code: 404, Body: "not found"}
	}
	return body, nil
}

func (s *stubClient) SearchPage(_ context.Context, searchURL string, _ fhir.RequestAuth) (*fhir.Bundle, error) {
	s.searchCalls++
	bundle, ok := s.pages[searchURL]
	if !ok {
		return nil, &fhir.StatusError{Code: 404, Body: "not found"}
	}
	return bundle, nil
}

// memSink records ingested resources keyed by natural key.
type memSink struct {
	stored    map[string]map[string]interface{}
	enhanced  map[string]map[string]interface{}
	ingestErr error
}

func newMemSink() *memSink {
	return &memSink{
		stored:   make(map[string]map[string]interface{}),
		enhanced: make(map[string]map[string]interface{}),
	}
}

func (s *memSink) Ingest(_ context.Context, connectionID uuid.UUID, fhirID string, rt record.ResourceType, raw map[string]interface{}, enhanced map[string]interface{}) error {
	if s.ingestErr != nil {
		return s.ingestErr
	}
	key := connectionID.String() + "/" + fhirID + "/" + string(rt)
	s.stored[key] = raw
	if enhanced != nil {
		s.enhanced[key] = enhanced
	}
	return nil
}

// testProfiles returns a registry whose profiles match the real vendor
// shapes but with delays short enough for tests.
func testProfiles() *provider.Registry {
	return provider.NewRegistry(
		&provider.Profile{
			Vendor: provider.VendorEpic,
			KickoffPaths: map[provider.ExportType]string{
				provider.ExportPatient: "Patient/{patientId}/$export",
				provider.ExportGroup:   "Group/$export",
			},
			CallDelay: time.Millisecond,
			TypeMap: map[string]record.ResourceType{
				"Patient":          record.TypePatient,
				"Observation":      record.TypeObservation,
				"Goal":             record.TypeGoal,
				"CarePlan":         record.TypeCarePlan,
				"DiagnosticReport": record.TypeDiagnosticReport,
			},
			EnhancedTypes: []record.ResourceType{
				record.TypeGoal, record.TypeCarePlan, record.TypeDiagnosticReport,
			},
		},
		&provider.Profile{
			Vendor: provider.VendorAthenaHealth,
			KickoffPaths: map[provider.ExportType]string{
				provider.ExportPatient: "Patient/{patientId}/$export",
			},
			CallDelay:      time.Millisecond,
			PerRecordDelay: true,
			TypeMap: map[string]record.ResourceType{
				"Patient":  record.TypePatient,
				"CarePlan": record.TypeCarePlan,
			},
			EnhancedTypes: []record.ResourceType{record.TypeCarePlan},
		},
	)
}

func testConn(vendor provider.Vendor) *connection.Connection {
	return &connection.Connection{
		ID:          uuid.New(),
		Vendor:      vendor,
		BaseURL:     "https://fhir.example.org/r4",
		BearerToken: "opaque-test-token",
		PatientID:   "pat-1",
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
