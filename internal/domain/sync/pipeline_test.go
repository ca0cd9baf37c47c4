package sync

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ehrsync/ehrsync/internal/domain/provider"
	"github.com/ehrsync/ehrsync/internal/domain/sync/extract"
)

func newTestPipeline(repo *memJobRepo, sink *memSink, client *stubClient) *Pipeline {
	return NewPipeline(repo, sink, client, testProfiles(), provider.NewRateLimiter(), extract.DefaultRegistry(), testLogger())
}

func completedJob(t *testing.T, repo *memJobRepo, connID uuid.UUID, outputs []JobOutput) *BulkExportJob {
	t.Helper()
	job := &BulkExportJob{
		ConnectionID: connID,
		Status:       StatusInitiated,
		KickoffURL:   "https://fhir.example.org/r4/Patient/pat-1/$export",
		StartedAt:    time.Now().UTC(),
	}
	if err := job.MarkInProgress("https://fhir.example.org/status/abc"); err != nil {
		t.Fatal(err)
	}
	if err := job.MarkCompleted(outputs, time.Now().UTC()); err != nil {
		t.Fatal(err)
	}
	if err := repo.Create(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	return job
}

func ndjson(lines ...string) []byte {
	return []byte(strings.Join(lines, "\n") + "\n")
}

func TestProcessStoresValidSkipsMalformed(t *testing.T) {
	repo := newMemJobRepo()
	sink := newMemSink()

	lines := make([]string, 0, 10)
	for _, id := range []string{"o1", "o2", "o3", "o4", "o5", "o6", "o7", "o8", "o9"} {
		lines = append(lines, `{"resourceType":"Observation","id":"`+id+`","status":"final"}`)
	}
	lines = append(lines, `{"resourceType":"Observation","id":"o10"`) // truncated

	client := &stubClient{files: map[string][]byte{
		"https://files.example.org/o.ndjson": ndjson(lines...),
	}}
	p := newTestPipeline(repo, sink, client)
	conn := testConn(provider.VendorEpic)
	job := completedJob(t, repo, conn.ID, []JobOutput{
		{ResourceType: "Observation", URL: "https://files.example.org/o.ndjson", Count: 10},
	})

	summary, err := p.Process(context.Background(), conn, job)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if summary.Stored != 9 {
		t.Errorf("stored = %d, want 9", summary.Stored)
	}
	if summary.SkippedLines != 1 {
		t.Errorf("skipped lines = %d, want 1", summary.SkippedLines)
	}
	if job.ResourceCount != 9 {
		t.Errorf("job resource count = %d, want stored count 9", job.ResourceCount)
	}
	persisted, _ := repo.GetByID(context.Background(), job.ID)
	if persisted.SkippedLines != 1 {
		t.Error("skip counters not persisted on job")
	}
}

func TestProcessSurvivesOversizedLine(t *testing.T) {
	repo := newMemJobRepo()
	sink := newMemSink()

	// A line over the reader's 16MB cap sits between two valid resources;
	// both neighbors must still be stored and the line counted as skipped.
	oversized := `{"resourceType":"Observation","id":"o-big","data":"` +
		strings.Repeat("x", 16*1024*1024) + `"}`
	client := &stubClient{files: map[string][]byte{
		"https://files.example.org/o.ndjson": ndjson(
			`{"resourceType":"Observation","id":"o1","status":"final"}`,
			oversized,
			`{"resourceType":"Observation","id":"o2","status":"final"}`,
		),
	}}
	p := newTestPipeline(repo, sink, client)
	conn := testConn(provider.VendorEpic)
	job := completedJob(t, repo, conn.ID, []JobOutput{
		{ResourceType: "Observation", URL: "https://files.example.org/o.ndjson", Count: 3},
	})

	summary, err := p.Process(context.Background(), conn, job)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if summary.Stored != 2 {
		t.Errorf("stored = %d, want both resources around the oversized line", summary.Stored)
	}
	if summary.SkippedLines != 1 {
		t.Errorf("skipped lines = %d, want 1", summary.SkippedLines)
	}
	if summary.SkippedFiles != 0 {
		t.Errorf("skipped files = %d, want 0", summary.SkippedFiles)
	}
	persisted, _ := repo.GetByID(context.Background(), job.ID)
	if persisted.SkippedLines != 1 {
		t.Error("skip counter not persisted on job")
	}
}

func TestProcessSkipsFailedFileContinues(t *testing.T) {
	repo := newMemJobRepo()
	sink := newMemSink()
	client := &stubClient{files: map[string][]byte{
		// p.ndjson deliberately absent; its download fails.
		"https://files.example.org/o.ndjson": ndjson(
			`{"resourceType":"Observation","id":"o1"}`,
			`{"resourceType":"Observation","id":"o2"}`,
		),
	}}
	p := newTestPipeline(repo, sink, client)
	conn := testConn(provider.VendorEpic)
	job := completedJob(t, repo, conn.ID, []JobOutput{
		{ResourceType: "Patient", URL: "https://files.example.org/p.ndjson", Count: 1},
		{ResourceType: "Observation", URL: "https://files.example.org/o.ndjson", Count: 2},
	})

	summary, err := p.Process(context.Background(), conn, job)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if summary.SkippedFiles != 1 {
		t.Errorf("skipped files = %d, want 1", summary.SkippedFiles)
	}
	if summary.Stored != 2 {
		t.Errorf("stored = %d, want 2 from the surviving file", summary.Stored)
	}
	if client.downloadCalls != 2 {
		t.Errorf("download calls = %d, want both files attempted", client.downloadCalls)
	}
}

func TestProcessRejectsNonCompletedJob(t *testing.T) {
	repo := newMemJobRepo()
	p := newTestPipeline(repo, newMemSink(), &stubClient{})
	conn := testConn(provider.VendorEpic)

	job := &BulkExportJob{Status: StatusInProgress, StartedAt: time.Now()}
	if _, err := p.Process(context.Background(), conn, job); err == nil {
		t.Fatal("ingesting an IN_PROGRESS job should fail")
	}
}

func TestProcessRunsEnhancedExtraction(t *testing.T) {
	repo := newMemJobRepo()
	sink := newMemSink()
	client := &stubClient{files: map[string][]byte{
		"https://files.example.org/g.ndjson": ndjson(
			`{"resourceType":"Goal","id":"g1","lifecycleStatus":"active","description":{"text":"HbA1c below 7%"}}`,
		),
	}}
	p := newTestPipeline(repo, sink, client)
	conn := testConn(provider.VendorEpic)
	job := completedJob(t, repo, conn.ID, []JobOutput{
		{ResourceType: "Goal", URL: "https://files.example.org/g.ndjson", Count: 1},
	})

	if _, err := p.Process(context.Background(), conn, job); err != nil {
		t.Fatal(err)
	}
	key := conn.ID.String() + "/g1/GOAL"
	enhanced, ok := sink.enhanced[key]
	if !ok {
		t.Fatal("Goal record stored without enhanced data")
	}
	if enhanced["description"] != "HbA1c below 7%" {
		t.Errorf("enhanced description = %v", enhanced["description"])
	}
}

func TestProcessSkipsExtractionForUnsupportedVendor(t *testing.T) {
	// athenahealth does not expose Goal; a Goal arriving anyway maps to
	// OTHER and stores raw only.
	repo := newMemJobRepo()
	sink := newMemSink()
	client := &stubClient{files: map[string][]byte{
		"https://files.example.org/g.ndjson": ndjson(
			`{"resourceType":"Goal","id":"g1","lifecycleStatus":"active"}`,
		),
	}}
	p := newTestPipeline(repo, sink, client)
	conn := testConn(provider.VendorAthenaHealth)
	job := completedJob(t, repo, conn.ID, []JobOutput{
		{ResourceType: "Goal", URL: "https://files.example.org/g.ndjson", Count: 1},
	})

	summary, err := p.Process(context.Background(), conn, job)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Stored != 1 {
		t.Fatalf("stored = %d, want 1", summary.Stored)
	}
	if summary.MappingWarnings != 1 {
		t.Errorf("mapping warnings = %d, want 1 for unmapped type", summary.MappingWarnings)
	}
	key := conn.ID.String() + "/g1/OTHER"
	if _, ok := sink.stored[key]; !ok {
		t.Error("unmapped resource not stored under OTHER")
	}
	if _, ok := sink.enhanced[key]; ok {
		t.Error("extraction ran for a vendor that does not expose the type")
	}
}

func TestProcessSkipsResourceMissingIdentity(t *testing.T) {
	repo := newMemJobRepo()
	sink := newMemSink()
	client := &stubClient{files: map[string][]byte{
		"https://files.example.org/x.ndjson": ndjson(
			`{"resourceType":"Observation"}`,
			`{"id":"o2"}`,
			`{"resourceType":"Observation","id":"o3"}`,
		),
	}}
	p := newTestPipeline(repo, sink, client)
	conn := testConn(provider.VendorEpic)
	job := completedJob(t, repo, conn.ID, []JobOutput{
		{ResourceType: "Observation", URL: "https://files.example.org/x.ndjson", Count: 3},
	})

	summary, err := p.Process(context.Background(), conn, job)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Stored != 1 {
		t.Errorf("stored = %d, want 1", summary.Stored)
	}
	if summary.SkippedLines != 2 {
		t.Errorf("skipped lines = %d, want 2", summary.SkippedLines)
	}
}
