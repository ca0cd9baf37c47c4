package sync

import (
	"testing"
	"time"
)

func newJob(status JobStatus) *BulkExportJob {
	return &BulkExportJob{Status: status, StartedAt: time.Now().UTC()}
}

func TestJobTransitionsForwardOnly(t *testing.T) {
	j := newJob(StatusInitiated)
	if err := j.MarkInProgress("https://vendor.example.org/status/1"); err != nil {
		t.Fatalf("INITIATED -> IN_PROGRESS: %v", err)
	}
	if j.Status != StatusInProgress {
		t.Fatalf("status = %s", j.Status)
	}
	if j.StatusURL == nil || *j.StatusURL != "https://vendor.example.org/status/1" {
		t.Errorf("status URL not recorded")
	}
	if err := j.MarkCompleted(nil, time.Now()); err != nil {
		t.Fatalf("IN_PROGRESS -> COMPLETED: %v", err)
	}
	if j.CompletedAt == nil {
		t.Error("completed_at not set")
	}
}

func TestJobSkipsStatesNever(t *testing.T) {
	j := newJob(StatusInitiated)
	if err := j.MarkCompleted(nil, time.Now()); err == nil {
		t.Error("INITIATED -> COMPLETED should be rejected")
	}
	if err := j.MarkFailed("boom", true, time.Now()); err == nil {
		t.Error("INITIATED -> FAILED should be rejected")
	}
	if j.Status != StatusInitiated {
		t.Errorf("rejected transition mutated status to %s", j.Status)
	}
}

func TestTerminalJobsAreImmutable(t *testing.T) {
	for _, status := range []JobStatus{StatusCompleted, StatusFailed} {
		j := newJob(status)
		if err := j.MarkInProgress("x"); err == nil {
			t.Errorf("%s -> IN_PROGRESS should be rejected", status)
		}
		if err := j.MarkCompleted(nil, time.Now()); err == nil {
			t.Errorf("%s -> COMPLETED should be rejected", status)
		}
		if err := j.MarkFailed("x", false, time.Now()); err == nil {
			t.Errorf("%s -> FAILED should be rejected", status)
		}
		if !j.Terminal() {
			t.Errorf("%s should be terminal", status)
		}
	}
}

func TestMarkCompletedSumsOutputCounts(t *testing.T) {
	j := newJob(StatusInProgress)
	outputs := []JobOutput{
		{ResourceType: "Patient", URL: "https://x/p.ndjson", Count: 1},
		{ResourceType: "Observation", URL: "https://x/o.ndjson", Count: 240},
		{ResourceType: "Condition", URL: "https://x/c.ndjson", Count: 12},
	}
	if err := j.MarkCompleted(outputs, time.Now()); err != nil {
		t.Fatal(err)
	}
	if j.ResourceCount != 253 {
		t.Errorf("resource count = %d, want 253", j.ResourceCount)
	}
	if len(j.Outputs) != 3 {
		t.Errorf("outputs = %d", len(j.Outputs))
	}
}

func TestMarkFailedRecordsRetryability(t *testing.T) {
	j := newJob(StatusInProgress)
	if err := j.MarkFailed("status poll returned HTTP 503", true, time.Now()); err != nil {
		t.Fatal(err)
	}
	if !j.Retryable {
		t.Error("5xx failure should be retryable")
	}
	if j.ErrorMessage == nil || *j.ErrorMessage == "" {
		t.Error("error message not recorded")
	}

	j2 := newJob(StatusInProgress)
	if err := j2.MarkFailed("status poll returned HTTP 403", false, time.Now()); err != nil {
		t.Fatal(err)
	}
	if j2.Retryable {
		t.Error("4xx failure should not be retryable")
	}
}
