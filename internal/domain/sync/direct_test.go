package sync

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ehrsync/ehrsync/internal/domain/provider"
	"github.com/ehrsync/ehrsync/internal/platform/fhir"
)

func bundlePage(next string, resources ...string) *fhir.Bundle {
	b := &fhir.Bundle{ResourceType: "Bundle", Type: "searchset"}
	if next != "" {
		b.Link = append(b.Link, fhir.BundleLink{Relation: "next", URL: next})
	}
	for _, r := range resources {
		b.Entry = append(b.Entry, fhir.BundleEntry{Resource: json.RawMessage(r)})
	}
	return b
}

func TestSyncResourceTypeWalksAllPages(t *testing.T) {
	repo := newMemJobRepo()
	sink := newMemSink()
	client := &stubClient{pages: map[string]*fhir.Bundle{
		"https://fhir.example.org/r4/Goal?patient=pat-1": bundlePage(
			"https://fhir.example.org/r4/Goal?patient=pat-1&page=2",
			`{"resourceType":"Goal","id":"g1","lifecycleStatus":"active"}`,
			`{"resourceType":"Goal","id":"g2","lifecycleStatus":"active"}`,
		),
		"https://fhir.example.org/r4/Goal?patient=pat-1&page=2": bundlePage("",
			`{"resourceType":"Goal","id":"g3","lifecycleStatus":"completed"}`,
		),
	}}
	p := newTestPipeline(repo, sink, client)
	conn := testConn(provider.VendorEpic)

	summary, err := p.SyncResourceType(context.Background(), conn, "Goal")
	if err != nil {
		t.Fatalf("direct sync: %v", err)
	}
	if summary.Stored != 3 {
		t.Errorf("stored = %d, want 3 across both pages", summary.Stored)
	}
	if client.searchCalls != 2 {
		t.Errorf("search calls = %d, want 2", client.searchCalls)
	}
	// Direct sync converges on the same ingestion primitive, so enhanced
	// extraction runs here too.
	if _, ok := sink.enhanced[conn.ID.String()+"/g1/GOAL"]; !ok {
		t.Error("direct-synced Goal missing enhanced data")
	}
}

func TestSyncResourceTypeRejectsUnsupportedType(t *testing.T) {
	p := newTestPipeline(newMemJobRepo(), newMemSink(), &stubClient{})
	conn := testConn(provider.VendorAthenaHealth)

	if _, err := p.SyncResourceType(context.Background(), conn, "Goal"); err == nil {
		t.Fatal("vendor without Goal support should refuse direct sync")
	}
}

func TestSyncResourceTypeSearchFailure(t *testing.T) {
	client := &stubClient{pages: map[string]*fhir.Bundle{}}
	p := newTestPipeline(newMemJobRepo(), newMemSink(), client)
	conn := testConn(provider.VendorEpic)

	if _, err := p.SyncResourceType(context.Background(), conn, "CarePlan"); err == nil {
		t.Fatal("failed search page should surface as an error")
	}
}

func TestSyncResourceTypeSkipsMalformedEntries(t *testing.T) {
	sink := newMemSink()
	client := &stubClient{pages: map[string]*fhir.Bundle{
		"https://fhir.example.org/r4/CarePlan?patient=pat-1": bundlePage("",
			`{"resourceType":"CarePlan","id":"cp1","status":"active","intent":"plan"}`,
			`not-json`,
		),
	}}
	p := newTestPipeline(newMemJobRepo(), sink, client)
	conn := testConn(provider.VendorEpic)

	summary, err := p.SyncResourceType(context.Background(), conn, "CarePlan")
	if err != nil {
		t.Fatal(err)
	}
	if summary.Stored != 1 || summary.SkippedLines != 1 {
		t.Errorf("stored/skipped = %d/%d, want 1/1", summary.Stored, summary.SkippedLines)
	}
}
