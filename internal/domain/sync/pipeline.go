package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehrsync/ehrsync/internal/domain/connection"
	"github.com/ehrsync/ehrsync/internal/domain/provider"
	"github.com/ehrsync/ehrsync/internal/domain/record"
	"github.com/ehrsync/ehrsync/internal/domain/sync/extract"
	"github.com/ehrsync/ehrsync/internal/platform/fhir"
)

// RecordSink is the idempotent upsert the pipeline writes into.
// record.Service satisfies it.
type RecordSink interface {
	Ingest(ctx context.Context, connectionID uuid.UUID, fhirID string, rt record.ResourceType, raw map[string]interface{}, enhanced map[string]interface{}) error
}

// Pipeline downloads a completed job's output files, parses the streamed
// NDJSON records, maps vendor types onto the canonical enum, runs enhanced
// extraction, and upserts each record. It is partial-failure tolerant at
// both the file and record level; the summary, not an error, carries that
// information back to the caller.
type Pipeline struct {
	jobs       Repository
	records    RecordSink
	client     bulkClient
	profiles   *provider.Registry
	limiter    *provider.RateLimiter
	extractors *extract.Registry
	logger     zerolog.Logger
}

func NewPipeline(jobs Repository, records RecordSink, client bulkClient, profiles *provider.Registry, limiter *provider.RateLimiter, extractors *extract.Registry, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		jobs:       jobs,
		records:    records,
		client:     client,
		profiles:   profiles,
		limiter:    limiter,
		extractors: extractors,
		logger:     logger,
	}
}

// Process ingests every output file of a COMPLETED job, in listed order.
// A file that fails to download is skipped; a line that fails to parse is
// skipped; processing always continues with the next file or line. After
// the run the job's resource count reflects the records actually stored and
// the skip counters are persisted on the job row.
func (p *Pipeline) Process(ctx context.Context, conn *connection.Connection, job *BulkExportJob) (*IngestionSummary, error) {
	if job.Status != StatusCompleted {
		return nil, fmt.Errorf("cannot ingest job %s in status %s", job.ID, job.Status)
	}

	profile, err := p.profiles.Get(conn.Vendor)
	if err != nil {
		return nil, err
	}
	auth := requestAuth(profile, conn)

	summary := &IngestionSummary{}
	for _, output := range job.Outputs {
		if err := p.limiter.Wait(ctx, profile, conn.Tenant()); err != nil {
			return summary, err
		}

		body, err := p.client.Download(ctx, output.URL, auth)
		if err != nil {
			summary.SkippedFiles++
			p.logger.Warn().
				Str("job_id", job.ID.String()).
				Str("url", output.URL).
				Str("resource_type", output.ResourceType).
				Err(err).
				Msg("output file download failed, skipping")
			continue
		}
		summary.BytesDownloaded += int64(len(body))

		p.ingestNDJSON(ctx, profile, conn, job, body, summary)
	}

	job.ResourceCount = summary.Stored
	job.TotalSizeBytes = summary.BytesDownloaded
	job.SkippedFiles = summary.SkippedFiles
	job.SkippedLines = summary.SkippedLines
	job.MappingWarnings = summary.MappingWarnings
	if err := p.jobs.Update(ctx, job); err != nil {
		return summary, fmt.Errorf("persist ingestion counters: %w", err)
	}

	p.logger.Info().
		Str("job_id", job.ID.String()).
		Int("stored", summary.Stored).
		Int64("bytes", summary.BytesDownloaded).
		Int("skipped_files", summary.SkippedFiles).
		Int("skipped_lines", summary.SkippedLines).
		Msg("bulk export ingested")

	return summary, nil
}

func (p *Pipeline) ingestNDJSON(ctx context.Context, profile *provider.Profile, conn *connection.Connection, job *BulkExportJob, body []byte, summary *IngestionSummary) {
	reader := fhir.NewNDJSONReader(bytes.NewReader(body))
	for {
		line, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return
		}
		if errors.Is(err, fhir.ErrLineTooLong) {
			summary.SkippedLines++
			p.logger.Warn().
				Str("job_id", job.ID.String()).
				Err(err).
				Msg("oversized NDJSON line, skipping")
			continue
		}
		if err != nil {
			// Read failure mid-file; the remaining lines are unrecoverable.
			summary.SkippedFiles++
			p.logger.Error().
				Str("job_id", job.ID.String()).
				Err(err).
				Msg("NDJSON read failed, abandoning rest of file")
			return
		}

		var resource map[string]interface{}
		if err := json.Unmarshal(line, &resource); err != nil {
			summary.SkippedLines++
			p.logger.Warn().
				Str("job_id", job.ID.String()).
				Err(err).
				Msg("malformed NDJSON line, skipping")
			continue
		}

		p.ingestResource(ctx, profile, conn, resource, summary)
	}
}

// ingestResource is the ingestion primitive both the bulk and direct paths
// converge on: map the type, extract enhanced data, upsert, and apply the
// per-record delay where the vendor contract requires it.
func (p *Pipeline) ingestResource(ctx context.Context, profile *provider.Profile, conn *connection.Connection, resource map[string]interface{}, summary *IngestionSummary) {
	vendorType, _ := resource["resourceType"].(string)
	fhirID, _ := resource["id"].(string)
	if vendorType == "" || fhirID == "" {
		summary.SkippedLines++
		p.logger.Warn().
			Str("connection_id", conn.ID.String()).
			Msg("resource missing resourceType or id, skipping")
		return
	}

	canonical, mapped := profile.CanonicalType(vendorType)
	if !mapped {
		summary.MappingWarnings++
		p.logger.Warn().
			Str("connection_id", conn.ID.String()).
			Str("vendor_type", vendorType).
			Msg("unrecognized vendor resource type, storing under OTHER")
	}

	var enhanced map[string]interface{}
	if extractor, ok := p.extractors.Get(canonical); ok && profile.SupportsEnhanced(canonical) {
		data, err := extractor.Extract(resource)
		if err != nil {
			p.logger.Warn().
				Str("connection_id", conn.ID.String()).
				Str("resource_type", string(canonical)).
				Str("fhir_id", fhirID).
				Err(err).
				Msg("enhanced extraction failed, storing raw payload only")
		} else {
			enhanced = data
		}
	}

	if err := p.records.Ingest(ctx, conn.ID, fhirID, canonical, resource, enhanced); err != nil {
		summary.SkippedLines++
		p.logger.Error().
			Str("connection_id", conn.ID.String()).
			Str("fhir_id", fhirID).
			Err(err).
			Msg("record upsert failed, skipping")
		return
	}
	summary.Stored++

	if profile.PerRecordDelay {
		if err := p.limiter.Wait(ctx, profile, conn.Tenant()); err != nil {
			p.logger.Warn().Err(err).Msg("per-record delay interrupted")
		}
	}
}
