package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehrsync/ehrsync/internal/domain/connection"
	"github.com/ehrsync/ehrsync/internal/domain/provider"
	"github.com/ehrsync/ehrsync/internal/platform/fhir"
)

// bulkClient is the slice of the outbound FHIR client the engine needs.
type bulkClient interface {
	Kickoff(ctx context.Context, kickoffURL string, auth fhir.RequestAuth) (string, error)
	PollStatus(ctx context.Context, statusURL string, auth fhir.RequestAuth) (*fhir.PollResult, error)
	Download(ctx context.Context, fileURL string, auth fhir.RequestAuth) ([]byte, error)
	SearchPage(ctx context.Context, searchURL string, auth fhir.RequestAuth) (*fhir.Bundle, error)
}

// ErrCredentialExpired is returned from Kickoff when the connection's bearer
// credential has visibly lapsed; calling the vendor would only burn a
// rate-limited request on a guaranteed 401.
var ErrCredentialExpired = errors.New("connection credential is expired")

// Coordinator owns the bulk export job state machine: kickoff, one-shot
// polling, and terminal resolution. It never loops or sleeps; the calling
// layer schedules repeated polls.
type Coordinator struct {
	jobs     Repository
	client   bulkClient
	profiles *provider.Registry
	limiter  *provider.RateLimiter
	logger   zerolog.Logger
}

func NewCoordinator(jobs Repository, client bulkClient, profiles *provider.Registry, limiter *provider.RateLimiter, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		jobs:     jobs,
		client:   client,
		profiles: profiles,
		limiter:  limiter,
		logger:   logger,
	}
}

func requestAuth(profile *provider.Profile, conn *connection.Connection) fhir.RequestAuth {
	return fhir.RequestAuth{
		BearerToken:  conn.BearerToken,
		TenantHeader: profile.TenantHeader,
		TenantID:     conn.Tenant(),
	}
}

// Kickoff starts a bulk export for the connection. On success a new job in
// IN_PROGRESS with its status URL is persisted and returned. On any failure
// a *KickoffError is returned and nothing is persisted: there is no
// half-initialized job state.
func (c *Coordinator) Kickoff(ctx context.Context, conn *connection.Connection, exportType provider.ExportType, resourceTypes []string, since *time.Time) (*BulkExportJob, error) {
	profile, err := c.profiles.Get(conn.Vendor)
	if err != nil {
		return nil, &KickoffError{Err: err}
	}

	if fhir.CredentialExpired(conn.BearerToken, time.Now()) {
		return nil, &KickoffError{Err: ErrCredentialExpired}
	}

	kickoffURL, err := profile.KickoffURL(conn.BaseURL, exportType, conn.PatientID, resourceTypes, since)
	if err != nil {
		return nil, &KickoffError{Err: err}
	}

	if err := c.limiter.Wait(ctx, profile, conn.Tenant()); err != nil {
		return nil, &KickoffError{Err: err}
	}

	statusURL, err := c.client.Kickoff(ctx, kickoffURL, requestAuth(profile, conn))
	if err != nil {
		c.logger.Error().
			Str("connection_id", conn.ID.String()).
			Str("vendor", string(conn.Vendor)).
			Err(err).
			Msg("bulk export kickoff failed")
		return nil, &KickoffError{Err: err}
	}

	job := &BulkExportJob{
		ConnectionID:           conn.ID,
		ExportType:             exportType,
		Status:                 StatusInitiated,
		KickoffURL:             kickoffURL,
		RequestedResourceTypes: resourceTypes,
		Since:                  since,
		TenantID:               conn.TenantID,
		StartedAt:              time.Now().UTC(),
	}
	if err := job.MarkInProgress(statusURL); err != nil {
		return nil, &KickoffError{Err: err}
	}

	if err := c.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("persist export job: %w", err)
	}

	c.logger.Info().
		Str("job_id", job.ID.String()).
		Str("connection_id", conn.ID.String()).
		Str("vendor", string(conn.Vendor)).
		Str("export_type", string(exportType)).
		Msg("bulk export kicked off")

	return job, nil
}

// PollOnce issues a single status poll and applies the result to the job.
// Terminal jobs are returned unchanged. Vendor-side failures flip the job
// to FAILED rather than returning an error; callers must check job status
// after every call.
func (c *Coordinator) PollOnce(ctx context.Context, conn *connection.Connection, job *BulkExportJob) (*BulkExportJob, error) {
	if job.Terminal() {
		return job, nil
	}
	if job.StatusURL == nil {
		return nil, fmt.Errorf("job %s has no status URL", job.ID)
	}

	profile, err := c.profiles.Get(conn.Vendor)
	if err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx, profile, conn.Tenant()); err != nil {
		return nil, err
	}

	job.PollAttempts++

	result, err := c.client.PollStatus(ctx, *job.StatusURL, requestAuth(profile, conn))
	if err != nil {
		now := time.Now().UTC()
		var serr *fhir.StatusError
		if errors.As(err, &serr) {
			perr := &PollTransportError{HTTPStatus: serr.Code}
			if ferr := job.MarkFailed(perr.Error(), serr.Transient(), now); ferr != nil {
				return nil, ferr
			}
		} else {
			if ferr := job.MarkFailed(fmt.Sprintf("status poll failed: %v", err), true, now); ferr != nil {
				return nil, ferr
			}
		}
		c.logger.Error().
			Str("job_id", job.ID.String()).
			Str("error", *job.ErrorMessage).
			Bool("retryable", job.Retryable).
			Msg("bulk export failed")
		if err := c.jobs.Update(ctx, job); err != nil {
			return nil, fmt.Errorf("persist failed job: %w", err)
		}
		return job, nil
	}

	if result.InProgress {
		if err := c.jobs.Update(ctx, job); err != nil {
			return nil, fmt.Errorf("persist poll attempt: %w", err)
		}
		return job, nil
	}

	outputs := make([]JobOutput, 0, len(result.Manifest.Output))
	for _, o := range result.Manifest.Output {
		outputs = append(outputs, JobOutput{
			ResourceType: o.Type,
			URL:          o.URL,
			Count:        o.Count,
		})
	}
	if err := job.MarkCompleted(outputs, time.Now().UTC()); err != nil {
		return nil, err
	}
	if err := c.jobs.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("persist completed job: %w", err)
	}

	c.logger.Info().
		Str("job_id", job.ID.String()).
		Int("outputs", len(outputs)).
		Int("resource_count", job.ResourceCount).
		Msg("bulk export completed")

	return job, nil
}

// FailForTimeout force-fails a job that has been polled past the attempt
// ceiling without reaching a terminal state. Used by the poll scheduler;
// the vendor-side export may well continue, but this engine stops watching.
func (c *Coordinator) FailForTimeout(ctx context.Context, job *BulkExportJob) error {
	if job.Terminal() {
		return nil
	}
	msg := fmt.Sprintf("poll attempt ceiling exceeded after %d attempts", job.PollAttempts)
	if err := job.MarkFailed(msg, false, time.Now().UTC()); err != nil {
		return err
	}
	c.logger.Warn().
		Str("job_id", job.ID.String()).
		Int("poll_attempts", job.PollAttempts).
		Msg("bulk export abandoned")
	return c.jobs.Update(ctx, job)
}
