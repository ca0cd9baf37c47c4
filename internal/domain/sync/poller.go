package sync

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/ehrsync/ehrsync/internal/domain/connection"
)

// connectionGetter is the slice of the connection service the poller needs.
type connectionGetter interface {
	Get(ctx context.Context, id uuid.UUID) (*connection.Connection, error)
}

// Poller drives open export jobs to resolution on a fixed cadence: each
// tick polls every open job once, abandons jobs past the attempt ceiling,
// and ingests jobs that just completed.
type Poller struct {
	cron        *cron.Cron
	coordinator *Coordinator
	pipeline    *Pipeline
	connections connectionGetter
	jobs        Repository

	interval    time.Duration
	maxAttempts int
	batchSize   int
	logger      zerolog.Logger
}

func NewPoller(coordinator *Coordinator, pipeline *Pipeline, connections connectionGetter, jobs Repository, interval time.Duration, maxAttempts int, logger zerolog.Logger) *Poller {
	return &Poller{
		cron:        cron.New(),
		coordinator: coordinator,
		pipeline:    pipeline,
		connections: connections,
		jobs:        jobs,
		interval:    interval,
		maxAttempts: maxAttempts,
		batchSize:   100,
		logger:      logger,
	}
}

// Start registers the tick and starts the cron scheduler.
func (p *Poller) Start() error {
	_, err := p.cron.AddFunc("@every "+p.interval.String(), func() {
		p.Tick(context.Background())
	})
	if err != nil {
		return err
	}
	p.cron.Start()
	p.logger.Info().
		Dur("interval", p.interval).
		Int("max_attempts", p.maxAttempts).
		Msg("export poller started")
	return nil
}

// Stop stops the cron scheduler; a tick already in flight finishes.
func (p *Poller) Stop() {
	ctx := p.cron.Stop()
	<-ctx.Done()
	p.logger.Info().Msg("export poller stopped")
}

// Tick polls every open job once. Exported so operators can force a pass
// and tests can drive the poller without waiting on cron.
func (p *Poller) Tick(ctx context.Context) {
	open, err := p.jobs.ListOpen(ctx, p.batchSize)
	if err != nil {
		p.logger.Error().Err(err).Msg("list open export jobs failed")
		return
	}

	for _, job := range open {
		p.pollJob(ctx, job)
	}
}

func (p *Poller) pollJob(ctx context.Context, job *BulkExportJob) {
	if job.PollAttempts >= p.maxAttempts {
		if err := p.coordinator.FailForTimeout(ctx, job); err != nil {
			p.logger.Error().
				Str("job_id", job.ID.String()).
				Err(err).
				Msg("abandon timed-out job failed")
		}
		return
	}

	conn, err := p.connections.Get(ctx, job.ConnectionID)
	if err != nil {
		p.logger.Error().
			Str("job_id", job.ID.String()).
			Str("connection_id", job.ConnectionID.String()).
			Err(err).
			Msg("load connection for open job failed")
		return
	}

	jobID := job.ID
	job, err = p.coordinator.PollOnce(ctx, conn, job)
	if err != nil {
		p.logger.Error().
			Str("job_id", jobID.String()).
			Err(err).
			Msg("poll failed")
		return
	}

	if job.Status == StatusCompleted {
		if _, err := p.pipeline.Process(ctx, conn, job); err != nil {
			p.logger.Error().
				Str("job_id", job.ID.String()).
				Err(err).
				Msg("ingest completed job failed")
		}
	}
}
