package scheduler

import (
	"context"
	"log/slog"
	"time"

	"foresight/internal/config"
)

// Job is one batch pass: ingest, resolve or verify.
type Job func(ctx context.Context) error

// Jobs are the periodic passes the daemon sequences. Any of them may be nil
// when the corresponding subsystem is not configured.
type Jobs struct {
	Ingest  Job
	Resolve Job
	Verify  Job
}

// Scheduler runs the daily passes on their configured intervals.
type Scheduler struct {
	jobs Jobs
	cfg  config.ScheduleConfig
}

func New(jobs Jobs, cfg config.ScheduleConfig) *Scheduler {
	return &Scheduler{jobs: jobs, cfg: cfg}
}

// Run starts all periodic loops and blocks until context is cancelled.
// Ingestion and resolution run once immediately so a fresh deployment does a
// full pass without waiting a day.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("scheduler starting",
		"ingest_interval", s.cfg.IngestInterval.Duration,
		"resolve_interval", s.cfg.ResolveInterval.Duration,
		"verify_interval", s.cfg.VerifyInterval.Duration,
	)

	s.runJob(ctx, "ingest", s.jobs.Ingest)
	s.runJob(ctx, "resolve", s.jobs.Resolve)

	ingestTicker := time.NewTicker(s.cfg.IngestInterval.Duration)
	resolveTicker := time.NewTicker(s.cfg.ResolveInterval.Duration)
	verifyTicker := time.NewTicker(s.cfg.VerifyInterval.Duration)
	defer ingestTicker.Stop()
	defer resolveTicker.Stop()
	defer verifyTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler shutting down")
			return ctx.Err()
		case <-ingestTicker.C:
			s.runJob(ctx, "ingest", s.jobs.Ingest)
		case <-resolveTicker.C:
			s.runJob(ctx, "resolve", s.jobs.Resolve)
		case <-verifyTicker.C:
			s.runJob(ctx, "verify", s.jobs.Verify)
		}
	}
}

func (s *Scheduler) runJob(ctx context.Context, name string, job Job) {
	if job == nil {
		return
	}
	slog.Info("starting pass", "job", name)
	start := time.Now()
	if err := job(ctx); err != nil {
		slog.Error("pass failed", "job", name, "error", err)
		return
	}
	slog.Info("pass complete", "job", name, "elapsed", time.Since(start).Round(time.Millisecond))
}
