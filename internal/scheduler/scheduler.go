// Package scheduler runs periodic background jobs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// SummaryRefresher regenerates stale agent resource summaries.
type SummaryRefresher interface {
	RefreshResourceSummaries(ctx context.Context) (int, error)
}

// Scheduler refreshes resource summaries on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	job     SummaryRefresher
	timeout time.Duration
}

// New creates a scheduler for spec, a standard cron expression or a
// descriptor such as "@every 10m". An empty spec yields a scheduler that
// never fires.
func New(spec string, job SummaryRefresher, timeout time.Duration) (*Scheduler, error) {
	s := &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger{}),
			cron.SkipIfStillRunning(cronLogger{}),
		)),
		job:     job,
		timeout: timeout,
	}
	if spec == "" {
		return s, nil
	}
	if _, err := s.cron.AddFunc(spec, func() { s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins firing jobs in the background.
func (s *Scheduler) Start() {
	log.Info().Int("jobs", len(s.cron.Entries())).Msg("starting background scheduler")
	s.cron.Start()
}

// Stop halts the scheduler and waits for a running job to finish or ctx to
// expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	log.Info().Msg("stopped background scheduler")
}

// RunOnce refreshes summaries now.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	n, err := s.job.RefreshResourceSummaries(ctx)
	if err != nil {
		log.Error().Err(err).Msg("scheduler: summary refresh failed")
		return
	}
	log.Info().Int("agents", n).Dur("took", time.Since(start)).Msg("scheduler: summaries refreshed")
}

// cronLogger routes cron's logging into zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
