// Package scheduler runs sweeps and archival passes on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"uptimewatch/internal/log"
	"uptimewatch/internal/models"
)

// DefaultJobTimeout bounds one scheduled run.
const DefaultJobTimeout = 10 * time.Minute

type Sweeper interface {
	SweepAll(ctx context.Context) ([]models.SweepResult, error)
}

type Archiver interface {
	ArchiveOldEntries(ctx context.Context) (models.ArchiveResult, error)
}

// Options configures the schedules. An empty schedule disables that job.
type Options struct {
	SweepSchedule   string
	ArchiveSchedule string
	Location        *time.Location
	JobTimeout      time.Duration
}

// Scheduler owns the cron runner.
type Scheduler struct {
	cron     *cron.Cron
	sweeper  Sweeper
	archiver Archiver
	timeout  time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
}

// New parses the schedules and registers the jobs. Nothing runs until Start.
func New(sweeper Sweeper, archiver Archiver, opts Options) (*Scheduler, error) {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	timeout := opts.JobTimeout
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}

	logger := cronLogger{}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:     c,
		sweeper:  sweeper,
		archiver: archiver,
		timeout:  timeout,
		ctx:      ctx,
		cancel:   cancel,
	}

	if opts.SweepSchedule != "" {
		if _, err := c.AddFunc(opts.SweepSchedule, func() { s.RunSweep(s.ctx) }); err != nil {
			cancel()
			return nil, fmt.Errorf("invalid sweep schedule %q: %w", opts.SweepSchedule, err)
		}
	}
	if opts.ArchiveSchedule != "" && archiver != nil {
		if _, err := c.AddFunc(opts.ArchiveSchedule, func() { s.RunArchive(s.ctx) }); err != nil {
			cancel()
			return nil, fmt.Errorf("invalid archive schedule %q: %w", opts.ArchiveSchedule, err)
		}
	}
	return s, nil
}

// Jobs returns the number of registered jobs.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		log.Info().Time("next", e.Next).Msg("Scheduled job")
	}
}

// Stop halts the runner and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		s.cancel()
		return nil
	}
	s.started = false

	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}
}

// RunSweep performs one scheduled sweep.
func (s *Scheduler) RunSweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	results, err := s.sweeper.SweepAll(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Scheduled sweep failed")
		return
	}
	log.Info().Int("targets", len(results)).Dur("took", time.Since(start)).Msg("Scheduled sweep done")
}

// RunArchive performs one scheduled archival pass.
func (s *Scheduler) RunArchive(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.archiver.ArchiveOldEntries(ctx)
	if err != nil {
		log.Error().Err(err).Int("archived", result.Archived).Msg("Scheduled archival failed")
		return
	}
	log.Info().Int("archived", result.Archived).Msg("Scheduled archival done")
}

// cronLogger forwards cron's own messages to zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
