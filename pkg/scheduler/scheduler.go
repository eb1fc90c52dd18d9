// Package scheduler drives the full-population recompute on an interval and
// on demand.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/jirikrizz/erihub-dev-sub006/pkg/models"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/tracing"
)

// ErrSchedulerAlreadyRunning is returned by a second Start
var ErrSchedulerAlreadyRunning = errors.New("scheduler already running")

// DefaultPollInterval applies when Config.PollInterval is not set
const DefaultPollInterval = 15 * time.Minute

// Recomputer re-evaluates every customer. Implementations decide whether a
// run is skipped because another worker holds the recompute lock.
type Recomputer interface {
	RecomputeAll(ctx context.Context) (models.RecomputeStats, error)
}

type Config struct {
	PollInterval time.Duration
	// RunOnStart triggers a recompute as soon as the scheduler starts
	RunOnStart bool
}

// Scheduler runs at most one recompute at a time. Triggers that arrive while
// a run is in flight collapse into a single follow-up run.
type Scheduler struct {
	recomputer Recomputer
	config     Config
	logger     ectologger.Logger

	trigger chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(recomputer Recomputer, config Config, logger ectologger.Logger) *Scheduler {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	return &Scheduler{
		recomputer: recomputer,
		config:     config,
		logger:     logger,
		trigger:    make(chan struct{}, 1),
	}
}

func (s *Scheduler) GetName() string     { return "scheduler" }
func (s *Scheduler) DependsOn() []string { return []string{"postgres", "redis", "rules"} }

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrSchedulerAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.done = make(chan struct{})
	if s.config.RunOnStart {
		s.Trigger()
	}
	go s.loop(loopCtx, s.done)

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"poll_interval": s.config.PollInterval.String(),
		"run_on_start":  s.config.RunOnStart,
	}).Info("Recompute scheduler started")
	return nil
}

// Stop cancels the in-flight recompute and waits for it unless ctx expires
// first. Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	select {
	case <-done:
		s.logger.WithContext(ctx).Info("Recompute scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.WithContext(ctx).Warn("Recompute scheduler shutdown timed out")
		return ctx.Err()
	}
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Trigger asks for a recompute as soon as the current one, if any, ends.
// It never blocks.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.run(ctx, "interval")
		case <-s.trigger:
			s.run(ctx, "trigger")
		}
	}
}

func (s *Scheduler) run(ctx context.Context, cause string) {
	ctx, span := tracing.StartSpan(ctx, "scheduler.Scheduler.run")
	defer span.End()

	log := s.logger.WithContext(ctx).WithField("cause", cause)
	start := time.Now()
	stats, err := s.recomputer.RecomputeAll(ctx)
	switch {
	case err != nil && ctx.Err() != nil:
		log.Info("Recompute interrupted by shutdown")
	case err != nil:
		log.WithError(err).Error("Recompute run failed")
	case stats.Skipped:
		log.Debug("Recompute skipped, another worker holds the lock")
	default:
		log.WithFields(map[string]any{
			"scanned":  stats.Scanned,
			"updated":  stats.Updated,
			"failed":   stats.Failed,
			"duration": time.Since(start).String(),
		}).Info("Recompute run completed")
	}
}
