package cognition

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/blueberrycongee/murmur/internal/memory"
	"github.com/blueberrycongee/murmur/internal/metrics"
	"github.com/blueberrycongee/murmur/internal/resilience"
)

// SchedulerConfig controls the cadence of the background loops.
type SchedulerConfig struct {
	CycleInterval         time.Duration
	Jitter                float64
	ActiveHours           ActiveHours
	ConsolidationInterval time.Duration
	// InteractionPollInterval of zero disables interaction polling.
	InteractionPollInterval   time.Duration
	MaxConcurrentInteractions int
	// ShutdownTimeout bounds how long Run waits for in-flight work after cancellation.
	ShutdownTimeout time.Duration
}

// DefaultShutdownTimeout covers the longest stage: a completion and a publish call, each
// bounded by DefaultCallTimeout, with headroom for the store's retries.
const DefaultShutdownTimeout = 2 * time.Minute

// DefaultSchedulerConfig returns a 30 minute cycle with hourly consolidation.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		CycleInterval:             30 * time.Minute,
		Jitter:                    DefaultJitter,
		ActiveHours:               DefaultActiveHours(),
		ConsolidationInterval:     time.Hour,
		InteractionPollInterval:   2 * time.Minute,
		MaxConcurrentInteractions: 4,
		ShutdownTimeout:           DefaultShutdownTimeout,
	}
}

// Scheduler owns the cycle, interaction and consolidation loops.
type Scheduler struct {
	orch         *Orchestrator
	longTerm     memory.LongTermMemory
	interactions InteractionSource
	archiver     Archiver
	cfg          SchedulerConfig
	logger       *slog.Logger
	sem          *resilience.Semaphore
	rnd          *rand.Rand
	now          func() time.Time

	wg      sync.WaitGroup
	mu      sync.Mutex
	sinceID string
}

// SchedulerOption customizes a Scheduler.
type SchedulerOption func(*Scheduler)

// WithInteractionSource enables interaction polling.
func WithInteractionSource(src InteractionSource) SchedulerOption {
	return func(s *Scheduler) { s.interactions = src }
}

// WithConsolidationArchiver archives consolidation reports.
func WithConsolidationArchiver(a Archiver) SchedulerOption {
	return func(s *Scheduler) { s.archiver = a }
}

// WithSchedulerLogger sets the scheduler logger.
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRand sets the jitter source.
func WithRand(rnd *rand.Rand) SchedulerOption {
	return func(s *Scheduler) {
		if rnd != nil {
			s.rnd = rnd
		}
	}
}

// WithSchedulerClock overrides the clock used for the active hours check.
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// NewScheduler creates a scheduler driving orch and consolidating longTerm.
func NewScheduler(orch *Orchestrator, longTerm memory.LongTermMemory, cfg SchedulerConfig, opts ...SchedulerOption) *Scheduler {
	defaults := DefaultSchedulerConfig()
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = defaults.CycleInterval
	}
	if cfg.ConsolidationInterval <= 0 {
		cfg.ConsolidationInterval = defaults.ConsolidationInterval
	}
	if cfg.MaxConcurrentInteractions <= 0 {
		cfg.MaxConcurrentInteractions = defaults.MaxConcurrentInteractions
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}
	s := &Scheduler{
		orch:     orch,
		longTerm: longTerm,
		cfg:      cfg,
		logger:   slog.Default(),
		sem:      resilience.NewSemaphore(cfg.MaxConcurrentInteractions),
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run starts the loops and blocks until ctx is cancelled. In-flight calls are not cancelled:
// a running cycle finishes its current stage and stops before the next one, so nothing is
// published after cancellation. Run waits for in-flight work up to ShutdownTimeout.
func (s *Scheduler) Run(ctx context.Context) error {
	work := Graceful(ctx)

	s.wg.Add(2)
	go s.cycleLoop(ctx, work)
	go s.consolidationLoop(ctx, work)
	if s.interactions != nil && s.cfg.InteractionPollInterval > 0 {
		s.wg.Add(1)
		go s.interactionLoop(ctx, work)
	}

	<-ctx.Done()
	s.logger.Info("scheduler stopping, waiting for in-flight work", "timeout", s.cfg.ShutdownTimeout)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(s.cfg.ShutdownTimeout):
		s.logger.Warn("scheduler shutdown timed out")
		return context.DeadlineExceeded
	}
}

// RunOnce runs a single cycle if inside active hours. The boolean reports whether it ran.
func (s *Scheduler) RunOnce(ctx context.Context) (CycleResult, bool, error) {
	if !s.cfg.ActiveHours.Contains(s.now()) {
		metrics.CyclesTotal.WithLabelValues("inactive").Inc()
		s.logger.Debug("outside active hours, skipping cycle")
		return CycleResult{}, false, nil
	}
	res, err := s.orch.RunCycle(ctx)
	return res, true, err
}

// Consolidate runs one consolidation pass and archives its report.
func (s *Scheduler) Consolidate(ctx context.Context) (memory.ConsolidationReport, error) {
	report, err := s.longTerm.Consolidate(ctx)
	if report.Merged > 0 {
		metrics.ConsolidationMerges.Add(float64(report.Merged))
	}
	if err != nil {
		metrics.ConsolidationRuns.WithLabelValues("failed").Inc()
		s.logger.Warn("consolidation failed", "error", err, "merged", report.Merged)
	} else {
		metrics.ConsolidationRuns.WithLabelValues("success").Inc()
		s.logger.Info("consolidation finished",
			"candidates", report.Candidates,
			"merged", report.Merged,
			"skipped", report.Skipped,
			"duration", report.Duration,
		)
	}
	if s.archiver != nil && report.Merged > 0 {
		if aerr := s.archiver.ArchiveConsolidation(ctx, report); aerr != nil {
			s.logger.Warn("failed to archive consolidation report", "error", aerr)
		}
	}
	return report, err
}

// PollInteractions fetches new interactions and handles them concurrently, bounded by the
// semaphore. It returns once every fetched interaction has been handled.
func (s *Scheduler) PollInteractions(ctx context.Context) error {
	s.mu.Lock()
	sinceID := s.sinceID
	s.mu.Unlock()

	interactions, err := s.interactions.Mentions(ctx, sinceID)
	if err != nil {
		return err
	}

	for _, in := range interactions {
		err := s.sem.Go(ctx, func() {
			if _, err := s.orch.HandleInteraction(ctx, in); err != nil && !errors.Is(err, ErrInterrupted) {
				s.logger.Warn("interaction failed", "interaction_id", in.ID, "error", err)
			}
		})
		if err != nil {
			break
		}

		s.mu.Lock()
		s.sinceID = in.ID
		s.mu.Unlock()
	}
	s.sem.Wait()
	return nil
}

func (s *Scheduler) cycleLoop(ctx, work context.Context) {
	defer s.wg.Done()
	for {
		if _, _, err := s.RunOnce(work); err != nil && !errors.Is(err, ErrInterrupted) {
			s.logger.Warn("cycle failed", "error", err)
		}

		timer := time.NewTimer(JitteredInterval(s.cfg.CycleInterval, s.cfg.Jitter, s.rnd))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (s *Scheduler) consolidationLoop(ctx, work context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.ConsolidationInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = s.Consolidate(work)
		}
	}
}

func (s *Scheduler) interactionLoop(ctx, work context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.InteractionPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.PollInteractions(work); err != nil {
				s.logger.Warn("interaction poll failed", "error", err)
			}
		}
	}
}
