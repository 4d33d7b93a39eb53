package generation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"studio/internal/domain"
)

// SweepReport summarises one recovery pass.
type SweepReport struct {
	TimedOut  int `json:"timed_out"`
	Adopted   int `json:"adopted"`
	Polled    int `json:"polled"`
	Abandoned int `json:"abandoned"`
	Refunded  int `json:"refunded"`
}

// SweeperDeps bundles the sweeper's collaborators. Supervisor is nil in the
// one-shot CLI, which then polls the gateway once per job instead.
type SweeperDeps struct {
	Jobs        domain.JobRepository
	Reconciler  Completer
	Refunds     Refunder
	Supervisor  *Supervisor
	Gateway     Gateway
	MaxLifetime time.Duration
	BatchSize   int
	Logger      zerolog.Logger
}

// Sweeper recovers jobs whose poller was lost, typically across a restart,
// and retries refunds that did not complete.
type Sweeper struct {
	deps SweeperDeps
	log  zerolog.Logger
	now  func() time.Time
	cron *cron.Cron
	mu   sync.Mutex
}

// NewSweeper builds a sweeper.
func NewSweeper(deps SweeperDeps) *Sweeper {
	if deps.BatchSize <= 0 {
		deps.BatchSize = 200
	}
	if deps.MaxLifetime <= 0 {
		deps.MaxLifetime = 30 * time.Minute
	}
	return &Sweeper{
		deps: deps,
		log:  deps.Logger.With().Str("component", "sweeper").Logger(),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// RunOnce performs one pass. Runs never overlap.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var report SweepReport
	var errs []error
	now := s.now()
	deadline := now.Add(-s.deps.MaxLifetime)

	processing, err := s.deps.Jobs.ListByStatus(ctx, domain.JobStatusProcessing, now, s.deps.BatchSize)
	if err != nil {
		return report, fmt.Errorf("sweep: list processing: %w", err)
	}
	for i := range processing {
		job := &processing[i]
		if err := s.recoverProcessing(ctx, job, deadline, &report); err != nil {
			errs = append(errs, err)
		}
	}

	pending, err := s.deps.Jobs.ListByStatus(ctx, domain.JobStatusPending, deadline, s.deps.BatchSize)
	if err != nil {
		errs = append(errs, fmt.Errorf("sweep: list pending: %w", err))
	}
	for _, job := range pending {
		// submission never reached processing
		if _, err := s.deps.Jobs.MarkSubmitFailed(ctx, job.ID, "submission did not complete", now); err != nil {
			if !errors.Is(err, domain.ErrInvalidTransition) {
				errs = append(errs, fmt.Errorf("sweep: abandon %s: %w", job.ID, err))
			}
			continue
		}
		report.Abandoned++
	}

	failed, err := s.deps.Jobs.ListUnrefundedFailures(ctx, s.deps.BatchSize)
	if err != nil {
		errs = append(errs, fmt.Errorf("sweep: list unrefunded: %w", err))
	}
	for _, job := range failed {
		res, err := s.deps.Refunds.Refund(ctx, job.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if res.Applied {
			report.Refunded++
		}
	}

	logEvent := s.log.Info()
	if len(errs) > 0 {
		logEvent = s.log.Warn().Int("errors", len(errs))
	}
	logEvent.Int("timed_out", report.TimedOut).
		Int("adopted", report.Adopted).
		Int("polled", report.Polled).
		Int("abandoned", report.Abandoned).
		Int("refunded", report.Refunded).
		Msg("sweep finished")
	return report, errors.Join(errs...)
}

func (s *Sweeper) recoverProcessing(ctx context.Context, job *domain.Job, deadline time.Time, report *SweepReport) error {
	if job.CreatedAt.Before(deadline) {
		if s.deps.Supervisor != nil {
			s.deps.Supervisor.Cancel(job.ID)
		}
		sig := domain.Signal{
			Outcome:     domain.OutcomeFailure,
			ErrorDetail: TimeoutDetail(s.deps.MaxLifetime),
			Source:      domain.SourceSweep,
		}
		_, applied, err := s.deps.Reconciler.ApplyCompletion(ctx, job.ID, sig)
		if err != nil {
			return fmt.Errorf("sweep: time out %s: %w", job.ID, err)
		}
		if applied {
			report.TimedOut++
		}
		return nil
	}
	if s.deps.Supervisor != nil {
		if s.deps.Supervisor.Start(job.ID, job.ExternalTaskID, job.CreatedAt) {
			report.Adopted++
		}
		return nil
	}
	if s.deps.Gateway == nil {
		return nil
	}
	res, err := s.deps.Gateway.Poll(ctx, job.ExternalTaskID)
	if err != nil {
		s.log.Warn().Err(err).Str("job_id", job.ID).Msg("sweep poll failed")
		return nil
	}
	sig, terminal := res.Signal(domain.SourceSweep)
	if !terminal {
		return nil
	}
	if _, applied, err := s.deps.Reconciler.ApplyCompletion(ctx, job.ID, sig); err != nil {
		return fmt.Errorf("sweep: reconcile %s: %w", job.ID, err)
	} else if applied {
		report.Polled++
	}
	return nil
}

// Start schedules RunOnce with a cron expression such as "@every 5m".
func (s *Sweeper) Start(ctx context.Context, schedule string) error {
	if schedule == "" {
		schedule = "@every 5m"
	}
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(schedule, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Error().Err(err).Msg("scheduled sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("sweep schedule %q: %w", schedule, err)
	}
	s.cron.Start()
	s.log.Info().Str("schedule", schedule).Msg("sweeper started")
	return nil
}

// Stop halts the schedule and waits for a running pass.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.log.Info().Msg("sweeper stopped")
}
