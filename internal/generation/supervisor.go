package generation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"studio/internal/domain"
)

// Completer applies completion signals. Implemented by *Reconciler.
type Completer interface {
	ApplyCompletion(ctx context.Context, jobID string, sig domain.Signal) (*domain.Job, bool, error)
}

// SupervisorOptions tunes the fallback polling loop.
type SupervisorOptions struct {
	Interval    time.Duration
	MaxLifetime time.Duration
	Now         func() time.Time
}

// Supervisor owns one polling goroutine per processing job. Polling is the
// fallback path; the webhook normally finishes a job first.
type Supervisor struct {
	gateway     Gateway
	completer   Completer
	interval    time.Duration
	maxLifetime time.Duration
	now         func() time.Time
	log         zerolog.Logger

	mu     sync.Mutex
	active map[string]*pollHandle
	closed bool
	wg     sync.WaitGroup
}

type pollHandle struct {
	taskID    string
	startedAt time.Time
	cancel    context.CancelFunc
}

// NewSupervisor builds a supervisor. Zero options fall back to a two minute
// interval and a thirty minute lifetime.
func NewSupervisor(gateway Gateway, completer Completer, opts SupervisorOptions, logger zerolog.Logger) *Supervisor {
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Minute
	}
	if opts.MaxLifetime <= 0 {
		opts.MaxLifetime = 30 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Supervisor{
		gateway:     gateway,
		completer:   completer,
		interval:    opts.Interval,
		maxLifetime: opts.MaxLifetime,
		now:         opts.Now,
		log:         logger.With().Str("component", "poller").Logger(),
		active:      make(map[string]*pollHandle),
	}
}

// MaxLifetime is the deadline after which a job is failed as timed out.
func (s *Supervisor) MaxLifetime() time.Duration {
	return s.maxLifetime
}

// TimeoutDetail is the error recorded on jobs that outlive the deadline.
func TimeoutDetail(lifetime time.Duration) string {
	return fmt.Sprintf("generation timed out after %s without a result", lifetime)
}

// Start begins polling taskID for jobID. The lifetime is measured from
// startedAt. It returns false when the job is already polled or the
// supervisor has shut down.
func (s *Supervisor) Start(jobID, taskID string, startedAt time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if _, ok := s.active[jobID]; ok {
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &pollHandle{taskID: taskID, startedAt: startedAt, cancel: cancel}
	s.active[jobID] = h
	s.wg.Add(1)
	go s.run(ctx, jobID, h)
	s.log.Debug().Str("job_id", jobID).Str("task_id", taskID).Msg("poller started")
	return true
}

// Cancel stops the poller for jobID. Unknown or stopped jobs are ignored.
func (s *Supervisor) Cancel(jobID string) bool {
	s.mu.Lock()
	h, ok := s.active[jobID]
	if ok {
		delete(s.active, jobID)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	h.cancel()
	s.log.Debug().Str("job_id", jobID).Msg("poller cancelled")
	return true
}

// Active reports whether jobID has a running poller.
func (s *Supervisor) Active(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[jobID]
	return ok
}

// Len is the number of running pollers.
func (s *Supervisor) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Shutdown cancels every poller and waits for them to exit or ctx to end.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for id, h := range s.active {
		h.cancel()
		delete(s.active, id)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) run(ctx context.Context, jobID string, h *pollHandle) {
	defer s.wg.Done()
	defer s.release(jobID, h)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if s.tick(ctx, jobID, h) {
			return
		}
	}
}

// tick runs one poll cycle and reports whether polling should stop.
func (s *Supervisor) tick(ctx context.Context, jobID string, h *pollHandle) bool {
	if ctx.Err() != nil {
		return true
	}
	logger := s.log.With().Str("job_id", jobID).Str("task_id", h.taskID).Logger()

	if s.now().Sub(h.startedAt) > s.maxLifetime {
		sig := domain.Signal{
			Outcome:     domain.OutcomeFailure,
			ErrorDetail: TimeoutDetail(s.maxLifetime),
			Source:      domain.SourcePoller,
		}
		return s.complete(ctx, logger, jobID, sig)
	}

	res, err := s.gateway.Poll(ctx, h.taskID)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		logger.Warn().Err(err).Msg("poll failed, retrying next tick")
		return false
	}
	sig, terminal := res.Signal(domain.SourcePoller)
	if !terminal {
		logger.Debug().Msg("task still running")
		return false
	}
	return s.complete(ctx, logger, jobID, sig)
}

func (s *Supervisor) complete(ctx context.Context, logger zerolog.Logger, jobID string, sig domain.Signal) bool {
	job, applied, err := s.completer.ApplyCompletion(ctx, jobID, sig)
	if err != nil {
		logger.Error().Err(err).Msg("apply completion failed")
		if errors.Is(err, domain.ErrNotFound) {
			return true
		}
		return job != nil && job.Status.Terminal()
	}
	if applied {
		logger.Info().Str("status", string(job.Status)).Msg("poller finalized job")
	}
	return job.Status.Terminal()
}

func (s *Supervisor) release(jobID string, h *pollHandle) {
	s.mu.Lock()
	if cur, ok := s.active[jobID]; ok && cur == h {
		delete(s.active, jobID)
	}
	s.mu.Unlock()
	h.cancel()
}
