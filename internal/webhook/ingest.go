package webhook

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"studio/internal/domain"
	"studio/internal/generation"
)

// TaskLookup resolves a provider task id to its job.
type TaskLookup interface {
	GetByExternalTaskID(ctx context.Context, taskID string) (*domain.Job, error)
}

// PollerCanceller stops a job's fallback poller.
type PollerCanceller interface {
	Cancel(jobID string) bool
}

// Outcome describes what an accepted callback did.
type Outcome string

const (
	OutcomeApplied     Outcome = "applied"
	OutcomeDuplicate   Outcome = "duplicate"
	OutcomeRunning     Outcome = "running"
	OutcomeIgnored     Outcome = "ignored"
	OutcomeUnknownTask Outcome = "unknown_task"
	OutcomeError       Outcome = "error"
)

// Result is the acknowledgement of a structurally valid callback.
type Result struct {
	Outcome Outcome `json:"outcome"`
	JobID   string  `json:"job_id,omitempty"`
	Status  string  `json:"status,omitempty"`
}

// Ingest handles generation callbacks.
type Ingest struct {
	jobs      TaskLookup
	completer generation.Completer
	pollers   PollerCanceller
	log       zerolog.Logger
}

// NewIngest wires the generation callback handler. pollers may be nil.
func NewIngest(jobs TaskLookup, completer generation.Completer, pollers PollerCanceller, logger zerolog.Logger) *Ingest {
	return &Ingest{jobs: jobs, completer: completer, pollers: pollers, log: logger.With().Str("component", "webhook").Logger()}
}

// Handle processes one callback body. Only a malformed body returns an error;
// reconciliation problems are logged and acknowledged so the provider does
// not retry.
func (in *Ingest) Handle(ctx context.Context, raw []byte) (Result, error) {
	cb, err := ParseCallback(raw)
	if err != nil {
		in.log.Warn().Err(err).Str("task_id", cb.TaskID).Msg("rejected callback")
		return Result{}, err
	}
	logger := in.log.With().Str("task_id", cb.TaskID).Str("shape", string(cb.Shape)).Logger()
	if !cb.Terminal {
		logger.Debug().Msg("task still running")
		return Result{Outcome: OutcomeRunning}, nil
	}

	job, err := in.jobs.GetByExternalTaskID(ctx, cb.TaskID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// submission may not have recorded the task id yet; the poller covers it
			logger.Warn().Msg("callback for unknown task")
			return Result{Outcome: OutcomeUnknownTask}, nil
		}
		logger.Error().Err(err).Msg("task lookup failed")
		return Result{Outcome: OutcomeError}, nil
	}

	final, applied, err := in.completer.ApplyCompletion(ctx, job.ID, cb.Signal)
	if err != nil {
		logger.Error().Err(err).Str("job_id", job.ID).Msg("apply completion failed")
		return Result{Outcome: OutcomeError, JobID: job.ID}, nil
	}
	if !applied {
		logger.Info().Str("job_id", job.ID).Str("status", string(final.Status)).Msg("duplicate callback")
		return Result{Outcome: OutcomeDuplicate, JobID: job.ID, Status: string(final.Status)}, nil
	}
	if in.pollers != nil {
		in.pollers.Cancel(job.ID)
	}
	logger.Info().Str("job_id", job.ID).Str("status", string(final.Status)).Msg("callback applied")
	return Result{Outcome: OutcomeApplied, JobID: job.ID, Status: string(final.Status)}, nil
}
