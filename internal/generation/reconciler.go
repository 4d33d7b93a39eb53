// Package generation runs the lifecycle of paid generation jobs: submission,
// completion reconciliation, fallback polling and recovery sweeps.
package generation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"studio/internal/domain"
	"studio/internal/ledger"
)

// Refunder returns the credits of a failed job at most once.
type Refunder interface {
	Refund(ctx context.Context, jobID string) (ledger.Result, error)
}

// Thumbnailer produces a preview for a completed job. Failures are logged only.
type Thumbnailer interface {
	Thumbnail(ctx context.Context, job *domain.Job) error
}

// Reconciler moves processing jobs to a terminal status. The conditional
// write in JobRepository.Finalize decides the winner; only the winner runs
// side effects.
type Reconciler struct {
	jobs         domain.JobRepository
	refunds      Refunder
	thumbs       Thumbnailer
	thumbTimeout time.Duration
	log          zerolog.Logger
	now          func() time.Time
	bg           sync.WaitGroup
}

// NewReconciler wires a reconciler. thumbs may be nil.
func NewReconciler(jobs domain.JobRepository, refunds Refunder, thumbs Thumbnailer, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		jobs:         jobs,
		refunds:      refunds,
		thumbs:       thumbs,
		thumbTimeout: 2 * time.Minute,
		log:          logger.With().Str("component", "reconciler").Logger(),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// ApplyCompletion applies sig to jobID. applied reports whether this call won
// the transition; a job that is already terminal is returned unchanged.
func (r *Reconciler) ApplyCompletion(ctx context.Context, jobID string, sig domain.Signal) (*domain.Job, bool, error) {
	if sig.Outcome != domain.OutcomeSuccess && sig.Outcome != domain.OutcomeFailure {
		return nil, false, fmt.Errorf("outcome %q: %w", sig.Outcome, domain.ErrInvalidInput)
	}
	if sig.Outcome == domain.OutcomeSuccess && sig.Result == nil {
		return nil, false, fmt.Errorf("success without result: %w", domain.ErrInvalidInput)
	}
	detail := sig.ErrorDetail
	if sig.Outcome == domain.OutcomeFailure && detail == "" {
		detail = "generation failed"
	}
	job, applied, err := r.jobs.Finalize(ctx, jobID, sig.Status(), sig.Result, detail, r.now())
	if err != nil {
		return nil, false, fmt.Errorf("reconcile %s: %w", jobID, err)
	}
	logger := r.log.With().Str("job_id", jobID).Str("source", string(sig.Source)).Logger()
	if !applied {
		if !job.Status.Terminal() {
			return job, false, fmt.Errorf("reconcile %s in status %s: %w", jobID, job.Status, domain.ErrInvalidTransition)
		}
		logger.Debug().Str("status", string(job.Status)).Msg("completion already applied")
		return job, false, nil
	}
	logger.Info().Str("status", string(job.Status)).Msg("job finalized")

	switch job.Status {
	case domain.JobStatusCompleted:
		r.thumbnail(job)
	case domain.JobStatusFailed:
		if job.CreditsCharged > 0 {
			res, err := r.refunds.Refund(ctx, jobID)
			if err != nil {
				// the recovery sweep retries unrefunded failures
				logger.Error().Err(err).Msg("refund failed")
			} else if res.Applied {
				job.Refunded = true
			}
		}
	}
	return job, true, nil
}

func (r *Reconciler) thumbnail(job *domain.Job) {
	if r.thumbs == nil || job.Kind != domain.JobKindVideo {
		return
	}
	r.bg.Add(1)
	go func() {
		defer r.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.thumbTimeout)
		defer cancel()
		if err := r.thumbs.Thumbnail(ctx, job); err != nil {
			r.log.Warn().Err(err).Str("job_id", job.ID).Msg("thumbnail failed")
		}
	}()
}

// Wait blocks until background thumbnail work has finished.
func (r *Reconciler) Wait() {
	r.bg.Wait()
}
