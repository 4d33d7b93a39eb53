package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository on PostgreSQL. Status
// changes are single conditional UPDATE ... RETURNING statements.
type JobRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(sql infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql}
}

// Create inserts a new pending job.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	createdAt := job.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := r.sql.Exec(ctx, sqlinline.QInsertJob,
		job.ID,
		job.UserID,
		job.Model,
		string(job.Kind),
		nullableJSON(job.Input),
		job.CreditsCharged,
		createdAt,
	)
	return err
}

// Get fetches a job by its identifier.
func (r *JobRepositoryPG) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	return scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectJobByID, jobID))
}

// GetByExternalTaskID fetches a job by the provider task id.
func (r *JobRepositoryPG) GetByExternalTaskID(ctx context.Context, taskID string) (*domain.Job, error) {
	return scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectJobByTaskID, taskID))
}

// ListByUser returns the newest jobs of a user.
func (r *JobRepositoryPG) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Job, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListJobsByUser, userID, limit)
	if err != nil {
		return nil, err
	}
	return collectJobs(rows)
}

// MarkProcessing records the provider task id and moves pending to processing.
func (r *JobRepositoryPG) MarkProcessing(ctx context.Context, jobID, taskID string) (*domain.Job, error) {
	job, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QMarkJobProcessing, jobID, taskID))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, r.transitionError(ctx, jobID, domain.JobStatusProcessing)
	}
	return job, err
}

// MarkSubmitFailed moves a pending job to failed.
func (r *JobRepositoryPG) MarkSubmitFailed(ctx context.Context, jobID, detail string, at time.Time) (*domain.Job, error) {
	job, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QMarkJobSubmitFailed, jobID, detail, at))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, r.transitionError(ctx, jobID, domain.JobStatusFailed)
	}
	return job, err
}

// Finalize applies the terminal status when, and only when, the job is still
// processing. Losers get the stored record back with applied=false.
func (r *JobRepositoryPG) Finalize(ctx context.Context, jobID string, status domain.JobStatus, result *domain.ResultPayload, detail string, at time.Time) (*domain.Job, bool, error) {
	if !status.Terminal() {
		return nil, false, fmt.Errorf("finalize to %s: %w", status, domain.ErrInvalidTransition)
	}
	var payload []byte
	if result != nil {
		encoded, err := json.Marshal(result)
		if err != nil {
			return nil, false, fmt.Errorf("encode result payload: %w", err)
		}
		payload = encoded
	}
	job, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QFinalizeJob, jobID, string(status), payload, detail, at))
	if err == nil {
		return job, true, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}
	current, err := r.Get(ctx, jobID)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

// SetThumbnail stores the thumbnail storage key.
func (r *JobRepositoryPG) SetThumbnail(ctx context.Context, jobID, key string) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QSetJobThumbnail, jobID, key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByStatus returns jobs in status created before the cutoff, oldest first.
func (r *JobRepositoryPG) ListByStatus(ctx context.Context, status domain.JobStatus, createdBefore time.Time, limit int) ([]domain.Job, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListJobsByStatus, string(status), createdBefore, limit)
	if err != nil {
		return nil, err
	}
	return collectJobs(rows)
}

// ListUnrefundedFailures returns failed, charged jobs still awaiting a refund.
func (r *JobRepositoryPG) ListUnrefundedFailures(ctx context.Context, limit int) ([]domain.Job, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListUnrefundedFailures, limit)
	if err != nil {
		return nil, err
	}
	return collectJobs(rows)
}

func (r *JobRepositoryPG) transitionError(ctx context.Context, jobID string, to domain.JobStatus) error {
	current, err := r.Get(ctx, jobID)
	if err != nil {
		return err
	}
	return fmt.Errorf("job %s is %s, cannot move to %s: %w", jobID, current.Status, to, domain.ErrInvalidTransition)
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job     domain.Job
		kind    string
		status  string
		input   []byte
		payload []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.Model,
		&kind,
		&input,
		&job.ExternalTaskID,
		&status,
		&payload,
		&job.ErrorDetail,
		&job.CreditsCharged,
		&job.Refunded,
		&job.ThumbnailKey,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.CompletedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	job.Kind = domain.JobKind(kind)
	job.Status = domain.JobStatus(status)
	job.Input = input
	if len(payload) > 0 {
		var result domain.ResultPayload
		if err := json.Unmarshal(payload, &result); err != nil {
			return nil, fmt.Errorf("decode result payload: %w", err)
		}
		job.Result = &result
	}
	return &job, nil
}

func collectJobs(rows pgx.Rows) ([]domain.Job, error) {
	defer rows.Close()
	var out []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}

func nullableJSON(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
