// Package memstore is an in-memory implementation of the domain repositories.
// A single mutex serialises every conditional write, which gives the same
// compare-and-swap guarantees as the PostgreSQL repositories inside one
// process. It does not protect a multi-process deployment.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"studio/internal/domain"
)

// Store holds users, jobs, ledger entries and purchases in memory.
type Store struct {
	mu        sync.Mutex
	users     map[string]*domain.User
	jobs      map[string]*domain.Job
	byTask    map[string]string
	entries   []domain.LedgerEntry
	refs      map[string]struct{}
	purchases map[string]*domain.CreditPurchase
	now       func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:     make(map[string]*domain.User),
		jobs:      make(map[string]*domain.Job),
		byTask:    make(map[string]string),
		refs:      make(map[string]struct{}),
		purchases: make(map[string]*domain.CreditPurchase),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source used for timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// PutUser inserts or replaces a user. Seeding credits this way writes an
// adjustment entry so the ledger still sums to the balance.
func (s *Store) PutUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	prev := int64(0)
	if existing, ok := s.users[u.ID]; ok {
		prev = existing.Credits
	}
	clone := u
	s.users[u.ID] = &clone
	if delta := u.Credits - prev; delta != 0 {
		s.appendLocked(domain.LedgerEntry{
			UserID:       u.ID,
			Amount:       delta,
			BalanceAfter: u.Credits,
			Kind:         domain.EntryKindAdjustment,
			Note:         "seed",
		})
	}
}

// GetByID implements domain.UserRepository.
func (s *Store) GetByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

// Create implements domain.JobRepository.
func (s *Store) Create(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("job %s: %w", job.ID, domain.ErrDuplicateOperation)
	}
	stored := job.Clone()
	stored.Status = domain.JobStatusPending
	stored.ExternalTaskID = ""
	stored.Refunded = false
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now()
	}
	stored.UpdatedAt = stored.CreatedAt
	s.jobs[job.ID] = stored
	return nil
}

// Get implements domain.JobRepository.
func (s *Store) Get(_ context.Context, jobID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return job.Clone(), nil
}

// GetByExternalTaskID implements domain.JobRepository.
func (s *Store) GetByExternalTaskID(_ context.Context, taskID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byTask[taskID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s.jobs[id].Clone(), nil
}

// ListByUser implements domain.JobRepository.
func (s *Store) ListByUser(_ context.Context, userID string, limit int) ([]domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Job
	for _, job := range s.jobs {
		if job.UserID == userID {
			out = append(out, *job.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return truncate(out, limit), nil
}

// MarkProcessing implements domain.JobRepository.
func (s *Store) MarkProcessing(_ context.Context, jobID, taskID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if job.Status != domain.JobStatusPending || job.ExternalTaskID != "" {
		return nil, fmt.Errorf("job %s is %s, cannot move to processing: %w", jobID, job.Status, domain.ErrInvalidTransition)
	}
	if _, taken := s.byTask[taskID]; taken {
		return nil, fmt.Errorf("task %s already bound: %w", taskID, domain.ErrDuplicateOperation)
	}
	job.Status = domain.JobStatusProcessing
	job.ExternalTaskID = taskID
	job.UpdatedAt = s.now()
	s.byTask[taskID] = jobID
	return job.Clone(), nil
}

// MarkSubmitFailed implements domain.JobRepository.
func (s *Store) MarkSubmitFailed(_ context.Context, jobID, detail string, at time.Time) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if job.Status != domain.JobStatusPending {
		return nil, fmt.Errorf("job %s is %s, cannot move to failed: %w", jobID, job.Status, domain.ErrInvalidTransition)
	}
	job.Status = domain.JobStatusFailed
	job.ErrorDetail = detail
	job.CompletedAt = &at
	job.UpdatedAt = s.now()
	return job.Clone(), nil
}

// Finalize implements domain.JobRepository.
func (s *Store) Finalize(_ context.Context, jobID string, status domain.JobStatus, result *domain.ResultPayload, detail string, at time.Time) (*domain.Job, bool, error) {
	if !status.Terminal() {
		return nil, false, fmt.Errorf("finalize to %s: %w", status, domain.ErrInvalidTransition)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, false, domain.ErrNotFound
	}
	if job.Status != domain.JobStatusProcessing {
		return job.Clone(), false, nil
	}
	job.Status = status
	if status == domain.JobStatusCompleted && result != nil {
		res := domain.ResultPayload{
			URLs: append([]string(nil), result.URLs...),
			Raw:  append([]byte(nil), result.Raw...),
		}
		job.Result = &res
	}
	if status == domain.JobStatusFailed {
		job.ErrorDetail = detail
	}
	job.CompletedAt = &at
	job.UpdatedAt = s.now()
	return job.Clone(), true, nil
}

// SetThumbnail implements domain.JobRepository.
func (s *Store) SetThumbnail(_ context.Context, jobID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	job.ThumbnailKey = key
	job.UpdatedAt = s.now()
	return nil
}

// ListByStatus implements domain.JobRepository.
func (s *Store) ListByStatus(_ context.Context, status domain.JobStatus, createdBefore time.Time, limit int) ([]domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Job
	for _, job := range s.jobs {
		if job.Status == status && job.CreatedAt.Before(createdBefore) {
			out = append(out, *job.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return truncate(out, limit), nil
}

// ListUnrefundedFailures implements domain.JobRepository.
func (s *Store) ListUnrefundedFailures(_ context.Context, limit int) ([]domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Job
	for _, job := range s.jobs {
		if job.Status == domain.JobStatusFailed && !job.Refunded && job.CreditsCharged > 0 {
			out = append(out, *job.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return truncate(out, limit), nil
}

func truncate(jobs []domain.Job, limit int) []domain.Job {
	if limit > 0 && len(jobs) > limit {
		return jobs[:limit]
	}
	return jobs
}

var (
	_ domain.JobRepository  = (*Store)(nil)
	_ domain.UserRepository = (*Store)(nil)
)

func newID() string {
	return uuid.NewString()
}
