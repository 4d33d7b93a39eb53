package memstore

import (
	"context"
	"fmt"
	"sort"

	"studio/internal/domain"
)

// Debit implements domain.LedgerRepository.
func (s *Store) Debit(_ context.Context, userID string, amount int64, kind domain.EntryKind, jobID, note string) (*domain.LedgerEntry, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("debit amount %d: %w", amount, domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}
	if u.Credits < amount {
		return nil, domain.ErrInsufficientBalance
	}
	u.Credits -= amount
	u.UpdatedAt = s.now()
	entry := s.appendLocked(domain.LedgerEntry{
		UserID:       userID,
		Amount:       -amount,
		BalanceAfter: u.Credits,
		Kind:         kind,
		RelatedJobID: jobID,
		Note:         note,
	})
	return &entry, nil
}

// Credit implements domain.LedgerRepository.
func (s *Store) Credit(_ context.Context, userID string, amount int64, kind domain.EntryKind, jobID, reference, note string) (*domain.LedgerEntry, bool, error) {
	if amount <= 0 {
		return nil, false, fmt.Errorf("credit amount %d: %w", amount, domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if reference != "" {
		if _, seen := s.refs[reference]; seen {
			return nil, false, nil
		}
	}
	u, ok := s.users[userID]
	if !ok {
		return nil, false, fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}
	u.Credits += amount
	u.UpdatedAt = s.now()
	entry := s.appendLocked(domain.LedgerEntry{
		UserID:       userID,
		Amount:       amount,
		BalanceAfter: u.Credits,
		Kind:         kind,
		RelatedJobID: jobID,
		Reference:    reference,
		Note:         note,
	})
	return &entry, true, nil
}

// RefundJob implements domain.LedgerRepository. The refunded flag flips
// before the entry is appended; both happen under the store lock.
func (s *Store) RefundJob(_ context.Context, jobID string) (*domain.LedgerEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, false, domain.ErrNotFound
	}
	if job.Status != domain.JobStatusFailed || job.Refunded || job.CreditsCharged <= 0 {
		return nil, false, nil
	}
	u, ok := s.users[job.UserID]
	if !ok {
		return nil, false, fmt.Errorf("user %s: %w", job.UserID, domain.ErrNotFound)
	}
	job.Refunded = true
	job.UpdatedAt = s.now()
	u.Credits += job.CreditsCharged
	u.UpdatedAt = s.now()
	entry := s.appendLocked(domain.LedgerEntry{
		UserID:       job.UserID,
		Amount:       job.CreditsCharged,
		BalanceAfter: u.Credits,
		Kind:         domain.EntryKindRefund,
		RelatedJobID: jobID,
		Reference:    domain.RefundReference(jobID),
		Note:         "generation failed",
	})
	return &entry, true, nil
}

// Balance implements domain.LedgerRepository.
func (s *Store) Balance(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return u.Credits, nil
}

// Entries implements domain.LedgerRepository.
func (s *Store) Entries(_ context.Context, userID string, limit int) ([]domain.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.LedgerEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].UserID == userID {
			out = append(out, s.entries[i])
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// EntriesForJob implements domain.LedgerRepository.
func (s *Store) EntriesForJob(_ context.Context, jobID string) ([]domain.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.LedgerEntry
	for _, e := range s.entries {
		if e.RelatedJobID == jobID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) appendLocked(entry domain.LedgerEntry) domain.LedgerEntry {
	entry.ID = newID()
	entry.CreatedAt = s.now()
	if entry.Reference != "" {
		s.refs[entry.Reference] = struct{}{}
	}
	s.entries = append(s.entries, entry)
	return entry
}

var _ domain.LedgerRepository = (*Store)(nil)
