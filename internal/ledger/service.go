// Package ledger applies balance mutations on top of a domain.LedgerRepository.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"studio/internal/domain"
)

// ChargeReference is the ledger reference used for a payment charge top-up.
func ChargeReference(chargeID string) string {
	return "charge:" + chargeID
}

// Result reports what a mutation did. Applied is false when the call was an
// idempotent repeat; Entry is nil in that case.
type Result struct {
	Entry   *domain.LedgerEntry
	Applied bool
}

// Service is the credit ledger.
type Service struct {
	repo domain.LedgerRepository
	log  zerolog.Logger
}

// NewService wires a ledger service.
func NewService(repo domain.LedgerRepository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, log: logger.With().Str("component", "ledger").Logger()}
}

// Deduct charges amount for jobID. The balance check and the subtraction are
// one conditional write in the repository.
func (s *Service) Deduct(ctx context.Context, userID string, amount int64, jobID string) (*domain.LedgerEntry, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("deduct %d: %w", amount, domain.ErrInvalidInput)
	}
	entry, err := s.repo.Debit(ctx, userID, amount, domain.EntryKindDeduction, jobID, "generation charge")
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			return nil, err
		}
		return nil, fmt.Errorf("ledger: deduct: %w", err)
	}
	s.log.Info().Str("user_id", userID).Str("job_id", jobID).Int64("amount", amount).Int64("balance", entry.BalanceAfter).Msg("credits deducted")
	return entry, nil
}

// TopUp credits a purchase. Repeating the same charge id is a no-op.
func (s *Service) TopUp(ctx context.Context, userID string, amount int64, chargeID string) (Result, error) {
	chargeID = strings.TrimSpace(chargeID)
	if amount <= 0 || chargeID == "" {
		return Result{}, fmt.Errorf("top up: %w", domain.ErrInvalidInput)
	}
	entry, applied, err := s.repo.Credit(ctx, userID, amount, domain.EntryKindTopUp, "", ChargeReference(chargeID), "credit purchase")
	if err != nil {
		return Result{}, fmt.Errorf("ledger: top up: %w", err)
	}
	if !applied {
		s.log.Info().Str("user_id", userID).Str("charge_id", chargeID).Msg("top up already applied")
		return Result{}, nil
	}
	s.log.Info().Str("user_id", userID).Str("charge_id", chargeID).Int64("amount", amount).Msg("credits topped up")
	return Result{Entry: entry, Applied: true}, nil
}

// Adjust applies an administrative correction. Negative amounts cannot push
// the balance below zero.
func (s *Service) Adjust(ctx context.Context, userID string, amount int64, note string) (*domain.LedgerEntry, error) {
	note = strings.TrimSpace(note)
	if amount == 0 || note == "" {
		return nil, fmt.Errorf("adjust: %w", domain.ErrInvalidInput)
	}
	var (
		entry *domain.LedgerEntry
		err   error
	)
	if amount > 0 {
		entry, _, err = s.repo.Credit(ctx, userID, amount, domain.EntryKindAdjustment, "", "", note)
	} else {
		entry, err = s.repo.Debit(ctx, userID, -amount, domain.EntryKindAdjustment, "", note)
	}
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			return nil, err
		}
		return nil, fmt.Errorf("ledger: adjust: %w", err)
	}
	s.log.Warn().Str("user_id", userID).Int64("amount", amount).Str("note", note).Msg("credits adjusted")
	return entry, nil
}

// Refund returns the credits charged for a failed job, at most once. A job
// that is not failed, already refunded or was free gives Applied=false.
func (s *Service) Refund(ctx context.Context, jobID string) (Result, error) {
	entry, applied, err := s.repo.RefundJob(ctx, jobID)
	if err != nil {
		return Result{}, fmt.Errorf("ledger: refund %s: %w", jobID, err)
	}
	if !applied {
		s.log.Debug().Str("job_id", jobID).Msg("refund skipped")
		return Result{}, nil
	}
	s.log.Info().Str("job_id", jobID).Str("user_id", entry.UserID).Int64("amount", entry.Amount).Msg("credits refunded")
	return Result{Entry: entry, Applied: true}, nil
}

// ReverseDeduction credits back a deduction whose job record was never
// created. It shares the refund reference so a later Refund cannot repeat it.
func (s *Service) ReverseDeduction(ctx context.Context, userID string, amount int64, jobID string) (Result, error) {
	entry, applied, err := s.repo.Credit(ctx, userID, amount, domain.EntryKindRefund, jobID, domain.RefundReference(jobID), "job not recorded")
	if err != nil {
		return Result{}, fmt.Errorf("ledger: reverse %s: %w", jobID, err)
	}
	if applied {
		s.log.Warn().Str("job_id", jobID).Str("user_id", userID).Int64("amount", amount).Msg("deduction reversed")
	}
	return Result{Entry: entry, Applied: applied}, nil
}

// Balance returns the user's current balance.
func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	return s.repo.Balance(ctx, userID)
}

// Entries returns the newest ledger entries for a user.
func (s *Service) Entries(ctx context.Context, userID string, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.Entries(ctx, userID, limit)
}

// EntriesForJob returns every entry that references jobID.
func (s *Service) EntriesForJob(ctx context.Context, jobID string) ([]domain.LedgerEntry, error) {
	return s.repo.EntriesForJob(ctx, jobID)
}
