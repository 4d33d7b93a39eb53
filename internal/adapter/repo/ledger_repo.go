package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/sqlinline"
)

const pgUniqueViolation = "23505"

// LedgerRepositoryPG implements domain.LedgerRepository. Balance changes and
// their ledger entries are written in one transaction.
type LedgerRepositoryPG struct {
	sql infra.TxRunner
}

// NewLedgerRepository creates a ledger repository backed by PostgreSQL.
func NewLedgerRepository(sql infra.TxRunner) *LedgerRepositoryPG {
	return &LedgerRepositoryPG{sql: sql}
}

// Debit subtracts amount from the balance with a conditional update.
func (r *LedgerRepositoryPG) Debit(ctx context.Context, userID string, amount int64, kind domain.EntryKind, jobID, note string) (*domain.LedgerEntry, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("debit amount %d: %w", amount, domain.ErrInvalidInput)
	}
	var entry *domain.LedgerEntry
	err := r.sql.InTx(ctx, func(tx infra.SQLExecutor) error {
		var balance int64
		if err := tx.QueryRow(ctx, sqlinline.QDebitUser, userID, amount).Scan(&balance); err != nil {
			if infra.IsNoRows(err) {
				return r.debitFailure(ctx, tx, userID)
			}
			return err
		}
		var err error
		entry, err = insertEntry(ctx, tx, domain.LedgerEntry{
			UserID:       userID,
			Amount:       -amount,
			BalanceAfter: balance,
			Kind:         kind,
			RelatedJobID: jobID,
			Note:         note,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Credit adds amount, skipping references that are already in the ledger.
func (r *LedgerRepositoryPG) Credit(ctx context.Context, userID string, amount int64, kind domain.EntryKind, jobID, reference, note string) (*domain.LedgerEntry, bool, error) {
	if amount <= 0 {
		return nil, false, fmt.Errorf("credit amount %d: %w", amount, domain.ErrInvalidInput)
	}
	var entry *domain.LedgerEntry
	err := r.sql.InTx(ctx, func(tx infra.SQLExecutor) error {
		if reference != "" {
			var exists bool
			if err := tx.QueryRow(ctx, sqlinline.QLedgerReferenceExists, reference).Scan(&exists); err != nil {
				return err
			}
			if exists {
				return domain.ErrDuplicateOperation
			}
		}
		var balance int64
		if err := tx.QueryRow(ctx, sqlinline.QCreditUser, userID, amount).Scan(&balance); err != nil {
			if infra.IsNoRows(err) {
				return fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
			}
			return err
		}
		var err error
		entry, err = insertEntry(ctx, tx, domain.LedgerEntry{
			UserID:       userID,
			Amount:       amount,
			BalanceAfter: balance,
			Kind:         kind,
			RelatedJobID: jobID,
			Reference:    reference,
			Note:         note,
		})
		return err
	})
	if err != nil {
		// A concurrent writer can win the reference between our check and insert.
		if errors.Is(err, domain.ErrDuplicateOperation) || isUniqueViolation(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return entry, true, nil
}

// RefundJob flips the refunded gate, credits the user and appends the refund
// entry in a single transaction, so a crash leaves either all or none of it.
func (r *LedgerRepositoryPG) RefundJob(ctx context.Context, jobID string) (*domain.LedgerEntry, bool, error) {
	var entry *domain.LedgerEntry
	applied := false
	err := r.sql.InTx(ctx, func(tx infra.SQLExecutor) error {
		var (
			userID  string
			charged int64
		)
		if err := tx.QueryRow(ctx, sqlinline.QFlagJobRefunded, jobID).Scan(&userID, &charged); err != nil {
			if infra.IsNoRows(err) {
				return nil
			}
			return err
		}
		var balance int64
		if err := tx.QueryRow(ctx, sqlinline.QCreditUser, userID, charged).Scan(&balance); err != nil {
			return err
		}
		var err error
		entry, err = insertEntry(ctx, tx, domain.LedgerEntry{
			UserID:       userID,
			Amount:       charged,
			BalanceAfter: balance,
			Kind:         domain.EntryKindRefund,
			RelatedJobID: jobID,
			Reference:    domain.RefundReference(jobID),
			Note:         "generation failed",
		})
		applied = err == nil
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return entry, applied, nil
}

// Balance returns the current credit balance.
func (r *LedgerRepositoryPG) Balance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	if err := r.sql.QueryRow(ctx, sqlinline.QSelectBalance, userID).Scan(&balance); err != nil {
		if infra.IsNoRows(err) {
			return 0, domain.ErrNotFound
		}
		return 0, err
	}
	return balance, nil
}

// Entries lists the newest ledger entries of a user.
func (r *LedgerRepositoryPG) Entries(ctx context.Context, userID string, limit int) ([]domain.LedgerEntry, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListLedgerEntries, userID, limit)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

// EntriesForJob lists every entry that references jobID, oldest first.
func (r *LedgerRepositoryPG) EntriesForJob(ctx context.Context, jobID string) ([]domain.LedgerEntry, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListLedgerEntriesForJob, jobID)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

func (r *LedgerRepositoryPG) debitFailure(ctx context.Context, tx infra.SQLExecutor, userID string) error {
	var balance int64
	if err := tx.QueryRow(ctx, sqlinline.QSelectBalance, userID).Scan(&balance); err != nil {
		if infra.IsNoRows(err) {
			return fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
		}
		return err
	}
	return domain.ErrInsufficientBalance
}

func insertEntry(ctx context.Context, tx infra.SQLExecutor, entry domain.LedgerEntry) (*domain.LedgerEntry, error) {
	row := tx.QueryRow(ctx, sqlinline.QInsertLedgerEntry,
		entry.UserID,
		entry.Amount,
		entry.BalanceAfter,
		string(entry.Kind),
		entry.RelatedJobID,
		entry.Reference,
		entry.Note,
	)
	if err := row.Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}
	return &entry, nil
}

func collectEntries(rows pgx.Rows) ([]domain.LedgerEntry, error) {
	defer rows.Close()
	var out []domain.LedgerEntry
	for rows.Next() {
		var (
			e    domain.LedgerEntry
			kind string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Amount, &e.BalanceAfter, &kind, &e.RelatedJobID, &e.Reference, &e.Note, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Kind = domain.EntryKind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

var _ domain.LedgerRepository = (*LedgerRepositoryPG)(nil)
