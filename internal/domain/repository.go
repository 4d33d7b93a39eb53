package domain

import (
	"context"
	"time"
)

// JobRepository persists generation jobs. Every status write is conditional on
// the current status so concurrent writers cannot lose updates.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, jobID string) (*Job, error)
	GetByExternalTaskID(ctx context.Context, taskID string) (*Job, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]Job, error)
	// MarkProcessing moves a pending job to processing and records the provider task id.
	MarkProcessing(ctx context.Context, jobID, taskID string) (*Job, error)
	// MarkSubmitFailed moves a pending job straight to failed.
	MarkSubmitFailed(ctx context.Context, jobID, detail string, at time.Time) (*Job, error)
	// Finalize moves a processing job to a terminal status. When the job is not
	// processing the stored record is returned with applied=false.
	Finalize(ctx context.Context, jobID string, status JobStatus, result *ResultPayload, detail string, at time.Time) (*Job, bool, error)
	SetThumbnail(ctx context.Context, jobID, key string) error
	ListByStatus(ctx context.Context, status JobStatus, createdBefore time.Time, limit int) ([]Job, error)
	ListUnrefundedFailures(ctx context.Context, limit int) ([]Job, error)
}

// LedgerRepository owns balances and the append-only ledger.
type LedgerRepository interface {
	// Debit subtracts amount when the balance covers it, otherwise ErrInsufficientBalance.
	Debit(ctx context.Context, userID string, amount int64, kind EntryKind, jobID, note string) (*LedgerEntry, error)
	// Credit adds amount. A non-empty reference already present in the ledger
	// makes the call a no-op returning applied=false.
	Credit(ctx context.Context, userID string, amount int64, kind EntryKind, jobID, reference, note string) (*LedgerEntry, bool, error)
	// RefundJob flips the job refunded flag (failed, unrefunded, charged jobs
	// only) and appends the refund entry. applied=false means nothing changed.
	RefundJob(ctx context.Context, jobID string) (*LedgerEntry, bool, error)
	Balance(ctx context.Context, userID string) (int64, error)
	Entries(ctx context.Context, userID string, limit int) ([]LedgerEntry, error)
	EntriesForJob(ctx context.Context, jobID string) ([]LedgerEntry, error)
}

// UserRepository exposes the account data needed by the API.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*User, error)
}

// PurchaseRepository tracks credit purchases.
type PurchaseRepository interface {
	CreatePurchase(ctx context.Context, p *CreditPurchase) error
	GetPurchaseByCharge(ctx context.Context, chargeID string) (*CreditPurchase, error)
	MarkPurchase(ctx context.Context, chargeID string, status PurchaseStatus) error
}
