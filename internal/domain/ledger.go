package domain

import "time"

// EntryKind enumerates ledger entry categories.
type EntryKind string

const (
	EntryKindDeduction  EntryKind = "deduction"
	EntryKindTopUp      EntryKind = "topup"
	EntryKindRefund     EntryKind = "refund"
	EntryKindAdjustment EntryKind = "adjustment"
)

// LedgerEntry is an immutable record of one balance-affecting event.
// RelatedJobID is a back-reference only; Reference carries an external id such
// as a payment charge.
type LedgerEntry struct {
	ID           string
	UserID       string
	Amount       int64
	BalanceAfter int64
	Kind         EntryKind
	RelatedJobID string
	Reference    string
	Note         string
	CreatedAt    time.Time
}

// RefundReference is the ledger reference reserved for the refund of jobID.
// At most one entry may carry it.
func RefundReference(jobID string) string {
	return "refund:" + jobID
}
