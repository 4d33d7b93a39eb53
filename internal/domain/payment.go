package domain

import "time"

// PurchaseStatus tracks a credit purchase through the payment gateway.
type PurchaseStatus string

const (
	PurchaseStatusPending   PurchaseStatus = "pending"
	PurchaseStatusCompleted PurchaseStatus = "completed"
	PurchaseStatusFailed    PurchaseStatus = "failed"
)

// CreditPurchase links a payment charge to the credits it buys.
type CreditPurchase struct {
	ID        string
	UserID    string
	ChargeID  string
	Package   string
	Credits   int64
	Amount    int64
	Currency  string
	Status    PurchaseStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}
