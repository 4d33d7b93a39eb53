package repo

import (
	"context"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/sqlinline"
)

// PurchaseRepositoryPG implements domain.PurchaseRepository backed by PostgreSQL.
type PurchaseRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewPurchaseRepository creates a new PurchaseRepositoryPG.
func NewPurchaseRepository(sql infra.SQLExecutor) *PurchaseRepositoryPG {
	return &PurchaseRepositoryPG{sql: sql}
}

// CreatePurchase records a pending credit purchase.
func (r *PurchaseRepositoryPG) CreatePurchase(ctx context.Context, p *domain.CreditPurchase) error {
	_, err := r.sql.Exec(ctx, sqlinline.QInsertPurchase,
		p.ID, p.UserID, p.ChargeID, p.Package, p.Credits, p.Amount, p.Currency, string(p.Status))
	return err
}

// GetPurchaseByCharge fetches the purchase created for a charge.
func (r *PurchaseRepositoryPG) GetPurchaseByCharge(ctx context.Context, chargeID string) (*domain.CreditPurchase, error) {
	var (
		p      domain.CreditPurchase
		status string
	)
	row := r.sql.QueryRow(ctx, sqlinline.QSelectPurchaseByCharge, chargeID)
	if err := row.Scan(&p.ID, &p.UserID, &p.ChargeID, &p.Package, &p.Credits, &p.Amount, &p.Currency, &status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	p.Status = domain.PurchaseStatus(status)
	return &p, nil
}

// MarkPurchase updates the purchase status.
func (r *PurchaseRepositoryPG) MarkPurchase(ctx context.Context, chargeID string, status domain.PurchaseStatus) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QUpdatePurchaseStatus, chargeID, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

var _ domain.PurchaseRepository = (*PurchaseRepositoryPG)(nil)
