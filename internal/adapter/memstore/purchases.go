package memstore

import (
	"context"
	"fmt"

	"studio/internal/domain"
)

// CreatePurchase implements domain.PurchaseRepository.
func (s *Store) CreatePurchase(_ context.Context, p *domain.CreditPurchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.purchases[p.ChargeID]; ok {
		return fmt.Errorf("charge %s: %w", p.ChargeID, domain.ErrDuplicateOperation)
	}
	clone := *p
	now := s.now()
	clone.CreatedAt, clone.UpdatedAt = now, now
	s.purchases[p.ChargeID] = &clone
	return nil
}

// GetPurchaseByCharge implements domain.PurchaseRepository.
func (s *Store) GetPurchaseByCharge(_ context.Context, chargeID string) (*domain.CreditPurchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.purchases[chargeID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *p
	return &clone, nil
}

// MarkPurchase implements domain.PurchaseRepository.
func (s *Store) MarkPurchase(_ context.Context, chargeID string, status domain.PurchaseStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.purchases[chargeID]
	if !ok {
		return domain.ErrNotFound
	}
	p.Status = status
	p.UpdatedAt = s.now()
	return nil
}

var _ domain.PurchaseRepository = (*Store)(nil)
