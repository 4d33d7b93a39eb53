// Package billing sells credit packs through the payment gateway and turns
// completed charges into ledger top-ups.
package billing

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"studio/internal/domain"
	"studio/internal/ledger"
	"studio/internal/providers/payment"
)

// Pack is a purchasable bundle of credits. Price is in satang.
type Pack struct {
	Name    string `json:"name"`
	Credits int64  `json:"credits"`
	Price   int64  `json:"price"`
}

// DefaultPacks are the packs on sale.
var DefaultPacks = []Pack{
	{Name: "starter", Credits: 100, Price: 9900},
	{Name: "creator", Credits: 550, Price: 49900},
	{Name: "studio", Credits: 1200, Price: 99900},
}

// ChargeGateway is the payment provider.
type ChargeGateway interface {
	CreateCharge(ctx context.Context, req payment.ChargeRequest) (*payment.Charge, error)
	GetCharge(ctx context.Context, chargeID string) (*payment.Charge, error)
}

// TopUpRequest is a user's order for a credit pack.
type TopUpRequest struct {
	UserID    string `json:"-" validate:"required"`
	Pack      string `json:"pack" validate:"required"`
	Source    string `json:"source" validate:"required"`
	ReturnURI string `json:"return_uri" validate:"omitempty,url"`
}

// TopUp is the result of starting a purchase.
type TopUp struct {
	Purchase     *domain.CreditPurchase `json:"purchase"`
	AuthorizeURI string                 `json:"authorize_uri,omitempty"`
}

// Service coordinates purchases, charges and the ledger.
type Service struct {
	purchases domain.PurchaseRepository
	ledger    *ledger.Service
	gateway   ChargeGateway
	packs     map[string]Pack
	currency  string
	validate  *validator.Validate
	log       zerolog.Logger
}

// NewService wires billing. packs nil means DefaultPacks.
func NewService(purchases domain.PurchaseRepository, led *ledger.Service, gateway ChargeGateway, packs []Pack, currency string, logger zerolog.Logger) *Service {
	if packs == nil {
		packs = DefaultPacks
	}
	byName := make(map[string]Pack, len(packs))
	for _, p := range packs {
		byName[p.Name] = p
	}
	if currency == "" {
		currency = "thb"
	}
	return &Service{
		purchases: purchases,
		ledger:    led,
		gateway:   gateway,
		packs:     byName,
		currency:  currency,
		validate:  validator.New(),
		log:       logger.With().Str("component", "billing").Logger(),
	}
}

// Packs lists the packs on sale, cheapest first.
func (s *Service) Packs() []Pack {
	out := make([]Pack, 0, len(s.packs))
	for _, p := range s.packs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return out
}

// StartTopUp creates a charge and a pending purchase for it.
func (s *Service) StartTopUp(ctx context.Context, req TopUpRequest) (*TopUp, error) {
	if err := s.validate.StructCtx(ctx, req); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidInput, err.Error())
	}
	pack, ok := s.packs[req.Pack]
	if !ok {
		return nil, fmt.Errorf("unknown pack %q: %w", req.Pack, domain.ErrInvalidInput)
	}
	charge, err := s.gateway.CreateCharge(ctx, payment.ChargeRequest{
		Amount:      pack.Price,
		Currency:    s.currency,
		Source:      req.Source,
		ReturnURI:   req.ReturnURI,
		Description: fmt.Sprintf("%d credits (%s)", pack.Credits, pack.Name),
		Metadata:    map[string]string{"user_id": req.UserID, "pack": pack.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("billing: create charge: %w", err)
	}
	purchase := &domain.CreditPurchase{
		ID:       uuid.NewString(),
		UserID:   req.UserID,
		ChargeID: charge.ID,
		Package:  pack.Name,
		Credits:  pack.Credits,
		Amount:   pack.Price,
		Currency: s.currency,
		Status:   domain.PurchaseStatusPending,
	}
	if err := s.purchases.CreatePurchase(ctx, purchase); err != nil {
		return nil, fmt.Errorf("billing: record purchase: %w", err)
	}
	s.log.Info().Str("user_id", req.UserID).Str("charge_id", charge.ID).Str("pack", pack.Name).Msg("top up started")

	// card charges can settle synchronously
	if charge.Successful() {
		if _, err := s.CompleteCharge(ctx, charge.ID); err != nil {
			return nil, err
		}
		if updated, err := s.purchases.GetPurchaseByCharge(ctx, charge.ID); err == nil {
			purchase = updated
		}
	}
	return &TopUp{Purchase: purchase, AuthorizeURI: charge.AuthorizeURI}, nil
}

// CompleteCharge re-reads chargeID from the gateway and settles the matching
// purchase. Credits are granted at most once per charge.
func (s *Service) CompleteCharge(ctx context.Context, chargeID string) (*domain.CreditPurchase, error) {
	purchase, err := s.purchases.GetPurchaseByCharge(ctx, chargeID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("charge %s has no purchase: %w", chargeID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("billing: load purchase: %w", err)
	}
	charge, err := s.gateway.GetCharge(ctx, chargeID)
	if err != nil {
		return nil, fmt.Errorf("billing: fetch charge: %w", err)
	}
	logger := s.log.With().Str("charge_id", chargeID).Str("user_id", purchase.UserID).Logger()

	switch {
	case charge.Successful():
		if charge.Amount != purchase.Amount {
			logger.Error().Int64("charged", charge.Amount).Int64("expected", purchase.Amount).Msg("charge amount mismatch")
			return purchase, fmt.Errorf("charge %s amount mismatch: %w", chargeID, domain.ErrInvalidInput)
		}
		res, err := s.ledger.TopUp(ctx, purchase.UserID, purchase.Credits, chargeID)
		if err != nil {
			return nil, err
		}
		if purchase.Status != domain.PurchaseStatusCompleted {
			if err := s.purchases.MarkPurchase(ctx, chargeID, domain.PurchaseStatusCompleted); err != nil {
				return nil, fmt.Errorf("billing: mark purchase: %w", err)
			}
			purchase.Status = domain.PurchaseStatusCompleted
		}
		logger.Info().Bool("applied", res.Applied).Int64("credits", purchase.Credits).Msg("charge completed")
	case charge.Status == payment.ChargeFailed || charge.Status == payment.ChargeExpired:
		if purchase.Status == domain.PurchaseStatusPending {
			if err := s.purchases.MarkPurchase(ctx, chargeID, domain.PurchaseStatusFailed); err != nil {
				return nil, fmt.Errorf("billing: mark purchase: %w", err)
			}
			purchase.Status = domain.PurchaseStatusFailed
		}
		logger.Info().Str("failure_code", charge.FailureCode).Msg("charge failed")
	default:
		logger.Debug().Str("status", charge.Status).Msg("charge not settled yet")
	}
	return purchase, nil
}
