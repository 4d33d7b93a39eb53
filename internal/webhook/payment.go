package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"studio/internal/domain"
)

// ChargeCompleteEvent is the only payment event that settles purchases.
const ChargeCompleteEvent = "charge.complete"

// ChargeSettler settles a purchase from the gateway's view of a charge.
type ChargeSettler interface {
	CompleteCharge(ctx context.Context, chargeID string) (*domain.CreditPurchase, error)
}

type paymentEvent struct {
	Key  string `json:"key"`
	Data struct {
		ID     string `json:"id"`
		Object string `json:"object"`
	} `json:"data"`
}

// PaymentIngest handles payment gateway events.
type PaymentIngest struct {
	settler ChargeSettler
	log     zerolog.Logger
}

// NewPaymentIngest wires the payment event handler.
func NewPaymentIngest(settler ChargeSettler, logger zerolog.Logger) *PaymentIngest {
	return &PaymentIngest{settler: settler, log: logger.With().Str("component", "payment_webhook").Logger()}
}

// Handle processes one event. The body only names the charge; its status is
// always re-read from the gateway. Errors other than ErrMalformedWebhook are
// transient.
func (p *PaymentIngest) Handle(ctx context.Context, raw []byte) (Result, error) {
	var evt paymentEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return Result{}, malformed("payment event: %v", err)
	}
	if strings.TrimSpace(evt.Key) == "" {
		return Result{}, malformed("payment event without key")
	}
	if evt.Key != ChargeCompleteEvent {
		p.log.Debug().Str("key", evt.Key).Msg("ignored payment event")
		return Result{Outcome: OutcomeIgnored}, nil
	}
	chargeID := strings.TrimSpace(evt.Data.ID)
	if chargeID == "" {
		return Result{}, malformed("charge.complete without data.id")
	}
	purchase, err := p.settler.CompleteCharge(ctx, chargeID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			p.log.Warn().Str("charge_id", chargeID).Msg("charge without purchase")
			return Result{Outcome: OutcomeUnknownTask}, nil
		}
		// returned so the gateway redelivers; settlement is idempotent per charge
		p.log.Error().Err(err).Str("charge_id", chargeID).Msg("settle charge failed")
		return Result{Outcome: OutcomeError}, err
	}
	return Result{Outcome: OutcomeApplied, Status: string(purchase.Status)}, nil
}
