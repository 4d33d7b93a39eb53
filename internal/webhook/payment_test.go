package webhook

import (
	"context"
	"errors"
	"testing"

	"studio/internal/domain"
	"studio/internal/infra"
)

type settlerFunc func(ctx context.Context, chargeID string) (*domain.CreditPurchase, error)

func (f settlerFunc) CompleteCharge(ctx context.Context, chargeID string) (*domain.CreditPurchase, error) {
	return f(ctx, chargeID)
}

func TestPaymentIngest(t *testing.T) {
	var settled []string
	settler := settlerFunc(func(_ context.Context, id string) (*domain.CreditPurchase, error) {
		switch id {
		case "chrg_missing":
			return nil, domain.ErrNotFound
		case "chrg_flaky":
			return nil, errors.New("gateway timeout")
		}
		settled = append(settled, id)
		return &domain.CreditPurchase{ChargeID: id, Status: domain.PurchaseStatusCompleted}, nil
	})
	ingest := NewPaymentIngest(settler, infra.NopLogger())
	ctx := context.Background()

	cases := []struct {
		name      string
		body      string
		outcome   Outcome
		malformed bool
		transient bool
	}{
		{name: "complete", body: `{"key":"charge.complete","data":{"object":"charge","id":"chrg_1"}}`, outcome: OutcomeApplied},
		{name: "other event", body: `{"key":"charge.create","data":{"id":"chrg_1"}}`, outcome: OutcomeIgnored},
		{name: "unknown charge", body: `{"key":"charge.complete","data":{"id":"chrg_missing"}}`, outcome: OutcomeUnknownTask},
		{name: "gateway error", body: `{"key":"charge.complete","data":{"id":"chrg_flaky"}}`, outcome: OutcomeError, transient: true},
		{name: "no id", body: `{"key":"charge.complete","data":{}}`, malformed: true},
		{name: "no key", body: `{"data":{"id":"chrg_1"}}`, malformed: true},
		{name: "garbage", body: `[]`, malformed: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := ingest.Handle(ctx, []byte(tc.body))
			switch {
			case tc.malformed:
				if !errors.Is(err, domain.ErrMalformedWebhook) {
					t.Fatalf("expected malformed, got %v", err)
				}
				return
			case tc.transient:
				if err == nil || errors.Is(err, domain.ErrMalformedWebhook) {
					t.Fatalf("expected transient error, got %v", err)
				}
			default:
				if err != nil {
					t.Fatalf("handle: %v", err)
				}
			}
			if res.Outcome != tc.outcome {
				t.Fatalf("outcome = %s, want %s", res.Outcome, tc.outcome)
			}
		})
	}
	if len(settled) != 1 || settled[0] != "chrg_1" {
		t.Fatalf("settled = %v", settled)
	}
}
