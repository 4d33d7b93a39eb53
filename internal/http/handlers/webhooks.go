package handlers

import (
	"errors"
	"net/http"

	"studio/internal/domain"
)

// WebhookGeneration answers 200 for every structurally valid callback so the
// provider does not retry; only malformed bodies get a 400.
func (a *App) WebhookGeneration(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "unreadable body")
		return
	}
	res, err := a.Webhooks.Handle(r.Context(), body)
	if err != nil {
		a.error(w, http.StatusBadRequest, "malformed_webhook", err.Error())
		return
	}
	a.json(w, http.StatusOK, map[string]any{"received": true, "outcome": res.Outcome})
}

func (a *App) WebhookPayment(w http.ResponseWriter, r *http.Request) {
	if a.Payments == nil {
		a.error(w, http.StatusServiceUnavailable, "payments_disabled", "payments are not configured")
		return
	}
	body, err := readBody(w, r)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "unreadable body")
		return
	}
	res, err := a.Payments.Handle(r.Context(), body)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedWebhook) {
			a.error(w, http.StatusBadRequest, "malformed_webhook", err.Error())
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "event not processed")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"received": true, "outcome": res.Outcome})
}
