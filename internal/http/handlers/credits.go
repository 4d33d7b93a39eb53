package handlers

import (
	"net/http"
	"strconv"

	"studio/internal/billing"
)

func (a *App) CreditsGet(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	balance, err := a.Ledger.Balance(r.Context(), userID)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := a.Ledger.Entries(r.Context(), userID, limit)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	items := make([]entryDTO, 0, len(entries))
	for _, e := range entries {
		items = append(items, toEntryDTO(e))
	}
	resp := map[string]any{"balance": balance, "entries": items}
	if a.Billing != nil {
		resp["packs"] = a.Billing.Packs()
	}
	a.json(w, http.StatusOK, resp)
}

func (a *App) TopUpsCreate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	if a.Billing == nil {
		a.error(w, http.StatusServiceUnavailable, "payments_disabled", "payments are not configured")
		return
	}
	var req billing.TopUpRequest
	if !a.decode(w, r, &req) {
		return
	}
	req.UserID = userID
	top, err := a.Billing.StartTopUp(r.Context(), req)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, map[string]any{
		"purchase":      toPurchaseDTO(top.Purchase),
		"authorize_uri": top.AuthorizeURI,
	})
}
