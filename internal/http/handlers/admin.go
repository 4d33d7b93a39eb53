package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type adjustRequest struct {
	UserID string `json:"user_id"`
	Amount int64  `json:"amount"`
	Note   string `json:"note"`
}

func (a *App) AdminCancelPoll(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if _, err := a.Generation.GetJob(r.Context(), jobID); err != nil {
		a.serviceError(w, r, err)
		return
	}
	cancelled := a.Generation.CancelReconciliationForTesting(jobID)
	a.Logger.Warn().Str("job_id", jobID).Str("admin_id", a.currentUserID(r)).Bool("cancelled", cancelled).Msg("poller cancelled by admin")
	a.json(w, http.StatusOK, map[string]any{"job_id": jobID, "cancelled": cancelled})
}

func (a *App) AdminAdjustCredits(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.UserID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "user_id required")
		return
	}
	if _, err := a.Users.GetByID(r.Context(), req.UserID); err != nil {
		a.serviceError(w, r, err)
		return
	}
	entry, err := a.Ledger.Adjust(r.Context(), req.UserID, req.Amount, req.Note)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"entry": toEntryDTO(*entry)})
}
