package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"studio/internal/domain"
	"studio/internal/generation"
	"studio/internal/storage"
)

func (a *App) GenerationsCreate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req generation.SubmitRequest
	if !a.decode(w, r, &req) {
		return
	}
	req.UserID = userID
	job, err := a.Generation.SubmitJob(r.Context(), req)
	if err != nil {
		if errors.Is(err, domain.ErrProviderSubmit) {
			body := map[string]any{"error": map[string]string{"code": "provider_submit_failed", "message": "the generation provider rejected the request; credits were refunded"}}
			if job != nil {
				body["job"] = toJobDTO(job)
			}
			a.json(w, http.StatusBadGateway, body)
			return
		}
		a.serviceError(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, map[string]any{"job": toJobDTO(job)})
}

func (a *App) GenerationsList(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	jobs, err := a.Generation.ListJobs(r.Context(), userID, limit)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	items := make([]jobDTO, 0, len(jobs))
	for i := range jobs {
		items = append(items, toJobDTO(&jobs[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func (a *App) GenerationGet(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	job, err := a.Generation.GetUserJob(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"job": toJobDTO(job)})
}

func (a *App) GenerationThumbnail(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	job, err := a.Generation.GetUserJob(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	if job.ThumbnailKey == "" || a.Files == nil {
		a.error(w, http.StatusNotFound, "not_found", "thumbnail not available")
		return
	}
	data, err := a.Files.Read(r.Context(), job.ThumbnailKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			a.error(w, http.StatusNotFound, "not_found", "thumbnail not available")
			return
		}
		a.serviceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
