package handlers

import (
	"encoding/json"
	"time"

	"studio/internal/domain"
)

type jobDTO struct {
	ID             string          `json:"id"`
	Model          string          `json:"model"`
	Kind           domain.JobKind  `json:"kind"`
	Status         string          `json:"status"`
	Input          json.RawMessage `json:"input,omitempty"`
	ExternalTaskID string          `json:"external_task_id,omitempty"`
	ResultURLs     []string        `json:"result_urls,omitempty"`
	Error          string          `json:"error,omitempty"`
	CreditsCharged int64           `json:"credits_charged"`
	Refunded       bool            `json:"refunded"`
	ThumbnailURL   string          `json:"thumbnail_url,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

func toJobDTO(j *domain.Job) jobDTO {
	out := jobDTO{
		ID:             j.ID,
		Model:          j.Model,
		Kind:           j.Kind,
		Status:         string(j.Status),
		Input:          j.Input,
		ExternalTaskID: j.ExternalTaskID,
		Error:          j.ErrorDetail,
		CreditsCharged: j.CreditsCharged,
		Refunded:       j.Refunded,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
		CompletedAt:    j.CompletedAt,
	}
	if j.Result != nil {
		out.ResultURLs = j.Result.URLs
	}
	if j.ThumbnailKey != "" {
		out.ThumbnailURL = "/v1/generations/" + j.ID + "/thumbnail"
	}
	return out
}

type entryDTO struct {
	ID           string    `json:"id"`
	Amount       int64     `json:"amount"`
	BalanceAfter int64     `json:"balance_after"`
	Kind         string    `json:"kind"`
	JobID        string    `json:"job_id,omitempty"`
	Reference    string    `json:"reference,omitempty"`
	Note         string    `json:"note,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func toEntryDTO(e domain.LedgerEntry) entryDTO {
	return entryDTO{
		ID:           e.ID,
		Amount:       e.Amount,
		BalanceAfter: e.BalanceAfter,
		Kind:         string(e.Kind),
		JobID:        e.RelatedJobID,
		Reference:    e.Reference,
		Note:         e.Note,
		CreatedAt:    e.CreatedAt,
	}
}

type purchaseDTO struct {
	ID       string `json:"id"`
	ChargeID string `json:"charge_id"`
	Pack     string `json:"pack"`
	Credits  int64  `json:"credits"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

func toPurchaseDTO(p *domain.CreditPurchase) purchaseDTO {
	return purchaseDTO{
		ID:       p.ID,
		ChargeID: p.ChargeID,
		Pack:     p.Package,
		Credits:  p.Credits,
		Amount:   p.Amount,
		Currency: p.Currency,
		Status:   string(p.Status),
	}
}
