package domain

import (
	"encoding/json"
	"time"
)

// JobKind enumerates supported generation categories.
type JobKind string

const (
	JobKindImage JobKind = "image"
	JobKindVideo JobKind = "video"
)

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions are permitted from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ResultPayload is the success artifact of a generation.
type ResultPayload struct {
	URLs []string        `json:"urls"`
	Raw  json.RawMessage `json:"raw,omitempty"`
}

// Job encapsulates the lifecycle of one generation request.
type Job struct {
	ID             string
	UserID         string
	Model          string
	Kind           JobKind
	Input          json.RawMessage
	ExternalTaskID string
	Status         JobStatus
	Result         *ResultPayload
	ErrorDetail    string
	CreditsCharged int64
	Refunded       bool
	ThumbnailKey   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}

// Clone returns a deep copy so callers never share mutable state with a store.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	out.Input = append(json.RawMessage(nil), j.Input...)
	if j.Result != nil {
		res := ResultPayload{
			URLs: append([]string(nil), j.Result.URLs...),
			Raw:  append(json.RawMessage(nil), j.Result.Raw...),
		}
		out.Result = &res
	}
	if j.CompletedAt != nil {
		at := *j.CompletedAt
		out.CompletedAt = &at
	}
	return &out
}
