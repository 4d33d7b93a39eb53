package generation

import (
	"context"
	"encoding/json"

	"studio/internal/domain"
)

// ProviderRequest is what the gateway needs to start a generation.
type ProviderRequest struct {
	JobID string
	Model string
	Kind  domain.JobKind
	Input json.RawMessage
}

// PollState is the provider's view of a task.
type PollState string

const (
	PollRunning PollState = "running"
	PollSuccess PollState = "success"
	PollFailure PollState = "failure"
)

// PollResult is one status observation of a provider task.
type PollResult struct {
	State      PollState
	ResultURLs []string
	Raw        json.RawMessage
	Error      string
}

// Signal converts a terminal poll result into a completion signal. ok is
// false while the task is still running.
func (p PollResult) Signal(source domain.SignalSource) (domain.Signal, bool) {
	switch p.State {
	case PollSuccess:
		return domain.Signal{
			Outcome: domain.OutcomeSuccess,
			Result:  &domain.ResultPayload{URLs: p.ResultURLs, Raw: p.Raw},
			Source:  source,
		}, true
	case PollFailure:
		detail := p.Error
		if detail == "" {
			detail = "generation failed at provider"
		}
		return domain.Signal{Outcome: domain.OutcomeFailure, ErrorDetail: detail, Source: source}, true
	default:
		return domain.Signal{}, false
	}
}

// Gateway is the external generation provider.
type Gateway interface {
	// Submit starts a task and returns the provider task id.
	Submit(ctx context.Context, req ProviderRequest) (string, error)
	Poll(ctx context.Context, taskID string) (PollResult, error)
}
