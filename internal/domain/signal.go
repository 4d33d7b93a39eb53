package domain

// Outcome is the terminal result a completion signal carries.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// SignalSource names where a completion signal came from. Used for logging only.
type SignalSource string

const (
	SourceWebhook SignalSource = "webhook"
	SourcePoller  SignalSource = "poller"
	SourceSweep   SignalSource = "sweep"
)

// Signal is a completion outcome delivered by the webhook, the poller or the sweep.
type Signal struct {
	Outcome     Outcome
	Result      *ResultPayload
	ErrorDetail string
	Source      SignalSource
}

// Status maps the signal outcome onto the terminal job status.
func (s Signal) Status() JobStatus {
	if s.Outcome == OutcomeSuccess {
		return JobStatusCompleted
	}
	return JobStatusFailed
}
