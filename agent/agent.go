package agent

import "context"

// RunRequest describes one prompt execution against the upstream agent.
type RunRequest struct {
	Prompt      string
	Model       string
	WorkDir     string
	ResumeToken string // upstream session id from a previous run, empty for the first run
}

// Agent defines the interface for an upstream AI agent service.
type Agent interface {
	// Run starts a single prompt execution and returns a channel of events.
	// The channel is closed when the run completes, fails, or is cancelled
	// via the context. A result or error event always precedes the close.
	Run(ctx context.Context, req RunRequest) (<-chan Event, error)
}
