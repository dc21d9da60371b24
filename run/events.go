package run

import "github.com/wgthomas/webview4claude/agent"

// Public event vocabulary pushed to subscribers.
const (
	EventStatus           = "status"
	EventSystemInit       = "system_init"
	EventUserMessage      = "user_message"
	EventTextDelta        = "text_delta"
	EventToolStart        = "tool_start"
	EventToolInputDelta   = "tool_input_delta"
	EventToolComplete     = "tool_complete"
	EventAssistantMessage = "assistant_message"
	EventResult           = "result"
	EventError            = "error"
)

// StatusInterrupted is broadcast instead of idle when a run was cancelled.
// The session's persisted status still returns to idle.
const StatusInterrupted = "interrupted"

type StatusPayload struct {
	Status string `json:"status"`
}

type SystemInitPayload struct {
	ResumeToken string `json:"resume_token"`
	Model       string `json:"model,omitempty"`
}

type TextDeltaPayload struct {
	Text string `json:"text"`
}

type ToolStartPayload struct {
	ToolUseID string `json:"tool_use_id"`
	ToolName  string `json:"tool_name"`
}

type ToolInputDeltaPayload struct {
	ToolUseID string `json:"tool_use_id"`
	ToolName  string `json:"tool_name,omitempty"`
	Delta     string `json:"delta"`
}

type ToolCompletePayload struct {
	ToolUseID string `json:"tool_use_id"`
	Output    string `json:"output"`
}

// ResultPayload carries this run's figures and the session's running totals.
type ResultPayload struct {
	DurationMS        int64       `json:"duration_ms"`
	CostUSD           float64     `json:"cost_usd"`
	Usage             agent.Usage `json:"usage"`
	IsError           bool        `json:"is_error"`
	TotalCostUSD      float64     `json:"total_cost_usd"`
	TotalInputTokens  int         `json:"total_input_tokens"`
	TotalOutputTokens int         `json:"total_output_tokens"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
