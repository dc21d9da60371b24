package agent

import "encoding/json"

// EventType defines the type of upstream agent event.
type EventType string

const (
	EventTypeInit           EventType = "init"
	EventTypeTextDelta      EventType = "text_delta"
	EventTypeToolStart      EventType = "tool_start"
	EventTypeToolInputDelta EventType = "tool_input_delta"
	EventTypeToolResult     EventType = "tool_result"
	EventTypeAssistant      EventType = "assistant"
	EventTypeResult         EventType = "result"
	EventTypeError          EventType = "error"
)

// Usage holds token counts reported by the upstream service.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ToolCall is one tool invocation within an assistant turn.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input,omitempty"`
}

// AssistantTurn is a complete assistant message (text plus tool calls).
type AssistantTurn struct {
	Text      string     `json:"text,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// RunResult is the terminal accounting for one run.
type RunResult struct {
	DurationMS int64   `json:"duration_ms"`
	CostUSD    float64 `json:"cost_usd"`
	Usage      Usage   `json:"usage"`
	IsError    bool    `json:"is_error"`
	Summary    string  `json:"summary,omitempty"`
}

// Event represents a unified event from the upstream agent.
// Which fields are populated depends on Type.
type Event struct {
	Type EventType

	// init
	ResumeToken string
	Model       string

	// text_delta
	Text string

	// tool_start / tool_input_delta / tool_result
	ToolUseID  string
	ToolName   string
	InputDelta string
	ToolOutput string

	// assistant
	Turn *AssistantTurn

	// result
	Result *RunResult

	// error
	Err string
}
