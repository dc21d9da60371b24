package session

import (
	"errors"
	"time"

	"github.com/wgthomas/webview4claude/agent"
)

var (
	ErrNotFound        = errors.New("session not found")
	ErrWorkDirRequired = errors.New("working directory is required")
)

// Status is the run state of a session.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusError   Status = "error"
)

// Session holds the metadata for one conversation.
// Message bodies live next to it in the registry but are never persisted.
type Session struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	WorkDir      string    `json:"work_dir"`
	Model        string    `json:"model,omitempty"`
	ResumeToken  string    `json:"resume_token,omitempty"`
	Status       Status    `json:"status"`
	TotalCostUSD float64   `json:"total_cost_usd"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// Summary is the list view of a session: metadata plus message count.
type Summary struct {
	Session
	MessageCount int `json:"message_count"`
}

// Message is one entry of a session's in-memory history.
type Message struct {
	Role      string           `json:"role"` // "user" or "assistant"
	Content   string           `json:"content,omitempty"`
	ToolCalls []agent.ToolCall `json:"tool_calls,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// UpdateFields is a partial update; nil fields are left unchanged.
type UpdateFields struct {
	Name        *string
	Model       *string
	Status      *Status
	ResumeToken *string
}
