package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

const ClaudeBinary = "claude"

// ClaudeAgent implements the Agent interface using the Claude CLI.
type ClaudeAgent struct {
	binary string
}

// NewClaudeAgent creates a new ClaudeAgent with default settings.
func NewClaudeAgent() *ClaudeAgent {
	return &ClaudeAgent{binary: ClaudeBinary}
}

// Run executes the Claude CLI with the given prompt and streams events.
// The process is killed when ctx is cancelled; no timeout is imposed here
// since long-running tool use is expected and the CLI bounds the run.
func (c *ClaudeAgent) Run(ctx context.Context, req RunRequest) (<-chan Event, error) {
	args := []string{
		"-p", req.Prompt,
		"--output-format", "stream-json",
		"--verbose",
		"--include-partial-messages",
	}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	if req.ResumeToken != "" {
		args = append(args, "--resume", req.ResumeToken)
	}

	cmd := exec.CommandContext(ctx, c.binary, args...)
	cmd.Dir = req.WorkDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start claude: %w", err)
	}

	events := make(chan Event)

	go func() {
		defer close(events)

		// Read stderr in a separate goroutine
		stderrCh := make(chan string, 1)
		go func() {
			var stderrContent strings.Builder
			scanner := bufio.NewScanner(stderr)
			for scanner.Scan() {
				stderrContent.WriteString(scanner.Text())
				stderrContent.WriteString("\n")
			}
			stderrCh <- stderrContent.String()
		}()

		emit := func(ev Event) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		sawResult := false
		aborted := false

		scanner := bufio.NewScanner(stdout)
		// Increase buffer size for long lines
		scanner.Buffer(make([]byte, 1024*1024), 8*1024*1024)

	scan:
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			for _, ev := range parseLine(line) {
				if ev.Type == EventTypeResult {
					sawResult = true
				}
				if !emit(ev) {
					aborted = true
					break scan
				}
			}
		}

		// Cancellation kills the process and closes both pipes, so the
		// readers unwind; Wait must still run to reap the child.
		stderrContent := <-stderrCh

		if err := cmd.Wait(); err != nil {
			if aborted || ctx.Err() != nil {
				return
			}
			errMsg := strings.TrimSpace(stderrContent)
			if errMsg == "" {
				errMsg = err.Error()
			}
			emit(Event{Type: EventTypeError, Err: errMsg})
			return
		}

		if aborted {
			return
		}

		if !sawResult {
			emit(Event{Type: EventTypeError, Err: "claude exited without a result"})
		}
	}()

	return events, nil
}

// cliEvent represents one line of Claude CLI verbose stream-json output.
type cliEvent struct {
	Type       string          `json:"type"`
	Subtype    string          `json:"subtype,omitempty"`
	SessionID  string          `json:"session_id,omitempty"`
	Model      string          `json:"model,omitempty"`
	Message    json.RawMessage `json:"message,omitempty"`
	Event      json.RawMessage `json:"event,omitempty"`
	Result     string          `json:"result,omitempty"`
	IsError    bool            `json:"is_error,omitempty"`
	DurationMS int64           `json:"duration_ms,omitempty"`
	CostUSD    float64         `json:"total_cost_usd,omitempty"`
	Usage      *Usage          `json:"usage,omitempty"`
}

// cliMessage represents the message object in assistant/user events.
type cliMessage struct {
	Content []cliContentBlock `json:"content"`
}

// cliContentBlock represents a content block in a message.
type cliContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}

// cliStreamEvent is the raw API stream event carried by stream_event lines
// when --include-partial-messages is set.
type cliStreamEvent struct {
	Type         string `json:"type"`
	ContentBlock *struct {
		Type string `json:"type"`
		ID   string `json:"id,omitempty"`
		Name string `json:"name,omitempty"`
	} `json:"content_block,omitempty"`
	Delta *struct {
		Type        string `json:"type"`
		Text        string `json:"text,omitempty"`
		PartialJSON string `json:"partial_json,omitempty"`
	} `json:"delta,omitempty"`
}

// parseLine parses a single line of stream-json output into zero or more events.
func parseLine(line []byte) []Event {
	var event cliEvent
	if err := json.Unmarshal(line, &event); err != nil {
		return nil
	}

	switch event.Type {
	case "system":
		if event.Subtype != "init" {
			return nil
		}
		return []Event{{
			Type:        EventTypeInit,
			ResumeToken: event.SessionID,
			Model:       event.Model,
		}}
	case "stream_event":
		return parseStreamEvent(event.Event)
	case "assistant":
		return parseAssistantEvent(event.Message)
	case "user":
		return parseUserEvent(event.Message)
	case "result":
		res := &RunResult{
			DurationMS: event.DurationMS,
			CostUSD:    event.CostUSD,
			IsError:    event.IsError,
			Summary:    event.Result,
		}
		if event.Usage != nil {
			res.Usage = *event.Usage
		}
		return []Event{{Type: EventTypeResult, Result: res}}
	default:
		return nil
	}
}

func parseStreamEvent(raw json.RawMessage) []Event {
	if raw == nil {
		return nil
	}
	var se cliStreamEvent
	if err := json.Unmarshal(raw, &se); err != nil {
		return nil
	}

	switch se.Type {
	case "content_block_start":
		if se.ContentBlock != nil && se.ContentBlock.Type == "tool_use" {
			return []Event{{
				Type:      EventTypeToolStart,
				ToolUseID: se.ContentBlock.ID,
				ToolName:  se.ContentBlock.Name,
			}}
		}
	case "content_block_delta":
		if se.Delta == nil {
			return nil
		}
		switch se.Delta.Type {
		case "text_delta":
			if se.Delta.Text != "" {
				return []Event{{Type: EventTypeTextDelta, Text: se.Delta.Text}}
			}
		case "input_json_delta":
			if se.Delta.PartialJSON != "" {
				return []Event{{Type: EventTypeToolInputDelta, InputDelta: se.Delta.PartialJSON}}
			}
		}
	}
	return nil
}

func parseAssistantEvent(raw json.RawMessage) []Event {
	if raw == nil {
		return nil
	}
	var msg cliMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil
	}

	turn := &AssistantTurn{}
	var textParts []string
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				textParts = append(textParts, block.Text)
			}
		case "tool_use":
			turn.ToolCalls = append(turn.ToolCalls, ToolCall{
				ID:    block.ID,
				Name:  block.Name,
				Input: block.Input,
			})
		}
	}
	turn.Text = strings.Join(textParts, "")

	if turn.Text == "" && len(turn.ToolCalls) == 0 {
		return nil
	}
	return []Event{{Type: EventTypeAssistant, Turn: turn}}
}

// parseUserEvent extracts tool results, which the CLI echoes as user messages.
func parseUserEvent(raw json.RawMessage) []Event {
	if raw == nil {
		return nil
	}
	var msg cliMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil
	}

	var out []Event
	for _, block := range msg.Content {
		if block.Type != "tool_result" {
			continue
		}
		out = append(out, Event{
			Type:       EventTypeToolResult,
			ToolUseID:  block.ToolUseID,
			ToolOutput: flattenToolResult(block.Content),
		})
	}
	return out
}

// flattenToolResult renders tool result content, which may be a plain string
// or a list of content blocks, into text.
func flattenToolResult(raw json.RawMessage) string {
	if raw == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []cliContentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return string(raw)
	}
	var parts []string
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}
