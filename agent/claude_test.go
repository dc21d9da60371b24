package agent

import (
	"testing"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []Event
	}{
		{
			name:     "invalid json is skipped",
			input:    "not json",
			expected: nil,
		},
		{
			name:  "system init event carries resume token and model",
			input: `{"type":"system","subtype":"init","session_id":"sess-abc","model":"claude-sonnet-4"}`,
			expected: []Event{{
				Type:        EventTypeInit,
				ResumeToken: "sess-abc",
				Model:       "claude-sonnet-4",
			}},
		},
		{
			name:     "system non-init subtype is ignored",
			input:    `{"type":"system","subtype":"compact_boundary"}`,
			expected: nil,
		},
		{
			name:  "text delta stream event",
			input: `{"type":"stream_event","event":{"type":"content_block_delta","delta":{"type":"text_delta","text":"Hel"}}}`,
			expected: []Event{{
				Type: EventTypeTextDelta,
				Text: "Hel",
			}},
		},
		{
			name:  "tool use content block start",
			input: `{"type":"stream_event","event":{"type":"content_block_start","content_block":{"type":"tool_use","id":"toolu_1","name":"Read"}}}`,
			expected: []Event{{
				Type:      EventTypeToolStart,
				ToolUseID: "toolu_1",
				ToolName:  "Read",
			}},
		},
		{
			name:     "text content block start is ignored",
			input:    `{"type":"stream_event","event":{"type":"content_block_start","content_block":{"type":"text"}}}`,
			expected: nil,
		},
		{
			name:  "tool input json delta",
			input: `{"type":"stream_event","event":{"type":"content_block_delta","delta":{"type":"input_json_delta","partial_json":"{\"file\":"}}}`,
			expected: []Event{{
				Type:       EventTypeToolInputDelta,
				InputDelta: `{"file":`,
			}},
		},
		{
			name:  "assistant turn with text and tool call",
			input: `{"type":"assistant","message":{"content":[{"type":"text","text":"Reading"},{"type":"tool_use","id":"toolu_2","name":"Read","input":{"path":"main.go"}}]}}`,
			expected: []Event{{
				Type: EventTypeAssistant,
				Turn: &AssistantTurn{
					Text: "Reading",
					ToolCalls: []ToolCall{
						{ID: "toolu_2", Name: "Read", Input: []byte(`{"path":"main.go"}`)},
					},
				},
			}},
		},
		{
			name:     "assistant turn with empty content is skipped",
			input:    `{"type":"assistant","message":{"content":[]}}`,
			expected: nil,
		},
		{
			name:  "tool result echoed as user message",
			input: `{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"toolu_2","content":"file contents"}]}}`,
			expected: []Event{{
				Type:       EventTypeToolResult,
				ToolUseID:  "toolu_2",
				ToolOutput: "file contents",
			}},
		},
		{
			name:  "tool result with block list content",
			input: `{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"toolu_3","content":[{"type":"text","text":"line1"},{"type":"text","text":"line2"}]}]}}`,
			expected: []Event{{
				Type:       EventTypeToolResult,
				ToolUseID:  "toolu_3",
				ToolOutput: "line1\nline2",
			}},
		},
		{
			name:  "terminal result event",
			input: `{"type":"result","subtype":"success","duration_ms":1200,"total_cost_usd":0.002,"is_error":false,"result":"done","usage":{"input_tokens":10,"output_tokens":20}}`,
			expected: []Event{{
				Type: EventTypeResult,
				Result: &RunResult{
					DurationMS: 1200,
					CostUSD:    0.002,
					Usage:      Usage{InputTokens: 10, OutputTokens: 20},
					Summary:    "done",
				},
			}},
		},
		{
			name:     "unknown event type is ignored",
			input:    `{"type":"control_request"}`,
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseLine([]byte(tt.input))
			if len(got) != len(tt.expected) {
				t.Fatalf("expected %d events, got %d: %+v", len(tt.expected), len(got), got)
			}
			for i, want := range tt.expected {
				assertEventEqual(t, got[i], want)
			}
		})
	}
}

func assertEventEqual(t *testing.T, got, want Event) {
	t.Helper()
	if got.Type != want.Type {
		t.Errorf("type: got %s, want %s", got.Type, want.Type)
	}
	if got.ResumeToken != want.ResumeToken {
		t.Errorf("resume token: got %q, want %q", got.ResumeToken, want.ResumeToken)
	}
	if got.Model != want.Model {
		t.Errorf("model: got %q, want %q", got.Model, want.Model)
	}
	if got.Text != want.Text {
		t.Errorf("text: got %q, want %q", got.Text, want.Text)
	}
	if got.ToolUseID != want.ToolUseID {
		t.Errorf("tool use id: got %q, want %q", got.ToolUseID, want.ToolUseID)
	}
	if got.ToolName != want.ToolName {
		t.Errorf("tool name: got %q, want %q", got.ToolName, want.ToolName)
	}
	if got.InputDelta != want.InputDelta {
		t.Errorf("input delta: got %q, want %q", got.InputDelta, want.InputDelta)
	}
	if got.ToolOutput != want.ToolOutput {
		t.Errorf("tool output: got %q, want %q", got.ToolOutput, want.ToolOutput)
	}
	if want.Turn != nil {
		if got.Turn == nil {
			t.Fatal("expected turn, got nil")
		}
		if got.Turn.Text != want.Turn.Text {
			t.Errorf("turn text: got %q, want %q", got.Turn.Text, want.Turn.Text)
		}
		if len(got.Turn.ToolCalls) != len(want.Turn.ToolCalls) {
			t.Fatalf("expected %d tool calls, got %d", len(want.Turn.ToolCalls), len(got.Turn.ToolCalls))
		}
		for i, tc := range want.Turn.ToolCalls {
			if got.Turn.ToolCalls[i].ID != tc.ID || got.Turn.ToolCalls[i].Name != tc.Name {
				t.Errorf("tool call %d: got %+v, want %+v", i, got.Turn.ToolCalls[i], tc)
			}
			if string(got.Turn.ToolCalls[i].Input) != string(tc.Input) {
				t.Errorf("tool call %d input: got %s, want %s", i, got.Turn.ToolCalls[i].Input, tc.Input)
			}
		}
	}
	if want.Result != nil {
		if got.Result == nil {
			t.Fatal("expected result, got nil")
		}
		if *got.Result != *want.Result {
			t.Errorf("result: got %+v, want %+v", *got.Result, *want.Result)
		}
	}
}
