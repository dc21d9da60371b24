package command

import (
	"os"
	"path/filepath"
	"testing"
)

func writeCommand(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name+".md"), []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestList_EmptyDir(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "missing"))

	commands := store.List()
	if len(commands) != 0 {
		t.Errorf("expected no commands, got %d", len(commands))
	}
}

func TestList_SortedWithDescriptions(t *testing.T) {
	dir := t.TempDir()
	writeCommand(t, dir, "review", "# Review the current diff\nLook at the diff.")
	writeCommand(t, dir, "fix", "Fix the failing tests: $ARGUMENTS")

	commands := NewStore(dir).List()
	if len(commands) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(commands))
	}
	if commands[0].Name != "fix" || commands[1].Name != "review" {
		t.Errorf("expected sorted order, got %+v", commands)
	}
	if commands[1].Description != "Review the current diff" {
		t.Errorf("unexpected description: %q", commands[1].Description)
	}
}

func TestExpand(t *testing.T) {
	dir := t.TempDir()
	writeCommand(t, dir, "fix", "Fix the failing tests in $ARGUMENTS and rerun them.")
	writeCommand(t, dir, "plan", "Write a plan first.")
	s := NewStore(dir)

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain text passes through",
			input:    "just a prompt",
			expected: "just a prompt",
		},
		{
			name:     "unknown command passes through",
			input:    "/nope do it",
			expected: "/nope do it",
		},
		{
			name:     "arguments spliced into placeholder",
			input:    "/fix pkg/server",
			expected: "Fix the failing tests in pkg/server and rerun them.",
		},
		{
			name:     "no placeholder appends arguments",
			input:    "/plan refactor the hub",
			expected: "Write a plan first.\n\nrefactor the hub",
		},
		{
			name:     "command without arguments",
			input:    "/plan",
			expected: "Write a plan first.",
		},
		{
			name:     "bare slash passes through",
			input:    "/",
			expected: "/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Expand(tt.input); got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}
