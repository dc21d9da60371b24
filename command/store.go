// Package command loads slash-command templates from a commands directory
// and expands them into prompts.
package command

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Command is one available slash command.
type Command struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Store reads command templates from a directory. Each <name>.md file
// defines the command /<name>; its first line doubles as the description.
type Store struct {
	dir string
	mu  sync.RWMutex
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// List returns the available commands sorted by name. A missing commands
// directory yields an empty list, not an error.
func (s *Store) List() []Command {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return []Command{}
	}

	var out []Command
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".md")
		out = append(out, Command{Name: name, Description: s.firstLine(name)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if out == nil {
		out = []Command{}
	}
	return out
}

func (s *Store) firstLine(name string) string {
	body, err := s.read(name)
	if err != nil {
		return ""
	}
	line, _, _ := strings.Cut(body, "\n")
	return strings.TrimSpace(strings.TrimPrefix(line, "#"))
}

func (s *Store) read(name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name+".md"))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Expand replaces a leading "/name args" with the named template, splicing
// the arguments into $ARGUMENTS placeholders. Text that is not a known
// slash command is returned unchanged.
func (s *Store) Expand(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "/") {
		return text
	}

	head, args, _ := strings.Cut(strings.TrimPrefix(trimmed, "/"), " ")
	if head == "" {
		return text
	}

	s.mu.RLock()
	body, err := s.read(head)
	s.mu.RUnlock()
	if err != nil {
		return text
	}

	body = strings.TrimSpace(body)
	args = strings.TrimSpace(args)
	if strings.Contains(body, "$ARGUMENTS") {
		return strings.ReplaceAll(body, "$ARGUMENTS", args)
	}
	if args == "" {
		return body
	}
	return body + "\n\n" + args
}
