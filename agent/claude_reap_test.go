//go:build unix

package agent

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"
)

// fakeBinary writes a shell script that reports its pid and then streams
// text deltas until killed.
func fakeBinary(t *testing.T) (binary, pidFile string) {
	t.Helper()

	dir := t.TempDir()
	pidFile = filepath.Join(dir, "pid")
	binary = filepath.Join(dir, "fake-claude")
	script := "#!/bin/sh\n" +
		"echo $$ > " + pidFile + "\n" +
		"while :; do\n" +
		`  echo '{"type":"stream_event","event":{"type":"content_block_delta","delta":{"type":"text_delta","text":"x"}}}'` + "\n" +
		"  sleep 0.01\n" +
		"done\n"
	if err := os.WriteFile(binary, []byte(script), 0755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return binary, pidFile
}

func TestRunCancelReapsProcess(t *testing.T) {
	binary, pidFile := fakeBinary(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := &ClaudeAgent{binary: binary}
	events, err := a.Run(ctx, RunRequest{Prompt: "hi", WorkDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// First event proves the process is up and streaming.
	select {
	case _, ok := <-events:
		if !ok {
			t.Fatal("event channel closed before any event")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no event from fake process")
	}

	raw, err := os.ReadFile(pidFile)
	if err != nil {
		t.Fatalf("read pid file: %v", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		t.Fatalf("parse pid %q: %v", raw, err)
	}

	// Cancel while nothing drains the channel, so the blocked send is the
	// exit path.
	cancel()

	// Channel close means the stream goroutine has fully unwound.
	drainDeadline := time.After(5 * time.Second)
drain:
	for {
		select {
		case _, ok := <-events:
			if !ok {
				break drain
			}
		case <-drainDeadline:
			t.Fatal("event channel did not close after cancel")
		}
	}

	// A reaped process is gone; an unreaped one lingers as a zombie that
	// still answers signal 0.
	if err := syscall.Kill(pid, 0); err == nil {
		t.Fatal("process still present after stream shutdown")
	}
}
