// Package run owns the per-session run lifecycle: it enforces the
// one-run-per-session invariant, drives the upstream event stream, and
// republishes it through the hub while keeping the registry current.
package run

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/wgthomas/webview4claude/agent"
	"github.com/wgthomas/webview4claude/hub"
	"github.com/wgthomas/webview4claude/logger"
	"github.com/wgthomas/webview4claude/session"
)

var ErrRunInProgress = errors.New("session already has a run in progress")

// ToolOutputLimit caps tool outputs in broadcast events. Large outputs
// would bloat the push channel; the cap is a tunable, not a contract.
const ToolOutputLimit = 4000

const promptLogMaxLen = 50

// handle is the ephemeral state of one in-flight run.
type handle struct {
	sessionID string
	cancel    context.CancelFunc
	done      chan struct{}

	// current tool-call being streamed, for delta attribution
	toolUseID string
	toolName  string
}

// Coordinator starts, tracks and cancels runs. One instance per process.
type Coordinator struct {
	agent    agent.Agent
	registry *session.Registry
	hub      *hub.Hub

	mu   sync.Mutex
	runs map[string]*handle

	ctx  context.Context
	stop context.CancelFunc
}

func NewCoordinator(ag agent.Agent, registry *session.Registry, h *hub.Hub) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		agent:    ag,
		registry: registry,
		hub:      h,
		runs:     make(map[string]*handle),
		ctx:      ctx,
		stop:     cancel,
	}
}

// Start begins a run for the session. It returns once the run is accepted;
// events arrive through the hub. Returns session.ErrNotFound for unknown
// sessions and ErrRunInProgress if the session is already running.
func (c *Coordinator) Start(sessionID, prompt string) error {
	meta, ok := c.registry.Get(sessionID)
	if !ok {
		return session.ErrNotFound
	}

	// Check-and-set under one lock: two near-simultaneous starts must
	// resolve to exactly one acceptance.
	c.mu.Lock()
	if _, exists := c.runs[sessionID]; exists {
		c.mu.Unlock()
		return ErrRunInProgress
	}
	runCtx, cancel := context.WithCancel(c.ctx)
	h := &handle{
		sessionID: sessionID,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	c.runs[sessionID] = h
	c.mu.Unlock()

	c.setStatus(sessionID, session.StatusRunning)
	c.broadcastStatus(sessionID, string(session.StatusRunning))

	userMsg := session.Message{Role: "user", Content: prompt, CreatedAt: time.Now()}
	c.registry.AppendMessage(sessionID, userMsg)
	c.hub.Broadcast(runCtx, sessionID, EventUserMessage, userMsg)

	slog.Info("run started", "sessionId", sessionID,
		"prompt", logger.Truncate(prompt, promptLogMaxLen), "resume", meta.ResumeToken != "")

	go c.consume(runCtx, h, meta, prompt)

	return nil
}

// Cancel signals cancellation to the session's active run, if any.
// Returns whether a run was actually cancelled. Idempotent.
func (c *Coordinator) Cancel(sessionID string) bool {
	c.mu.Lock()
	h, ok := c.runs[sessionID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	h.cancel()
	return true
}

// CancelAndWait cancels the active run and blocks until its handle is
// fully unwound. Used by session deletion, which must not leave an
// orphaned run writing to a removed record.
func (c *Coordinator) CancelAndWait(sessionID string) bool {
	c.mu.Lock()
	h, ok := c.runs[sessionID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	h.cancel()
	<-h.done
	return true
}

// IsRunning reports whether the session has an active run.
func (c *Coordinator) IsRunning(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.runs[sessionID]
	return ok
}

// Shutdown cancels every active run and waits for them to unwind.
func (c *Coordinator) Shutdown() {
	c.stop()

	c.mu.Lock()
	handles := make([]*handle, 0, len(c.runs))
	for _, h := range c.runs {
		handles = append(handles, h)
	}
	c.mu.Unlock()

	for _, h := range handles {
		<-h.done
	}
	slog.Info("coordinator shutdown complete", "runsCancelled", len(handles))
}

// consume drives one upstream event stream to completion. Every exit path
// goes through the deferred finish so a crashed run can never leave the
// session stuck in running.
func (c *Coordinator) consume(ctx context.Context, h *handle, meta session.Session, prompt string) {
	var (
		failed    bool
		cancelled bool
	)

	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r, "run crashed", "sessionId", h.sessionID)
			failed = true
		}
		c.finish(h, failed, cancelled || ctx.Err() != nil)
	}()

	events, err := c.agent.Run(ctx, agent.RunRequest{
		Prompt:      prompt,
		Model:       meta.Model,
		WorkDir:     meta.WorkDir,
		ResumeToken: meta.ResumeToken,
	})
	if err != nil {
		slog.Error("failed to open upstream run", "sessionId", h.sessionID, "error", err)
		c.hub.Broadcast(ctx, h.sessionID, EventError, ErrorPayload{Message: err.Error()})
		failed = true
		return
	}

	for ev := range events {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		if c.handleEvent(ctx, h, ev) {
			failed = true
		}
	}
}

// handleEvent translates one upstream event into the public vocabulary.
// Returns true if the event indicates a failed run.
func (c *Coordinator) handleEvent(ctx context.Context, h *handle, ev agent.Event) bool {
	sessionID := h.sessionID

	switch ev.Type {
	case agent.EventTypeInit:
		token := ev.ResumeToken
		c.registry.Update(sessionID, session.UpdateFields{ResumeToken: &token})
		c.hub.Broadcast(ctx, sessionID, EventSystemInit, SystemInitPayload{
			ResumeToken: ev.ResumeToken,
			Model:       ev.Model,
		})

	case agent.EventTypeTextDelta:
		c.hub.Broadcast(ctx, sessionID, EventTextDelta, TextDeltaPayload{Text: ev.Text})

	case agent.EventTypeToolStart:
		h.toolUseID = ev.ToolUseID
		h.toolName = ev.ToolName
		c.hub.Broadcast(ctx, sessionID, EventToolStart, ToolStartPayload{
			ToolUseID: ev.ToolUseID,
			ToolName:  ev.ToolName,
		})

	case agent.EventTypeToolInputDelta:
		c.hub.Broadcast(ctx, sessionID, EventToolInputDelta, ToolInputDeltaPayload{
			ToolUseID: h.toolUseID,
			ToolName:  h.toolName,
			Delta:     ev.InputDelta,
		})

	case agent.EventTypeToolResult:
		c.hub.Broadcast(ctx, sessionID, EventToolComplete, ToolCompletePayload{
			ToolUseID: ev.ToolUseID,
			Output:    truncateOutput(ev.ToolOutput),
		})

	case agent.EventTypeAssistant:
		msg := session.Message{
			Role:      "assistant",
			Content:   ev.Turn.Text,
			ToolCalls: ev.Turn.ToolCalls,
			CreatedAt: time.Now(),
		}
		c.registry.AppendMessage(sessionID, msg)
		c.hub.Broadcast(ctx, sessionID, EventAssistantMessage, msg)
		// The turn finalizes the current accumulators.
		h.toolUseID = ""
		h.toolName = ""

	case agent.EventTypeResult:
		res := ev.Result
		totals, _ := c.registry.AddUsage(sessionID, res.CostUSD, res.Usage.InputTokens, res.Usage.OutputTokens)
		c.hub.Broadcast(ctx, sessionID, EventResult, ResultPayload{
			DurationMS:        res.DurationMS,
			CostUSD:           res.CostUSD,
			Usage:             res.Usage,
			IsError:           res.IsError,
			TotalCostUSD:      totals.TotalCostUSD,
			TotalInputTokens:  totals.InputTokens,
			TotalOutputTokens: totals.OutputTokens,
		})
		slog.Info("run result", "sessionId", sessionID,
			"costUsd", res.CostUSD, "durationMs", res.DurationMS, "isError", res.IsError)
		return res.IsError

	case agent.EventTypeError:
		slog.Error("upstream run failed", "sessionId", sessionID, "error", ev.Err)
		c.hub.Broadcast(ctx, sessionID, EventError, ErrorPayload{Message: ev.Err})
		return true
	}

	return false
}

// finish unconditionally restores the session to a quiescent state and
// emits the final status broadcast.
func (c *Coordinator) finish(h *handle, failed, cancelled bool) {
	c.mu.Lock()
	delete(c.runs, h.sessionID)
	c.mu.Unlock()
	defer close(h.done)

	// Cancellation is a normal outcome, never an error.
	finalStatus := session.StatusIdle
	broadcastStatus := string(session.StatusIdle)
	switch {
	case cancelled:
		broadcastStatus = StatusInterrupted
	case failed:
		finalStatus = session.StatusError
		broadcastStatus = string(session.StatusError)
	}

	c.setStatus(h.sessionID, finalStatus)
	c.broadcastStatus(h.sessionID, broadcastStatus)

	slog.Info("run finished", "sessionId", h.sessionID, "status", broadcastStatus)
}

func (c *Coordinator) setStatus(sessionID string, status session.Status) {
	if _, ok := c.registry.Update(sessionID, session.UpdateFields{Status: &status}); !ok {
		// Session deleted out from under a finishing run; nothing to update.
		slog.Debug("status update on missing session", "sessionId", sessionID, "status", status)
	}
}

func (c *Coordinator) broadcastStatus(sessionID, status string) {
	c.hub.Broadcast(context.Background(), sessionID, EventStatus, StatusPayload{Status: status})
}

func truncateOutput(s string) string {
	if len(s) <= ToolOutputLimit {
		return s
	}
	return s[:ToolOutputLimit] + "\n... [output truncated]"
}
