package ws

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sourcegraph/jsonrpc2"
	"github.com/wgthomas/webview4claude/hub"
	"github.com/wgthomas/webview4claude/rpc"
	"github.com/wgthomas/webview4claude/run"
	"github.com/wgthomas/webview4claude/session"
)

func (h *rpcMethodHandler) handleChatSubscribe(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.ChatSubscribeParams
	if err := unmarshalParams(req, &params); err != nil || params.SessionID == "" {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	if _, ok := h.registry.Get(params.SessionID); !ok {
		h.replyError(ctx, conn, req.ID, codeNotFound, "session not found")
		return
	}

	subID := "c-" + uuid.Must(uuid.NewV7()).String()
	sink := &chatSink{conn: conn, subID: subID}
	unsub := h.hub.Subscribe(params.SessionID, sink)
	h.state.trackChatSub(subID, unsub)

	h.log.Info("chat subscribed", "sessionId", params.SessionID, "subscriptionId", subID)

	result := rpc.ChatSubscribeResult{
		ID:      subID,
		History: h.registry.History(params.SessionID),
		Running: h.coordinator.IsRunning(params.SessionID),
	}
	if err := conn.Reply(ctx, req.ID, result); err != nil {
		h.log.Error("failed to send response", "error", err)
		return
	}

	// Attach confirmation goes over the same channel as run events so the
	// client can tell a quiet stream from a broken one.
	if err := sink.Send(ctx, hub.Event{Type: "connected"}); err != nil {
		h.log.Debug("failed to send connected event", "error", err)
	}
}

func (h *rpcMethodHandler) handleChatUnsubscribe(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.UnsubscribeParams
	if err := unmarshalParams(req, &params); err != nil || params.ID == "" {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	if unsub := h.state.untrackChatSub(params.ID); unsub != nil {
		unsub()
	}

	if err := conn.Reply(ctx, req.ID, struct{}{}); err != nil {
		h.log.Error("failed to send response", "error", err)
	}
}

func (h *rpcMethodHandler) handleMessage(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.MessageParams
	if err := unmarshalParams(req, &params); err != nil || params.SessionID == "" || params.Content == "" {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	prompt := h.commands.Expand(params.Content)

	if err := h.coordinator.Start(params.SessionID, prompt); err != nil {
		switch {
		case errors.Is(err, session.ErrNotFound):
			h.replyError(ctx, conn, req.ID, codeNotFound, "session not found")
		case errors.Is(err, run.ErrRunInProgress):
			h.replyError(ctx, conn, req.ID, codeConflict, "a run is already in progress")
		default:
			h.log.Error("failed to start run", "error", err)
			h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInternalError, "failed to start run")
		}
		return
	}

	if err := conn.Reply(ctx, req.ID, struct{}{}); err != nil {
		h.log.Error("failed to send response", "error", err)
	}
}

func (h *rpcMethodHandler) handleInterrupt(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.InterruptParams
	if err := unmarshalParams(req, &params); err != nil || params.SessionID == "" {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	interrupted := h.coordinator.Cancel(params.SessionID)
	if interrupted {
		h.log.Info("run interrupted", "sessionId", params.SessionID)
	}

	result := rpc.InterruptResult{Interrupted: interrupted}
	if err := conn.Reply(ctx, req.ID, result); err != nil {
		h.log.Error("failed to send response", "error", err)
	}
}

// chatSink forwards run events to one subscriber as JSON-RPC notifications.
type chatSink struct {
	conn  *jsonrpc2.Conn
	subID string
}

func (s *chatSink) Send(ctx context.Context, ev hub.Event) error {
	return s.conn.Notify(ctx, "chat."+ev.Type, rpc.ChatEventParams{
		ID:      s.subID,
		Type:    ev.Type,
		Payload: ev.Payload,
	})
}

// Close is a no-op: the underlying connection is shared with other
// subscriptions and the RPC request/response traffic.
func (s *chatSink) Close() {}
