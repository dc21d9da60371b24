package ws

import (
	"context"
	"errors"

	"github.com/sourcegraph/jsonrpc2"
	"github.com/wgthomas/webview4claude/rpc"
	"github.com/wgthomas/webview4claude/session"
)

func (h *rpcMethodHandler) handleSessionCreate(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.SessionCreateParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	sess, err := h.registry.Create(params.Name, params.WorkDir, params.Model)
	if err != nil {
		if errors.Is(err, session.ErrWorkDirRequired) {
			h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "workDir is required")
			return
		}
		h.log.Error("failed to create session", "error", err)
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInternalError, "failed to create session")
		return
	}

	h.log.Info("session created", "sessionId", sess.ID, "workDir", sess.WorkDir)

	if err := conn.Reply(ctx, req.ID, sess); err != nil {
		h.log.Error("failed to send response", "error", err)
	}
}

func (h *rpcMethodHandler) handleSessionList(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	sessions := h.registry.List()

	result := rpc.SessionListResult{Sessions: sessions}
	if err := conn.Reply(ctx, req.ID, result); err != nil {
		h.log.Error("failed to send response", "error", err)
	}
}

func (h *rpcMethodHandler) handleSessionUpdate(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.SessionUpdateParams
	if err := unmarshalParams(req, &params); err != nil || params.SessionID == "" {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	sess, ok := h.registry.Update(params.SessionID, session.UpdateFields{
		Name:  params.Name,
		Model: params.Model,
	})
	if !ok {
		h.replyError(ctx, conn, req.ID, codeNotFound, "session not found")
		return
	}

	if err := conn.Reply(ctx, req.ID, sess); err != nil {
		h.log.Error("failed to send response", "error", err)
	}
}

func (h *rpcMethodHandler) handleSessionDelete(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.SessionDeleteParams
	if err := unmarshalParams(req, &params); err != nil || params.SessionID == "" {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	// An active run must be fully stopped before the session record goes away,
	// otherwise its final status write would resurrect state for a dead session.
	h.coordinator.CancelAndWait(params.SessionID)

	if !h.registry.Delete(params.SessionID) {
		h.replyError(ctx, conn, req.ID, codeNotFound, "session not found")
		return
	}

	h.log.Info("session deleted", "sessionId", params.SessionID)

	result := rpc.SessionDeleteResult{Deleted: true}
	if err := conn.Reply(ctx, req.ID, result); err != nil {
		h.log.Error("failed to send response", "error", err)
	}
}
