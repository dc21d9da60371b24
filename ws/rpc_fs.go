package ws

import (
	"context"

	"github.com/sourcegraph/jsonrpc2"
	"github.com/wgthomas/webview4claude/rpc"
)

func (h *rpcMethodHandler) handleFSSubscribe(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.FSSubscribeParams
	if err := unmarshalParams(req, &params); err != nil || params.Path == "" {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	subID, err := h.fsWatcher.Subscribe(params.Path, &fsNotifier{conn: conn})
	if err != nil {
		h.log.Warn("fs subscribe failed", "path", params.Path, "error", err)
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "path not watchable: "+params.Path)
		return
	}
	h.state.trackFSSub(subID)

	h.log.Info("fs subscribed", "path", params.Path, "subscriptionId", subID)

	result := rpc.FSSubscribeResult{ID: subID}
	if err := conn.Reply(ctx, req.ID, result); err != nil {
		h.log.Error("failed to send response", "error", err)
	}
}

func (h *rpcMethodHandler) handleFSUnsubscribe(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.UnsubscribeParams
	if err := unmarshalParams(req, &params); err != nil || params.ID == "" {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	h.fsWatcher.Unsubscribe(params.ID)
	h.state.untrackFSSub(params.ID)

	if err := conn.Reply(ctx, req.ID, struct{}{}); err != nil {
		h.log.Error("failed to send response", "error", err)
	}
}

// fsNotifier pushes filesystem change notifications down one connection.
type fsNotifier struct {
	conn *jsonrpc2.Conn
}

func (n *fsNotifier) NotifyChange(ctx context.Context, subID, path string) error {
	return n.conn.Notify(ctx, "fs.changed", rpc.FSChangedParams{
		ID:   subID,
		Path: path,
	})
}
