package ws

import (
	"context"

	"github.com/sourcegraph/jsonrpc2"
	"github.com/wgthomas/webview4claude/rpc"
)

func (h *rpcMethodHandler) handleCommandList(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	result := rpc.CommandListResult{Commands: h.commands.List()}
	if err := conn.Reply(ctx, req.ID, result); err != nil {
		h.log.Error("failed to send response", "error", err)
	}
}
