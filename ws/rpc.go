package ws

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sourcegraph/jsonrpc2"
	"github.com/wgthomas/webview4claude/command"
	"github.com/wgthomas/webview4claude/hub"
	"github.com/wgthomas/webview4claude/logger"
	"github.com/wgthomas/webview4claude/rpc"
	"github.com/wgthomas/webview4claude/run"
	"github.com/wgthomas/webview4claude/session"
	"github.com/wgthomas/webview4claude/watch"
)

// Application error codes beyond the JSON-RPC defaults.
const (
	codeNotFound = -32001
	codeConflict = -32002
)

const keepAliveInterval = 30 * time.Second

// RPCHandler handles JSON-RPC 2.0 over WebSocket.
type RPCHandler struct {
	token   string
	version string
	title   string
	devMode bool

	registry    *session.Registry
	coordinator *run.Coordinator
	hub         *hub.Hub
	commands    *command.Store
	fsWatcher   *watch.FSWatcher
}

func NewRPCHandler(
	token, version, title string,
	devMode bool,
	registry *session.Registry,
	coordinator *run.Coordinator,
	h *hub.Hub,
	commands *command.Store,
	fsWatcher *watch.FSWatcher,
) *RPCHandler {
	return &RPCHandler{
		token:       token,
		version:     version,
		title:       title,
		devMode:     devMode,
		registry:    registry,
		coordinator: coordinator,
		hub:         h,
		commands:    commands,
		fsWatcher:   fsWatcher,
	}
}

func (h *RPCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: h.devMode,
	})
	if err != nil {
		slog.Error("failed to accept websocket", "error", err)
		return
	}

	h.handleConnection(r.Context(), conn)
}

func (h *RPCHandler) handleConnection(ctx context.Context, wsConn *websocket.Conn) {
	stream := newWebSocketStream(wsConn)
	connID := uuid.Must(uuid.NewV7()).String()
	h.HandleStream(ctx, stream, connID)
}

// HandleStream runs the JSON-RPC loop for one connection until it closes.
func (h *RPCHandler) HandleStream(ctx context.Context, stream jsonrpc2.ObjectStream, connID string) {
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r, "websocket connection crashed", "connId", connID)
		}
	}()

	log := slog.With("connId", connID)
	log.Info("new connection")

	state := &rpcConnState{
		connID:   connID,
		chatSubs: make(map[string]func()),
		fsSubs:   make(map[string]struct{}),
	}

	handler := &rpcMethodHandler{
		RPCHandler: h,
		state:      state,
		log:        log,
	}

	rpcConn := jsonrpc2.NewConn(ctx, stream, jsonrpc2.AsyncHandler(handler))

	pingCtx, stopPing := context.WithCancel(ctx)
	go h.keepAlive(pingCtx, rpcConn, log)

	<-rpcConn.DisconnectNotify()
	stopPing()

	state.cleanup(h.fsWatcher)
	log.Info("connection closed")
}

// keepAlive sends periodic no-op notifications so intermediaries keep the
// connection open during long silent tool runs.
func (h *RPCHandler) keepAlive(ctx context.Context, conn *jsonrpc2.Conn, log *slog.Logger) {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.Notify(ctx, "ping", struct{}{}); err != nil {
				log.Debug("keep-alive failed", "error", err)
				return
			}
		}
	}
}

// rpcConnState tracks per-connection subscriptions for cleanup.
type rpcConnState struct {
	mu       sync.Mutex
	connID   string
	chatSubs map[string]func()   // subID → hub unsubscribe
	fsSubs   map[string]struct{} // subID set for the fs watcher
}

func (s *rpcConnState) trackChatSub(id string, unsub func()) {
	s.mu.Lock()
	s.chatSubs[id] = unsub
	s.mu.Unlock()
}

func (s *rpcConnState) untrackChatSub(id string) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	unsub := s.chatSubs[id]
	delete(s.chatSubs, id)
	return unsub
}

func (s *rpcConnState) trackFSSub(id string) {
	s.mu.Lock()
	s.fsSubs[id] = struct{}{}
	s.mu.Unlock()
}

func (s *rpcConnState) untrackFSSub(id string) {
	s.mu.Lock()
	delete(s.fsSubs, id)
	s.mu.Unlock()
}

// cleanup releases every subscription held by a closed connection.
func (s *rpcConnState) cleanup(fsWatcher *watch.FSWatcher) {
	s.mu.Lock()
	chatSubs := s.chatSubs
	fsSubs := s.fsSubs
	s.chatSubs = make(map[string]func())
	s.fsSubs = make(map[string]struct{})
	s.mu.Unlock()

	for _, unsub := range chatSubs {
		unsub()
	}
	for id := range fsSubs {
		fsWatcher.Unsubscribe(id)
	}
}

type rpcMethodHandler struct {
	*RPCHandler
	state         *rpcConnState
	log           *slog.Logger
	authenticated bool
	authMu        sync.Mutex
}

func (h *rpcMethodHandler) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r, "rpc handler panic", "method", req.Method, "connId", h.state.connID)
		}
	}()

	h.log.Debug("received request", "method", req.Method, "id", req.ID)

	// Auth must be the first request
	if !h.isAuthenticated() {
		if req.Method != "auth" {
			h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidRequest, "first request must be auth")
			conn.Close()
			return
		}
		h.handleAuth(ctx, conn, req)
		return
	}

	switch req.Method {
	// session namespace
	case "session.create":
		h.handleSessionCreate(ctx, conn, req)
	case "session.list":
		h.handleSessionList(ctx, conn, req)
	case "session.update":
		h.handleSessionUpdate(ctx, conn, req)
	case "session.delete":
		h.handleSessionDelete(ctx, conn, req)
	// chat namespace
	case "chat.subscribe":
		h.handleChatSubscribe(ctx, conn, req)
	case "chat.unsubscribe":
		h.handleChatUnsubscribe(ctx, conn, req)
	case "chat.message":
		h.handleMessage(ctx, conn, req)
	case "chat.interrupt":
		h.handleInterrupt(ctx, conn, req)
	// fs namespace
	case "fs.subscribe":
		h.handleFSSubscribe(ctx, conn, req)
	case "fs.unsubscribe":
		h.handleFSUnsubscribe(ctx, conn, req)
	// commands
	case "command.list":
		h.handleCommandList(ctx, conn, req)
	default:
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeMethodNotFound, "method not found: "+req.Method)
	}
}

func (h *rpcMethodHandler) isAuthenticated() bool {
	h.authMu.Lock()
	defer h.authMu.Unlock()
	return h.authenticated
}

func (h *rpcMethodHandler) setAuthenticated() {
	h.authMu.Lock()
	h.authenticated = true
	h.authMu.Unlock()
}

func (h *rpcMethodHandler) handleAuth(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.AuthParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		conn.Close()
		return
	}

	if subtle.ConstantTimeCompare([]byte(params.Token), []byte(h.token)) != 1 {
		h.log.Warn("invalid auth token")
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidRequest, "invalid token")
		conn.Close()
		return
	}

	h.setAuthenticated()
	h.log.Info("authenticated")

	result := rpc.AuthResult{
		Version: h.version,
		Title:   h.title,
	}
	if err := conn.Reply(ctx, req.ID, result); err != nil {
		h.log.Error("failed to send auth response", "error", err)
	}
}

func (h *rpcMethodHandler) replyError(ctx context.Context, conn *jsonrpc2.Conn, id jsonrpc2.ID, code int64, message string) {
	err := &jsonrpc2.Error{
		Code:    code,
		Message: message,
	}
	if replyErr := conn.ReplyWithError(ctx, id, err); replyErr != nil {
		h.log.Error("failed to send error response", "error", replyErr)
	}
}

func unmarshalParams(req *jsonrpc2.Request, v interface{}) error {
	if req.Params == nil {
		return errors.New("params required")
	}
	return json.Unmarshal(*req.Params, v)
}

// webSocketStream adapts coder/websocket to jsonrpc2.ObjectStream.
type webSocketStream struct {
	conn *websocket.Conn
	mu   sync.Mutex // protects writes
}

func newWebSocketStream(conn *websocket.Conn) *webSocketStream {
	return &webSocketStream{conn: conn}
}

func (s *webSocketStream) ReadObject(v interface{}) error {
	_, data, err := s.conn.Read(context.Background())
	if err != nil {
		// Treat normal close frames as EOF so jsonrpc2 shuts down gracefully
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return io.EOF
		}
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *webSocketStream) WriteObject(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Write(context.Background(), websocket.MessageText, data)
}

func (s *webSocketStream) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "")
}

// Ensure webSocketStream implements ObjectStream
var _ jsonrpc2.ObjectStream = (*webSocketStream)(nil)
