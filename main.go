package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mdp/qrterminal/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/wgthomas/webview4claude/agent"
	"github.com/wgthomas/webview4claude/command"
	"github.com/wgthomas/webview4claude/hub"
	"github.com/wgthomas/webview4claude/logger"
	"github.com/wgthomas/webview4claude/middleware"
	"github.com/wgthomas/webview4claude/run"
	"github.com/wgthomas/webview4claude/session"
	"github.com/wgthomas/webview4claude/watch"
	"github.com/wgthomas/webview4claude/ws"
)

const (
	version = "0.3.0"
	title   = "webview4claude"
)

type config struct {
	port        string
	token       string
	workDir     string
	dataDir     string
	commandsDir string
	devMode     bool
}

func loadConfig() (config, error) {
	cfg := config{
		port:    os.Getenv("PORT"),
		token:   os.Getenv("AUTH_TOKEN"),
		workDir: os.Getenv("WORK_DIR"),
		dataDir: os.Getenv("DATA_DIR"),
		devMode: os.Getenv("DEV_MODE") == "true",
	}

	if cfg.port == "" {
		cfg.port = "8080"
	}
	if cfg.token == "" {
		return config{}, errors.New("AUTH_TOKEN environment variable is required")
	}
	if cfg.workDir == "" {
		cfg.workDir = "/workspace"
	}
	if cfg.dataDir == "" {
		cfg.dataDir = filepath.Join(cfg.workDir, ".webview4claude")
	}

	cfg.commandsDir = os.Getenv("COMMANDS_DIR")
	if cfg.commandsDir == "" {
		cfg.commandsDir = filepath.Join(cfg.workDir, ".claude", "commands")
	}

	return cfg, nil
}

func newHandler(cfg config, rpcHandler *ws.RPCHandler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// WebSocket endpoint authenticates in-band with its first RPC message
	mux.Handle("GET /ws", rpcHandler)

	handler := middleware.Auth(cfg.token, "/health", "/ws")(mux)
	return middleware.Logging(handler)
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger.Init(logger.Config{DataDir: cfg.dataDir, DevMode: cfg.devMode})

	registry, err := session.NewRegistry(cfg.dataDir)
	if err != nil {
		slog.Error("failed to open session registry", "dataDir", cfg.dataDir, "error", err)
		os.Exit(1)
	}

	eventHub := hub.New()
	coordinator := run.NewCoordinator(agent.NewClaudeAgent(), registry, eventHub)
	commands := command.NewStore(cfg.commandsDir)

	fsWatcher := watch.NewFSWatcher()
	if err := fsWatcher.Start(); err != nil {
		slog.Error("failed to start filesystem watcher", "error", err)
		os.Exit(1)
	}

	rpcHandler := ws.NewRPCHandler(cfg.token, version, title, cfg.devMode,
		registry, coordinator, eventHub, commands, fsWatcher)

	server := &http.Server{
		Addr:    ":" + cfg.port,
		Handler: newHandler(cfg, rpcHandler),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("server starting", "port", cfg.port, "workDir", cfg.workDir, "version", version)
		printAccessInfo(cfg)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http shutdown incomplete", "error", err)
		}

		coordinator.Shutdown()
		fsWatcher.Stop()
		registry.Close()
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

// printAccessInfo renders the access URL as a terminal QR code so a phone
// can join without typing the token. Skipped when stdout is not a TTY.
func printAccessInfo(cfg config) {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return
	}

	url := fmt.Sprintf("http://localhost:%s/?token=%s", cfg.port, cfg.token)
	fmt.Printf("\nScan to connect:\n\n")
	qrterminal.GenerateWithConfig(url, qrterminal.Config{
		Level:     qrterminal.L,
		Writer:    os.Stdout,
		BlackChar: qrterminal.BLACK,
		WhiteChar: qrterminal.WHITE,
		QuietZone: 1,
	})
	fmt.Printf("\n%s\n\n", url)
}
