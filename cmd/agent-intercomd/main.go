// Command agent-intercomd is the daemon: it speaks MCP to the primary
// coding agent over stdio, serves a streamable-HTTP MCP listener for any
// spawned child sessions, brokers approvals/prompts/stalls to a Slack
// operator, and answers the local intercomctl CLI over a Unix domain
// socket (§4.11).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/softwaresalt/agent-intercom/internal/config"
	"github.com/softwaresalt/agent-intercom/internal/daemon"
	"github.com/softwaresalt/agent-intercom/internal/ipc"
	"github.com/softwaresalt/agent-intercom/internal/logging"
	"github.com/softwaresalt/agent-intercom/internal/store"
)

func main() {
	configPath := flag.String("config", "agent-intercom.toml", "path to the daemon's TOML config file")
	logFormat := flag.String("log-format", "text", "log output format: text or json")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	workspace := flag.String("workspace", "", "overrides default_workspace_root from the config file")
	flag.Parse()

	logger := logging.Init(logging.Options{Format: *logFormat, Level: *logLevel})

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot load config")
	}
	if *workspace != "" {
		cfg.DefaultWorkspaceRoot = *workspace
	}

	cred, err := config.LoadCredentials()
	if err != nil {
		logger.Warn().Err(err).Msg("no Slack credentials resolved, running local-only")
		cred = nil
	}

	st, err := store.Open(store.Config{Path: cfg.Database.Path, MaxOpenConns: 1, MaxIdleConns: 1}, logging.Component(logger, "store"))
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot open store")
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go st.RunRetentionPurge(ctx, cfg.RetentionDays, logging.Component(logger, "retention"))

	d, err := daemon.New(cfg, cred, st, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot wire daemon")
	}

	token, err := d.InitIPC(ipc.SocketPath(cfg.IPCName))
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot start ipc listener")
	}
	if err := os.WriteFile(ipc.TokenPath(cfg.IPCName), []byte(token), 0o600); err != nil {
		logger.Fatal().Err(err).Msg("cannot persist ipc token")
	}
	defer os.Remove(ipc.TokenPath(cfg.IPCName))

	if _, err := d.RecoverOnStartup(ctx); err != nil {
		logger.Warn().Err(err).Msg("startup recovery scan failed")
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", cfg.HTTPPort),
		Handler: d.Tools.HTTPHandler(),
	}

	go func() {
		if err := d.RunIPC(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("ipc listener stopped")
		}
	}()
	go func() {
		if err := d.RunChat(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("chat adapter stopped")
		}
	}()
	go d.RunStallEvents(ctx)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("mcp http listener stopped")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("mcp http listener did not shut down cleanly")
		}
	}()

	// The primary agent's stdio transport is the foreground loop: once it
	// exits (the agent disconnected, or stdin closed), everything else
	// winds down too.
	stdioErr := d.Tools.ServeStdio()
	stop()
	if stdioErr != nil {
		logger.Warn().Err(stdioErr).Msg("stdio mcp transport exited")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown reported an error")
	}
}
