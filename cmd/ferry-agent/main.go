package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fileferry/fileferry/internal/agent"
	"github.com/fileferry/fileferry/internal/config"
	"github.com/fileferry/fileferry/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.ParseAgentConfig()
	logger := logging.New("ferry-agent", cfg.LogLevel)

	a, err := agent.New(cfg, logger)
	if err != nil {
		logger.Error("create agent", "error", err)
		os.Exit(1)
	}

	router, err := a.Router()
	if err != nil {
		logger.Error("create local surface", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting local surface", "addr", cfg.Addr, "files_dir", cfg.FilesDir)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", "error", err)
			os.Exit(1)
		}
	}()

	// The session loop reconnects forever; it only returns on ctx cancel.
	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("agent stopped", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown local surface", "error", err)
	}
}
