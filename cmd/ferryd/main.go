package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fileferry/fileferry/internal/api"
	"github.com/fileferry/fileferry/internal/catalog"
	"github.com/fileferry/fileferry/internal/config"
	"github.com/fileferry/fileferry/internal/dispatch"
	"github.com/fileferry/fileferry/internal/hub"
	"github.com/fileferry/fileferry/internal/logging"
	"github.com/fileferry/fileferry/internal/registry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.ParseServerConfig()
	logger := logging.New("ferryd", cfg.LogLevel)

	if cfg.APIKey == "" {
		logger.Warn("no API key configured; agent connections will be rejected")
	}

	cat, err := catalog.Open(cfg.FilesDir)
	if err != nil {
		logger.Error("open catalog", "error", err)
		os.Exit(1)
	}

	h := hub.New()
	reg := registry.New(h)
	d := dispatch.New(cat, h, reg, logger)
	server := api.NewServer(cat, h, reg, d, cfg.APIKey, logger)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting ferryd", "addr", cfg.Addr, "files_dir", cat.Dir())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown server", "error", err)
	}
}
