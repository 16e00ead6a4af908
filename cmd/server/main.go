package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	h "github.com/veranemoloko/download-engine/internal/api/http"
	cfgpkg "github.com/veranemoloko/download-engine/internal/config"
	"github.com/veranemoloko/download-engine/internal/connectivity"
	"github.com/veranemoloko/download-engine/internal/events"
	"github.com/veranemoloko/download-engine/internal/manager"
	"github.com/veranemoloko/download-engine/internal/queue"
	"github.com/veranemoloko/download-engine/internal/repository"
	"github.com/veranemoloko/download-engine/internal/storage"
	"github.com/veranemoloko/download-engine/internal/transport"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env file", "error", err)
	}

	cfg, err := cfgpkg.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	cfgpkg.SetupLogger(cfg)
	slog.Info("configuration loaded successfully")

	logger := slog.Default()

	store := repository.Open(cfg.StateFile)
	bus, err := events.NewManager(store, logger)
	if err != nil {
		slog.Error("failed to initialize task registry", "error", err)
		os.Exit(1)
	}

	fileStore, err := storage.New(cfg.DownloadDir, logger)
	if err != nil {
		slog.Error("failed to initialize download storage", "error", err)
		os.Exit(1)
	}

	monitor := connectivity.NewMonitor(cfg.ConnProbeAddr, cfg.ConnProbeInterval, logger)
	monitor.Start()

	httpTransport := transport.NewHTTP(
		&http.Client{Timeout: cfg.DownloadTimeout},
		cfg.TempDir,
		logger,
	)

	mgr := manager.New(
		cfg,
		queue.New(cfg.MaxQueueSize),
		bus,
		fileStore,
		httpTransport,
		monitor,
		logger,
	)
	mgr.Restore()
	mgr.Start()

	router := h.NewRouter(mgr, bus, logger)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.HTTPTimeout,
		WriteTimeout: cfg.HTTPTimeout,
		IdleTimeout:  cfg.HTTPTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}

	mgr.Close()
	monitor.Stop()
	bus.Close()
	slog.Info("server stopped gracefully")
}
