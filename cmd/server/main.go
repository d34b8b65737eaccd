package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/GDKAYKY/ytdln-open-sub000/internal/api"
	"github.com/GDKAYKY/ytdln-open-sub000/internal/api/handler"
	"github.com/GDKAYKY/ytdln-open-sub000/internal/config"
	"github.com/GDKAYKY/ytdln-open-sub000/internal/downloader"
	"github.com/GDKAYKY/ytdln-open-sub000/internal/metrics"
	"github.com/GDKAYKY/ytdln-open-sub000/internal/process"
	"github.com/GDKAYKY/ytdln-open-sub000/internal/repository"
	"github.com/GDKAYKY/ytdln-open-sub000/internal/service"
	"github.com/GDKAYKY/ytdln-open-sub000/internal/tools"
	"github.com/GDKAYKY/ytdln-open-sub000/internal/worker"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("ytdln-server %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := config.NewLogger(cfg.Log, os.Stdout)
	slog.SetDefault(logger)

	logger.Info("starting ytdln-server",
		"version", Version,
		"build_time", BuildTime,
	)

	bins, err := tools.Resolve(cfg.Tools)
	if err != nil {
		logger.Error("failed to resolve tools", "error", err)
		os.Exit(1)
	}
	logger.Info("resolved tools", "extractor", bins.Extractor, "transcoder", bins.Transcoder)

	// Initialize dependencies
	m := metrics.New()
	finished := repository.NewInMemoryFinishedStore()
	streamSvc := service.NewStreamService(
		process.NewExecSpawner(),
		bins,
		finished,
		cfg.Stream,
		m,
		logger,
	)
	prober := downloader.NewChainProber(
		downloader.NewHTTPProber(cfg.Stream, logger),
		downloader.NewExtractorProber(bins.Extractor, cfg.Stream, nil, logger),
	)

	// Initialize handlers
	streamHandler := handler.NewStreamHandler(streamSvc, prober, cfg.Stream, logger)
	healthHandler := handler.NewHealthHandler(tools.NewChecker(bins, cfg.Tools.VersionTimeout, nil), streamSvc)

	// Setup router
	router := api.NewRouter(streamHandler, healthHandler, m, cfg.Server.RequestTimeout, logger)

	janitor := worker.NewJanitor(cfg.Stream.JanitorInterval, streamSvc, logger)
	if cfg.Stream.RetainFinished > 0 {
		janitor.Start()
	}

	// Setup HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down", "live_sessions", streamSvc.LiveCount())

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Shutdown waits for in-flight handlers, including live streams.
	if err := streamSvc.StopAll(ctx); err != nil {
		logger.Error("stream shutdown error", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if err := janitor.Stop(cfg.Server.ShutdownTimeout); err != nil {
		logger.Error("janitor shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
