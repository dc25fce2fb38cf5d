// Package main wires together the event listings service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mfriedel/whatson/internal/api"
	"github.com/mfriedel/whatson/internal/clock/system"
	"github.com/mfriedel/whatson/internal/config"
	"github.com/mfriedel/whatson/internal/crawler"
	"github.com/mfriedel/whatson/internal/ingest"
	"github.com/mfriedel/whatson/internal/logging"
	"github.com/mfriedel/whatson/internal/metrics"
	"github.com/mfriedel/whatson/internal/scheduler"
	"github.com/mfriedel/whatson/internal/store/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	if err := postgres.Migrate(cfg.DB.DSN); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	st, err := postgres.New(ctx, postgres.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: int32(cfg.DB.MaxConns),
		MinConns: int32(cfg.DB.MinConns),
	})
	if err != nil {
		logger.Fatal("store init failed", zap.Error(err))
	}
	defer st.Close()

	clock := system.New()
	crawlers := make([]crawler.Crawler, 0, len(cfg.Sources))
	for _, src := range cfg.Sources {
		c, err := crawler.NewSource(crawler.SourceConfig{
			Name:        src.Name,
			BaseURL:     src.URL,
			Months:      src.Months,
			StrictItems: src.StrictItems,
			Timeout:     time.Duration(src.TimeoutSeconds) * time.Second,
		}, nil, clock, logger.Named("crawler"))
		if err != nil {
			logger.Fatal("crawler init failed", zap.String("source", src.Name), zap.Error(err))
		}
		crawlers = append(crawlers, c)
	}

	if len(crawlers) > 0 {
		pipeline := ingest.New(crawlers, st, logger.Named("ingest"))
		sched := scheduler.New(pipeline, scheduler.Config{
			Interval:   cfg.CrawlInterval(),
			RunTimeout: cfg.IngestTimeout(),
			RunOnStart: cfg.Ingest.RunOnStart,
		}, logger.Named("scheduler"))
		go sched.Run(ctx)
	} else {
		logger.Warn("no sources configured; ingestion disabled")
	}

	apiServer := api.NewServer(st, cfg.RequestTimeout(), logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
