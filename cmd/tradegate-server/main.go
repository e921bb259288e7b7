package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"tradegate/internal/config"
	"tradegate/internal/httpapi"
	"tradegate/internal/store"
	"tradegate/internal/stream"
	"tradegate/internal/upstream"
	"tradegate/internal/util"
)

func main() {
	cfgPath := "config/tradegate.yaml"
	if p := os.Getenv("TRADEGATE_CONFIG"); p != "" {
		cfgPath = p
	}

	var cfg *config.Config
	if _, err := os.Stat(cfgPath); err == nil {
		cfg, err = config.Load(cfgPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	} else {
		cfg = config.Default()
	}

	logger := util.NewLogger(cfg.Logging.Level)
	util.SetDefault(logger)

	var api upstream.API
	switch cfg.Upstream.Provider {
	case "sim":
		api = upstream.NewSimulator()
	case "alpaca":
		api = upstream.NewAlpacaAPI(upstream.AlpacaConfig{
			APIKey:    cfg.Upstream.APIKey,
			APISecret: cfg.Upstream.APISecret,
			BaseURL:   cfg.Upstream.BaseURL,
			DataURL:   cfg.Upstream.DataURL,
			Feed:      cfg.Upstream.Feed,
		}, logger)
	default:
		log.Fatalf("unknown upstream provider %q", cfg.Upstream.Provider)
	}

	session := upstream.NewSession(api, cfg.Upstream.SettleWait.Std(), logger)
	supervisor := upstream.NewSupervisor(session, cfg.Upstream.ConnectTimeout.Std(), logger)

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
		log.Fatalf("creating storage dir: %v", err)
	}
	journal, err := store.OpenJournal(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening order journal: %v", err)
	}
	defer journal.Close()
	barCache := store.NewBarCache(cfg.Storage.DataDir)

	registry := stream.NewRegistry(session, logger)
	hub := stream.NewHub(logger)
	relay := stream.NewRelay(session, journal, cfg.Stream.EventBuffer, logger)
	broadcaster := stream.NewBroadcaster(registry, hub, cfg.Stream.BroadcastInterval.Std(), logger)
	limiter := util.NewRateLimiter(cfg.Limits.RequestsPerMin)

	server := httpapi.NewServer(supervisor, session, registry, hub, relay,
		journal, barCache, limiter, cfg.Stream.SendBuffer, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Connect eagerly so the first request doesn't pay for it; failure is
	// fine, request paths retry lazily.
	if err := supervisor.EnsureConnected(ctx); err != nil {
		logger.Warn("startup connect failed, will retry on demand", "error", err)
	}

	go broadcaster.Run(ctx)
	go relay.Run(ctx)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: server.Handler(),
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		httpServer.Shutdown(shutdownCtx)
		session.Close()
	}()

	logger.Info("tradegate-server listening",
		"addr", addr, "provider", session.Provider())
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("http server: %v", err)
	}
}
