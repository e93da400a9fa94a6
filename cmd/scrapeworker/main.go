package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/scrapeworker/api"
	"github.com/use-agent/scrapeworker/browserpool"
	"github.com/use-agent/scrapeworker/config"
	"github.com/use-agent/scrapeworker/enginepipeline"
	"github.com/use-agent/scrapeworker/jobs"
	"github.com/use-agent/scrapeworker/proxyresolve"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("scrapeworker starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"maxConcurrentPages", cfg.Browser.MaxConcurrentPages,
	)

	// ── 3. Build the browser pool (lazy launch, no browser yet) ─────
	pool := browserpool.New(browserpool.Config{
		Headless:           cfg.Browser.Headless,
		NoSandbox:          cfg.Browser.NoSandbox,
		BrowserBin:         cfg.Browser.BrowserBin,
		MaxConcurrentPages: cfg.Browser.MaxConcurrentPages,
	})
	defer pool.Close()

	proxyEnv := proxyresolve.Env{
		Server:   cfg.Proxy.Server,
		Username: cfg.Proxy.Username,
		Password: cfg.Proxy.Password,
	}

	// ── 4. Build the engine router ───────────────────────────────────
	browserPipeline := enginepipeline.NewBrowserPipeline(pool, proxyEnv, cfg.Browser.PageLoadTimeoutMs)
	httpPipeline := enginepipeline.NewHTTPPipeline(proxyEnv)
	router := enginepipeline.NewRouter(browserPipeline, httpPipeline)

	// ── 5. Build the job manager ──────────────────────────────────────
	jm := jobs.New(router, jobs.Config{
		TTL:             time.Duration(cfg.Jobs.TTLMs) * time.Millisecond,
		CleanupInterval: time.Duration(cfg.Jobs.CleanupIntervalMs) * time.Millisecond,
	})
	defer jm.Stop()

	// ── 6. Setup HTTP server ─────────────────────────────────────────
	handler := api.NewRouter(jm, cfg)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 7. Graceful shutdown ──────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	jm.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	pool.Close()
	slog.Info("scrapeworker stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
