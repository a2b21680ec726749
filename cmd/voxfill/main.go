// Command voxfill is the main entry point for the voxfill form-filling server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/voxfill/internal/api"
	"github.com/MrWong99/voxfill/internal/config"
	"github.com/MrWong99/voxfill/internal/correct"
	"github.com/MrWong99/voxfill/internal/extract"
	"github.com/MrWong99/voxfill/internal/health"
	"github.com/MrWong99/voxfill/internal/observe"
	"github.com/MrWong99/voxfill/internal/pipeline"
	"github.com/MrWong99/voxfill/internal/session"
	"github.com/MrWong99/voxfill/internal/session/postgres"
)

const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	listenAddr := flag.String("listen", "", "override server.listen_addr from the config")
	requestPath := flag.String("request", "", "one-shot mode: read a turn request JSON from this file (\"-\" for stdin), print the response, and exit")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxfill: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxfill: %v\n", err)
		}
		return 1
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voxfill starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"llm_provider", cfg.LLM.Provider,
		"session_backend", cfg.Sessions.Backend,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "voxfill",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── LLM provider ──────────────────────────────────────────────────────────
	provider, err := config.BuildProvider(cfg.LLM)
	if err != nil {
		slog.Error("failed to build LLM provider", "err", err)
		return 1
	}
	slog.Info("provider created", "kind", "llm", "name", cfg.LLM.Provider, "model", cfg.LLM.Model)

	// ── Session store ─────────────────────────────────────────────────────────
	store, checkers, closeStore, err := buildStore(ctx, cfg.Sessions)
	if err != nil {
		slog.Error("failed to initialise session store", "err", err)
		return 1
	}
	defer closeStore()

	// ── Pipeline ──────────────────────────────────────────────────────────────
	var pipeOpts []pipeline.Option
	if cfg.Pipeline.CapabilityTimeout > 0 {
		pipeOpts = append(pipeOpts, pipeline.WithCapabilityTimeout(cfg.Pipeline.CapabilityTimeout))
	}
	if cfg.Pipeline.MaxConcurrentTurns > 0 {
		pipeOpts = append(pipeOpts, pipeline.WithMaxConcurrentTurns(cfg.Pipeline.MaxConcurrentTurns))
	}
	pipe := pipeline.New(store, extract.New(provider), correct.New(provider), pipeOpts...)

	// ── One-shot mode ─────────────────────────────────────────────────────────
	if *requestPath != "" {
		if err := runOneShot(ctx, pipe, *requestPath); err != nil {
			slog.Error("one-shot request failed", "err", err)
			return 1
		}
		return 0
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	api.New(pipe).Register(mux)
	health.New(checkers...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(observe.DefaultMetrics())(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server ready — press Ctrl+C to shut down", "addr", cfg.Server.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		slog.Error("server error", "err", err)
		return 1
	case <-ctx.Done():
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// runOneShot processes a single turn request read from path (or stdin when
// path is "-") and writes the response envelope to stdout.
func runOneShot(ctx context.Context, pipe *pipeline.Pipeline, path string) error {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open request file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var req pipeline.Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	if req.Transcript == "" {
		return errors.New("transcript must not be empty")
	}

	resp := pipe.Turn(ctx, req)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// buildStore creates the configured session store plus its readiness checkers
// and a close function for the shutdown path.
func buildStore(ctx context.Context, cfg config.SessionsConfig) (session.Store, []health.Checker, func(), error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		var opts []postgres.Option
		if cfg.TTL > 0 {
			opts = append(opts, postgres.WithTTL(cfg.TTL))
		}
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN, opts...)
		if err != nil {
			return nil, nil, nil, err
		}
		go sweepLoop(ctx, store, sweepInterval(cfg))
		checkers := []health.Checker{health.PingChecker("sessions", store)}
		return store, checkers, store.Close, nil

	default:
		var opts []session.MemOption
		if cfg.TTL > 0 {
			opts = append(opts, session.WithTTL(cfg.TTL))
		}
		store := session.NewMemStore(opts...)
		go store.StartSweeper(ctx, sweepInterval(cfg))
		return store, nil, func() {}, nil
	}
}

// sweepLoop periodically evicts expired postgres sessions until ctx is done.
func sweepLoop(ctx context.Context, store *postgres.Store, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.Sweep(ctx)
			if err != nil {
				slog.Warn("session sweep failed", "err", err)
			} else if n > 0 {
				slog.Debug("swept expired sessions", "count", n)
			}
		}
	}
}

// sweepInterval derives the eviction cadence: the configured value, else a
// quarter of the TTL, else a fixed default.
func sweepInterval(cfg config.SessionsConfig) time.Duration {
	if cfg.SweepInterval > 0 {
		return cfg.SweepInterval
	}
	if cfg.TTL > 0 {
		return cfg.TTL / 4
	}
	return 5 * time.Minute
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
