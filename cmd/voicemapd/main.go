package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/speechviz/voicemap/internal/api"
	"github.com/speechviz/voicemap/internal/config"
	vlog "github.com/speechviz/voicemap/internal/log"
	"github.com/speechviz/voicemap/internal/projection"
	"github.com/speechviz/voicemap/internal/store"
	"github.com/speechviz/voicemap/internal/watch"
)

var (
	version   = "v0.3.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Configure logger with safe defaults until config is loaded
	vlog.Configure(vlog.Config{
		Level:   "info",
		Service: "voicemap",
		Version: version,
	})
	logger := vlog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Determine config path: explicit via --config, otherwise auto-load
	// ${VOICEMAP_DATA}/config.yaml if it exists.
	effectiveConfigPath := strings.TrimSpace(*configPath)
	if effectiveConfigPath == "" {
		dataDir := strings.TrimSpace(config.ParseString("VOICEMAP_DATA", "/data"))
		autoPath := filepath.Join(dataDir, "config.yaml")
		if _, err := os.Stat(autoPath); err == nil {
			effectiveConfigPath = autoPath
		}
	}

	loader := config.NewLoader(effectiveConfigPath, version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", effectiveConfigPath).
			Msg("failed to load configuration")
	}

	// Re-configure logger with loaded configuration
	vlog.Configure(vlog.Config{
		Level:   cfg.LogLevel,
		Service: cfg.LogService,
		Version: version,
	})

	if effectiveConfigPath != "" {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "file").
			Str("path", effectiveConfigPath).
			Msg("loaded configuration from file")
	} else {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "env+defaults").
			Msg("loaded configuration from environment and defaults")
	}

	logger.Info().
		Str("event", "startup").
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str("addr", cfg.ListenAddr).
		Msg("starting voicemap")

	logger.Info().Msgf("→ Ratings: %s", cfg.RatingsPath)
	logger.Info().Msgf("→ Audio dir: %s", cfg.AudioDir)
	logger.Info().Msgf("→ Data dir: %s", cfg.DataDir)
	logger.Info().Msgf("→ Dimensions: %d", cfg.Dimensions)
	if cfg.APIToken != "" {
		logger.Info().Msg("→ API token: configured")
	} else {
		logger.Warn().
			Str("security", "weak").
			Msg("→ API token: NOT configured. Set VOICEMAP_API_TOKEN to protect /api/refresh.")
	}

	// Run history store
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = filepath.Join(cfg.DataDir, "runs.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		logger.Fatal().Err(err).Str("event", "store.dir_failed").Msg("failed to create store directory")
	}
	runs, err := store.Open(dbPath, store.DefaultConfig())
	if err != nil {
		logger.Fatal().Err(err).Str("event", "store.open_failed").Str("path", dbPath).Msg("failed to open run store")
	}
	defer func() {
		if err := runs.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close run store")
		}
	}()

	refreshCfg := projection.Config{
		DataDir:     cfg.DataDir,
		RatingsPath: cfg.RatingsPath,
		Dimensions:  cfg.Dimensions,
		MaxIter:     cfg.MDSMaxIter,
		Eps:         cfg.MDSEps,
	}

	s := api.New(cfg, runs)

	// Initial refresh before serving so the viewer has data immediately.
	// Disable with VOICEMAP_INITIAL_REFRESH=false.
	if cfg.InitialRefresh && cfg.RatingsPath != "" {
		logger.Info().Msg("performing initial projection refresh on startup")
		doc, status, err := projection.Refresh(ctx, refreshCfg, runs)
		if err != nil {
			logger.Error().Err(err).Msg("initial refresh failed")
			logger.Warn().Msg("→ Projections will be empty until manual refresh via POST /api/refresh")
		} else {
			s.ApplyStatus(doc, status)
			if _, err := runs.Prune(ctx, cfg.RunRetention); err != nil {
				logger.Warn().Err(err).Msg("failed to prune run history")
			}
			logger.Info().Msg("initial refresh completed successfully")
		}
	} else if cfg.RatingsPath == "" {
		logger.Warn().Msg("no ratings file configured (VOICEMAP_RATINGS); serving without data")
	}

	// Dataset watcher: recompute when the CSV changes.
	if cfg.WatchRatings && cfg.RatingsPath != "" {
		w, err := watch.New(cfg.RatingsPath, func(wctx context.Context) {
			doc, status, err := projection.Refresh(wctx, refreshCfg, runs)
			if err != nil {
				logger.Error().Err(err).Str("event", "watch.refresh_failed").Msg("watcher-triggered refresh failed")
				return
			}
			s.ApplyStatus(doc, status)
			if _, err := runs.Prune(wctx, cfg.RunRetention); err != nil {
				logger.Warn().Err(err).Msg("failed to prune run history")
			}
		})
		if err != nil {
			logger.Fatal().Err(err).Str("event", "watch.create_failed").Msg("failed to create ratings watcher")
		}
		w.Start(ctx)
	}

	apiSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var metricsSrv *http.Server
	if cfg.MetricsEnabled && cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics listener started")
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics listener failed")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("API listener started")
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info().Str("event", "shutdown.signal").Msg("shutdown signal received")
	case err := <-errCh:
		logger.Error().Err(err).Str("event", "server.failed").Msg("API server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("API server shutdown failed")
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown failed")
		}
	}

	logger.Info().Msg("server exiting")
}
