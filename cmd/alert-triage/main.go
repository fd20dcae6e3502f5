package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/miradorstack/alert-triage/internal/api"
	"github.com/miradorstack/alert-triage/internal/cache"
	"github.com/miradorstack/alert-triage/internal/config"
	"github.com/miradorstack/alert-triage/internal/engine"
	"github.com/miradorstack/alert-triage/internal/ingest"
	"github.com/miradorstack/alert-triage/internal/metrics"
	"github.com/miradorstack/alert-triage/internal/report"
	"github.com/miradorstack/alert-triage/internal/scoring"
	"github.com/miradorstack/alert-triage/internal/services"
	"github.com/miradorstack/alert-triage/internal/utils"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

type options struct {
	configPath  string
	envFile     string
	outputPath  string
	metricsFile string
	chunkSize   int
	workers     int
	serve       bool
	dataPath    string
	scoringPath string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(stderr, "load env file %s: %v\n", opts.envFile, err)
		return exitError
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", opts.configPath), slog.Any("error", err))
		return exitError
	}
	applyFlagOverrides(cfg, opts)

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON, stderr)
	if opts.serve {
		return serve(cfg, logger)
	}
	return batch(cfg, opts, logger, stdout)
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fsFlags := flag.NewFlagSet("alert-triage", flag.ContinueOnError)
	fsFlags.SetOutput(stderr)
	fsFlags.Usage = func() {
		fmt.Fprintln(stderr, "usage: alert-triage [flags] <data.csv> <config.json>")
		fmt.Fprintln(stderr, "       alert-triage -serve [flags]")
		fsFlags.PrintDefaults()
	}
	fsFlags.StringVar(&opts.configPath, "config", "", "Path to service configuration file")
	fsFlags.StringVar(&opts.envFile, "env-file", ".env", "Optional dotenv file loaded before configuration")
	fsFlags.StringVar(&opts.outputPath, "output", "", "Output CSV path (default alerts_with_priority.csv)")
	fsFlags.StringVar(&opts.metricsFile, "metrics-file", "", "Write run metrics in Prometheus text format to this file")
	fsFlags.IntVar(&opts.chunkSize, "chunk-size", 0, "Alerts per worker task")
	fsFlags.IntVar(&opts.workers, "workers", 0, "Number of scoring workers")
	fsFlags.BoolVar(&opts.serve, "serve", false, "Serve the gRPC scoring API instead of scoring a file")
	if err := fsFlags.Parse(args); err != nil {
		return options{}, err
	}

	if opts.serve {
		if fsFlags.NArg() != 0 {
			return options{}, errors.New("-serve takes no positional arguments")
		}
		return opts, nil
	}
	if fsFlags.NArg() != 2 {
		fsFlags.Usage()
		return options{}, fmt.Errorf("expected <data.csv> <config.json>, got %d arguments", fsFlags.NArg())
	}
	opts.dataPath = fsFlags.Arg(0)
	opts.scoringPath = fsFlags.Arg(1)
	return opts, nil
}

func applyFlagOverrides(cfg *config.Config, opts options) {
	if opts.outputPath != "" {
		cfg.Processing.OutputPath = opts.outputPath
	}
	if opts.metricsFile != "" {
		cfg.Processing.MetricsFile = opts.metricsFile
	}
	if opts.chunkSize > 0 {
		cfg.Processing.ChunkSize = opts.chunkSize
	}
	if opts.workers > 0 {
		cfg.Processing.Workers = opts.workers
	}
}

func batch(cfg *config.Config, opts options, logger *slog.Logger, stdout io.Writer) int {
	registry := prometheus.NewRegistry()
	if err := metrics.Register(registry); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		return exitError
	}

	scoringCfg, err := scoring.LoadConfig(opts.scoringPath)
	if err != nil {
		logger.Error("invalid scoring config", slog.String("path", opts.scoringPath), slog.Any("error", err))
		return exitError
	}
	raws, err := ingest.ReadFile(opts.dataPath)
	if err != nil {
		logger.Error("failed to read alerts", slog.String("op", utils.OpOf(err)), slog.String("path", opts.dataPath), slog.Any("error", err))
		return exitError
	}

	coordinator := engine.NewCoordinator(logger, engine.Options{
		ChunkSize: cfg.Processing.ChunkSize,
		Workers:   cfg.Processing.Workers,
	})
	result, err := coordinator.Run(context.Background(), scoringCfg, raws)
	if err != nil {
		logger.Error("scoring failed", slog.Any("error", err))
		return exitError
	}

	if err := report.WriteFile(cfg.Processing.OutputPath, result.Scored); err != nil {
		logger.Error("failed to write results", slog.String("op", utils.OpOf(err)), slog.Any("error", err))
		return exitError
	}
	logger.Info("results written", slog.String("run_id", result.RunID), slog.String("path", cfg.Processing.OutputPath), slog.Int("alerts", len(result.Scored)))

	if err := report.WriteSummary(stdout, result.Summary); err != nil {
		logger.Error("failed to print summary", slog.Any("error", err))
		return exitError
	}

	if cfg.Processing.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(cfg.Processing.MetricsFile, registry); err != nil {
			logger.Warn("failed to write metrics file", slog.String("path", cfg.Processing.MetricsFile), slog.Any("error", err))
		}
	}
	return exitOK
}

func serve(cfg *config.Config, logger *slog.Logger) int {
	logger.Info("starting alert-triage", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		return exitError
	}

	cacheProvider := newCacheProvider(cfg.Cache, logger)
	defer cacheProvider.Close()

	coordinator := engine.NewCoordinator(logger, engine.Options{
		ChunkSize: cfg.Processing.ChunkSize,
		Workers:   cfg.Processing.Workers,
	})
	scoringService := services.NewScoringService(logger, coordinator, cacheProvider, cfg.Cache.ResultTTL)

	server, err := api.NewServer(cfg.Server, scoringService)
	if err != nil {
		logger.Error("failed to create gRPC server", slog.Any("error", err))
		return exitError
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("gRPC server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.GracefulTimeout())
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	logger.Info("alert-triage stopped", slog.Duration("p95", scoringService.LatencyP95()))
	return exitOK
}

// newCacheProvider picks Valkey when configured, falling back to an in-process
// cache if the server is unreachable.
func newCacheProvider(cfg config.CacheConfig, logger *slog.Logger) cache.Provider {
	if !cfg.Enabled {
		return cache.NoopProvider{}
	}
	provider, err := cache.NewValkeyProvider(cache.ValkeyConfig{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   cfg.MaxRetries,
		TLS:          cfg.TLS,
	})
	if err != nil {
		logger.Warn("valkey cache unavailable, using in-memory cache", slog.Any("error", err))
		return cache.NewMemoryProvider()
	}
	return provider
}
