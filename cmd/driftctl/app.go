package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"rpcdrift/internal/client"
	"rpcdrift/internal/config"
	"rpcdrift/internal/hookscript"
	"rpcdrift/internal/metrics"
	"rpcdrift/internal/rpcadapter"
	"rpcdrift/internal/store"
	"rpcdrift/internal/upstream"
)

// app holds everything a command needs and tears it down in Close
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	pool    *upstream.Pool
	client  *client.Client
	scripts *hookscript.Manager
	redis   *redis.Client
	metrics *http.Server
}

// loadConfig reads the config file, or builds one from --rpc when given
func loadConfig(flags *rootFlags) (*config.Config, error) {
	if flags.rpcURL == "" {
		cfg, err := config.Load(flags.configPath)
		if err != nil {
			return nil, err
		}
		if flags.namespace != "" {
			cfg.Namespace = flags.namespace
		}
		return cfg, nil
	}

	up := config.UpstreamConfig{Name: "cli"}
	switch {
	case hasScheme(flags.rpcURL, "ws://", "wss://"):
		up.WSURL = flags.rpcURL
	default:
		up.RPCURL = flags.rpcURL
	}
	return config.Finalize(&config.Config{
		LogLevel:  flags.logLevel,
		Namespace: flags.namespace,
		Upstreams: []config.UpstreamConfig{up},
	})
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	var m *metrics.Metrics
	if cfg.IsMetricsEnabled() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(reg)
		a.serveMetrics(reg)
	}

	a.pool = upstream.NewPoolFromConfig(cfg, logger)
	a.pool.Start(ctx)

	opts := client.Options{
		Namespace:       cfg.Namespace,
		MaxBatchSize:    cfg.Batch.MaxSize,
		BatchWindow:     cfg.GetBatchWindowDuration(),
		CacheSize:       cfg.Cache.Size,
		CacheTTL:        cfg.GetCacheTTLDuration(),
		DisableBatching: cfg.Batch.Disabled,
		Logger:          logger,
		Metrics:         m,
	}
	if cfg.Batch.MulticallAddress != "" {
		addr := common.HexToAddress(cfg.Batch.MulticallAddress)
		opts.MulticallAddress = &addr
	}
	if r := cfg.Cache.Redis; r != nil {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     r.Addr,
			Password: r.Password,
			DB:       r.DB,
		})
		opts.Store = store.NewRedis(a.redis, store.RedisConfig{
			Prefix: r.Prefix,
			TTL:    cfg.GetCacheTTLDuration(),
			Logger: logger,
		})
	}

	c, err := client.New(rpcadapter.New(a.pool, rpcadapter.Options{Logger: logger}), opts)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.client = c

	if cfg.IsHookScriptsEnabled() {
		a.scripts = hookscript.NewManager(logger)
		a.scripts.SetTimeout(cfg.GetHookScriptTimeoutDuration())
		if err := a.scripts.LoadFromDirectory(cfg.HookScripts.Directory); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to load hook scripts: %w", err)
		}
		ids := a.scripts.Register(c.Hooks())
		logger.Info().Int("handlers", len(ids)).Str("directory", cfg.HookScripts.Directory).Msg("hook scripts registered")
	}

	return a, nil
}

func (a *app) serveMetrics(reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	a.metrics = &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error().Err(err).Msg("metrics server failed")
		}
	}()
	a.logger.Info().Str("addr", a.cfg.Metrics.Addr).Msg("serving metrics")
}

// Close releases resources in reverse order of creation
func (a *app) Close() {
	if a.scripts != nil {
		a.scripts.Close()
	}
	if a.client != nil {
		a.client.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("failed to close redis client")
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.metrics.Shutdown(ctx)
	}
}

// setupLogger configures the zerolog logger. Output goes to stderr so that
// command results on stdout stay machine readable.
func setupLogger(level string) zerolog.Logger {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(output).With().Timestamp().Logger()
}
