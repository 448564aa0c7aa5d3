// Command beat runs a scheduler process against Redis. Any number of beat
// processes may share a key prefix; the scheduler lock ensures only one of
// them dispatches at a time.
//
// Usage:
//
//	beat -config beat.yaml [-log-level info] [-log-format console]
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vnykmshr/beatflow/pkg/codec"
	"github.com/vnykmshr/beatflow/pkg/config"
	"github.com/vnykmshr/beatflow/pkg/coordinator"
	"github.com/vnykmshr/beatflow/pkg/dispatch"
	"github.com/vnykmshr/beatflow/pkg/metrics"
	"github.com/vnykmshr/beatflow/pkg/store"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML or JSON settings file")
	logLevel := flag.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	logFormat := flag.String("log-format", "console", "log format (console or json)")
	flag.Parse()

	log, err := newLogger(*logLevel, *logFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, log); err != nil {
		log.Error().Err(err).Msg("beat stopped")
		os.Exit(1)
	}
}

func newLogger(level, format string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid -log-level %q: %w", level, err)
	}

	var log zerolog.Logger
	switch format {
	case "console":
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	case "json":
		log = zerolog.New(os.Stderr)
	default:
		return zerolog.Logger{}, fmt.Errorf("invalid -log-format %q", format)
	}
	return log.Level(lvl).With().Timestamp().Str("component", "beat").Logger(), nil
}

func run(ctx context.Context, configPath string, log zerolog.Logger) error {
	settings := config.Settings{}
	if configPath != "" {
		var err error
		if settings, err = config.LoadFile(configPath); err != nil {
			return err
		}
	}
	cfg, err := config.New(settings, log)
	if err != nil {
		return err
	}
	log.Info().Stringer("config", cfg).Msg("configuration loaded")

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer func() { _ = rdb.Close() }()

	var reg *metrics.Registry
	if cfg.MetricsAddr != "" {
		promReg := prometheus.NewRegistry()
		reg = metrics.New(metrics.Config{Enabled: true, Registry: promReg, Namespace: metrics.DefaultNamespace})
		srv := serveMetrics(cfg.MetricsAddr, promReg, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	cd := codec.New(log)
	st, err := store.New(store.Options{
		Redis:  rdb,
		Config: cfg,
		Codec:  cd,
		Logger: log,
	})
	if err != nil {
		return err
	}

	queue, err := dispatch.NewQueue(dispatch.QueueOptions{
		Redis:   rdb,
		Config:  cfg,
		Codec:   cd,
		Logger:  log,
		Metrics: reg,
	})
	if err != nil {
		return err
	}

	statics, err := cfg.StaticEntries(cd)
	if err != nil {
		return err
	}

	co, err := coordinator.New(coordinator.Options{
		Redis:      rdb,
		Store:      st,
		Config:     cfg,
		Dispatcher: queue,
		Statics:    statics,
		Logger:     log,
		Metrics:    reg,
	})
	if err != nil {
		return err
	}

	log.Info().Int("statics", len(statics)).Str("lock", co.Lock().Key()).Msg("beat starting")
	return co.Run(ctx)
}

func serveMetrics(addr string, reg *prometheus.Registry, log zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info().Str("addr", addr).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
	return srv
}
