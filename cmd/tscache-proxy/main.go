package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/tscache/internal/server"
	"github.com/Sternrassler/tscache/pkg/batch"
	"github.com/Sternrassler/tscache/pkg/cache"
	"github.com/Sternrassler/tscache/pkg/config"
	"github.com/Sternrassler/tscache/pkg/connection"
	"github.com/Sternrassler/tscache/pkg/logging"
	"github.com/Sternrassler/tscache/pkg/metrics"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		log.Fatal().Err(err).Msg("tscache-proxy failed")
	}
}

// run starts the proxy and blocks until ctx is cancelled.
func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("tscache-proxy", flag.ContinueOnError)
	configPath := fs.String("config", getEnv("TSCACHE_CONFIG", ""), "path to the YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logging.Setup(logging.FromConfig(cfg.Logging))

	reg := metrics.NewRegistry()

	mgr, err := connection.New(
		connection.ProfileFromConfig(cfg.CentralizedCache),
		connection.WithLogger(logging.For(logging.ComponentConnection)),
		connection.WithRegisterer(reg),
	)
	if err != nil {
		return fmt.Errorf("configure redis: %w", err)
	}
	defer mgr.Close()

	holder := config.NewHolder(*configPath, cfg)
	store := cache.NewStore(mgr, holder,
		cache.WithLogger(logging.For(logging.ComponentStore)),
		cache.WithRecorder(cache.NewPrometheusRecorder(reg)),
		cache.WithKeyPrefix(cfg.CentralizedCache.KeyPrefix),
	)
	runner := batch.NewRunner(store, batch.Config{MaxConcurrency: cfg.CentralizedCache.MaxParallelism})

	// The cache is not a system of record: start even if Redis is down.
	if err := mgr.Probe(ctx); err != nil {
		log.Warn().Err(err).Msg("Redis not reachable at startup, writes disabled until it recovers")
	}

	probeCtx, cancelProbe := context.WithCancel(ctx)
	defer cancelProbe()
	go mgr.Run(probeCtx)

	srv := server.New(store, runner, mgr, reg).HTTPServer(cfg.Server)
	ln, err := net.Listen("tcp", cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Server.ListenAddr, err)
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Msg("Starting tscache proxy")
		serveErr <- srv.Serve(ln)
	}()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case err := <-serveErr:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("serve: %w", err)

		case <-hup:
			reload(holder)

		case <-ctx.Done():
			log.Info().Msg("Shutting down tscache proxy")
			if err := server.Shutdown(srv, cfg.Server.ShutdownTimeout); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			log.Info().Msg("Server stopped gracefully")
			return nil
		}
	}
}

// reload applies the settings that can change at runtime: the series TTL
// (read by the store on every write) and the log level. Connection settings
// need a restart.
func reload(holder *config.Holder) {
	cfg, err := holder.Reload()
	if err != nil {
		log.Error().Err(err).Msg("Config reload failed, keeping previous configuration")
		return
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		log.Warn().Err(err).Msg("Keeping previous log level")
		level = zerolog.GlobalLevel()
	}
	zerolog.SetGlobalLevel(level)
	log.Info().
		Dur("ttl", cfg.SeriesTTL()).
		Str("log_level", level.String()).
		Msg("Configuration reloaded")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
