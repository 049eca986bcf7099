// Command gateway runs the OpenAlgo broker gateway: it loads the symbol
// cache, authenticates every configured broker, and keeps their market-data
// streams publishing into the shared hub until shutdown.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sourcegraph/conc"

	"github.com/openalgo/gateway/config"
	"github.com/openalgo/gateway/internal/adapters"
	"github.com/openalgo/gateway/internal/broker"
	"github.com/openalgo/gateway/internal/stream"
	"github.com/openalgo/gateway/internal/symbols"
	"github.com/openalgo/gateway/internal/telemetry"
	libtelemetry "github.com/openalgo/gateway/lib/telemetry"
)

const (
	defaultConfigPath        = "config/gateway.yaml"
	telemetryShutdownTimeout = 5 * time.Second
)

func main() {
	cfgPath := flag.String("config", defaultConfigPath, "Path to the gateway configuration file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.New(os.Stdout, "gateway ", log.LstdFlags|log.Lmicroseconds)

	cfg, loadedFromFile, err := config.LoadFile(*cfgPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if !loadedFromFile {
		cfg = config.FromEnv()
		logger.Printf("configuration file not found, using environment overrides")
	}
	logger.Printf("configuration initialised: env=%s brokers=%d", cfg.Environment, len(cfg.Brokers))

	shutdownTelemetry, err := libtelemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		logger.Fatalf("initialize telemetry: %v", err)
	}
	instruments := telemetry.NewInstruments()

	store, closeStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("initialise symbol store: %v", err)
	}

	hub := stream.NewHub()
	hub.OnDrop(func(subject string) {
		instruments.EventDropped(context.Background(), subject)
	})

	registry := broker.NewRegistry()
	adapters.RegisterAll(registry, instruments, logger)

	refresher := symbols.NewRefresher(store, adapters.ContractSources(cfg), refreshInterval(cfg), logger)
	refresher.OnReload(func(name string, rows int) {
		instruments.SymbolReload(context.Background(), name)
	})

	var lifecycle conc.WaitGroup
	lifecycle.Go(func() { refresher.Run(ctx) })

	deps := broker.Deps{Symbols: store, Hub: hub}
	started := 0
	for name, settings := range cfg.Brokers {
		if settings.Credentials.APIKey == "" {
			continue
		}
		adapter, err := registry.Create(ctx, name, settings, deps)
		if err != nil {
			logger.Printf("skipping broker %s: %v", name, err)
			continue
		}
		if _, err := adapter.Authenticate(ctx); err != nil {
			logger.Printf("broker %s login failed: %v", name, err)
			continue
		}
		logger.Printf("broker %s authenticated", name)
		if streamer, ok := adapter.(broker.Streamer); ok {
			lifecycle.Go(func() {
				if err := streamer.Run(ctx); err != nil && ctx.Err() == nil {
					logger.Printf("broker %s stream terminated: %v", adapter.Name(), err)
				}
			})
		}
		started++
	}
	if started == 0 {
		logger.Printf("no brokers configured with credentials; serving symbol cache only")
	}

	logger.Print("gateway started; awaiting shutdown signal")
	<-ctx.Done()
	logger.Print("shutdown signal received, initiating graceful shutdown")

	cancel()
	lifecycle.Wait()
	hub.Close()
	closeStore()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
	defer shutdownCancel()
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logger.Printf("telemetry shutdown: %v", err)
	}
	logger.Print("shutdown complete")
}

// buildStore selects the Postgres-backed symbol store when a DSN is
// configured and falls back to the in-memory cache otherwise.
func buildStore(ctx context.Context, cfg config.Settings, logger *log.Logger) (symbols.Store, func(), error) {
	if cfg.PostgresDSN == "" {
		logger.Print("no postgres dsn configured, using in-memory symbol store")
		return symbols.NewMemoryStore(), func() {}, nil
	}
	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	logger.Print("postgres symbol store connected")
	return symbols.NewPostgresStore(pool), pool.Close, nil
}

func refreshInterval(cfg config.Settings) time.Duration {
	for _, settings := range cfg.Brokers {
		if settings.SymbolRefreshInterval > 0 {
			return settings.SymbolRefreshInterval
		}
	}
	return 24 * time.Hour
}
