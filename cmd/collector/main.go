package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/funding-collector/internal/api"
	"github.com/irfndi/funding-collector/internal/config"
	"github.com/irfndi/funding-collector/internal/logging"
	"github.com/irfndi/funding-collector/internal/services"
	"github.com/irfndi/funding-collector/internal/state"
	"github.com/irfndi/funding-collector/internal/telemetry"
	"github.com/irfndi/funding-collector/internal/utils"
	"github.com/irfndi/funding-collector/pkg/exchange"
)

const (
	serverShutdownTimeout    = 5 * time.Second
	telemetryShutdownTimeout = 10 * time.Second
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	exchange string
	once     bool
	envFile  string
}

func parseFlags(args []string) (options, error) {
	var opts options
	flags := flag.NewFlagSet("collector", flag.ContinueOnError)
	flags.StringVar(&opts.exchange, "exchange", os.Getenv("EXCHANGE"), fmt.Sprintf("exchange to collect %v", exchange.Names()))
	flags.BoolVar(&opts.once, "once", false, "run a single cycle and exit")
	flags.StringVar(&opts.envFile, "env", ".env", "dotenv file loaded before configuration")
	if err := flags.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

func run(args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", opts.envFile, err)
	}
	if opts.exchange == "" {
		opts.exchange = os.Getenv("EXCHANGE")
	}

	variant, ok := exchange.Lookup(opts.exchange)
	if !ok {
		return utils.NewConfigErrorf("EXCHANGE", "unknown exchange %q, expected one of %v", opts.exchange, exchange.Names())
	}

	cfg, err := config.Load(variant.Name, variant.Defaults())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.once {
		cfg.Scheduler.IntervalMS = 0
	}

	logger := logging.NewLogger(cfg.Logging)
	log := logging.WithExchange(logger, variant.Name)
	warnDestinations(log, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.InitTelemetry(ctx, telemetry.TelemetryConfig{
		Enabled:     cfg.Telemetry.Enabled,
		Exporter:    cfg.Telemetry.Exporter,
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		Environment: cfg.Environment,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Failed to shutdown telemetry")
		}
	}()

	backends, err := connectBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backends.Close()

	persister, err := buildPersister(cfg, variant.Name, backends, logger)
	if err != nil {
		return err
	}
	store := state.NewLastSentStore(state.PolicyFromConfig(cfg.ChangeDetection), persister, logger)
	if err := store.Load(ctx); err != nil {
		return fmt.Errorf("failed to load last-sent state: %w", err)
	}

	busClient, err := buildBusClient(cfg, backends, logger)
	if err != nil {
		return err
	}
	breaker := services.NewCircuitBreaker("bus", services.CircuitBreakerConfig{
		FailureThreshold: cfg.Bus.BreakerThreshold,
		Timeout:          cfg.Bus.BreakerTimeout(),
	}, logger)

	adapter := exchange.New(variant, exchange.SettingsFromConfig(cfg), logger)
	dispatcher := services.NewDispatcher(services.DispatcherConfigFromConfig(cfg), busClient, breaker, store, logger)
	collector := services.NewCollectorService(adapter, dispatcher, cfg.Assets.Allowed, logger)
	scheduler := services.NewScheduler(services.SchedulerConfigFromConfig(cfg.Scheduler), collector.Run, logger)

	var server *api.Server
	if cfg.Server.Addr != "" {
		router := api.NewRouter(cfg.Telemetry.ServiceName, logger)
		api.SetupRoutes(router, api.Dependencies{
			Exchange:  variant.Name,
			Version:   telemetry.ServiceVersion,
			Collector: collector,
			Scheduler: scheduler,
			State:     store,
			Checks:    backends.Checks(),
		})
		server = api.NewServer(cfg.Server.Addr, router, logger)
		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to start status server: %w", err)
		}
	}

	log.WithFields(logrus.Fields{
		"allowed":     cfg.Assets.Allowed,
		"interval_ms": cfg.Scheduler.IntervalMS,
		"dry_run":     cfg.Dispatch.DryRun,
		"bus":         fmt.Sprint(busClient),
		"state":       stateBackendName(cfg),
	}).Info("Collector starting")

	go scheduler.Run(ctx)

	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case <-scheduler.Done():
	}

	// A cycle in flight finishes on its own; further signals are ignored.
	if err := scheduler.Shutdown(context.Background()); err != nil {
		log.WithError(err).Warn("Scheduler shutdown incomplete")
	}
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Status server forced to shutdown")
		}
	}

	log.Info("Collector stopped")
	return nil
}

func warnDestinations(log *logrus.Entry, cfg *config.Config) {
	for _, asset := range cfg.Assets.Allowed {
		if _, ok := cfg.Assets.Destinations[asset]; !ok {
			log.WithFields(logrus.Fields{
				"asset": asset,
				"key":   config.DestinationKey(asset),
			}).Warn("No destination configured, asset will not be sent")
		}
	}
	for _, asset := range cfg.SuspiciousDestinations() {
		log.WithField("asset", asset).Warn("Destination id does not look like a process id")
	}
}
