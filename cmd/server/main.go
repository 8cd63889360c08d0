/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the custody engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags, load configuration
  2. Set up logging and metrics
  3. Initialize SQLite store, vacation source and NATS publisher
  4. Create tracker, refresh scheduler and API handler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  YAML configuration file (default: config.yaml, optional)
  -port    HTTP server port (overrides config)
  -db      SQLite database path (overrides config)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the refresh scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Flush NATS, close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/custody.db"

  # Run with in-memory database on another port
  ./server -db=":memory:" -port=3000

ENVIRONMENT:
  CUSTODY_* variables override the YAML file; see internal/config.

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Refresh scheduler
  - internal/config: Configuration
*/
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
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/warp/custody-engine/api"
	"github.com/warp/custody-engine/internal/config"
	"github.com/warp/custody-engine/internal/logger"
	"github.com/warp/custody-engine/internal/metrics"
	"github.com/warp/custody-engine/notify"
	"github.com/warp/custody-engine/schedule"
	"github.com/warp/custody-engine/store/sqlite"
	"github.com/warp/custody-engine/vacation"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "custody-engine: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Flags
	configPath := flag.String("config", "config.yaml", "YAML configuration file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}

	log := logger.Setup(cfg.Log)
	loc := cfg.Location()

	// Metrics
	var (
		recorder       metrics.Recorder = metrics.NewNop()
		metricsHandler http.Handler
	)
	if cfg.Metrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		recorder = metrics.NewPrometheus(reg, "custody")
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	// Store
	store, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	// Vacation source: an iCalendar feed wins over the dataset API
	var source vacation.Source
	if cfg.Vacation.ICSURL != "" {
		source = vacation.NewICSSource(cfg.Vacation.ICSURL, loc, recorder)
	} else {
		source = vacation.NewAPIClient(cfg.Vacation.APIURL, cfg.Vacation.CacheDir, loc, recorder)
	}
	vacations := vacation.NewCache(source, cfg.Vacation.CacheTTL, recorder)

	// Notifications
	var publisher notify.Publisher = notify.Noop{}
	if cfg.NATS.URL != "" {
		nc, err := notify.DialNATS(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
		if err != nil {
			return err
		}
		publisher = nc
		log.Info("publishing custody events", "nats", cfg.NATS.URL, "prefix", cfg.NATS.SubjectPrefix)
	}
	defer publisher.Close()

	tracker := schedule.NewTracker(store, schedule.Options{
		Vacations: vacations,
		Publisher: publisher,
		Metrics:   recorder,
		Horizon:   time.Duration(cfg.Refresh.HorizonDays) * 24 * time.Hour,
		Location:  loc,
	})

	scheduler, err := api.NewRefreshScheduler(tracker, cfg.Refresh.Cron, loc)
	if err != nil {
		return err
	}

	handler := api.NewHandler(tracker, vacations, store, loc)
	handler.Scheduler = scheduler

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(handler, api.RouterOptions{CORSOrigins: cfg.Server.CORSOrigins, Metrics: metricsHandler}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	scheduler.Start()

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Info("server starting", "addr", server.Addr, "timezone", loc.String(), "database", cfg.DatabasePath)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		scheduler.Stop()
		return fmt.Errorf("server failed: %w", err)
	}

	log.Info("shutting down")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}
