package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/djlord-it/easy-trigger/internal/api"
	"github.com/djlord-it/easy-trigger/internal/app"
	"github.com/djlord-it/easy-trigger/internal/config"
	"github.com/djlord-it/easy-trigger/internal/metrics"

	_ "github.com/lib/pq"
)

// Build-time variables set via -ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitSuccess       = 0
	exitRuntimeError  = 1
	exitInvalidConfig = 2
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitRuntimeError)
	}

	cmd := os.Args[1]

	switch cmd {
	case "serve":
		os.Exit(runServe())
	case "validate":
		os.Exit(runValidate())
	case "config":
		os.Exit(runConfig())
	case "version":
		os.Exit(runVersion())
	case "--help", "-h", "help":
		printUsage()
		os.Exit(exitSuccess)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(exitRuntimeError)
	}
}

func printUsage() {
	fmt.Println(`easytrigger - pluggable trigger scheduler

Usage:
  easytrigger <command>

Commands:
  serve      Start the scheduler, dispatcher and HTTP API
  validate   Validate configuration (no connections made)
  config     Print effective configuration as JSON (secrets masked)
  version    Print version information

Environment Variables:
  DATABASE_URL              PostgreSQL connection string (required)
  REDIS_ADDR                Redis address for analytics (optional)
  HTTP_ADDR                 HTTP server address (default: ":8080")
  TICK_INTERVAL             Scheduler tick interval (default: "30s")

  DB_OP_TIMEOUT             Database operation timeout (default: "5s")
  DB_MAX_OPEN_CONNS         Max open database connections (default: "25")
  DB_MAX_IDLE_CONNS         Max idle database connections (default: "5")
  DB_CONN_MAX_LIFETIME      Max connection lifetime (default: "30m")
  DB_CONN_MAX_IDLE_TIME     Max connection idle time (default: "5m")

  HTTP_SHUTDOWN_TIMEOUT     Graceful HTTP shutdown timeout (default: "10s")
  DISPATCHER_DRAIN_TIMEOUT  Dispatcher event drain timeout (default: "30s")
  DISPATCHER_WORKERS        Concurrent delivery workers (default: "1")
  EVENTBUS_BUFFER_SIZE      Fire event buffer size (default: "100")

  CIRCUIT_BREAKER_THRESHOLD Consecutive failures before a webhook URL is
                            suspended; 0 disables the breaker (default: "5")
  CIRCUIT_BREAKER_COOLDOWN  Suspension duration per URL (default: "2m")

  METRICS_ENABLED           Enable Prometheus metrics (default: "false")
  METRICS_PATH              Metrics endpoint path (default: "/metrics")

  RECONCILE_ENABLED         Enable orphan execution reconciler (default: "false")
  RECONCILE_INTERVAL        How often to scan for orphans (default: "5m")
  RECONCILE_THRESHOLD       Age before an emitted execution counts as
                            orphaned; must exceed the dispatcher retry
                            window (default: "20m")
  RECONCILE_BATCH_SIZE      Max orphans per cycle (default: "100")`)
}

// logConfigWarnings flags configurations that run but lose data or
// visibility in ways operators tend to discover too late.
func logConfigWarnings(cfg *config.Config) {
	if !cfg.ReconcileEnabled {
		log.Println("easytrigger: WARNING [P0]: RECONCILE_ENABLED=false - fire events buffered in the channel are lost if the process crashes before delivery; enable the reconciler to re-emit them")
	}
	if !cfg.MetricsEnabled {
		log.Println("easytrigger: WARNING [P1]: METRICS_ENABLED=false - no visibility into tick latency, delivery outcomes or buffer saturation")
	}
	if cfg.CircuitBreakerThreshold == 0 {
		log.Println("easytrigger: INFO: CIRCUIT_BREAKER_THRESHOLD=0 - failing webhook endpoints will be retried at full rate")
	}
	if cfg.DispatcherWorkers == 1 {
		log.Println("easytrigger: INFO: DISPATCHER_WORKERS=1 - a single slow webhook delivery delays all queued events; raise for concurrent delivery")
	}
}

// probeSchedulesTable checks that the schedules table exists. A fresh
// database without migrations fails fast here instead of on the first tick.
func probeSchedulesTable(db *sql.DB) error {
	var one int
	return db.QueryRow(
		`SELECT 1 FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = 'schedules'`,
	).Scan(&one)
}

// metricsSink returns a registered Prometheus sink, or nil when metrics are
// disabled.
func metricsSink(cfg config.Config) *metrics.PrometheusSink {
	if !cfg.MetricsEnabled {
		log.Println("easytrigger: METRICS_ENABLED not set; metrics disabled")
		return nil
	}
	log.Printf("easytrigger: metrics enabled (path=%s)", cfg.MetricsPath)
	return metrics.NewPrometheusSink(prometheus.DefaultRegisterer)
}

// serveHTTP starts the API server in the background and returns it for
// graceful shutdown.
func serveHTTP(cfg config.Config, apiHandler http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/", apiHandler)
	if cfg.MetricsEnabled {
		mux.Handle(cfg.MetricsPath, promhttp.Handler())
	}

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	go func() {
		log.Printf("easytrigger: http server listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("easytrigger: http server error: %v", err)
		}
	}()

	return server
}

func shutdownHTTP(server *http.Server, timeout time.Duration) {
	log.Println("easytrigger: stopping http server...")
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("easytrigger: http server shutdown error: %v", err)
	}
	log.Println("easytrigger: http server stopped")
}

func runServe() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}

	logConfigWarnings(&cfg)

	db, err := app.OpenDB(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitRuntimeError
	}
	defer db.Close()

	log.Printf("easytrigger: db pool configured (max_open=%d, max_idle=%d, max_lifetime=%s, max_idle_time=%s)",
		cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)

	if err := probeSchedulesTable(db); err != nil {
		if err == sql.ErrNoRows {
			fmt.Fprintln(os.Stderr, "schedules table not found: run the migrations before starting")
		} else {
			fmt.Fprintf(os.Stderr, "failed to probe schema: %v\n", err)
		}
		return exitRuntimeError
	}

	sink := metricsSink(cfg)
	pipeline := app.Build("easytrigger", cfg, db, sink)

	apiHandler := api.NewHandler(pipeline.Store, pipeline.Evaluator).
		WithFirer(pipeline.Scheduler).
		WithHealthChecker(db)
	if sink != nil {
		apiHandler = apiHandler.WithMetrics(sink)
	}

	httpServer := serveHTTP(cfg, apiHandler)
	stop := pipeline.Start()

	log.Printf("easytrigger: started (tick=%s, http=%s, triggers=%v)",
		cfg.TickInterval, cfg.HTTPAddr, pipeline.Registry.Kinds())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig

	log.Printf("easytrigger: received signal %v, shutting down", received)

	// Producers and the dispatcher drain first; the API answers until the
	// pipeline is quiet.
	stop()
	shutdownHTTP(httpServer, cfg.HTTPShutdownTimeout)

	log.Println("easytrigger: stopped")
	return exitSuccess
}

func runValidate() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitInvalidConfig
	}

	fmt.Println("configuration valid")
	return exitSuccess
}

func runConfig() int {
	cfg := config.Load()

	data, err := cfg.MaskedJSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal config: %v\n", err)
		return exitRuntimeError
	}

	fmt.Println(string(data))
	return exitSuccess
}

func runVersion() int {
	fmt.Printf("easytrigger version %s (commit: %s)\n", version, commit)
	return exitSuccess
}
