// Package app assembles the scheduling core shared by the easytrigger and
// worker binaries: connection pool, trigger registry, event bus, scheduler,
// dispatcher and the optional reconciler.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/djlord-it/easy-trigger/internal/analytics"
	"github.com/djlord-it/easy-trigger/internal/circuitbreaker"
	"github.com/djlord-it/easy-trigger/internal/config"
	"github.com/djlord-it/easy-trigger/internal/dispatcher"
	"github.com/djlord-it/easy-trigger/internal/metrics"
	"github.com/djlord-it/easy-trigger/internal/reconciler"
	"github.com/djlord-it/easy-trigger/internal/scheduler"
	"github.com/djlord-it/easy-trigger/internal/store/postgres"
	"github.com/djlord-it/easy-trigger/internal/transport/channel"
	"github.com/djlord-it/easy-trigger/internal/trigger"
)

// OpenDB opens the connection pool with the configured limits and verifies
// connectivity.
func OpenDB(cfg config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return db, nil
}

// Pipeline is the assembled scheduling core. The HTTP layer stays with the
// binary that needs it.
type Pipeline struct {
	Store      *postgres.Store
	Registry   *trigger.Registry
	Evaluator  *trigger.Evaluator
	Bus        *channel.EventBus
	Scheduler  *scheduler.Scheduler
	Dispatcher *dispatcher.Dispatcher
	Reconciler *reconciler.Reconciler // nil when RECONCILE_ENABLED is false

	name    string
	workers int
}

// Build wires the pipeline from config. A non-nil sink attaches metrics to
// every component that reports them. The name prefixes log lines so both
// binaries stay identifiable in shared log streams.
func Build(name string, cfg config.Config, db *sql.DB, sink *metrics.PrometheusSink) *Pipeline {
	p := &Pipeline{
		name:    name,
		workers: cfg.DispatcherWorkers,
	}

	p.Store = postgres.New(db, cfg.DBOpTimeout)
	p.Registry = trigger.NewRegistry()
	p.Evaluator = trigger.NewEvaluator(p.Registry)

	var busOpts []channel.Option
	if sink != nil {
		busOpts = append(busOpts, channel.WithMetrics(sink))
	}
	p.Bus = channel.NewEventBus(cfg.EventBusBufferSize, busOpts...)

	p.Scheduler = scheduler.New(
		scheduler.Config{TickInterval: cfg.TickInterval},
		p.Store,
		p.Evaluator,
		p.Bus,
	)

	p.Dispatcher = dispatcher.New(p.Store, p.buildSender(cfg)).
		WithDrainTimeout(cfg.DispatcherDrainTimeout)

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		p.Dispatcher = p.Dispatcher.WithAnalytics(analytics.NewRedisSink(client))
		log.Printf("%s: analytics enabled (redis=%s)", name, cfg.RedisAddr)
	} else {
		log.Printf("%s: REDIS_ADDR not set; analytics disabled", name)
	}

	if cfg.ReconcileEnabled {
		p.Reconciler = reconciler.New(
			reconciler.Config{
				Interval:  cfg.ReconcileInterval,
				Threshold: cfg.ReconcileThreshold,
				BatchSize: cfg.ReconcileBatchSize,
			},
			p.Store,
			p.Bus,
		)
		log.Printf("%s: reconciler enabled (interval=%s, threshold=%s, batch=%d)",
			name, cfg.ReconcileInterval, cfg.ReconcileThreshold, cfg.ReconcileBatchSize)
	} else {
		log.Printf("%s: RECONCILE_ENABLED not set; reconciler disabled", name)
	}

	if sink != nil {
		p.Scheduler = p.Scheduler.WithMetrics(sink)
		p.Dispatcher = p.Dispatcher.WithMetrics(sink)
		if p.Reconciler != nil {
			p.Reconciler = p.Reconciler.WithMetrics(sink)
		}
	}

	return p
}

func (p *Pipeline) buildSender(cfg config.Config) dispatcher.WebhookSender {
	var sender dispatcher.WebhookSender = dispatcher.NewHTTPWebhookSender()
	if cfg.CircuitBreakerThreshold > 0 {
		breaker := circuitbreaker.New(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown)
		sender = dispatcher.NewBreakerSender(sender, breaker)
		log.Printf("%s: circuit breaker enabled (threshold=%d, cooldown=%s)",
			p.name, cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown)
	}
	return sender
}

// Start launches the pipeline goroutines and returns a stop function that
// blocks until everything has shut down. Shutdown is ordered: producers
// (scheduler, reconciler) stop emitting first, then the dispatcher drains
// buffered events.
func (p *Pipeline) Start() (stop func()) {
	schedulerCtx, cancelScheduler := context.WithCancel(context.Background())
	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())

	var schedulerWg, dispatcherWg, reconcilerWg sync.WaitGroup
	var cancelReconciler context.CancelFunc

	schedulerWg.Add(1)
	go func() {
		defer schedulerWg.Done()
		p.Scheduler.Run(schedulerCtx)
	}()

	for i := 0; i < p.workers; i++ {
		dispatcherWg.Add(1)
		go func() {
			defer dispatcherWg.Done()
			p.Dispatcher.Run(dispatcherCtx, p.Bus.Channel())
		}()
	}
	log.Printf("%s: dispatcher running (workers=%d)", p.name, p.workers)

	if p.Reconciler != nil {
		var reconcilerCtx context.Context
		reconcilerCtx, cancelReconciler = context.WithCancel(context.Background())
		reconcilerWg.Add(1)
		go func() {
			defer reconcilerWg.Done()
			p.Reconciler.Run(reconcilerCtx)
		}()
	}

	return func() {
		log.Printf("%s: stopping scheduler...", p.name)
		cancelScheduler()
		schedulerWg.Wait()
		log.Printf("%s: scheduler stopped", p.name)

		if cancelReconciler != nil {
			log.Printf("%s: stopping reconciler...", p.name)
			cancelReconciler()
			reconcilerWg.Wait()
			log.Printf("%s: reconciler stopped", p.name)
		}

		log.Printf("%s: stopping dispatcher (draining events)...", p.name)
		cancelDispatcher()
		dispatcherWg.Wait()
		log.Printf("%s: dispatcher stopped", p.name)
	}
}
