package app

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"

	"github.com/djlord-it/easy-trigger/internal/config"
)

func testConfig() config.Config {
	// A long tick keeps the scheduler from touching the database before
	// the test cancels it.
	return config.Config{
		DatabaseURL:             "postgres://localhost:1/easytrigger",
		TickInterval:            time.Hour,
		DBOpTimeout:             time.Second,
		EventBusBufferSize:      8,
		DispatcherWorkers:       2,
		DispatcherDrainTimeout:  time.Second,
		CircuitBreakerThreshold: 5,
		CircuitBreakerCooldown:  time.Minute,
		ReconcileInterval:       time.Hour,
		ReconcileThreshold:      time.Hour,
		ReconcileBatchSize:      10,
	}
}

// dbHandle opens a pool handle without connecting; sql.Open is lazy.
func dbHandle(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("postgres", testConfig().DatabaseURL)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBuild_CoreComponents(t *testing.T) {
	p := Build("test", testConfig(), dbHandle(t), nil)

	if p.Store == nil || p.Registry == nil || p.Evaluator == nil {
		t.Fatal("storage components not wired")
	}
	if p.Bus == nil || p.Scheduler == nil || p.Dispatcher == nil {
		t.Fatal("pipeline components not wired")
	}
	if p.Reconciler != nil {
		t.Fatal("reconciler should be nil when disabled")
	}
	if kinds := p.Registry.Kinds(); len(kinds) == 0 {
		t.Fatal("registry has no trigger kinds")
	}
}

func TestBuild_ReconcilerWhenEnabled(t *testing.T) {
	cfg := testConfig()
	cfg.ReconcileEnabled = true

	p := Build("test", cfg, dbHandle(t), nil)
	if p.Reconciler == nil {
		t.Fatal("reconciler not wired despite being enabled")
	}
}

func TestStartStop_ReturnsPromptly(t *testing.T) {
	cfg := testConfig()
	cfg.ReconcileEnabled = true

	p := Build("test", cfg, dbHandle(t), nil)
	stop := p.Start()

	done := make(chan struct{})
	go func() {
		stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stop did not complete")
	}
}
