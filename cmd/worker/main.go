// Command worker runs the scheduling loop and dispatcher without the HTTP
// API. Useful when the API is served elsewhere and this process only needs
// to evaluate triggers and deliver webhooks.
package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/djlord-it/easy-trigger/internal/app"
	"github.com/djlord-it/easy-trigger/internal/config"

	_ "github.com/lib/pq"
)

func main() {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		log.Fatalf("worker: configuration error: %v", err)
	}

	db, err := app.OpenDB(cfg)
	if err != nil {
		log.Fatalf("worker: %v", err)
	}
	defer db.Close()

	pipeline := app.Build("worker", cfg, db, nil)
	stop := pipeline.Start()

	log.Printf("worker: started (tick=%s, workers=%d)", cfg.TickInterval, cfg.DispatcherWorkers)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig

	log.Printf("worker: received signal %v, shutting down", received)
	stop()
	log.Println("worker: stopped")
}
