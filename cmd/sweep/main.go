// Command sweep runs a single overdue sweep cycle and exits. Useful for
// operators recovering a backlog without waiting for the service's next
// scheduled sweep, and for cron-style deployments without a resident
// sweeper.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tesnim01/remindd/internal/config"
	"github.com/tesnim01/remindd/internal/lifecycle"
	"github.com/tesnim01/remindd/internal/notifier"
	"github.com/tesnim01/remindd/internal/store/postgres"
	"github.com/tesnim01/remindd/internal/sweeper"

	_ "github.com/lib/pq"
)

func main() {
	godotenv.Load()

	cfg := config.Load()
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		}
		os.Exit(2)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
		os.Exit(1)
	}

	store := postgres.New(db, cfg.DBOpTimeout)
	engine := notifier.New(notifier.Config{
		ScheduleURL:  cfg.ScheduleWebhookURL,
		ImmediateURL: cfg.ImmediateWebhookURL,
		Secret:       cfg.EngineSecret,
		Timeout:      cfg.EngineTimeout,
	})
	lc := lifecycle.New(store, engine, cfg.CallbackBaseURL)

	sweep := sweeper.New(sweeper.Config{
		Interval:  cfg.SweepInterval,
		BatchSize: cfg.SweepBatchSize,
	}, store, lc)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Println("sweep: running one cycle")
	sweep.RunOnce(ctx)
	log.Println("sweep: done")
}
