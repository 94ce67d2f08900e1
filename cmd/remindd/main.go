package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/tesnim01/remindd/internal/analytics"
	"github.com/tesnim01/remindd/internal/api"
	"github.com/tesnim01/remindd/internal/circuitbreaker"
	"github.com/tesnim01/remindd/internal/config"
	"github.com/tesnim01/remindd/internal/cron"
	"github.com/tesnim01/remindd/internal/leaderelection"
	"github.com/tesnim01/remindd/internal/lifecycle"
	"github.com/tesnim01/remindd/internal/metrics"
	"github.com/tesnim01/remindd/internal/notifier"
	"github.com/tesnim01/remindd/internal/store/postgres"
	"github.com/tesnim01/remindd/internal/sweeper"
	"github.com/tesnim01/remindd/internal/transport/channel"

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
	// Local development convenience; absence of a .env file is fine.
	if err := godotenv.Load(); err == nil {
		log.Println("remindd: loaded environment from .env")
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitRuntimeError)
	}

	switch os.Args[1] {
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
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(exitRuntimeError)
	}
}

func printUsage() {
	fmt.Println(`remindd - time-triggered reminder service

Usage:
  remindd <command>

Commands:
  serve      Start the API server and overdue sweeper
  validate   Validate configuration (no connections made)
  config     Print effective configuration as JSON (secrets masked)
  version    Print version information

Environment Variables:
  DATABASE_URL              PostgreSQL connection string (required)
  HTTP_ADDR                 HTTP server address (default: ":8080"; PORT is a fallback)
  CALLBACK_BASE_URL         Externally reachable base URL for trigger callbacks
                            (default: "http://localhost:8080")

  ENGINE_WEBHOOK_BASE       Delivery engine webhook base (default: "http://n8n:5678/webhook")
  SCHEDULE_WEBHOOK_URL      Override for the schedule-ahead endpoint
  IMMEDIATE_WEBHOOK_URL     Override for the send-now endpoint
  ENGINE_TIMEOUT            Delivery engine request timeout (default: "30s")
  ENGINE_SECRET             HMAC secret for signing engine requests (optional)

  SWEEP_INTERVAL            Overdue sweep interval (default: "5m")
  SWEEP_CRON                Cron expression driving sweeps instead of the interval
  SWEEP_BATCH_SIZE          Max due reminders per sweep cycle (default: "100")

  DB_OP_TIMEOUT             Database operation timeout (default: "5s")
  DB_MAX_OPEN_CONNS         Max open database connections (default: "25")
  DB_MAX_IDLE_CONNS         Max idle database connections (default: "5")
  DB_CONN_MAX_LIFETIME      Max connection lifetime (default: "30m")
  DB_CONN_MAX_IDLE_TIME     Max connection idle time (default: "5m")

  HTTP_SHUTDOWN_TIMEOUT     Graceful HTTP shutdown timeout (default: "10s")

  METRICS_ENABLED           Enable Prometheus metrics (default: "false")
  METRICS_PATH              Metrics endpoint path (default: "/metrics")
  METRICS_PORT              Metrics server port (default: "9090")

  REDIS_ADDR                Redis address for delivery analytics (optional)
  ANALYTICS_RETENTION       Redis counter retention (default: "168h")
  EVENTBUS_BUFFER_SIZE      Delivery event buffer size (default: "100")

  CIRCUIT_BREAKER_THRESHOLD Consecutive failures before opening (default: "0" = disabled)
  CIRCUIT_BREAKER_COOLDOWN  Open-circuit cooldown (default: "2m")

  LEADER_ELECTION_ENABLED   Gate the sweeper behind advisory-lock election (default: "false")
  LEADER_LOCK_KEY           Advisory lock key shared by all instances (default: "520431")
  LEADER_RETRY_INTERVAL     Follower lock retry interval (default: "5s")
  LEADER_HEARTBEAT_INTERVAL Leader connection ping interval (default: "2s")`)
}

func runServe() int {
	cfg := config.Load()

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		}
		return exitInvalidConfig
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		return exitRuntimeError
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	log.Printf("remindd: db pool configured (max_open=%d, max_idle=%d, max_lifetime=%s, max_idle_time=%s)",
		cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
		return exitRuntimeError
	}

	store := postgres.New(db, cfg.DBOpTimeout)

	// Metrics sink and server (optional)
	var metricsSink *metrics.PrometheusSink
	var metricsServer *http.Server

	if cfg.MetricsEnabled {
		metricsSink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer)
		log.Printf("remindd: metrics enabled (port=%s, path=%s)", cfg.MetricsPort, cfg.MetricsPath)

		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.MetricsPath, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:    ":" + cfg.MetricsPort,
			Handler: metricsMux,
		}
		go func() {
			log.Printf("remindd: metrics server listening on :%s", cfg.MetricsPort)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("remindd: metrics server error: %v", err)
			}
		}()
	} else {
		log.Println("remindd: METRICS_ENABLED not set; metrics disabled")
	}

	// Delivery engine client with optional circuit breaker.
	engine := notifier.New(notifier.Config{
		ScheduleURL:  cfg.ScheduleWebhookURL,
		ImmediateURL: cfg.ImmediateWebhookURL,
		Secret:       cfg.EngineSecret,
		Timeout:      cfg.EngineTimeout,
	})
	if cfg.CircuitBreakerThreshold > 0 {
		engine = engine.WithBreaker(circuitbreaker.New(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown))
		log.Printf("remindd: circuit breaker enabled (threshold=%d, cooldown=%s)",
			cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown)
	}

	lc := lifecycle.New(store, engine, cfg.CallbackBaseURL)
	if metricsSink != nil {
		lc = lc.WithMetrics(metricsSink)
	}

	// Delivery analytics over the event bus, when Redis is configured.
	var recorderWg sync.WaitGroup
	var cancelRecorder context.CancelFunc

	if cfg.RedisAddr != "" {
		var busOpts []channel.Option
		if metricsSink != nil {
			busOpts = append(busOpts, channel.WithMetrics(metricsSink))
		}
		bus := channel.NewEventBus(cfg.EventBusBufferSize, busOpts...)
		lc = lc.WithEvents(bus)

		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		recorder := analytics.NewRecorder(redisClient, cfg.AnalyticsRetention)

		var recorderCtx context.Context
		recorderCtx, cancelRecorder = context.WithCancel(context.Background())
		defer cancelRecorder()
		recorderWg.Add(1)
		go func() {
			defer recorderWg.Done()
			recorder.Run(recorderCtx, bus.Channel())
		}()
		log.Printf("remindd: analytics enabled (redis=%s, buffer=%d)", cfg.RedisAddr, cfg.EventBusBufferSize)
	} else {
		log.Println("remindd: REDIS_ADDR not set; analytics disabled")
	}

	// Sweeper configuration: cron expression wins over the fixed interval.
	sweepCfg := sweeper.Config{
		Interval:  cfg.SweepInterval,
		BatchSize: cfg.SweepBatchSize,
	}
	if cfg.SweepCron != "" {
		sched, err := cron.NewParser().Parse(cfg.SweepCron)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid SWEEP_CRON: %v\n", err)
			return exitInvalidConfig
		}
		sweepCfg.Schedule = sched
		log.Printf("remindd: sweep driven by cron expression %q", cfg.SweepCron)
	}

	sweep := sweeper.New(sweepCfg, store, lc)
	if metricsSink != nil {
		sweep = sweep.WithMetrics(metricsSink)
	}

	apiHandler := api.NewHandler(store, lc).WithHealthChecker(db)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: apiHandler,
	}

	go func() {
		log.Printf("remindd: http server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("remindd: http server error: %v", err)
		}
	}()

	// The sweeper runs directly, or behind leader election when multiple
	// instances share the database.
	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	var sweepWg sync.WaitGroup

	if cfg.LeaderEnabled {
		// onElected starts the sweeper under the leader context; onDemoted
		// blocks until it has fully stopped. Waiting on an idle group is a
		// no-op, so repeated demotions are safe.
		var running sync.WaitGroup

		elector := leaderelection.New(
			db,
			cfg.LeaderLockKey,
			cfg.LeaderRetryInterval,
			cfg.LeaderHeartbeatInterval,
			func(ctx context.Context) {
				running.Add(1)
				go func() {
					defer running.Done()
					sweep.Run(ctx)
				}()
			},
			running.Wait,
		)
		sweepWg.Add(1)
		go func() {
			defer sweepWg.Done()
			elector.Run(sweepCtx)
		}()
		log.Printf("remindd: leader election enabled (lock_key=%d)", cfg.LeaderLockKey)
	} else {
		sweepWg.Add(1)
		go func() {
			defer sweepWg.Done()
			sweep.Run(sweepCtx)
		}()
	}

	log.Printf("remindd: started (version=%s, http=%s)", version, cfg.HTTPAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig

	log.Printf("remindd: received signal %v, shutting down", received)

	// Phase 1: Stop the sweeper (and elector) so no new sends start.
	log.Println("remindd: stopping sweeper...")
	cancelSweep()
	sweepWg.Wait()
	log.Println("remindd: sweeper stopped")

	// Phase 2: Stop the analytics recorder (drains buffered events).
	if cancelRecorder != nil {
		log.Println("remindd: stopping analytics recorder...")
		cancelRecorder()
		recorderWg.Wait()
		log.Println("remindd: analytics recorder stopped")
	}

	// Phase 3: Stop the HTTP server gracefully.
	log.Println("remindd: stopping http server...")
	httpShutdownCtx, httpShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer httpShutdownCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		log.Printf("remindd: http server shutdown error: %v", err)
	}
	log.Println("remindd: http server stopped")

	// Phase 4: Stop the metrics server if running.
	if metricsServer != nil {
		log.Println("remindd: stopping metrics server...")
		metricsShutdownCtx, metricsShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
		defer metricsShutdownCancel()
		if err := metricsServer.Shutdown(metricsShutdownCtx); err != nil {
			log.Printf("remindd: metrics server shutdown error: %v", err)
		}
		log.Println("remindd: metrics server stopped")
	}

	log.Println("remindd: stopped")
	return exitSuccess
}

func runValidate() int {
	cfg := config.Load()

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
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
	fmt.Printf("remindd version %s (commit: %s)\n", version, commit)
	return exitSuccess
}
