/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the budget engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (optional) and parse command-line flags
  2. Pick the store: Postgres when DATABASE_URL is set, SQLite otherwise
  3. Wire the API handler and router
  4. Start the background rollover scheduler
  5. Serve until SIGINT/SIGTERM, then drain

COMMAND-LINE FLAGS:
  -port                HTTP server port (default: 8080)
  -db                  SQLite database path (default: budget.db)
                       Use ":memory:" for in-memory database
  -log-level           zerolog level: debug, info, warn, error
  -log-format          "console" or "json"
  -scheduler-interval  Rollover sweep interval (default: 1h, 0 disables)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM the scheduler stops first, then the HTTP server drains
  in-flight requests for up to 30s, then the store closes.

EXAMPLES:
  # File-backed SQLite
  ./server -db="./data/budget.db"

  # Run against Postgres
  DATABASE_URL=postgres://... ./server

  # Faster sweeps for local testing
  ./server -scheduler-interval=1m

SEE ALSO:
  - api/server.go: router and route tree
  - api/scheduler.go: background rollover sweep
  - docstore/sqlite/sqlite.go: Default store implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/warp/budget-engine/api"
	"github.com/warp/budget-engine/docstore"
	"github.com/warp/budget-engine/docstore/postgres"
	"github.com/warp/budget-engine/docstore/sqlite"
	"github.com/warp/budget-engine/logger"
)

func main() {
	// .env is optional; flags and real env win
	_ = godotenv.Load()

	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "budget.db", "SQLite database path")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	logFormat := flag.String("log-format", "console", "log format: console or json")
	schedulerInterval := flag.Duration("scheduler-interval", time.Hour, "rollover sweep interval, 0 disables")
	flag.Parse()

	log := logger.New(*logLevel, *logFormat)

	// Store selection: DATABASE_URL switches to Postgres, otherwise SQLite
	var (
		store  docstore.Store
		closer interface{ Close() error }
	)
	if url := os.Getenv("DATABASE_URL"); url != "" {
		pg, err := postgres.New(url)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to postgres")
		}
		store, closer = pg, pg
		log.Info().Msg("using postgres store")
	} else {
		sq, err := sqlite.New(*dbPath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open sqlite database")
		}
		store, closer = sq, sq
		log.Info().Str("path", *dbPath).Msg("using sqlite store")
	}
	defer closer.Close()

	handler := api.NewHandler(store, log)
	router := api.NewRouter(handler)

	scheduler := api.NewRolloverScheduler(store, handler.Engine, log)
	if *schedulerInterval <= 0 {
		scheduler.Enabled = false
	} else {
		scheduler.CheckInterval = *schedulerInterval
	}
	scheduler.Start()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", *port).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
