/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the benefit tracker server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, then flags)
  2. Initialize logger and SQLite store
  3. Build notification channels and the reminder service
  4. Configure HTTP router and start the daily scheduler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides PORT)
  -db      SQLite database path (overrides DATABASE_PATH)
           Use ":memory:" for in-memory database
  -seed    Load the built-in card catalog on startup

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler, cancelling a running job
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  # Run with file database
  ./server -db="./data/benefits.db"

  # Run in memory with demo cards
  ./server -db=":memory:" -seed

ENVIRONMENT:
  See config/config.go for the full list.

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Daily jobs
  - store/sqlite/sqlite.go: Database implementation
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

	"go.uber.org/zap"

	"github.com/cardperks/benefit-engine/api"
	"github.com/cardperks/benefit-engine/catalog"
	"github.com/cardperks/benefit-engine/config"
	"github.com/cardperks/benefit-engine/logging"
	"github.com/cardperks/benefit-engine/notify"
	"github.com/cardperks/benefit-engine/reminder"
	"github.com/cardperks/benefit-engine/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DatabasePath, "SQLite database path")
	seed := flag.Bool("seed", false, "Load the built-in card catalog on startup")
	flag.Parse()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	if *seed {
		stats, err := catalog.Seed(context.Background(), store, catalog.Default())
		if err != nil {
			return fmt.Errorf("seed catalog: %w", err)
		}
		logger.Info("seeded catalog", zap.Int("cards", stats.Cards), zap.Int("benefits", stats.Benefits))
	}

	loc := cfg.Location()
	dispatcher := notify.NewDispatcher(logger.Named("notify"),
		notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramAPIURL),
		notify.NewLine(cfg.LineChannelToken, cfg.LineAPIURL),
		notify.NewEmail(cfg.SMTP),
	)
	reminders := reminder.NewService(store, dispatcher, logger.Named("reminder"),
		reminder.WithLocation(loc),
	)

	// Initialize handler
	handler := api.NewHandler(store, reminders, logger.Named("api"))
	handler.DefaultLanguage = cfg.DefaultLanguage
	handler.Location = loc

	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.AllowedOrigins,
		AdminToken:     cfg.AdminToken,
		AllowReset:     cfg.IsDevelopment(),
	})

	scheduler := api.NewDailyScheduler(reminders,
		api.DefaultJobs(reminders, cfg.ExpirationCheckHour, cfg.ArchiveHour),
		loc, logger)
	scheduler.Enabled = cfg.EnableCron
	scheduler.Start()
	defer scheduler.Stop()

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.Int("port", *port),
			zap.String("env", cfg.Env),
			zap.String("timezone", loc.String()),
			zap.Strings("channels", dispatcher.Channels()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("shutting down server")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
