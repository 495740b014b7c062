/*
main.go - Application entry point

PURPOSE:
  Starts the movement ledger server. Handles configuration, dependency
  injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (optional), parse flags over environment
  2. Build the zap logger
  3. Open the store (sqlite, postgres or memory)
  4. Wire engine, directory, statement builder, PDF renderer, events
  5. Configure HTTP router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port          HTTP server port (default: 8080, env PORT)
  -driver        sqlite | postgres | memory (env DB_DRIVER)
  -db            SQLite database path (default: ledger.db, env DB_PATH)
                 Use ":memory:" for in-memory database
  -database-url  PostgreSQL connection string (env DATABASE_URL)
  -log-level     debug | info | warn | error (env LOG_LEVEL)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Flush the event publisher, close the store
  4. Exit

EXAMPLES:
  ./server -db="./data/ledger.db"
  ./server -driver=postgres -database-url="postgres://localhost/ledger"
  KAFKA_BROKERS=localhost:9092 ./server -driver=memory

SEE ALSO:
  - config/config.go: Every setting and its environment variable
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/movement-ledger/api"
	"github.com/warp/movement-ledger/config"
	"github.com/warp/movement-ledger/directory"
	"github.com/warp/movement-ledger/events/kafka"
	"github.com/warp/movement-ledger/ledger"
	memstore "github.com/warp/movement-ledger/ledger/store"
	"github.com/warp/movement-ledger/logging"
	"github.com/warp/movement-ledger/statement"
	"github.com/warp/movement-ledger/statement/pdf"
	"github.com/warp/movement-ledger/store/postgres"
	"github.com/warp/movement-ledger/store/sqlite"
	"go.uber.org/zap"
)

// backend is what every store driver provides.
type backend interface {
	ledger.SerializingStore
	directory.Store
	io.Closer
}

type memoryBackend struct {
	*memstore.Memory
}

func (memoryBackend) Close() error { return nil }

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Printf("Warning: %v", err)
	}
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Development())
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	store, err := openStore(context.Background(), cfg)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.String("driver", cfg.Driver), zap.Error(err))
	}
	defer store.Close()

	opts := []ledger.Option{ledger.WithLogger(logger.Named("ledger"))}
	if cfg.EventsEnabled() {
		publisher := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer publisher.Close()
		opts = append(opts, ledger.WithPublisher(publisher))
		logger.Info("movement events enabled",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaTopic))
	}

	engine := ledger.NewEngine(store, store, opts...)
	dir := directory.NewService(store, store, cfg.AccountNumberAttempts, logger.Named("directory"))
	builder := statement.NewBuilder(store, store, store).WithLogger(logger.Named("statement"))

	var pinger api.Pinger
	if p, ok := store.(api.Pinger); ok {
		pinger = p
	}
	handler := api.NewHandler(api.Deps{
		Engine:     engine,
		Directory:  dir,
		Statements: builder,
		Renderer:   pdf.NewRenderer(),
		DB:         pinger,
		Logger:     logger.Named("api"),
	})
	router := api.NewRouter(handler, cfg.CORSOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.Int("port", cfg.Port),
			zap.String("driver", cfg.Driver),
			zap.String("environment", cfg.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
		return
	}

	logger.Info("server stopped")
}

func openStore(ctx context.Context, cfg config.Config) (backend, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return postgres.New(ctx, cfg.DatabaseURL)
	case config.DriverMemory:
		return memoryBackend{memstore.NewMemory()}, nil
	default:
		return sqlite.New(cfg.DBPath)
	}
}
