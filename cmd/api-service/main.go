package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/analysis-delivery/internal/access"
	"github.com/cuongbtq/analysis-delivery/internal/api/handler"
	"github.com/cuongbtq/analysis-delivery/internal/api/router"
	"github.com/cuongbtq/analysis-delivery/internal/cache"
	"github.com/cuongbtq/analysis-delivery/internal/config"
	"github.com/cuongbtq/analysis-delivery/internal/engine"
	"github.com/cuongbtq/analysis-delivery/internal/gateway"
	"github.com/cuongbtq/analysis-delivery/internal/relay"
	"github.com/cuongbtq/analysis-delivery/internal/result"
	"github.com/cuongbtq/analysis-delivery/internal/storage"
	"github.com/cuongbtq/analysis-delivery/migrations"
	"github.com/cuongbtq/analysis-delivery/shared/logger"
	"github.com/cuongbtq/analysis-delivery/shared/postgresql"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("storage_driver", cfg.Storage.Driver),
	)

	store, dbClient, err := initStore(cfg, appLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	if dbClient != nil {
		defer dbClient.Close()
	}

	r := initRouter(cfg, appLogger, store, dbClient)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.String("engine_url", cfg.Engine.BaseURL),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Shutting down server...", slog.String("signal", sig.String()))
	case err := <-serverErr:
		appLogger.Error("Server failed to start", slog.Any("error", err))
		return err
	}

	// Open progress streams end when their request contexts are canceled
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", slog.Any("error", err))
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

// initStore opens the configured job store. The returned client is nil for
// the memory driver.
func initStore(cfg *config.Config, appLogger *logger.Logger) (storage.JobStore, *postgresql.Client, error) {
	if cfg.Storage.Driver == config.StorageDriverMemory {
		appLogger.Warn("Using in-memory job store; analyses are lost on restart")
		return storage.NewMemory(nil), nil, nil
	}

	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return nil, nil, err
	}

	appLogger.Info("Database connection established")

	if cfg.Database.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := dbClient.Migrate(ctx, migrations.FS); err != nil {
			dbClient.Close()
			return nil, nil, err
		}
	}

	return storage.NewPostgres(dbClient, appLogger.Component("storage")), dbClient, nil
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	return postgresql.NewClient(&postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}, logger)
}

// initRouter wires the delivery subsystem and returns the Gin router
func initRouter(cfg *config.Config, appLogger *logger.Logger, store storage.JobStore, dbClient *postgresql.Client) *gin.Engine {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	engineClient := engine.New(engine.Config{
		BaseURL:        cfg.Engine.BaseURL,
		RequestTimeout: cfg.Engine.RequestTimeout,
		ConnectTimeout: cfg.Engine.ConnectTimeout,
	}, appLogger.Component("engine"))

	resultCache := cache.New[result.Key, []byte](cache.Config{
		TTL:        cfg.Cache.TTL,
		MaxEntries: cfg.Cache.MaxEntries,
	})

	gw := gateway.New(gateway.Dependencies{
		Store:   store,
		Access:  access.NewController(store, appLogger.Component("access")),
		Results: result.NewAssembler(resultCache, engineClient, store, appLogger.Component("result")),
		Relay: relay.New(engineClient, relay.Config{
			ConnectTimeout: cfg.Engine.ConnectTimeout,
			IdleThreshold:  cfg.Stream.IdleThreshold,
		}, appLogger.Component("relay")),
		Engine: engineClient,
	}, gateway.Config{
		StatusTimeout: cfg.Engine.StatusTimeout,
	}, appLogger.Component("gateway"))

	deps := &handler.Dependencies{
		Logger:  appLogger.Logger,
		Gateway: gw,
	}
	if dbClient != nil {
		deps.Health = dbClient.HealthCheck
	}

	return router.SetupRouter(deps)
}
