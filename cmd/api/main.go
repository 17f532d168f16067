package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/postocalmo/backend/internal/adapters/cache"
	"github.com/postocalmo/backend/internal/adapters/database"
	"github.com/postocalmo/backend/internal/adapters/events"
	"github.com/postocalmo/backend/internal/adapters/search"
	"github.com/postocalmo/backend/internal/api/handlers"
	"github.com/postocalmo/backend/internal/api/routes"
	"github.com/postocalmo/backend/internal/application/services"
	"github.com/postocalmo/backend/internal/domain/providers"
	"github.com/postocalmo/backend/internal/domain/repositories"
	"github.com/postocalmo/backend/internal/infrastructure/clients/postgres"
	"github.com/postocalmo/backend/internal/infrastructure/clients/redis"
	"github.com/postocalmo/backend/internal/infrastructure/clients/typesense"
	"github.com/postocalmo/backend/internal/infrastructure/observability"
	"github.com/postocalmo/backend/pkg/config"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.OTEL.ServiceName, cfg.Server.Env)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry if enabled
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(
			ctx,
			cfg.OTEL.ServiceName,
			cfg.OTEL.ServiceVersion,
			cfg.OTEL.Endpoint,
		)
		if err != nil {
			log.Warn().Err(err).Msg("failed to set up OpenTelemetry")
		} else {
			defer func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := shutdown(shutdownCtx); err != nil {
					log.Warn().Err(err).Msg("error shutting down OpenTelemetry")
				}
			}()
			log.Info().Msg("OpenTelemetry initialized")
		}
	}

	// Initialize database client
	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize PostgreSQL client")
	}
	defer pgClient.Close()
	log.Info().Msg("PostgreSQL client initialized")

	// Initialize Redis client; the application degrades without it
	redisClient, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("failed to initialize Redis client, continuing without cache")
		redisClient = nil
	} else {
		defer redisClient.Close()
		log.Info().Msg("Redis client initialized")
	}

	// Initialize Typesense client; search falls back to the database
	var typesenseClient *typesense.Client
	if cfg.Typesense.URL != "" {
		typesenseClient, err = typesense.NewClient(&cfg.Typesense)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize Typesense client, search will use the database")
			typesenseClient = nil
		} else {
			log.Info().Msg("Typesense client initialized")
		}
	}

	var cacheProvider providers.CacheProvider
	if redisClient != nil {
		cacheProvider = cache.NewRedisAdapter(redisClient)
	}

	// Create posto adapter, wrapped with caching if Redis is available
	basePostoAdapter := database.NewPostoAdapter(pgClient)
	var postoRepo repositories.PostoRepository
	if cacheProvider != nil {
		postoRepo = database.NewCachedPostoAdapter(basePostoAdapter, cacheProvider)
		log.Info().Msg("posto adapter wrapped with caching layer")
	} else {
		postoRepo = basePostoAdapter
		log.Info().Msg("posto adapter running without cache")
	}

	var searchRepo repositories.PostoSearchRepository
	if typesenseClient != nil {
		adapter := search.NewTypesenseAdapter(typesenseClient)
		if err := adapter.InitSchema(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to init Typesense schema")
		}
		searchRepo = adapter
	}

	// Initialize event bus for posto update notifications
	var eventBus providers.EventBus
	if redisClient != nil {
		eventBus = events.NewRedisEventBus(redisClient)
		log.Info().Msg("event bus initialized")
	} else {
		log.Info().Msg("event bus disabled, Redis not available")
	}

	postoService := services.NewPostoService(postoRepo, searchRepo, eventBus)
	postoHandler := handlers.NewPostoHandler(postoService)

	router := routes.NewRouter(postoHandler)
	handler := router.SetupRoutes()

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", serverAddr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("server shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("error during server shutdown")
	}

	if eventBus != nil {
		if err := eventBus.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing event bus")
		}
	}

	log.Info().Msg("server stopped")
}
