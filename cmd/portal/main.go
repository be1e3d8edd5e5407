package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/cors"
	"github.com/otcheredev/rehab-portal/internal/adapters"
	"github.com/otcheredev/rehab-portal/internal/cache"
	"github.com/otcheredev/rehab-portal/internal/config"
	"github.com/otcheredev/rehab-portal/internal/database"
	"github.com/otcheredev/rehab-portal/internal/handlers"
	"github.com/otcheredev/rehab-portal/internal/repository"
	"github.com/otcheredev/rehab-portal/internal/services"
	"github.com/otcheredev/rehab-portal/internal/session"
	"github.com/otcheredev/rehab-portal/pkg/logger"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Initialize logger
	logger.Init(logger.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	log.Info().Str("backend", cfg.Backend.BaseURL).Msg("Starting rehab portal")

	checks := make(map[string]handlers.Checker)

	// Session persistence
	var sessionCache cache.Cache
	switch cfg.Cache.Type {
	case "redis":
		redisCache, err := cache.NewRedisCache(cfg.Redis.URL, cfg.RedisAddr(), cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		checks["cache"] = redisCache.Ping
		sessionCache = redisCache
		log.Info().Msg("Redis session cache initialized")
	case "file":
		fileCache, err := cache.NewFileCache(cfg.Cache.FilePath)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open session file")
		}
		sessionCache = fileCache
		log.Info().Str("path", cfg.Cache.FilePath).Msg("File session cache initialized")
	default:
		sessionCache = cache.NewMemoryCache()
		log.Info().Msg("Memory session cache initialized")
	}
	defer sessionCache.Close()

	// Backend adapter and session store
	backend, err := adapters.NewRESTAdapter(cfg.Backend.BaseURL, cfg.Backend.Timeout)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create backend adapter")
	}
	defer backend.Close()

	store := session.NewStore(sessionCache, backend, cfg.Session.Key)
	backend.Bind(store)

	// Optional audit journal
	var (
		auditWriter services.AuditWriter
		auditReader handlers.AuditReader
	)
	if cfg.Database.Enabled {
		dbConfig := database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
			LogLevel: cfg.Database.LogLevel,
		}
		if err := database.Connect(dbConfig); err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer database.Close()

		auditRepo := repository.NewAuditRepository()
		auditWriter = services.UserStamped(auditRepo, store.User)
		auditReader = auditRepo
		checks["database"] = database.Ping
	}

	portal := services.NewPortal(backend, auditWriter)
	store.Subscribe(portal.HandleSessionEvent)

	store.Restore(context.Background())

	router := handlers.NewRouter(handlers.RouterConfig{
		Sessions: store,
		Portal:   portal,
		Audit:    auditReader,
		Checks:   checks,
		CORS: cors.Options{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedMethods:   cfg.CORS.AllowedMethods,
			AllowedHeaders:   cfg.CORS.AllowedHeaders,
			ExposedHeaders:   []string{"Content-Length", "Content-Type", "Location"},
			AllowCredentials: false,
			MaxAge:           300,
		},
		Metrics: cfg.Metrics.Enabled,
	})

	// Create server
	addr := cfg.Addr()
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Let in-flight meal and adherence writes finish
	portal.Wait()

	log.Info().Msg("Server stopped")
}
