package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-checkin/internal/analytics"
	analytics_api "ms-checkin/internal/analytics/api"
	"ms-checkin/internal/auth"
	"ms-checkin/internal/config"
	"ms-checkin/internal/entries"
	entry_db "ms-checkin/internal/entries/db"
	"ms-checkin/internal/entries/entry_api"
	"ms-checkin/internal/events"
	event_db "ms-checkin/internal/events/db"
	"ms-checkin/internal/events/event_api"
	"ms-checkin/internal/kafka"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	"ms-checkin/internal/tourists"
	"ms-checkin/internal/tourists/card"
	tourist_db "ms-checkin/internal/tourists/db"
	"ms-checkin/internal/tourists/tourist_api"
	"ms-checkin/internal/users"
	"ms-checkin/internal/users/user_api"
)

func verifyConnections(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*bun.DB, *redis.Client) {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		logger.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			logger.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.Ping()
		if err == nil {
			break
		}

		logger.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}

	if err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	logger.Info("DATABASE", "✅ PostgreSQL connection successful")

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}

	logger.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s (DB: %d)", cfg.Redis.Addr, redisClient.Options().DB))
	return bunDB, redisClient
}

func main() {
	logger := logger.NewLogger()
	defer logger.Close()

	logger.Info("APP", "Starting Check-in Service initialization")

	if err := godotenv.Load(); err != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		logger.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()

	client := &http.Client{
		Timeout: time.Second * 10,
	}
	ctx := context.Background()

	logger.Info("APP", "Verifying database connections")
	bunDB, redisClient := verifyConnections(ctx, cfg, logger)
	defer bunDB.Close()
	defer redisClient.Close()

	var kafkaProducer *kafka.Producer
	if cfg.Kafka.Enabled {
		logger.Info("KAFKA", fmt.Sprintf("Using Kafka brokers: %v", cfg.Kafka.Brokers))
		kafkaProducer = kafka.NewProducer(cfg.Kafka.Brokers)
		defer kafkaProducer.Close()
		logger.Info("KAFKA", "Kafka producer initialized successfully")

		requiredTopics := []string{
			cfg.Kafka.Topics.EntryRecorded,
			cfg.Kafka.Topics.EntryDeparted,
			cfg.Kafka.Topics.TouristRegistered,
		}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, requiredTopics); err != nil {
			logger.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			logger.Info("KAFKA", "Required topics ensured successfully")
		}
	} else {
		logger.Warn("KAFKA", "Kafka disabled, gate events will not be published")
	}

	cardGenerator := card.NewGenerator(cfg.Cards.QRSecret, cfg.Cards.OutDir, cfg.Cards.FontPath)

	// A disabled producer stays a nil interface so the services skip
	// publishing instead of calling through a typed nil.
	var entryPublisher entries.EventPublisher
	var touristPublisher tourists.EventPublisher
	if kafkaProducer != nil {
		entryPublisher = kafkaProducer
		touristPublisher = kafkaProducer
	}

	userService := users.NewService(cfg.Auth, client, redisClient, logger)
	eventService := events.NewService(&event_db.DB{Bun: bunDB}, userService, logger)
	entryService := entries.NewService(&entry_db.DB{Bun: bunDB}, logger, entryPublisher, cfg.Kafka.Topics)
	touristService := tourists.NewService(&tourist_db.DB{Bun: bunDB}, logger, touristPublisher, cfg.Kafka.Topics, cardGenerator)
	analyticsService := analytics.NewService(bunDB)

	entryHandler := entry_api.NewHandler(entryService, logger)
	eventHandler := event_api.NewHandler(eventService, logger)
	touristHandler := tourist_api.NewHandler(touristService, logger)
	analyticsHandler := analytics_api.NewHandler(analyticsService, logger)
	userHandler := user_api.NewHandler(userService, logger)

	logger.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()

	// --- Public Routes ---
	r.Get("/health-check", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Route("/api", func(r chi.Router) {
		touristHandler.RegisterPublicRoutes(r)
		eventHandler.RegisterPublicRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(auth.RegisterKeyMiddleware(cfg.Auth.RegisterSecKey, cfg.Auth.RegisterAdmKey))
			userHandler.RegisterBootstrapRoutes(r)
		})
	})
	logger.Info("ROUTER", "Public routes registered under /api")

	// --- Protected Routes ---
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Auth.OIDCIssuer, logger))
		logger.Info("AUTH", "OIDC middleware applied to protected API routes")

		// Guard-scope middleware reads the {eventId} path param, so the
		// handlers attach it per endpoint rather than via r.Use on the
		// subrouter, where the param is not resolved yet.
		guardScope := auth.GuardScope(eventService)

		r.Route("/api", func(r chi.Router) {
			r.Route("/entry", func(r chi.Router) {
				r.Use(auth.RequireRoles(models.RoleAdmin, models.RoleSecurity))
				entryHandler.RegisterRoutes(r, guardScope)
			})
			logger.Info("ROUTER", "Gate routes registered under /api/entry")

			r.Route("/tourists", func(r chi.Router) {
				r.With(auth.RequireRoles(models.RoleAdmin)).Get("/", touristHandler.ListTourists)
				r.With(auth.RequireRoles(models.RoleAdmin, models.RoleSecurity)).Get("/{userId}", touristHandler.GetTourist)
				r.With(
					auth.RequireRoles(models.RoleAdmin, models.RoleSecurity),
					guardScope,
				).Get("/event/{eventId}", touristHandler.ListByEvent)
			})
			logger.Info("ROUTER", "Tourist routes registered under /api/tourists")

			eventHandler.RegisterRoutes(r)
			logger.Info("ROUTER", "Event routes registered under /api/events")

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRoles(models.RoleAdmin, models.RoleSecurity))
				analyticsHandler.RegisterRoutes(r, guardScope)
			})
			logger.Info("ROUTER", "Analytics routes registered under /api/analytics")

			r.Route("/users", func(r chi.Router) {
				r.Use(auth.RequireRoles(models.RoleAdmin))
				userHandler.RegisterRoutes(r)
			})
			logger.Info("ROUTER", "User routes registered under /api/users")
		})
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("HTTP", "🚀 Check-in Service running on "+cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	logger.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		logger.Info("HTTP", "✅ Check-in Service shutdown complete")
	}
}
