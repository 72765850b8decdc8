package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"rentals/server/config"
	"rentals/server/internal/api"
	"rentals/server/internal/auth"
	"rentals/server/internal/cache"
	"rentals/server/internal/database"
	"rentals/server/internal/events"
	"rentals/server/internal/filter"
	"rentals/server/internal/geocoding"
	"rentals/server/internal/logging"
	"rentals/server/internal/processor"
	"rentals/server/internal/queue"
	"rentals/server/internal/scheduler"
	"rentals/server/internal/seed"
	"rentals/server/internal/storage"
	"rentals/server/internal/telegram"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.Default().WithError(err).Fatal("Failed to load configuration")
	}

	logger, err := logging.NewLogger(cfg)
	if err != nil {
		logging.Default().WithError(err).Fatal("Failed to initialize logger")
	}

	if cfg.UsesDefaultJWTSecret() {
		logger.Warn("JWT_SECRET is not set, tokens are signed with the development default")
	}

	logger.Infof("Using database at: %s", cfg.Database.Path)

	db, err := database.NewDatabase(cfg.Database.Path, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()

	logger.Info("Running database migrations...")
	if err := db.RunMigrations(); err != nil {
		logger.WithError(err).Fatal("Failed to run database migrations")
	}

	if cfg.Database.SeedFile != "" {
		if err := seed.LoadAndApply(cfg.Database.SeedFile, db.GetDB(), logger); err != nil {
			logger.WithError(err).Fatal("Failed to seed database")
		}
	}

	compiler, err := filter.NewCompiler()
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize expression compiler")
	}

	listingCache, err := cache.New(cfg, logger)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, listing cache disabled")
		listingCache = cache.Noop{}
	}
	defer listingCache.Close()

	var publisher events.Publisher = events.Noop{}
	if cfg.RabbitMQ.URL != "" {
		rabbit, err := events.NewRabbitMQPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, logger)
		if err != nil {
			logger.WithError(err).Warn("RabbitMQ unavailable, event publishing disabled")
		} else {
			publisher = rabbit
		}
	}
	defer publisher.Close()

	images, err := storage.New(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize image storage")
	}
	if store, ok := images.(*storage.MinIOStore); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := store.EnsureBucket(ctx); err != nil {
			logger.WithError(err).Warn("Failed to prepare image bucket (will continue)")
		}
		cancel()
	}

	// Interface values stay nil when geocoding is off
	var geocoder database.Geocoder
	if cfg.Geocoder.Enabled {
		geocoder = geocoding.NewGeocoder(cfg, logger)
	}

	var notifier processor.Notifier
	if tg := telegram.NewService(cfg, logger); tg.Enabled() {
		notifier = tg
	} else {
		logger.Info("Telegram bot token not set, listing alerts disabled")
	}

	listingQueue := queue.NewListingQueue(cfg.Processing.QueueSize, logger)
	alerts := processor.NewAlertProcessor(db, listingQueue, geocoder, notifier, compiler, cfg, logger)
	alerts.Start()
	listingQueue.Start()

	jobs := scheduler.NewScheduler(db, geocoder, listingCache, logger)
	jobs.Start()

	handler := api.NewHandler(api.Deps{
		DB:       db,
		Tokens:   auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Compiler: compiler,
		Cache:    listingCache,
		Events:   publisher,
		Images:   images,
		Queue:    listingQueue,
		Geocoder: geocoder,
	}, logger)

	if logger.GetLevel() < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig(cfg.Server.AllowedOrigins)))
	api.SetupRoutes(router, handler)

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Infof("Starting server on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}

	if err := listingQueue.Close(); err != nil {
		logger.WithError(err).Error("Failed to close listing queue")
	}
	alerts.Stop()
	jobs.Stop()

	logger.Info("Server stopped")
}

func corsConfig(origins []string) cors.Config {
	c := cors.DefaultConfig()
	c.AllowHeaders = append(c.AllowHeaders, "Authorization")
	c.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return c
}
