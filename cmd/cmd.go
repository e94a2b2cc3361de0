package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"foodbank-checkin-backend/internal/cache"
	"foodbank-checkin-backend/internal/config"
	"foodbank-checkin-backend/internal/handlers"
	"foodbank-checkin-backend/internal/metrics"
	"foodbank-checkin-backend/internal/middleware"
	"foodbank-checkin-backend/internal/queue"
	"foodbank-checkin-backend/internal/repository"
	"foodbank-checkin-backend/internal/services"
	"foodbank-checkin-backend/internal/storage"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func Run() {
	configPath := os.Getenv("FOODBANK_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	setupLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to database
	db, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	log.Info().Msg("Database connection established")

	if err := repository.Migrate(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Initialize repositories
	registrationRepo := repository.NewRegistrationRepository(db)
	checkinRepo := repository.NewCheckinRepository(db)
	userRepo := repository.NewUserRepository(db)

	// Optional caches. Nil interfaces disable renewal pre-fill and
	// signature caching.
	var (
		renewals   services.RenewalCache
		signatures services.SignatureCache
	)
	if cfg.Redis.Addr != "" {
		client, err := cache.NewRedisClient(ctx, cache.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, running without caches")
		} else {
			defer client.Close()
			redisCache := cache.NewRedisCache(client, cfg.Redis.Prefix)
			renewals, signatures = redisCache, redisCache
			log.Info().Str("addr", cfg.Redis.Addr).Msg("Redis connection established")
		}
	}

	objects, err := storage.NewS3Store(ctx, storage.S3Options{
		Region:    cfg.AWS.Region,
		Bucket:    cfg.AWS.S3Bucket,
		AccessKey: cfg.AWS.AccessKey,
		SecretKey: cfg.AWS.SecretKey,
		Endpoint:  cfg.AWS.Endpoint,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create object storage")
	}

	var events services.EventPublisher
	if cfg.RabbitMQ.URL != "" {
		publisher, err := queue.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue)
		if err != nil {
			log.Warn().Err(err).Msg("Event broker unavailable, events disabled")
		} else {
			defer publisher.Close()
			events = publisher
		}
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	// Initialize services
	userService := services.NewUserService(userRepo, cfg.JWT.Secret, cfg.JWT.TTL)
	checkinService := services.NewCheckinService(registrationRepo, checkinRepo, renewals,
		services.WithCheckinEvents(events),
		services.WithCheckinMetrics(m),
		services.WithRenewalTTL(cfg.Cache.RenewalTTL),
	)
	registrationService := services.NewRegistrationService(registrationRepo, checkinRepo, checkinService, renewals,
		services.WithRegistrationEvents(events),
		services.WithRegistrationMetrics(m),
	)
	signatureService := services.NewSignatureService(objects, signatures, cfg.Cache.SignatureTTL)
	exportService := services.NewExportService(registrationRepo)
	wsHub := services.NewWSHub(services.LiveSources(registrationService, checkinService))

	if cfg.Admin.Email != "" {
		if err := userService.EnsureAdmin(ctx, cfg.Admin.Email, cfg.Admin.Password); err != nil {
			log.Fatal().Err(err).Msg("Failed to create bootstrap admin")
		}
	}

	// Push fresh snapshots whenever a table changes
	listener := repository.NewChangeListener(db)
	go listener.Listen(ctx, func(table string) {
		wsHub.Notify(ctx, table)
	})

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(userService)
	registrationHandler := handlers.NewRegistrationHandler(registrationService)
	checkinHandler := handlers.NewCheckinHandler(checkinService)
	signatureHandler := handlers.NewSignatureHandler(signatureService)
	exportHandler := handlers.NewExportHandler(exportService)
	wsHandler := handlers.NewWebSocketHandler(wsHub, userService, cfg.Server.AllowedOrigins)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	r.Get("/healthz", handlers.Health(map[string]handlers.Pinger{"postgres": db}))
	r.Handle("/metrics", promhttp.Handler())

	// Routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Post("/auth/login", authHandler.Login)
		r.Post("/registrations", registrationHandler.Submit)
		r.Post("/checkins", checkinHandler.CheckIn)

		// Staff routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(userService))

			r.Route("/registrations", func(r chi.Router) {
				r.Get("/", registrationHandler.List)
				r.Post("/batch", registrationHandler.BatchUpdate)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", registrationHandler.Get)
					r.Patch("/", registrationHandler.UpdateIdentity)
					r.Delete("/", registrationHandler.Delete)
					r.Get("/checkins", registrationHandler.LinkedCheckins)
					r.Put("/admin-data", registrationHandler.UpdateAdminData)
					r.Post("/archive", registrationHandler.Archive)
					r.Post("/unarchive", registrationHandler.Unarchive)
				})
			})
			r.Get("/served", registrationHandler.Served)

			r.Route("/checkins", func(r chi.Router) {
				r.Get("/", checkinHandler.List)
				r.Post("/{id}/serve", checkinHandler.Serve)
				r.Put("/{id}/status", checkinHandler.SetStatus)
				r.Delete("/{id}", checkinHandler.Delete)
			})

			r.Get("/export.csv", exportHandler.CSV)
			r.Get("/export.xlsx", exportHandler.XLSX)
			r.Get("/signature", signatureHandler.Get)
			r.Put("/signature", signatureHandler.Put)
		})
	})

	// WebSocket route
	r.Get("/ws", wsHandler.HandleWebSocket)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Int("open_websockets", wsHub.Connections()).Msg("Server exited")
}

// setupLogger configures zerolog logger
func setupLogger(cfg config.LogConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.Format != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	switch cfg.Level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
