package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/tinytulsi/mart-backend/internal/audit"
	"github.com/tinytulsi/mart-backend/internal/auth"
	"github.com/tinytulsi/mart-backend/internal/catalog"
	"github.com/tinytulsi/mart-backend/internal/config"
	"github.com/tinytulsi/mart-backend/internal/health"
	"github.com/tinytulsi/mart-backend/internal/logger"
	"github.com/tinytulsi/mart-backend/internal/metrics"
	appmw "github.com/tinytulsi/mart-backend/internal/middleware"
	"github.com/tinytulsi/mart-backend/internal/notifier"
	"github.com/tinytulsi/mart-backend/internal/otp"
	"github.com/tinytulsi/mart-backend/internal/repository"
	"github.com/tinytulsi/mart-backend/internal/sanitizer"
	"github.com/tinytulsi/mart-backend/internal/storage"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()

	if cfg.Session.Secret == "" {
		log.Fatal("SESSION_SECRET environment variable is required")
	}

	slogger := logger.New(logger.DefaultConfig())
	slog.SetDefault(slogger)

	dbPool, err := setupDatabase(cfg, slogger)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer dbPool.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	// Repositories
	userRepo := repository.NewUserRepository(dbPool)
	sessionRepo := repository.NewSessionRepository(dbPool)
	auditRepo := repository.NewAuditLogRepository(dbPool)
	productRepo := repository.NewProductRepository(dbPool)

	// Core services
	tokenService := auth.NewTokenService(auth.TokenServiceConfig{
		Secret: cfg.Session.Secret,
		Issuer: cfg.Session.Issuer,
	})
	sessionManager := auth.NewSessionManager(sessionRepo, tokenService, cfg.Session.IdleTimeout)
	passwordPolicy := auth.NewPasswordPolicy()

	mailer := notifier.NewSMTPNotifier(cfg.SMTP, slogger)
	otpStore := otp.NewStore(redisClient, cfg.OTP.TTL)
	otpEngine := auth.NewOTPEngine(otpStore, mailer, slogger)

	auditRecorder := audit.NewRecorder(auditRepo, slogger)
	imageStore := storage.NewS3ImageStore(cfg.Storage)

	authService := auth.NewService(
		userRepo,
		passwordPolicy,
		sessionManager,
		otpEngine,
		auditRecorder,
		imageStore,
		sanitizer.New(),
		cfg,
		slogger,
	)

	// Handlers
	authHandler := auth.NewHandler(authService, cfg.Session.CookieSecure)
	auditHandler := audit.NewHandler(auditRepo)
	catalogHandler := catalog.NewHandler(productRepo)
	healthHandler := health.NewHandler(dbPool, redisClient, version)

	// Middleware
	authMiddleware := appmw.NewAuthMiddleware(tokenService, sessionManager)
	adminOnly := appmw.RequireRole("admin")
	otpLimiter := appmw.NewRateLimiter(5, 15*time.Minute)

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(appmw.RequestLogger(slogger))
	r.Use(metrics.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Readiness)
	r.Get("/live", healthHandler.Liveness)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		auth.RegisterRoutes(r, authHandler, authMiddleware.Authenticate, adminOnly, otpLimiter.Middleware)
		catalog.RegisterRoutes(r, catalogHandler, authMiddleware.Authenticate, adminOnly)

		r.With(authMiddleware.Authenticate, adminOnly).
			Get("/admin/audit-logs", auditHandler.List)
	})

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slogger.Info("starting server", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slogger.Info("shutting down server")
	healthHandler.SetReady(false)
	otpLimiter.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	slogger.Info("server exited")
}

// setupDatabase creates and configures the database connection pool
func setupDatabase(cfg *config.Config, slogger *slog.Logger) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	connString := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.DBName,
		cfg.Database.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 5 * time.Minute
	poolConfig.MaxConnIdleTime = 1 * time.Minute
	poolConfig.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slogger.Info("connected to database",
		slog.String("name", cfg.Database.DBName),
		slog.String("host", cfg.Database.Host),
	)
	return pool, nil
}
