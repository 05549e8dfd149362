package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"github.com/segyhp/loan-platform/internal/auth"
	"github.com/segyhp/loan-platform/internal/client"
	"github.com/segyhp/loan-platform/internal/config"
	"github.com/segyhp/loan-platform/internal/handler"
	"github.com/segyhp/loan-platform/internal/repository"
	"github.com/segyhp/loan-platform/internal/service"
	"github.com/segyhp/loan-platform/pkg/response"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	logger := cfg.Logging.NewLogger()

	// Initialize database
	db, err := initDB(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Initialize Redis, optional
	redisClient, err := initRedis(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize redis: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	} else {
		logger.Info("REDIS_URL not set, schedule cache and idempotency disabled")
	}

	// Initialize repositories
	loanRepo := repository.NewLoanRepository(db)
	installmentRepo := repository.NewInstallmentRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	uow := repository.NewUnitOfWork(db)

	cache := service.NewScheduleCache(redisClient, cfg.Redis.ScheduleTTL, logger)
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret)

	router := mux.NewRouter()
	router.Use(response.LoggingMiddleware(logger))
	handler.NewHealthHandler(db, redisClient, cfg.Server.Mode, cfg.Health.Timeout).Register(router)

	api := router.NewRoute().Subrouter()
	api.Use(handler.AuthMiddleware(tokens, cfg.Auth.InternalKey, logger))

	// Initialize services for the configured mode
	var loanService *service.LoanService
	if cfg.ServesLoans() {
		loanService = service.NewLoanService(loanRepo, installmentRepo, uow, cache, logger)
		handler.NewLoanHandler(loanService, logger).Register(api)
	}

	if cfg.ServesPayments() {
		policy, err := service.NewPaymentPolicy(cfg.Payments.Policy)
		if err != nil {
			logger.Fatalf("Failed to configure payment policy: %v", err)
		}

		var gateway service.LoanGateway
		if loanService != nil {
			gateway = service.NewLocalLoanGateway(loanService)
		} else {
			gateway = client.NewLoanClient(cfg.Loans.ServiceURL, cfg.Auth.InternalKey, cfg.Loans.ServiceTimeout)
		}

		paymentService := service.NewPaymentService(paymentRepo, uow, gateway, policy, cache, logger)
		var idempotency func(http.Handler) http.Handler
		if redisClient != nil {
			idempotency = handler.IdempotencyMiddleware(redisClient, cfg.Redis.IdempotencyTTL, logger)
		}
		handler.NewPaymentHandler(paymentService, logger).Register(api, idempotency)
	}

	// Start server
	server := &http.Server{
		Addr:         cfg.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"addr":   server.Addr,
			"mode":   cfg.Server.Mode,
			"policy": cfg.Payments.Policy,
		}).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("server exited")
}

func initDB(cfg *config.Config, logger *logrus.Logger) (*sqlx.DB, error) {
	db, err := sqlx.Connect(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	if cfg.Database.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := repository.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		logger.WithField("driver", cfg.Database.Driver).Info("schema migrated")
	}

	return db, nil
}

func initRedis(cfg *config.Config) (*redis.Client, error) {
	if cfg.Redis.URL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}
