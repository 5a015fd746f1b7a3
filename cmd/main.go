package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"printdesk/internal/api"
	"printdesk/internal/audit"
	"printdesk/internal/auth"
	"printdesk/internal/config"
	"printdesk/internal/daemon"
	"printdesk/internal/database"
	"printdesk/internal/events"
	"printdesk/internal/inventory"
	"printdesk/internal/logger"
	"printdesk/internal/mail"
	"printdesk/internal/monitoring"
	"printdesk/internal/notifications"
	"printdesk/internal/ratelimit"
	"printdesk/internal/registration"
	"printdesk/internal/storage"
	"printdesk/internal/validator"
	"printdesk/internal/verification"
)

func main() {
	if err := run(context.Background()); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	cfg := config.NewConfig()

	telemetry, err := monitoring.NewOpenTelemetry(cfg.Telemetry)
	if err != nil {
		return err
	}

	log := logger.New(*cfg)

	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			log.Error("Failed to shut down telemetry", "error", err)
		}
	}()

	db := database.NewDatabase()
	if err := db.Connect(ctx, cfg.Database.URL()); err != nil {
		log.Error("Failed to connect to database", "error", err)
		return err
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		// Rate limiting degrades to open when redis is unreachable.
		log.Warn("Redis unreachable, rate limiting disabled", "error", err)
		redisClient = nil
	}
	limiter := ratelimit.NewRateLimiter(redisClient, cfg.Auth.RateWindow, cfg.Auth.MaxCodeRequests)

	fileStorage, err := storage.NewStorage(cfg.Storage)
	if err != nil {
		log.Error("Failed to initialize storage", "error", err)
		return err
	}

	var mailer mail.Mailer = mail.NewSMTPMailer(cfg.SMTP)
	if cfg.SMTP.Host == "" {
		log.Warn("SMTP not configured, emails disabled")
		mailer = mail.NoopMailer{}
	}

	producer := events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer producer.Close()

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	auditor := audit.NewAuditor(log.Logger, &db)
	authService := auth.NewService(log.Logger, &db, tokens, limiter, &auditor)
	verificationManager := verification.NewManager(log.Logger, &db, mailer, limiter, telemetry, cfg.Auth.CodeTTL, cfg.Auth.CodeLength)
	matcher := inventory.NewMatcher(log.Logger, &db)
	registrationManager := registration.NewManager(log.Logger, &db, &matcher, fileStorage, mailer, producer, limiter, &auditor, telemetry)
	notifier := notifications.NewNotifier(log.Logger, &db)

	daemons := daemon.NewManager(log.Logger)
	daemons.Add("cleanup", daemon.CleanupTask(&db, log.Logger, telemetry, time.Hour))
	daemons.Start(ctx)

	handler := api.NewHandler(log.Logger, &db, validator.New(), tokens, &authService, &verificationManager, &matcher, &registrationManager, &notifier)
	app := api.NewApp(cfg, &handler)

	errChan := make(chan error, 1)
	go func() {
		addr := cfg.Server.Host + ":" + cfg.Server.Port
		log.Info("Starting server", "addr", addr, "environment", cfg.Server.Environment)
		if err := app.Listen(addr); err != nil {
			errChan <- err
		}
	}()

	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down", "signal", sig.String())
	case err := <-errChan:
		log.Error("Server failed", "error", err)
		return err
	case <-ctx.Done():
	}

	cancel()
	daemons.Wait()

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error("Failed to shut down server cleanly", "error", err)
		return err
	}
	return nil
}
