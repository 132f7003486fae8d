package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"whisper_service/internal/accounts"
	"whisper_service/internal/auth"
	"whisper_service/internal/config"
	acceptMessages "whisper_service/internal/http_server/handlers/accept_messages"
	checkUsername "whisper_service/internal/http_server/handlers/check_username"
	deleteMessage "whisper_service/internal/http_server/handlers/delete_message"
	"whisper_service/internal/http_server/handlers/login"
	"whisper_service/internal/http_server/handlers/logout"
	"whisper_service/internal/http_server/handlers/messages"
	sendMessage "whisper_service/internal/http_server/handlers/send_message"
	"whisper_service/internal/http_server/handlers/signup"
	"whisper_service/internal/http_server/handlers/verify"
	"whisper_service/internal/http_server/middleware/authn"
	"whisper_service/internal/inbox"
	"whisper_service/internal/lib/api/validate"
	sl "whisper_service/internal/lib/logger"
	"whisper_service/internal/rabbitmq"
	"whisper_service/internal/storage/postgres"
	"whisper_service/internal/storage/redis"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-playground/validator/v10"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad("./config/config.yaml")

	log := setupLogger(cfg.Env)

	log.Info("starting whisper service", slog.String("env", cfg.Env))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("Shutdown signal received")
		cancel()
	}()

	storage, err := postgres.New(ctx, cfg)
	if err != nil {
		log.Error("failed to connect postgres", sl.Err(err))
		os.Exit(1)
	}
	defer storage.Close()

	sessions, err := redis.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Error("failed to connect redis", sl.Err(err))
		os.Exit(1)
	}
	defer sessions.Close()

	msgBroker, err := rabbitmq.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName)
	if err != nil {
		log.Error("failed to connect rabbitmq", sl.Err(err))
		os.Exit(1)
	}
	defer msgBroker.Close()

	accountService := accounts.New(log, storage, storage, msgBroker, cfg.Verification.CodeTTL)
	inboxService := inbox.New(log, storage)
	authService := auth.New(log, storage, sessions, cfg.Tokens.SessionTokenTTL, cfg.Tokens.SessionTokenSecret)

	router := setupRouter(log, validate.New(), accountService, inboxService, authService)

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server is running", slog.String("address", cfg.HTTPServer.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed", sl.Err(err))
			cancel()
		}
	}()

	<-ctx.Done()

	log.Info("Shutting down HTTP server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", sl.Err(err))
	} else {
		log.Info("Server stopped gracefully")
	}

	log.Info("Main service stopped")
}

func setupRouter(
	log *slog.Logger,
	validate *validator.Validate,
	accountService *accounts.Service,
	inboxService *inbox.Service,
	authService *auth.Auth,
) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/api/sign-up", signup.New(log, validate, accountService))
	r.Post("/api/verify-code", verify.New(log, validate, accountService))
	r.Get("/api/check-username", checkUsername.New(log, validate, accountService))
	r.Post("/api/sign-in", login.New(log, validate, authService))
	r.Post("/api/send-message", sendMessage.New(log, validate, inboxService))

	r.Group(func(r chi.Router) {
		r.Use(authn.New(log, authService))

		r.Post("/api/sign-out", logout.New(log, authService))
		r.Get("/api/accept-messages", acceptMessages.NewStatus(log, inboxService))
		r.Post("/api/accept-messages", acceptMessages.NewUpdate(log, validate, inboxService))
		r.Get("/api/messages", messages.New(log, inboxService))
		r.Delete("/api/messages/{messageID}", deleteMessage.New(log, inboxService))
	})

	return r
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
