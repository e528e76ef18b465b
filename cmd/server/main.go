package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"botforge/internal/app"
	"botforge/internal/billing"
	"botforge/internal/chat"
	"botforge/internal/config"
	"botforge/internal/ratelimit"
	"botforge/internal/server"
	"botforge/internal/util"
	"botforge/pkg/ai"
	"botforge/pkg/storage"
	"botforge/pkg/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		return err
	}
	util.InitLogger(cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.NewGormStore(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}

	revoker := store.NewRedisTokenRevoker(cfg.Redis.Addr, cfg.Redis.Password)
	sessions, err := store.NewJWTSessionStore(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL.Std(), revoker, store.JWTOptions{})
	if err != nil {
		return fmt.Errorf("init sessions: %w", err)
	}

	pics, err := storage.NewMinioStore(cfg.Storage.Endpoint, cfg.Storage.AccessKey,
		cfg.Storage.SecretKey, cfg.Storage.PicsBucket, cfg.Storage.UseSSL)
	if err != nil {
		return fmt.Errorf("init picture storage: %w", err)
	}
	files, err := storage.NewMinioStore(cfg.Storage.Endpoint, cfg.Storage.AccessKey,
		cfg.Storage.SecretKey, cfg.Storage.DataBucket, cfg.Storage.UseSSL)
	if err != nil {
		return fmt.Errorf("init file storage: %w", err)
	}

	generator, err := ai.NewGeminiClient(cfg.Gemini.APIKey, ai.WithModel(cfg.Gemini.Model))
	if err != nil {
		return fmt.Errorf("init gemini client: %w", err)
	}

	chatSvc, err := chat.NewService(chat.NewKnowledgeLoader(files), generator)
	if err != nil {
		return fmt.Errorf("init chat service: %w", err)
	}
	chatSessions := chat.NewSessionManager(cfg.Chat.SessionIdleTTL.Std())
	go chatSessions.Run(ctx)

	var billingClient *billing.Client
	if cfg.Stripe.SecretKey != "" {
		billingClient, err = billing.NewClient(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret,
			cfg.Server.PublicBaseURL, st)
		if err != nil {
			return fmt.Errorf("init billing: %w", err)
		}
	} else {
		slog.Warn("stripe is not configured, paid bots cannot be subscribed to")
	}

	limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.Redis.Addr, cfg.Redis.Password,
		"", cfg.RateLimit.AuthLimit, cfg.RateLimit.AuthWindow.Std())
	if err != nil {
		return fmt.Errorf("init rate limiter: %w", err)
	}

	application, err := app.New(st, sessions, pics, files, chatSvc, chatSessions, billingClient)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.New(application, billingClient, limiter).Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
