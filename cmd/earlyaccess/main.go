package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/codeboard/earlyaccess/internal/app"
	"github.com/codeboard/earlyaccess/internal/auth"
	"github.com/codeboard/earlyaccess/internal/contributions"
	"github.com/codeboard/earlyaccess/internal/notify"
	"github.com/codeboard/earlyaccess/internal/oauth"
	"github.com/codeboard/earlyaccess/internal/observability"
	"github.com/codeboard/earlyaccess/internal/platform/cache"
	"github.com/codeboard/earlyaccess/internal/platform/db"
	"github.com/codeboard/earlyaccess/internal/users"
	"github.com/codeboard/earlyaccess/jobs"
)

// notifier is satisfied by both the queue client and the direct mailer.
type notifier interface {
	auth.Notifier
	contributions.Notifier
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	if err := run(ctx, stop, cfg, logger); err != nil {
		logger.Error("earlyaccess exited", slog.Any("error", err))
		stop()
		os.Exit(1)
	}
}

// run wires the API and serves it until ctx is done.
func run(ctx context.Context, stop context.CancelFunc, cfg *app.Config, logger *slog.Logger) error {
	metrics := observability.NewMetrics()

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer dbpool.Close()

	if err := db.Migrate(ctx, dbpool); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	mail, closeMail, err := newNotifier(cfg, redisOpts, logger, metrics)
	if err != nil {
		return fmt.Errorf("init mail delivery: %w", err)
	}
	defer closeMail()

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return fmt.Errorf("init token service: %w", err)
	}

	userStore := users.NewRepository(dbpool)
	authService := auth.NewService(userStore, tokens, mail, logger)
	authHandler := auth.NewHandler(logger, authService, metrics)

	if !cfg.GoogleEnabled() {
		logger.Warn("google oauth credentials missing, sign-in with google will fail")
	}
	oauthHandler, err := auth.NewOAuthHandler(auth.OAuthHandlerParams{
		Logger:  logger,
		Service: authService,
		Provider: oauth.NewGoogleProvider(oauth.GoogleConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		}, nil),
		States:      oauth.NewStateStore(redisClient, cfg.OAuthStateSecret, cfg.OAuthStateTTL),
		FrontendURL: cfg.FrontendURL,
		Metrics:     metrics,
	})
	if err != nil {
		return fmt.Errorf("init oauth handler: %w", err)
	}

	contributionService := contributions.NewService(contributions.NewRepository(dbpool), mail, logger)
	contributionHandler := contributions.NewHandler(logger, contributionService, authService)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("asynq inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		AuthHandler:          authHandler,
		OAuthHandler:         oauthHandler,
		ContributionsHandler: contributionHandler,
		JobHandler:           jobs.NewHandler(inspector, logger),
		Metrics:              metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("mail_delivery", cfg.MailDelivery))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func newNotifier(cfg *app.Config, redisOpts asynq.RedisClientOpt, logger *slog.Logger, metrics *observability.Metrics) (notifier, func(), error) {
	if cfg.MailDelivery == app.MailDeliveryQueue {
		client := jobs.NewClient(redisOpts)
		return client, func() {
			if err := client.Close(); err != nil {
				logger.Warn("asynq client close", slog.Any("error", err))
			}
		}, nil
	}
	mailer, err := app.NewMailer(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return notify.NewDirect(mailer, metrics), func() {}, nil
}
