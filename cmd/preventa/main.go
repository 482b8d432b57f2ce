package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/preventa/preventa/internal/app"
	"github.com/preventa/preventa/internal/auth"
	"github.com/preventa/preventa/internal/billing"
	"github.com/preventa/preventa/internal/budget"
	"github.com/preventa/preventa/internal/certificate"
	"github.com/preventa/preventa/internal/observability"
	"github.com/preventa/preventa/internal/platform/cache"
	"github.com/preventa/preventa/internal/platform/db"
	"github.com/preventa/preventa/internal/shared"
	"github.com/preventa/preventa/internal/signature"
	"github.com/preventa/preventa/internal/view"
	"github.com/preventa/preventa/jobs"
	"github.com/preventa/preventa/report"
)

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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	renderer, err := certificate.NewRenderer(cfg.BaseURL)
	if err != nil {
		logger.Error("parse document templates", slog.Any("error", err))
		os.Exit(1)
	}

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	events := shared.NewEventRecorder(pool, logger)
	metrics := observability.NewMetrics()

	budgetRepo := budget.NewRepository(pool)
	budgetService := budget.NewService(budgetRepo, logger)
	budgetHandler := budget.NewHandler(logger, budgetService, templates)

	signatureRepo := signature.NewRepository(pool)
	signatureService := signature.NewService(signatureRepo, budgetRepo, jobClient, renderer, events, logger)
	signatureHandler := signature.NewHandler(logger, signatureService, budgetService, events, metrics)

	reportClient := report.NewClient(cfg.GotenbergURL)
	if err := reportClient.Ping(ctx); err != nil {
		logger.Warn("gotenberg ping", slog.Any("error", err))
	}
	certificateHandler := certificate.NewHandler(logger, budgetService, signatureService, renderer, reportClient)

	billingRepo := billing.NewRepository(pool)
	billingHandler := billing.NewHandler(logger, billingRepo, cfg.BillingWebhookSecret)

	tokenStore := auth.NewTokenStore(redisClient, cfg.SessionTTL)
	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo, tokenStore, budgetService, logger)
	authHandler := auth.NewHandler(logger, authService, tokenStore)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		AuthHandler:        authHandler,
		BudgetHandler:      budgetHandler,
		SignatureHandler:   signatureHandler,
		CertificateHandler: certificateHandler,
		BillingHandler:     billingHandler,
		JobHandler:         jobHandler,
		TokenStore:         tokenStore,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("server", slog.Any("error", err))
		os.Exit(1)
	}
}
