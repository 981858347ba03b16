package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/resumeloft/backend/api/routes"
	"github.com/resumeloft/backend/internal/auth"
	checkoutsvc "github.com/resumeloft/backend/internal/checkout"
	"github.com/resumeloft/backend/internal/entitlements"
	"github.com/resumeloft/backend/internal/resumes"
	"github.com/resumeloft/backend/internal/suggestions"
	"github.com/resumeloft/backend/internal/users"
	stripewebhook "github.com/resumeloft/backend/internal/webhooks/stripe"
	"github.com/resumeloft/backend/pkg/auth/session"
	"github.com/resumeloft/backend/pkg/config"
	"github.com/resumeloft/backend/pkg/db"
	"github.com/resumeloft/backend/pkg/logger"
	"github.com/resumeloft/backend/pkg/mailer"
	"github.com/resumeloft/backend/pkg/metrics"
	"github.com/resumeloft/backend/pkg/migrate"
	"github.com/resumeloft/backend/pkg/openai"
	"github.com/resumeloft/backend/pkg/redis"
	pkgstripe "github.com/resumeloft/backend/pkg/stripe"
)

const webhookIdempotencyTTL = 72 * time.Hour

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe client", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	paymentMetrics := metrics.NewPaymentMetrics(registry)

	userRepo := users.NewRepository(dbClient.DB())
	resumeRepo := resumes.NewRepository(dbClient.DB())
	sessionRepo := checkoutsvc.NewRepository(dbClient.DB())

	entitlementService, err := entitlements.NewService(entitlements.ServiceParams{
		ResumeRepo: resumeRepo,
		UserRepo:   userRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create entitlement service", err)
		os.Exit(1)
	}

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       userRepo,
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create auth service", err)
		os.Exit(1)
	}

	registerService, err := auth.NewRegisterService(auth.RegisterServiceParams{
		TxRunner:       dbClient,
		PasswordConfig: cfg.Password,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create register service", err)
		os.Exit(1)
	}

	resumeService, err := resumes.NewService(resumes.ServiceParams{
		DB:           dbClient,
		Repo:         resumeRepo,
		UserRepo:     userRepo,
		Entitlements: entitlementService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create resume service", err)
		os.Exit(1)
	}

	checkoutService, err := checkoutsvc.NewService(checkoutsvc.ServiceParams{
		DB:           dbClient,
		SessionRepo:  sessionRepo,
		ResumeRepo:   resumeRepo,
		UserRepo:     userRepo,
		StripeClient: checkoutsvc.NewStripeClient(stripeClient),
		StripeConfig: cfg.Stripe,
		Metrics:      paymentMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	var mailClient *mailer.Client
	if cfg.Sendgrid.APIKey != "" {
		mailClient, err = mailer.NewClient(cfg.Sendgrid.APIKey, cfg.Sendgrid.DefaultFrom)
		if err != nil {
			logg.Error(context.Background(), "failed to create mailer", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(context.Background(), "sendgrid api key missing, receipt emails disabled")
	}

	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, webhookIdempotencyTTL, "stripe-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	webhookParams := stripewebhook.ServiceParams{
		SessionRepo:       sessionRepo,
		ResumeRepo:        resumeRepo,
		UserRepo:          userRepo,
		TransactionRunner: dbClient,
		Metrics:           paymentMetrics,
		Logger:            logg,
	}
	if mailClient != nil {
		webhookParams.Mailer = mailClient
	}
	webhookService, err := stripewebhook.NewService(webhookParams)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	var suggestionService suggestions.Service
	if cfg.OpenAI.APIKey != "" {
		openaiClient, err := openai.NewClient(cfg.OpenAI.APIKey, openai.WithModel(cfg.OpenAI.Model))
		if err != nil {
			logg.Error(context.Background(), "failed to create openai client", err)
			os.Exit(1)
		}
		suggestionService, err = suggestions.NewService(suggestions.ServiceParams{
			Entitlements: entitlementService,
			Completions:  openaiClient,
		})
		if err != nil {
			logg.Error(context.Background(), "failed to create suggestion service", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(context.Background(), "openai api key missing, AI suggestions disabled")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:               cfg,
			Logger:               logg,
			DB:                   dbClient,
			Redis:                redisClient,
			SessionManager:       sessionManager,
			AuthService:          authService,
			RegisterService:      registerService,
			ResumeService:        resumeService,
			CheckoutService:      checkoutService,
			SuggestionService:    suggestionService,
			StripeClient:         stripeClient,
			StripeWebhookService: webhookService,
			StripeWebhookGuard:   webhookGuard,
			MetricsRegistry:      registry,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
