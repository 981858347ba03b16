package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/resumeloft/backend/api/controllers"
	webhookcontrollers "github.com/resumeloft/backend/api/controllers/webhooks"
	"github.com/resumeloft/backend/api/middleware"
	"github.com/resumeloft/backend/internal/auth"
	checkoutsvc "github.com/resumeloft/backend/internal/checkout"
	"github.com/resumeloft/backend/internal/resumes"
	"github.com/resumeloft/backend/internal/suggestions"
	stripewebhook "github.com/resumeloft/backend/internal/webhooks/stripe"
	"github.com/resumeloft/backend/pkg/auth/session"
	"github.com/resumeloft/backend/pkg/config"
	"github.com/resumeloft/backend/pkg/logger"
	"github.com/resumeloft/backend/pkg/redis"
	"github.com/resumeloft/backend/pkg/stripe"
)

type sessionManager interface {
	session.AccessSessionChecker
	Rotate(context.Context, string, string) (string, string, error)
	Revoke(context.Context, string) error
}

type dbPinger interface {
	Ping(ctx context.Context) error
}

// RouterParams carries everything the HTTP surface needs.
type RouterParams struct {
	Config               *config.Config
	Logger               *logger.Logger
	DB                   dbPinger
	Redis                *redis.Client
	SessionManager       sessionManager
	AuthService          auth.Service
	RegisterService      auth.RegisterService
	ResumeService        resumes.Service
	CheckoutService      checkoutsvc.Service
	SuggestionService    suggestions.Service
	StripeClient         *stripe.Client
	StripeWebhookService *stripewebhook.Service
	StripeWebhookGuard   *stripewebhook.IdempotencyGuard
	MetricsRegistry      *prometheus.Registry
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, params.DB, params.Redis))
	})

	if params.MetricsRegistry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(params.MetricsRegistry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(params.StripeWebhookService, params.StripeClient, params.StripeWebhookGuard, logg))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, params.Redis, logg)).Post("/login", controllers.Login(params.AuthService, logg))
		r.With(middleware.AuthRateLimit(registerPolicy, params.Redis, logg)).Post("/register", controllers.Register(params.RegisterService, logg))
		r.Post("/refresh", controllers.Refresh(params.AuthService, logg))
		r.Post("/logout", controllers.Logout(params.AuthService, logg))
	})

	r.Route("/api/v1/resumes", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, params.SessionManager, logg))
		r.Use(middleware.Idempotency(params.Redis, logg))

		r.Post("/", controllers.CreateResume(params.ResumeService, logg))
		r.Get("/", controllers.ListResumes(params.ResumeService, logg))

		r.Route("/{resumeID}", func(r chi.Router) {
			r.Get("/", controllers.GetResume(params.ResumeService, logg))
			r.Patch("/", controllers.UpdateResume(params.ResumeService, logg))
			r.Delete("/", controllers.DeleteResume(params.ResumeService, logg))
			r.Get("/export", controllers.ExportResume(params.ResumeService, logg))
			r.Post("/checkout", controllers.CreateCheckout(params.CheckoutService, logg))
			r.Get("/verify-payment", controllers.VerifyPayment(params.CheckoutService, logg))
			r.Post("/suggestions", controllers.SuggestText(params.SuggestionService, logg))
		})
	})

	return r
}
