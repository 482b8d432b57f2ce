package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/preventa/preventa/internal/auth"
	"github.com/preventa/preventa/internal/billing"
	"github.com/preventa/preventa/internal/budget"
	"github.com/preventa/preventa/internal/certificate"
	"github.com/preventa/preventa/internal/observability"
	"github.com/preventa/preventa/internal/signature"
	"github.com/preventa/preventa/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	AuthHandler        *auth.Handler
	BudgetHandler      *budget.Handler
	SignatureHandler   *signature.Handler
	CertificateHandler *certificate.Handler
	BillingHandler     *billing.Handler
	JobHandler         *jobs.Handler
	TokenStore         *auth.TokenStore
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(httprate.Limit(20, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
			params.AuthHandler.MountPublicRoutes(r)
		})
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(params.TokenStore))
			params.AuthHandler.MountOwnerRoutes(r)
		})
	})

	r.Route("/budgets", func(r chi.Router) {
		r.Use(auth.RequireAuth(params.TokenStore))
		params.BudgetHandler.MountRoutes(r)
		if params.SignatureHandler != nil {
			params.SignatureHandler.MountOwnerRoutes(r)
		}
	})

	// Public surface: shared quote views and the OTP signing flow. The
	// whole group is rate limited since it is reachable without a token.
	r.Route("/p/{publicID}", func(r chi.Router) {
		r.Use(httprate.Limit(60, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		r.Get("/", params.BudgetHandler.PublicShow)
		r.Get("/json", params.BudgetHandler.PublicJSON)
		if params.CertificateHandler != nil {
			params.CertificateHandler.MountPublicRoutes(r)
		}
		if params.SignatureHandler != nil {
			params.SignatureHandler.MountPublicRoutes(r)
		}
	})

	r.Route("/billing", func(r chi.Router) {
		params.BillingHandler.MountWebhookRoutes(r)
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(params.TokenStore))
			params.BillingHandler.MountOwnerRoutes(r)
		})
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
