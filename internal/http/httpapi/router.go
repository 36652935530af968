package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"orbitstudio/internal/http/handlers"
	"orbitstudio/internal/infra"
	"orbitstudio/internal/metrics"
	"orbitstudio/internal/middleware"
)

// Options carries the cross-cutting settings of the public API.
type Options struct {
	DefaultLocale   string
	CountryLookup   middleware.CountryLookup
	RateLimitPerMin int
	// TrustProxy rewrites the remote address from proxy headers before
	// logging and rate limiting.
	TrustProxy  bool
	JWTSecret   string
	CORSOrigins []string
	// Metrics, when set, instruments every route and serves /metrics.
	Metrics *metrics.Collector
	Logger  *infra.Logger
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	if opts.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(
		middleware.Logger(opts.Logger),
		opts.Metrics.Middleware,
		chimw.Recoverer,
		middleware.CORS(opts.CORSOrigins),
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
	)

	r.Get("/v1/healthz", app.Health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(middleware.NewRateLimiter(opts.RateLimitPerMin), app.TooManyRequests))
		r.Get("/v1/form", app.Form)
		r.Post("/v1/form/reset", app.ResetForm)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Identity(opts.JWTSecret, app.Unauthorized))
			r.Post("/v1/surfaces/{surface_id}/generations", app.CreateGeneration)
			r.Delete("/v1/surfaces/{surface_id}/generation", app.CancelGeneration)
			r.Get("/v1/generations/{id}", app.GetGeneration)
		})
	})

	return r
}
