package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"server/internal/http/handlers"
	"server/internal/middleware"
)

// Options configures cross-cutting router behavior.
type Options struct {
	Logger          zerolog.Logger
	AllowedOrigins  []string
	RateLimitPerMin int
	CountryLookup   middleware.CountryLookup
}

// NewRouter wires the middleware chain and every route onto a chi router.
func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
		middleware.I18N("en", opts.CountryLookup),
	)
	if opts.RateLimitPerMin > 0 {
		r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
	}

	r.Get("/v1/healthz", app.Health)
	r.Post("/v1/auth/google", app.AuthGoogleVerify)
	r.Post("/v1/billing/webhook", app.BillingWebhook)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(app.JWTSecret))

		r.Get("/v1/me", app.Me)
		r.Get("/v1/credits/balance", app.CreditBalance)

		r.Route("/v1/usage", func(r chi.Router) {
			r.Get("/current", app.UsageCurrent)
			r.Get("/history", app.UsageHistory)
			r.Get("/export", app.UsageExport)
		})

		r.Route("/v1/tools", func(r chi.Router) {
			r.Post("/write", app.ToolWrite)
			r.Post("/research", app.ToolResearch)
			r.Post("/detect", app.ToolDetect)
			r.Post("/humanize", app.ToolHumanize)
			r.Post("/optimize-prompt", app.ToolOptimizePrompt)
		})

		r.Route("/v1/results", func(r chi.Router) {
			r.Get("/", app.ResultsList)
			r.Get("/{id}", app.ResultGet)
		})
	})

	return r
}
