package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"palmreader/internal/http/handlers"
	"palmreader/internal/infra"
	"palmreader/internal/middleware"
)

type Options struct {
	Logger           zerolog.Logger
	Metrics          *infra.Metrics
	AllowedOrigins   []string
	RateLimitPerHour int
	Country          middleware.CountryLookup
}

func NewRouter(app *handlers.App, opts Options) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.Logger(opts.Logger),
		chimw.Recoverer,
		middleware.CORS(opts.AllowedOrigins),
		middleware.APIKey,
		middleware.Country(opts.Country),
	)

	r.Get("/v1/healthz", app.Health)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics.Handler())
	}

	r.Route("/v1/readings", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(opts.RateLimitPerHour, time.Hour, middleware.ClientKey))
			r.Post("/palm", app.CreatePalmReading)
			r.Post("/numerology", app.CreateNumerologyReading)
			r.Post("/astrology", app.CreateAstrologyReading)
		})
		r.Get("/{id}", app.ReadingStatus)
		r.Get("/{id}/result", app.ReadingResult)
	})

	return r
}
