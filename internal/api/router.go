package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/starford/justwrite/internal/apperr"
	"github.com/starford/justwrite/internal/resource"
)

// Options configures the router. The zero value serves the collections
// with no CORS, no rate limit, no metrics and no event stream.
type Options struct {
	Logger      *slog.Logger
	AllowOrigin string
	Limiter     *rate.Limiter
	Metrics     *HTTPMetrics
	// Events, if non-nil, is mounted at GET /events.
	Events http.Handler
}

// NewRouter mounts every collection in reg under /<name>.
func NewRouter(reg *resource.Registry, opts Options) chi.Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(opts.Metrics.Middleware)
	r.Use(CORSMiddleware(opts.AllowOrigin))
	r.Use(RateLimitMiddleware(opts.Limiter))

	for _, e := range reg.All() {
		h := NewHandler(e, logger)
		r.Route("/"+e.Name(), func(r chi.Router) {
			r.Get("/", h.Serve)
			r.Post("/", h.Serve)
			r.Put("/", h.Serve)
			r.Delete("/", h.Serve)
			if e.Policy().TagField != "" {
				r.Get("/tagged/{tagIDs}", h.Tagged)
			}
			r.Get("/{id}", h.Serve)
			r.Post("/{id}", h.Serve)
			r.Put("/{id}", h.Serve)
			r.Delete("/{id}", h.Serve)
		})
	}

	if opts.Events != nil {
		r.Get("/events", opts.Events.ServeHTTP)
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		logFailure(logger, req, http.StatusNotFound, nil)
		writeText(w, http.StatusNotFound, "Route not supported")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		logFailure(logger, req, http.StatusMethodNotAllowed, nil)
		writeText(w, http.StatusMethodNotAllowed, apperr.GenericMessage(http.StatusMethodNotAllowed))
	})
	return r
}
