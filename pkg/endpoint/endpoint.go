// Package endpoint exposes the collection API as a chi router that host
// servers can mount under any prefix.
package endpoint

import (
	"fmt"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/starford/justwrite/internal/api"
	"github.com/starford/justwrite/internal/resource"
	"github.com/starford/justwrite/internal/storage"
)

// Collection declares one collection served by the router.
type Collection struct {
	Name           string
	File           string
	RequiredFields []string
	UniqueFields   []string
	Timestamp      bool
	TagField       string
}

// DefaultCollections returns the pages and tags collections.
func DefaultCollections() []Collection {
	return []Collection{
		{Name: "pages", File: "pages.json", RequiredFields: []string{"content", "title"}, Timestamp: true, TagField: "tags"},
		{Name: "tags", File: "tags.json", RequiredFields: []string{"name", "slug"}, UniqueFields: []string{"slug"}},
	}
}

type options struct {
	collections []Collection
	logger      *slog.Logger
	allowOrigin string
	limiter     *rate.Limiter
}

// Option configures NewRouter.
type Option func(*options)

// WithCollections replaces the default collections.
func WithCollections(cs ...Collection) Option {
	return func(o *options) { o.collections = cs }
}

// WithLogger sets the logger used for request failures and storage errors.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithCORS sets the Access-Control-Allow-Origin value.
func WithCORS(origin string) Option {
	return func(o *options) { o.allowOrigin = origin }
}

// WithRateLimit caps requests per second across all clients.
func WithRateLimit(rps float64, burst int) Option {
	return func(o *options) { o.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// NewRouter creates contentDir and any missing collection files, then
// returns a router serving every collection under /<name>.
func NewRouter(contentDir string, opts ...Option) (chi.Router, error) {
	o := &options{
		collections: DefaultCollections(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if len(o.collections) == 0 {
		return nil, fmt.Errorf("endpoint: no collections")
	}

	files := make([]string, len(o.collections))
	for i, c := range o.collections {
		files[i] = c.File
	}
	store, err := storage.Bootstrap(contentDir, files, o.logger)
	if err != nil {
		return nil, fmt.Errorf("endpoint: %w", err)
	}

	engines := make([]*resource.Engine, len(o.collections))
	for i, c := range o.collections {
		engines[i] = resource.New(c.Name, c.File, store, resource.Policy{
			RequiredFields: c.RequiredFields,
			UniqueFields:   c.UniqueFields,
			Timestamp:      c.Timestamp,
			TagField:       c.TagField,
		}, resource.WithLogger(o.logger))
	}
	reg, err := resource.NewRegistry(engines...)
	if err != nil {
		return nil, fmt.Errorf("endpoint: %w", err)
	}

	return api.NewRouter(reg, api.Options{
		Logger:      o.logger,
		AllowOrigin: o.allowOrigin,
		Limiter:     o.limiter,
	}), nil
}
