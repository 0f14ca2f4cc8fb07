// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/starford/justwrite/internal/api"
	"github.com/starford/justwrite/internal/mcpserver"
	"github.com/starford/justwrite/internal/record"
	"github.com/starford/justwrite/internal/resource"
	"github.com/starford/justwrite/internal/sse"
	"github.com/starford/justwrite/internal/storage"
	"github.com/starford/justwrite/internal/watch"
)

// runtime holds the components shared by the HTTP and MCP front ends.
type runtime struct {
	cfg      *Config
	logger   *slog.Logger
	store    *storage.FS
	registry *resource.Registry
	metrics  *prometheus.Registry
	broker   *sse.Broker
}

func setup(opts []Option) (*application, *runtime, error) {
	app := &application{logOut: os.Stdout, version: "dev"}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("content_dir", cfg.Content.Dir),
		slog.Int("collections", len(cfg.Collections)),
		slog.String("log_level", cfg.App.LogLevel.String()))

	files := make([]string, len(cfg.Collections))
	for i, c := range cfg.Collections {
		files[i] = c.File
	}
	store, err := storage.Bootstrap(cfg.Content.Dir, files, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("init storage: %w", err)
	}

	rt := &runtime{cfg: cfg, logger: logger, store: store}

	var engineOpts []resource.Option
	engineOpts = append(engineOpts, resource.WithLogger(logger))

	if cfg.Metrics.Enabled {
		rt.metrics = prometheus.NewRegistry()
		rt.metrics.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		engineOpts = append(engineOpts, resource.WithMetrics(resource.NewMetrics(rt.metrics)))
	}

	if cfg.Events.Enabled {
		rt.broker = sse.NewBroker(2 * time.Second)
		engineOpts = append(engineOpts, resource.WithHooks(brokerHooks(rt.broker)))
	}

	engines := make([]*resource.Engine, len(cfg.Collections))
	for i, c := range cfg.Collections {
		engines[i] = resource.New(c.Name, c.File, store, c.Policy(), engineOpts...)
	}
	rt.registry, err = resource.NewRegistry(engines...)
	if err != nil {
		return nil, nil, fmt.Errorf("init collections: %w", err)
	}

	return app, rt, nil
}

// brokerHooks publishes every mutation as an SSE change event.
func brokerHooks(b *sse.Broker) resource.Hooks {
	return resource.Hooks{
		Created: func(collection string, r record.Record) {
			b.PublishChange(collection, sse.KindCreated, r.ID())
		},
		Replaced: func(collection string, r record.Record) {
			b.PublishChange(collection, sse.KindUpdated, r.ID())
		},
		Deleted: func(collection string, r record.Record) {
			b.PublishChange(collection, sse.KindDeleted, r.ID())
		},
	}
}

// handler assembles the root router: health checks, metrics, and the
// collection API mounted at the root.
func (rt *runtime) handler() http.Handler {
	cfg := rt.cfg

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  slog.NewLogLogger(rt.logger.Handler(), slog.LevelInfo),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)

	// Health check endpoints.
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		for _, e := range rt.registry.All() {
			if _, err := e.List(req.Context(), nil); err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = fmt.Fprintf(w, `{"status":"unavailable","collection":%q}`, e.Name())
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	apiOpts := api.Options{
		Logger:      rt.logger,
		AllowOrigin: cfg.CORS.AllowOrigin,
	}
	if cfg.RateLimit.RPS > 0 {
		apiOpts.Limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst)
	}
	if rt.metrics != nil {
		apiOpts.Metrics = api.NewHTTPMetrics(rt.metrics)
		r.Handle(cfg.Metrics.Path, promhttp.HandlerFor(rt.metrics, promhttp.HandlerOpts{}))
	}
	if rt.broker != nil {
		apiOpts.Events = rt.broker
	}

	r.Mount("/", api.NewRouter(rt.registry, apiOpts))
	return r
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, rt, err := setup(opts)
	if err != nil {
		return err
	}
	cfg, logger := rt.cfg, rt.logger
	if rt.broker != nil {
		defer rt.broker.Close()
	}

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           rt.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	logger.Info("Server starting...", slog.String("http_address", ln.Addr().String()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher; external edits reach SSE clients as reload events.
	if cfg.Content.Watch {
		g.Go(func() error {
			err := watch.Watch(gCtx, rt.registry, rt.store, rt.store.Root(), logger, func(collection string) {
				if rt.broker != nil {
					rt.broker.PublishChange(collection, sse.KindReloaded, "")
				}
			})
			if err != nil {
				logger.Warn("content watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", ln.Addr().String()))
		if app.onStart != nil {
			app.onStart(ln.Addr().String())
		}
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the collections as MCP tools over stdin/stdout. Logs go to
// stderr unless WithLogOutput says otherwise, since stdout carries the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	opts = append([]Option{WithLogOutput(os.Stderr)}, opts...)
	app, rt, err := setup(opts)
	if err != nil {
		return err
	}
	if rt.broker != nil {
		defer rt.broker.Close()
	}

	rt.logger.Info("Serving MCP over stdio", slog.String("version", app.version))
	srv := mcpserver.New(rt.registry, app.version)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ServeStdio() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}
