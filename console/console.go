// Package console serves the schemawatch web console and JSON API over a
// running collector.
//
// Routes:
//
//	GET    /                                    operation index
//	GET    /operations/{name}                   one operation
//	GET    /document                            rendered Markdown export
//	POST   /clear                               clear, then redirect to /
//	GET    /events                              websocket stream of stored snapshots
//	GET    /api/status
//	GET    /api/operations
//	DELETE /api/operations
//	GET    /api/operations/{name}
//	GET    /api/operations/{name}/jsonschema
//	POST   /api/operations/{name}/check
//	GET    /api/export                          Markdown attachment
//	GET    /metrics
//	GET    /healthz
package console

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hazyhaar/schemawatch/collector"
	"github.com/hazyhaar/schemawatch/shield"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.logger = l } }

// WithRateLimit sets the per-client API rate. Default: 20/s, burst 40.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Server) { s.rate, s.burst = perSecond, burst }
}

// Server is the console. It holds no state of its own beyond templates.
type Server struct {
	c      *collector.Collector
	cfg    collector.HTTPConfig
	logger *slog.Logger
	pages  map[string]*template.Template

	rate     float64
	burst    int
	upgrader websocket.Upgrader
}

// New builds the console for c using c's HTTP configuration.
func New(c *collector.Collector, opts ...Option) (*Server, error) {
	s := &Server{
		c:     c,
		cfg:   c.Config().HTTP,
		rate:  20,
		burst: 40,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	pages, err := parsePages()
	if err != nil {
		return nil, err
	}
	s.pages = pages
	return s, nil
}

// Handler returns the routed console.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	for _, mw := range shield.ConsoleStack(s.logger) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "ready": s.c.Ready()})
	})

	r.Group(func(r chi.Router) {
		r.Use(shield.BasicAuth("schemawatch", s.cfg.User, s.cfg.PasswordHash))

		r.Handle("/metrics", promhttp.HandlerFor(s.c.Gatherer(), promhttp.HandlerOpts{}))
		static, _ := fs.Sub(staticFS, "static")
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(static)))
		r.Get("/events", s.handleEvents)

		r.Group(func(r chi.Router) {
			r.Use(shield.Unavailable(s.c.Ready, time.Second))

			r.Get("/", s.handleIndex)
			r.Get("/operations/{name}", s.handleOperation)
			r.Get("/document", s.handleDocument)
			r.Post("/clear", s.handleClear)

			r.Route("/api", func(r chi.Router) {
				r.Use(shield.NewRateLimiter(s.rate, s.burst, s.logger).Middleware)
				r.Get("/status", s.apiStatus)
				r.Get("/export", s.apiExport)
				r.Route("/operations", func(r chi.Router) {
					r.Get("/", s.apiList)
					r.Delete("/", s.apiClear)
					r.Get("/{name}", s.apiGet)
					r.Get("/{name}/jsonschema", s.apiJSONSchema)
					r.Post("/{name}/check", s.apiCheck)
				})
			})
		})
	})
	return r
}

// ListenAndServe serves the console on the configured address until ctx is
// done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("console: listening", "addr", ln.Addr().String(), "auth", s.cfg.PasswordHash != "")
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
