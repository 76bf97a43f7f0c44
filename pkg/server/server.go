// Package server exposes analyses over HTTP: an upload form, PR analysis,
// report downloads and the operational endpoints.
package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/semaphore"

	"github.com/Sumatoshi-tech/codereport/pkg/language"
	"github.com/Sumatoshi-tech/codereport/pkg/observability"
	"github.com/Sumatoshi-tech/codereport/pkg/report"
	"github.com/Sumatoshi-tech/codereport/pkg/reportstore"
	"github.com/Sumatoshi-tech/codereport/pkg/service"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// Defaults.
const (
	DefaultMaxUploadBytes = 16 << 20
	DefaultMaxConcurrent  = 4
	DefaultReadTimeout    = 30 * time.Second
	DefaultWriteTimeout   = 10 * time.Minute
	DefaultIdleTimeout    = 2 * time.Minute
	DefaultShutdown       = 30 * time.Second

	// multipartMemory is how much of a multipart body is kept in memory
	// before spilling to temporary files.
	multipartMemory = 8 << 20

	headerReportID = "X-Report-ID"
)

// Server is the HTTP front end.
type Server struct {
	svc            *service.Service
	store          *reportstore.Store
	sem            *semaphore.Weighted
	maxUpload      int64
	reportOpts     report.Options
	logger         *slog.Logger
	tracer         trace.Tracer
	requests       *observability.RequestMetrics
	metricsHandler http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithMaxUploadBytes caps request bodies.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// WithMaxConcurrent bounds concurrently running analyses.
func WithMaxConcurrent(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithReportOptions sets PDF rendering options.
func WithReportOptions(opts report.Options) Option {
	return func(s *Server) { s.reportOpts = opts }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTracer sets the tracer used by the request middleware.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Server) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithRequestMetrics records per-route request metrics.
func WithRequestMetrics(requests *observability.RequestMetrics) Option {
	return func(s *Server) { s.requests = requests }
}

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// New returns a server analyzing with svc and keeping reports in store.
func New(svc *service.Service, store *reportstore.Store, opts ...Option) *Server {
	s := &Server{
		svc:       svc,
		store:     store,
		sem:       semaphore.NewWeighted(DefaultMaxConcurrent),
		maxUpload: DefaultMaxUploadBytes,
		logger:    slog.Default(),
		tracer:    nooptrace.NewTracerProvider().Tracer("server"),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Handler returns the routed, traced handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /{$}", s.instrument("index", http.HandlerFunc(s.handleIndex)))
	mux.Handle("POST /analyze", s.instrument("analyze", http.HandlerFunc(s.handleAnalyze)))
	mux.Handle("POST /analyze_pr", s.instrument("analyze_pr", http.HandlerFunc(s.handleAnalyzePR)))
	mux.Handle("GET /reports/{id}", s.instrument("report", http.HandlerFunc(s.handleReport)))

	mux.Handle("GET /healthz", observability.HealthHandler())
	mux.Handle("GET /readyz", observability.ReadyHandler(observability.ReadyCheck{
		Name:  "report_store",
		Check: s.store.Ready,
	}))

	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}

	return observability.HTTPMiddleware(s.tracer, s.logger, mux)
}

// Timeouts bound the HTTP server's connections.
type Timeouts struct {
	Read     time.Duration
	Write    time.Duration
	Idle     time.Duration
	Shutdown time.Duration
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Read <= 0 {
		t.Read = DefaultReadTimeout
	}

	if t.Write <= 0 {
		t.Write = DefaultWriteTimeout
	}

	if t.Idle <= 0 {
		t.Idle = DefaultIdleTimeout
	}

	if t.Shutdown <= 0 {
		t.Shutdown = DefaultShutdown
	}

	return t
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully. Expired reports are swept every sweepInterval meanwhile.
func (s *Server) Serve(ctx context.Context, ln net.Listener, timeouts Timeouts, sweepInterval time.Duration) error {
	timeouts = timeouts.withDefaults()

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       timeouts.Read,
		ReadHeaderTimeout: timeouts.Read,
		WriteTimeout:      timeouts.Write,
		IdleTimeout:       timeouts.Idle,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()

	if sweepInterval > 0 {
		go s.store.Run(sweepCtx, sweepInterval)
	}

	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("server listening",
			"addr", ln.Addr().String(),
			"max_upload", humanize.Bytes(uint64(s.maxUpload)))

		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("server shutting down", "timeout", timeouts.Shutdown)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeouts.Shutdown)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string, timeouts Timeouts, sweepInterval time.Duration) error {
	var lc net.ListenConfig

	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	return s.Serve(ctx, ln, timeouts, sweepInterval)
}

type languageView struct {
	Name     string
	Analyzed bool
}

type indexView struct {
	Error     string
	MaxUpload string
	Languages []languageView
}

func (s *Server) renderIndex(w http.ResponseWriter, r *http.Request, status int, message string) {
	view := indexView{Error: message, MaxUpload: humanize.Bytes(uint64(s.maxUpload))}

	for _, lang := range language.All() {
		_, ok := s.svc.Registry().For(lang)
		view.Languages = append(view.Languages, languageView{Name: string(lang), Analyzed: ok})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)

	err := indexTemplate.Execute(w, view)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "render index failed", "error", err)
	}
}

// statusRecorder captures the response code for request metrics.
type statusRecorder struct {
	http.ResponseWriter

	code int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.code = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func (s *Server) instrument(op string, next http.Handler) http.Handler {
	if s.requests == nil {
		return next
	}

	op = "http." + op

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		done := s.requests.Start(r.Context(), op)

		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)

		status := observability.StatusOK
		if rec.code >= http.StatusBadRequest {
			status = observability.StatusError
		}

		done(status)
	})
}
