// Package service ties intake, analysis and report rendering together. The
// HTTP server, the CLI and the MCP server all drive analyses through it.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/codereport/pkg/analysis"
	"github.com/Sumatoshi-tech/codereport/pkg/github"
	"github.com/Sumatoshi-tech/codereport/pkg/intake"
	"github.com/Sumatoshi-tech/codereport/pkg/observability"
)

// Sentinel errors.
var (
	ErrNoPRFiles     = errors.New("no supported code files downloaded from the PR")
	ErrNoGitHub      = errors.New("github client not configured")
	ErrPathNotExists = errors.New("path does not exist")
)

// Intake sources recorded on the report and in metrics.
const (
	SourceUpload  = "upload"
	SourceArchive = "archive"
	SourcePR      = "pr"
	SourcePath    = "path"
)

// Service runs analyses.
type Service struct {
	registry    *analysis.Registry
	github      *github.Client
	workBase    string
	limits      intake.Limits
	concurrency int
	timeout     time.Duration
	logger      *slog.Logger
	tracer      trace.Tracer
	metrics     *observability.AnalysisMetrics
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithGitHub enables PR analyses.
func WithGitHub(client *github.Client) Option {
	return func(s *Service) { s.github = client }
}

// WithWorkspaceBase sets the parent directory of per-job workspaces.
func WithWorkspaceBase(dir string) Option {
	return func(s *Service) { s.workBase = dir }
}

// WithLimits sets the archive extraction limits.
func WithLimits(limits intake.Limits) Option {
	return func(s *Service) { s.limits = limits }
}

// WithConcurrency bounds concurrently running metric jobs per analysis.
func WithConcurrency(n int) Option {
	return func(s *Service) { s.concurrency = n }
}

// WithTimeout bounds a whole analysis. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithMetrics records analysis metrics.
func WithMetrics(metrics *observability.AnalysisMetrics) Option {
	return func(s *Service) { s.metrics = metrics }
}

// WithClock overrides the report timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns a service analyzing with reg.
func New(reg *analysis.Registry, opts ...Option) *Service {
	s := &Service{
		registry: reg,
		logger:   slog.Default(),
		tracer:   nooptrace.NewTracerProvider().Tracer("service"),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Registry returns the analyzer registry.
func (s *Service) Registry() *analysis.Registry {
	return s.registry
}

// AnalyzeUpload analyzes one uploaded file or ZIP archive. The report is
// titled after the upload's file name.
func (s *Service) AnalyzeUpload(ctx context.Context, filename string, r io.Reader) (*analysis.Report, error) {
	source := SourceUpload
	if intake.IsArchive(filename) {
		source = SourceArchive
	}

	return s.withWorkspace(ctx, source, filepath.Base(filename), func(ctx context.Context, ws *intake.Workspace) (string, error) {
		return intake.SaveUpload(ws, filename, r)
	})
}

// AnalyzePR downloads the changed files of ref and analyzes them.
func (s *Service) AnalyzePR(ctx context.Context, ref github.PRRef) (*analysis.Report, error) {
	if s.github == nil {
		return nil, ErrNoGitHub
	}

	return s.withWorkspace(ctx, SourcePR, ref.String(), func(ctx context.Context, ws *intake.Workspace) (string, error) {
		dir := ws.Path("pr")

		result, err := s.github.FetchPRFiles(ctx, ref, dir)
		if err != nil {
			return "", fmt.Errorf("fetch %s: %w", ref, err)
		}

		if len(result.Files) == 0 {
			return "", ErrNoPRFiles
		}

		return dir, nil
	})
}

// AnalyzePath analyzes a local directory, ZIP archive or single file in
// place. Archives are extracted into a temporary workspace first.
func (s *Service) AnalyzePath(ctx context.Context, path string) (*analysis.Report, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrPathNotExists, path)
	}

	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	title := filepath.Base(filepath.Clean(path))

	if !info.IsDir() {
		// Single files and archives go through the upload path so the
		// file is copied into an isolated workspace.
		f, openErr := os.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("open %s: %w", path, openErr)
		}
		defer f.Close()

		return s.AnalyzeUpload(ctx, info.Name(), f)
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	return s.run(ctx, SourcePath, title, path)
}

func (s *Service) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, s.timeout)
}

// workFunc prepares a workspace and returns the directory to analyze.
type workFunc func(ctx context.Context, ws *intake.Workspace) (string, error)

func (s *Service) withWorkspace(ctx context.Context, source, title string, prepare workFunc) (*analysis.Report, error) {
	ws, err := intake.NewWorkspace(s.workBase, intake.WithLimits(s.limits), intake.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}

	defer func() {
		closeErr := ws.Close()
		if closeErr != nil {
			s.logger.WarnContext(ctx, "workspace cleanup failed", "dir", ws.Dir(), "error", closeErr)
		}
	}()

	ctx, cancel := s.bound(ctx)
	defer cancel()

	dir, err := prepare(ctx, ws)
	if err != nil {
		s.metrics.RecordAnalysis(ctx, source, observability.StatusError)

		return nil, err
	}

	return s.run(ctx, source, title, dir)
}

func (s *Service) run(ctx context.Context, source, title, dir string) (*analysis.Report, error) {
	ctx, span := s.tracer.Start(ctx, "codereport.service.analyze",
		trace.WithAttributes(
			attribute.String("analysis.source", source),
			attribute.String("analysis.title", title),
		),
	)
	defer span.End()

	start := time.Now()

	rep, err := analysis.Run(ctx, dir, s.registry, analysis.Options{
		Title:       title,
		Source:      source,
		Concurrency: s.concurrency,
		Logger:      s.logger,
		Tracer:      s.tracer,
		Metrics:     s.metrics,
		Now:         s.now,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.RecordAnalysis(ctx, source, observability.StatusError)

		return nil, fmt.Errorf("analyze %s: %w", title, err)
	}

	s.metrics.RecordAnalysis(ctx, source, observability.StatusOK)
	s.logger.InfoContext(ctx, "analysis finished",
		"title", title,
		"source", source,
		"languages", len(rep.Languages),
		"files", rep.TotalFiles(),
		"duration", time.Since(start).Round(time.Millisecond))

	return rep, nil
}
