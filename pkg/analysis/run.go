package analysis

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/Sumatoshi-tech/codereport/pkg/language"
	"github.com/Sumatoshi-tech/codereport/pkg/observability"
)

// Options tune a Run.
type Options struct {
	// Title names the submission in the report.
	Title string
	// Source tags the intake kind ("upload", "archive", "pr", "path").
	Source string
	// Concurrency bounds concurrently running metric jobs. Zero uses GOMAXPROCS.
	Concurrency int
	Logger      *slog.Logger
	Tracer      trace.Tracer
	Metrics     *observability.AnalysisMetrics
	// Now overrides the clock for GeneratedAt.
	Now func() time.Time
}

func (o *Options) defaults() {
	if o.Concurrency <= 0 {
		o.Concurrency = runtime.GOMAXPROCS(0)
	}

	if o.Logger == nil {
		o.Logger = slog.Default()
	}

	if o.Tracer == nil {
		o.Tracer = nooptrace.NewTracerProvider().Tracer("analysis")
	}

	if o.Now == nil {
		o.Now = time.Now
	}
}

type job struct {
	index  int
	metric Metric
}

// Run analyzes every supported file under dir. Files are grouped by
// language, each language with an analyzer gets its four metrics computed,
// and every located issue is indexed by file. Returns [ErrNoSupportedFiles]
// when dir holds no supported file.
func Run(ctx context.Context, dir string, reg *Registry, opts Options) (*Report, error) {
	opts.defaults()

	ctx, span := opts.Tracer.Start(ctx, "codereport.analysis.run",
		trace.WithAttributes(attribute.String("analysis.source", opts.Source)),
	)
	defer span.End()

	groups, err := language.Group(dir)
	if err != nil {
		return nil, fmt.Errorf("collect files: %w", err)
	}

	if len(groups) == 0 {
		return nil, ErrNoSupportedFiles
	}

	langs := make([]language.Language, 0, len(groups))
	for lang := range groups {
		langs = append(langs, lang)
	}

	slices.Sort(langs)

	report := &Report{
		Title:       opts.Title,
		Source:      opts.Source,
		GeneratedAt: opts.Now(),
		Languages:   make([]LanguageReport, len(langs)),
		Files:       make(FileIndex),
	}

	var jobs []job

	for idx, lang := range langs {
		lr := LanguageReport{Language: lang, Files: groups[lang]}

		if an, ok := reg.For(lang); ok {
			lr.Analyzer = an.Name()
			lr.Analyzed = true
			lr.Results = make(map[Metric]MetricResult, len(Metrics))

			for _, metric := range Metrics {
				jobs = append(jobs, job{index: idx, metric: metric})
			}
		}

		report.Languages[idx] = lr

		opts.Metrics.RecordFiles(ctx, string(lang), len(lr.Files))
		opts.Logger.InfoContext(ctx, "language detected",
			"language", lang, "files", len(lr.Files), "analyzer", lr.Analyzer)

		if opts.Logger.Enabled(ctx, slog.LevelDebug) {
			logDetectionMismatches(ctx, opts.Logger, dir, lang, lr.Files)
		}
	}

	span.SetAttributes(
		attribute.Int("analysis.languages", len(langs)),
		attribute.Int("analysis.files", report.TotalFiles()),
	)

	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(opts.Concurrency)

	for _, jb := range jobs {
		lr := report.Languages[jb.index]
		an, _ := reg.For(lr.Language)

		group.Go(func() error {
			result := runMetric(groupCtx, opts, an, jb.metric, dir, lr)

			mu.Lock()
			report.Languages[jb.index].Results[jb.metric] = result

			for _, issue := range result.Issues {
				report.Files.Add(jb.metric, issue)
			}
			mu.Unlock()

			return groupCtx.Err()
		})
	}

	waitErr := group.Wait()
	if waitErr != nil {
		return nil, fmt.Errorf("analysis interrupted: %w", waitErr)
	}

	return report, nil
}

func runMetric(
	ctx context.Context, opts Options, an Analyzer, metric Metric, dir string, lr LanguageReport,
) MetricResult {
	ctx, span := opts.Tracer.Start(ctx, "codereport.analyzer.metric",
		trace.WithAttributes(
			attribute.String("analyzer.name", an.Name()),
			attribute.String("analysis.metric", string(metric)),
			attribute.String("language.name", string(lr.Language)),
		),
	)
	defer span.End()

	start := time.Now()
	result := an.Analyze(ctx, metric, dir, lr.Files)
	result.Metric = metric

	span.SetAttributes(
		attribute.Float64("analysis.score", result.Score),
		attribute.Int("analysis.issues", len(result.Issues)),
	)

	opts.Logger.DebugContext(ctx, "metric computed",
		"language", lr.Language,
		"metric", metric,
		"score", result.Score,
		"issues", len(result.Issues),
		"duration", time.Since(start).Round(time.Millisecond),
	)

	return result
}

// detectionSample is how much of a file content detection looks at.
const detectionSample = 16 << 10

// logDetectionMismatches logs files whose content-based language differs
// from the extension table.
func logDetectionMismatches(ctx context.Context, logger *slog.Logger, dir string, lang language.Language, files []string) {
	for _, file := range files {
		head, err := readHead(filepath.Join(dir, filepath.FromSlash(file)), detectionSample)
		if err != nil {
			continue
		}

		detected := language.Detect(file, head)
		if detected != "" && detected != lang {
			logger.DebugContext(ctx, "content detection disagrees with extension",
				"file", file, "language", lang, "detected", detected)
		}
	}
}

func readHead(path string, n int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, n))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	return data, nil
}
