// Package toolexec runs external static-analysis tools as subprocesses.
package toolexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/codereport/pkg/observability"
)

// Sentinel errors.
var (
	ErrToolNotFound = errors.New("tool not found")
	ErrToolTimeout  = errors.New("tool timed out")
	ErrEmptyCommand = errors.New("empty command")
)

const (
	// DefaultTimeout bounds a single tool invocation.
	DefaultTimeout = 2 * time.Minute

	// DefaultMaxOutput caps captured output per stream.
	DefaultMaxOutput = 8 << 20

	// waitDelay bounds how long Run waits for inherited pipes after the
	// process is killed.
	waitDelay = 5 * time.Second

	truncatedMarker = "\n[output truncated]\n"
)

// Command describes one tool invocation.
type Command struct {
	// Name is the executable, resolved through PATH unless it contains a separator.
	Name string
	// Args are passed verbatim.
	Args []string
	// Dir is the working directory. Empty means the current directory.
	Dir string
	// Env entries ("KEY=value") are appended to the process environment.
	Env []string
	// Timeout overrides the runner default when positive.
	Timeout time.Duration
	// Label names the tool in logs and metrics. Defaults to Name.
	Label string
}

func (c Command) label() string {
	if c.Label != "" {
		return c.Label
	}

	return c.Name
}

// String renders the command line for logs and error messages.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Output is the captured result of a finished invocation.
type Output struct {
	// Stdout holds standard output only, for tools that emit JSON.
	Stdout []byte
	// Combined holds stdout and stderr interleaved in arrival order.
	Combined []byte
	// ExitCode is the process exit status. Non-zero is not an error.
	ExitCode int
	// Duration is the wall time of the run.
	Duration time.Duration
	// Truncated is set when either stream hit the output cap.
	Truncated bool
}

// Text returns the combined output as a string.
func (o Output) Text() string {
	return string(o.Combined)
}

// Executor runs commands. Analyzers depend on this interface so tests can
// substitute canned output.
type Executor interface {
	Run(ctx context.Context, cmd Command) (Output, error)
	Lookup(name string) (string, error)
}

// Runner is the os/exec backed [Executor].
type Runner struct {
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *observability.AnalysisMetrics
	timeout   time.Duration
	maxOutput int
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithTracer sets the tracer used for per-run spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Runner) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// WithMetrics records every run into the analysis metrics.
func WithMetrics(metrics *observability.AnalysisMetrics) Option {
	return func(r *Runner) { r.metrics = metrics }
}

// WithTimeout sets the default per-invocation timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(r *Runner) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// WithMaxOutput sets the per-stream capture cap in bytes.
func WithMaxOutput(limit int64) Option {
	return func(r *Runner) {
		if limit > 0 {
			r.maxOutput = int(limit)
		}
	}
}

// NewRunner creates a Runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		logger:    slog.Default(),
		tracer:    nooptrace.NewTracerProvider().Tracer("toolexec"),
		timeout:   DefaultTimeout,
		maxOutput: DefaultMaxOutput,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Lookup resolves name to an executable path.
func (r *Runner) Lookup(name string) (string, error) {
	return Lookup(name)
}

// Run executes cmd and waits for it. A non-zero exit status is reported in
// Output.ExitCode and is not an error; a missing executable is
// [ErrToolNotFound] and an expired per-run deadline is [ErrToolTimeout].
func (r *Runner) Run(ctx context.Context, cmd Command) (Output, error) {
	if cmd.Name == "" {
		return Output{}, ErrEmptyCommand
	}

	label := cmd.label()

	ctx, span := r.tracer.Start(ctx, "codereport.tool.run",
		trace.WithAttributes(
			attribute.String("tool.name", label),
			attribute.Int("tool.args", len(cmd.Args)),
		),
	)
	defer span.End()

	out, err := r.run(ctx, cmd)

	status := observability.StatusOK
	if err != nil {
		status = observability.StatusError

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(
		attribute.Int("tool.exit_code", out.ExitCode),
		attribute.Int("tool.output_bytes", len(out.Combined)),
	)

	r.metrics.RecordToolRun(ctx, label, status, out.Duration)

	r.logger.DebugContext(ctx, "tool finished",
		"tool", label,
		"command", cmd.String(),
		"exit_code", out.ExitCode,
		"output", humanize.Bytes(uint64(len(out.Combined))),
		"duration", out.Duration.Round(time.Millisecond),
		"error", err,
	)

	return out, err
}

func (r *Runner) run(ctx context.Context, cmd Command) (Output, error) {
	path, lookErr := Lookup(cmd.Name)
	if lookErr != nil {
		return Output{ExitCode: -1}, lookErr
	}

	timeout := r.timeout
	if cmd.Timeout > 0 {
		timeout = cmd.Timeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	combined := &cappedBuffer{limit: r.maxOutput}
	stdout := &cappedBuffer{limit: r.maxOutput}
	stderr := &cappedBuffer{limit: r.maxOutput}

	proc := exec.CommandContext(runCtx, path, cmd.Args...)
	proc.Dir = cmd.Dir
	proc.Env = append(os.Environ(), cmd.Env...)
	proc.Stdout = &teeWriter{primary: stdout, combined: combined}
	proc.Stderr = &teeWriter{primary: stderr, combined: combined}
	proc.WaitDelay = waitDelay

	start := time.Now()
	runErr := proc.Run()

	out := Output{
		Stdout:    stdout.Bytes(),
		Combined:  combined.Bytes(),
		Duration:  time.Since(start),
		Truncated: stdout.truncated || combined.truncated,
	}

	if proc.ProcessState != nil {
		out.ExitCode = proc.ProcessState.ExitCode()
	}

	if runErr == nil {
		return out, nil
	}

	if ctx.Err() != nil {
		return out, fmt.Errorf("%s: %w", cmd.label(), ctx.Err())
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return out, fmt.Errorf("%w: %s after %s", ErrToolTimeout, cmd.label(), timeout)
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return out, nil
	}

	if errors.Is(runErr, exec.ErrWaitDelay) {
		return out, nil
	}

	return out, fmt.Errorf("run %s: %w", cmd.label(), runErr)
}

// Lookup resolves name through PATH, mapping failures to [ErrToolNotFound].
func Lookup(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	return path, nil
}

// Available reports whether name resolves to an executable.
func Available(name string) bool {
	_, err := Lookup(name)

	return err == nil
}

// cappedBuffer keeps at most limit bytes and silently drops the rest.
// It always reports a full write so io.Copy inside os/exec keeps draining
// the pipe.
type cappedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	room := b.limit - b.buf.Len()

	switch {
	case room <= 0:
		b.truncated = true
	case len(p) > room:
		b.buf.Write(p[:room])
		b.truncated = true
	default:
		b.buf.Write(p)
	}

	return len(p), nil
}

func (b *cappedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	data := bytes.Clone(b.buf.Bytes())
	if b.truncated {
		data = append(data, truncatedMarker...)
	}

	return data
}

// teeWriter feeds one stream into its own buffer and the shared combined one.
type teeWriter struct {
	primary  *cappedBuffer
	combined *cappedBuffer
}

func (w *teeWriter) Write(p []byte) (int, error) {
	_, err := w.primary.Write(p)
	if err != nil {
		return 0, err
	}

	return w.combined.Write(p)
}
