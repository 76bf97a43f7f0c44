// Package mcp implements a Model Context Protocol server exposing codereport
// analyses as MCP tools over stdio transport.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/codereport/pkg/observability"
	"github.com/Sumatoshi-tech/codereport/pkg/service"
	"github.com/Sumatoshi-tech/codereport/pkg/toolexec"
)

const (
	// serverName is the MCP server implementation name.
	serverName = "codereport"

	// toolCount is the expected number of registered tools.
	toolCount = 2
)

// ServerDeps holds injectable dependencies for the MCP server.
// Zero-value fields use production defaults.
type ServerDeps struct {
	// Service runs analyses. Required.
	Service *service.Service

	// Executor resolves external tools for codereport_tools. Nil leaves
	// that tool unregistered.
	Executor toolexec.Executor

	// Version is reported as the server implementation version.
	Version string

	// Logger is an optional structured logger. Nil uses slog default.
	Logger *slog.Logger

	// Metrics is an optional request recorder. Nil disables per-tool metrics.
	Metrics *observability.RequestMetrics

	// Tracer is an optional OTel tracer for per-tool-call spans. Nil disables tracing.
	Tracer trace.Tracer
}

// Server wraps the MCP SDK server with codereport tool registrations.
type Server struct {
	inner    *mcpsdk.Server
	mu       sync.RWMutex
	tools    []string
	svc      *service.Service
	executor toolexec.Executor
	logger   *slog.Logger
	metrics  *observability.RequestMetrics
	tracer   trace.Tracer
}

// NewServer creates a new MCP server with all codereport tools registered.
func NewServer(deps ServerDeps) *Server {
	opts := &mcpsdk.ServerOptions{}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	} else {
		opts.Logger = logger
	}

	version := deps.Version
	if version == "" {
		version = "dev"
	}

	inner := mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    serverName,
			Version: version,
		},
		opts,
	)

	srv := &Server{
		inner:    inner,
		tools:    make([]string, 0, toolCount),
		svc:      deps.Service,
		executor: deps.Executor,
		logger:   logger,
		metrics:  deps.Metrics,
		tracer:   deps.Tracer,
	}

	srv.registerTools()

	return srv
}

// ListToolNames returns the sorted names of all registered tools.
func (s *Server) ListToolNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, len(s.tools))
	copy(names, s.tools)
	sort.Strings(names)

	return names
}

// Run starts the MCP server on stdio transport. It blocks until the context
// is canceled or the connection closes.
func (s *Server) Run(ctx context.Context) error {
	err := s.inner.Run(ctx, &mcpsdk.StdioTransport{})
	if err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	return nil
}

// RunWithTransport starts the MCP server on the given transport. It blocks
// until the context is canceled or the connection closes.
func (s *Server) RunWithTransport(ctx context.Context, transport mcpsdk.Transport) error {
	err := s.inner.Run(ctx, transport)
	if err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	return nil
}

// registerTools adds all codereport MCP tools to the server.
func (s *Server) registerTools() {
	s.registerAnalyzeTool()

	if s.executor != nil {
		s.registerToolsTool()
	}
}

func (s *Server) registerAnalyzeTool() {
	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        ToolNameAnalyze,
		Description: analyzeToolDescription,
	}, withMetrics(s.metrics, ToolNameAnalyze, withTracing(s.tracer, ToolNameAnalyze, s.handleAnalyze)))

	s.trackTool(ToolNameAnalyze)
}

func (s *Server) registerToolsTool() {
	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        ToolNameTools,
		Description: toolsToolDescription,
	}, withMetrics(s.metrics, ToolNameTools, withTracing(s.tracer, ToolNameTools, s.handleTools)))

	s.trackTool(ToolNameTools)
}

// mcpSpanPrefix is the prefix for MCP tool span names.
const mcpSpanPrefix = "mcp."

// traceIDMetaKey is the metadata key for trace_id in MCP tool responses.
const traceIDMetaKey = "trace_id"

// withTracing wraps an MCP tool handler to create an OTel span per invocation
// and include trace_id in the response content when sampled.
func withTracing[Input any](
	tracer trace.Tracer,
	toolName string,
	handler func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error),
) func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if tracer == nil {
		return handler
	}

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
		ctx, span := tracer.Start(ctx, mcpSpanPrefix+toolName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("mcp.tool", toolName)),
		)
		defer span.End()

		result, output, err := handler(ctx, req, input)

		// Include trace_id in response when span is sampled.
		sc := span.SpanContext()
		if sc.IsSampled() && result != nil {
			traceContent := &mcpsdk.TextContent{Text: fmt.Sprintf("%s=%s", traceIDMetaKey, sc.TraceID().String())}
			result.Content = append(result.Content, traceContent)
		}

		return result, output, err
	}
}

// withMetrics wraps an MCP tool handler to record request metrics per invocation.
func withMetrics[Input any](
	metrics *observability.RequestMetrics,
	toolName string,
	handler func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error),
) func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if metrics == nil {
		return handler
	}

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
		done := metrics.Start(ctx, "mcp."+toolName)

		result, output, err := handler(ctx, req, input)

		status := observability.StatusOK
		if err != nil || (result != nil && result.IsError) {
			status = observability.StatusError
		}

		done(status)

		return result, output, err
	}
}

func (s *Server) trackTool(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tools = append(s.tools, name)
}

// Tool description constants.
const (
	analyzeToolDescription = "Analyze source code quality (style, quality, complexity, security) " +
		"with the external linters of each language. " +
		"Accepts an absolute path to a directory, ZIP archive or file, or a GitHub pull request URL, " +
		"and returns per-language scores, the summary table and the most affected files."

	toolsToolDescription = "List the external analysis tools codereport uses " +
		"and whether each one is installed."
)
