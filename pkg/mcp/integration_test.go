package mcp_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/codereport/pkg/analysis/analysistest"
	"github.com/Sumatoshi-tech/codereport/pkg/analyzers"
	"github.com/Sumatoshi-tech/codereport/pkg/config"
	"github.com/Sumatoshi-tech/codereport/pkg/mcp"
	"github.com/Sumatoshi-tech/codereport/pkg/service"
	"github.com/Sumatoshi-tech/codereport/pkg/toolexec/toolexectest"
)

// connect starts srv on an in-memory transport and returns a client session.
func connect(t *testing.T, srv *mcp.Server) (context.Context, *mcpsdk.ClientSession) {
	t.Helper()

	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)

	serverDone := make(chan error, 1)

	go func() {
		serverDone <- srv.RunWithTransport(ctx, serverTransport)
	}()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    "test-client",
		Version: "1.0.0",
	}, nil)

	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = session.Close()

		cancel()
		<-serverDone
	})

	return ctx, session
}

func fakeServer(t *testing.T) *mcp.Server {
	t.Helper()

	svc := service.New(
		analysistest.Registry(analysistest.Python()),
		service.WithWorkspaceBase(t.TempDir()),
	)

	return mcp.NewServer(mcp.ServerDeps{
		Service:  svc,
		Executor: toolexectest.New().Reply("flake8", toolexectest.Response{}),
	})
}

func textOf(t *testing.T, result *mcpsdk.CallToolResult) string {
	t.Helper()

	require.NotEmpty(t, result.Content)

	text, ok := result.Content[0].(*mcpsdk.TextContent)
	require.True(t, ok, "expected text content")

	return text.Text
}

func TestMCPServer_InMemoryTransport_ToolsList(t *testing.T) {
	t.Parallel()

	ctx, session := connect(t, fakeServer(t))

	toolsResult, err := session.ListTools(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, toolsResult)

	toolNames := make([]string, 0, len(toolsResult.Tools))
	for _, tool := range toolsResult.Tools {
		toolNames = append(toolNames, tool.Name)
	}

	assert.Contains(t, toolNames, mcp.ToolNameAnalyze)
	assert.Contains(t, toolNames, mcp.ToolNameTools)
	assert.Len(t, toolNames, 2)

	for _, tool := range toolsResult.Tools {
		assert.NotNil(t, tool.InputSchema, "tool %s missing input schema", tool.Name)
	}
}

func TestMCPServer_NoExecutorHidesToolsTool(t *testing.T) {
	t.Parallel()

	srv := mcp.NewServer(mcp.ServerDeps{
		Service: service.New(analysistest.Registry(analysistest.Python())),
	})

	assert.Equal(t, []string{mcp.ToolNameAnalyze}, srv.ListToolNames())
}

func TestMCPServer_InMemoryTransport_CallAnalyze(t *testing.T) {
	t.Parallel()

	ctx, session := connect(t, fakeServer(t))

	dir := filepath.Join(t.TempDir(), "shop")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cart.py"), []byte("x = 1\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("# notes\n"), 0o600))

	result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      mcp.ToolNameAnalyze,
		Arguments: map[string]any{"path": dir},
	})
	require.NoError(t, err)
	require.False(t, result.IsError, textOf(t, result))

	var payload mcp.AnalyzeResult
	require.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &payload))

	assert.Equal(t, "shop", payload.Title)
	assert.Equal(t, service.SourcePath, payload.Source)
	require.Len(t, payload.Languages, 1)
	assert.Equal(t, "Python", payload.Languages[0].Language)
	assert.True(t, payload.Languages[0].Analyzed)
	assert.Equal(t, 1, payload.Languages[0].Files)
	assert.InDelta(t, 8.0, payload.Languages[0].Overall, 1e-9)
	assert.NotEmpty(t, payload.TopFiles)
}

func TestMCPServer_AnalyzeInputErrors(t *testing.T) {
	t.Parallel()

	ctx, session := connect(t, fakeServer(t))

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{name: "no target", args: map[string]any{}, want: mcp.ErrNoTarget.Error()},
		{
			name: "both targets",
			args: map[string]any{"path": "/tmp/x", "pr_url": "https://github.com/a/b/pull/1"},
			want: mcp.ErrBothTargets.Error(),
		},
		{name: "relative path", args: map[string]any{"path": "src"}, want: mcp.ErrPathNotAbsolute.Error()},
		{name: "bad pr url", args: map[string]any{"pr_url": "https://gitlab.com/a/b/merge_requests/1"}, want: "invalid"},
		{name: "missing path", args: map[string]any{"path": "/definitely/not/here"}, want: "does not exist"},
	}

	for _, tt := range tests {
		result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
			Name:      mcp.ToolNameAnalyze,
			Arguments: tt.args,
		})
		require.NoError(t, err, tt.name)
		assert.True(t, result.IsError, tt.name)
		assert.Contains(t, textOf(t, result), tt.want, tt.name)
	}
}

func TestMCPServer_InMemoryTransport_CallTools(t *testing.T) {
	t.Parallel()

	exec := toolexectest.New().Reply("flake8", toolexectest.Response{})

	reg, err := analyzers.Default(exec, config.Default().Tools, 1)
	require.NoError(t, err)

	srv := mcp.NewServer(mcp.ServerDeps{
		Service:  service.New(reg, service.WithWorkspaceBase(t.TempDir())),
		Executor: exec,
	})

	ctx, session := connect(t, srv)

	result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      mcp.ToolNameTools,
		Arguments: map[string]any{"language": "python"},
	})
	require.NoError(t, err)
	require.False(t, result.IsError, textOf(t, result))

	var rows []mcp.ToolStatus
	require.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &rows))
	require.NotEmpty(t, rows)

	available := map[string]bool{}
	for _, row := range rows {
		assert.Equal(t, "python", row.Analyzer)

		available[row.Tool] = row.Available
	}

	assert.True(t, available["flake8"])
	assert.False(t, available["pylint"])

	result, err = session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      mcp.ToolNameTools,
		Arguments: map[string]any{"language": "cobol"},
	})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, textOf(t, result), "known analyzers: ")
}
