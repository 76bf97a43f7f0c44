package javascript_test

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codereport/pkg/analysis"
	"github.com/Sumatoshi-tech/codereport/pkg/analyzers/javascript"
	"github.com/Sumatoshi-tech/codereport/pkg/toolexec"
	"github.com/Sumatoshi-tech/codereport/pkg/toolexec/toolexectest"
)

var files = []string{"src/app.js", "src/util.ts"}

func newAnalyzer(t *testing.T, fake *toolexectest.Fake) *javascript.Analyzer {
	t.Helper()

	return javascript.New(fake, javascript.Config{FileWorkers: 2, ConfigDir: t.TempDir()})
}

func configArg(cmd toolexec.Command) string {
	idx := slices.Index(cmd.Args, "-c")
	if idx < 0 || idx+1 >= len(cmd.Args) {
		return ""
	}

	return cmd.Args[idx+1]
}

func TestStyleCountsESLintMessages(t *testing.T) {
	t.Parallel()

	var seenConfig string

	fake := toolexectest.New().Handle("npx", func(cmd toolexec.Command) toolexectest.Response {
		assert.Equal(t, "eslint", cmd.Args[0])
		assert.Contains(t, cmd.Env, "ESLINT_USE_FLAT_CONFIG=false")

		cfg := configArg(cmd)
		data, err := os.ReadFile(cfg)
		assert.NoError(t, err)
		assert.Contains(t, string(data), "eslint:recommended")

		seenConfig = cfg

		if toolexectest.LastArg(cmd) == "./src/app.js" {
			return toolexectest.Response{Stdout: `[{"filePath": "/src/src/app.js", "messages": [
  {"ruleId": "no-unused-vars", "severity": 2, "message": "'x' is defined but never used.", "line": 3, "column": 7},
  {"ruleId": "no-undef", "severity": 2, "message": "'foo' is not defined.", "line": 5, "column": 1},
  {"ruleId": null, "severity": 2, "message": "Parsing error: Unexpected token", "line": 9, "column": 2, "fatal": true}
]}]`, ExitCode: 1}
		}

		return toolexectest.Response{Stdout: `[{"filePath": "/src/src/util.ts", "messages": []}]`}
	})

	an := javascript.New(fake, javascript.Config{FileWorkers: 1, ConfigDir: t.TempDir()})
	result := an.Analyze(context.Background(), analysis.Style, t.TempDir(), files)

	assert.Equal(t, "eslint", result.Tool)
	assert.InDelta(t, 8.5, result.Score, 1e-9)
	require.Len(t, result.Issues, 3)
	assert.Equal(t, "src/app.js:3:7 - 'x' is defined but never used. (no-unused-vars)", result.Issues[0].String())
	assert.Equal(t, "error", result.Issues[0].Severity)
	assert.Empty(t, result.Issues[2].Rule)

	_, err := os.Stat(seenConfig)
	assert.ErrorIs(t, err, os.ErrNotExist, "generated config is removed")
}

func TestStyleHonoursProjectConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".eslintrc.json"), []byte(`{"rules": {}}`), 0o600))

	fake := toolexectest.New().Reply("npx", toolexectest.Response{Stdout: `[]`})

	result := newAnalyzer(t, fake).Analyze(context.Background(), analysis.Style, dir, files[:1])

	assert.InDelta(t, 10.0, result.Score, 1e-9)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"eslint", "--format=json", "./src/app.js"}, calls[0].Args)
}

func TestStyleUnparsableOutput(t *testing.T) {
	t.Parallel()

	fake := toolexectest.New().Handle("npx", func(cmd toolexec.Command) toolexectest.Response {
		if toolexectest.LastArg(cmd) == "./src/app.js" {
			return toolexectest.Response{Stdout: "Oops! Something went wrong!", ExitCode: 2}
		}

		return toolexectest.Response{Stdout: `[{"filePath": "/src/src/util.ts", "messages": []}]`}
	})

	result := newAnalyzer(t, fake).Analyze(context.Background(), analysis.Style, t.TempDir(), files)

	require.Len(t, result.Issues, 1)
	assert.Equal(t, "Error parsing ESLint output for src/app.js", result.Issues[0].String())
	assert.InDelta(t, 10.0, result.Score, 1e-9)
}

func TestToolFailureExitCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		metric analysis.Metric
		resp   toolexectest.Response
		want   string
	}{
		{
			name:   "eslint style crash",
			metric: analysis.Style,
			resp:   toolexectest.Response{Stdout: "Oops! Something went wrong!\n", ExitCode: 2},
			want:   "Error running eslint: tool failed: exit status 2: Oops! Something went wrong!",
		},
		{
			name:   "eslint complexity crash",
			metric: analysis.Complexity,
			resp:   toolexectest.Response{Stderr: "Error: Cannot find module 'eslint'\n", ExitCode: 2},
			want:   "Error running eslint: tool failed: exit status 2: Error: Cannot find module 'eslint'",
		},
		{
			name:   "jshint fatal",
			metric: analysis.Quality,
			resp:   toolexectest.Response{Stderr: "ERROR: Can't parse config file\n", ExitCode: 1},
			want:   "Error running jshint: tool failed: exit status 1: ERROR: Can't parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fake := toolexectest.New().Reply("npx", tt.resp)
			result := newAnalyzer(t, fake).Analyze(context.Background(), tt.metric, t.TempDir(), files)

			assert.Zero(t, result.Score)
			require.Len(t, result.Issues, 1)
			assert.Equal(t, tt.want, result.Issues[0].String())
		})
	}
}

func TestFileOperandsCannotBeOptions(t *testing.T) {
	t.Parallel()

	dashed := []string{"--fix.js", "-o.ts"}

	fake := toolexectest.New().Reply("npx", toolexectest.Response{Stdout: `[]`})

	an := newAnalyzer(t, fake)
	for _, metric := range []analysis.Metric{analysis.Style, analysis.Quality, analysis.Complexity} {
		an.Analyze(context.Background(), metric, t.TempDir(), dashed)
	}

	calls := fake.Calls()
	require.Len(t, calls, 6)

	for _, call := range calls {
		last := toolexectest.LastArg(call)
		assert.True(t, strings.HasPrefix(last, "./"), "%v ends with a bare operand", call.Args)
		assert.NotContains(t, call.Args, "--fix.js")
		assert.NotContains(t, call.Args, "-o.ts")
	}
}

func TestMissingNpx(t *testing.T) {
	t.Parallel()

	result := newAnalyzer(t, toolexectest.New()).Analyze(context.Background(), analysis.Quality, t.TempDir(), files)

	assert.Zero(t, result.Score)
	require.Len(t, result.Issues, 1)
	assert.True(t, strings.HasPrefix(result.Issues[0].String(), "Error running jshint:"))
}

func TestQualityWeightsJSHintFindings(t *testing.T) {
	t.Parallel()

	fake := toolexectest.New().Handle("npx", func(cmd toolexec.Command) toolexectest.Response {
		assert.Equal(t, "jshint", cmd.Args[0])
		assert.True(t, strings.HasPrefix(cmd.Args[1], "--reporter="))

		if toolexectest.LastArg(cmd) == "./src/app.js" {
			return toolexectest.Response{Stdout: `[
  {"file": "src/app.js", "line": 2, "col": 14, "reason": "Missing semicolon.", "code": "W033"},
  {"file": "src/app.js", "line": 8, "col": 1, "reason": "'x' is not defined.", "code": "W117"}
]`, ExitCode: 2}
		}

		return toolexectest.Response{Stdout: `[]`}
	})

	result := newAnalyzer(t, fake).Analyze(context.Background(), analysis.Quality, t.TempDir(), files)

	// two findings over two files, weighted by two
	assert.InDelta(t, 8.0, result.Score, 1e-9)
	require.Len(t, result.Issues, 2)
	assert.Equal(t, "src/app.js:2:14 - Missing semicolon. (W033)", result.Issues[0].String())
}

func TestParseJSHintEmpty(t *testing.T) {
	t.Parallel()

	findings, err := javascript.ParseJSHint(nil)
	require.NoError(t, err)
	assert.Empty(t, findings)

	_, err = javascript.ParseJSHint([]byte(`[{"line": "two"}]`))
	require.Error(t, err)
}

func TestComplexityAveragesOverFilesWithFindings(t *testing.T) {
	t.Parallel()

	fake := toolexectest.New().Handle("npx", func(cmd toolexec.Command) toolexectest.Response {
		data, err := os.ReadFile(configArg(cmd))
		assert.NoError(t, err)
		assert.Contains(t, string(data), `"complexity":["error",10]`)

		if toolexectest.LastArg(cmd) == "./src/app.js" {
			return toolexectest.Response{Stdout: `[{"filePath": "app.js", "messages": [
  {"ruleId": "complexity", "severity": 2, "message": "Function 'route' has a complexity of 14. Maximum allowed is 10.", "line": 4, "column": 1},
  {"ruleId": "complexity", "severity": 2, "message": "Arrow function has a complexity of 12. Maximum allowed is 10.", "line": 40, "column": 9},
  {"ruleId": "no-undef", "severity": 2, "message": "'x' is not defined.", "line": 50, "column": 1}
]}]`, ExitCode: 1}
		}

		return toolexectest.Response{Stdout: `[{"filePath": "util.ts", "messages": []}]`}
	})

	result := newAnalyzer(t, fake).Analyze(context.Background(), analysis.Complexity, t.TempDir(), files)

	// (14 + 12) / 1 file with findings = 26, halved = 13, capped at 10
	assert.Zero(t, result.Score)
	require.Len(t, result.Issues, 2)
	assert.Equal(t, 4, result.Issues[0].Line)
}

func TestComplexityNoFindings(t *testing.T) {
	t.Parallel()

	fake := toolexectest.New().Reply("npx", toolexectest.Response{Stdout: `[{"filePath": "a.js", "messages": []}]`})

	result := newAnalyzer(t, fake).Analyze(context.Background(), analysis.Complexity, t.TempDir(), files)

	assert.InDelta(t, 10.0, result.Score, 1e-9)
	assert.Empty(t, result.Issues)
}

func TestSecurityWithoutPackageJSON(t *testing.T) {
	t.Parallel()

	fake := toolexectest.New()
	result := newAnalyzer(t, fake).Analyze(context.Background(), analysis.Security, t.TempDir(), files)

	assert.InDelta(t, 5.0, result.Score, 1e-9)
	assert.Equal(t, []string{"No package.json found, skipping security audit"}, result.Notes)
	assert.Empty(t, fake.Calls())
}

func TestSecurityWeightsVulnerabilities(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{"name": "demo"}`), 0o600))

	fake := toolexectest.New().Reply("npm", toolexectest.Response{Stdout: `{
  "auditReportVersion": 2,
  "vulnerabilities": {
    "minimist": {"name": "minimist", "severity": "critical", "isDirect": false, "via": []},
    "lodash": {"name": "lodash", "severity": "high", "isDirect": true, "via": []}
  },
  "metadata": {"vulnerabilities": {"critical": 1, "high": 1, "total": 2}}
}`, ExitCode: 1})

	result := newAnalyzer(t, fake).Analyze(context.Background(), analysis.Security, dir, files)

	// (4 + 3) / 2
	assert.InDelta(t, 6.5, result.Score, 1e-9)
	require.Len(t, result.Issues, 2)
	assert.Equal(t, "Found 1 high severity vulnerability(ies) in lodash", result.Issues[0].String())
	assert.Equal(t, "Found 1 critical severity vulnerability(ies) in minimist", result.Issues[1].String())

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, dir, calls[0].Dir)
}

func TestSecurityInfoSeverityCounts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{}`), 0o600))

	fake := toolexectest.New().Reply("npm", toolexectest.Response{Stdout: `{
  "vulnerabilities": {
    "left-pad": {"name": "left-pad", "severity": "info"},
    "event-stream": {"name": "event-stream", "severity": "unrated"}
  }
}`, ExitCode: 1})

	result := newAnalyzer(t, fake).Analyze(context.Background(), analysis.Security, dir, files)

	// each unlisted severity weighs one: (1 + 1) / 2
	assert.InDelta(t, 9.0, result.Score, 1e-9)
	require.Len(t, result.Issues, 2)
	assert.Equal(t, "Found 1 unrated severity vulnerability(ies) in event-stream", result.Issues[0].String())
}

func TestSecurityClean(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{}`), 0o600))

	fake := toolexectest.New().Reply("npm", toolexectest.Response{Stdout: `{"vulnerabilities": {}}`})

	result := newAnalyzer(t, fake).Analyze(context.Background(), analysis.Security, dir, files)

	assert.InDelta(t, 10.0, result.Score, 1e-9)
	assert.Equal(t, []string{"No security vulnerabilities found"}, result.Notes)
}

func TestSecurityAuditError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{}`), 0o600))

	fake := toolexectest.New().Reply("npm", toolexectest.Response{
		Stdout:   `{"error": {"code": "ENOLOCK", "summary": "This command requires an existing lockfile."}}`,
		ExitCode: 1,
	})

	result := newAnalyzer(t, fake).Analyze(context.Background(), analysis.Security, dir, files)

	assert.Zero(t, result.Score)
	require.Len(t, result.Issues, 1)
	assert.Equal(t, "Error running npm audit: ENOLOCK: This command requires an existing lockfile.", result.Issues[0].String())
}

func TestExtensions(t *testing.T) {
	t.Parallel()

	an := javascript.New(toolexectest.New(), javascript.Config{})
	assert.Equal(t, []string{".js", ".jsx", ".ts", ".tsx"}, an.Extensions())
	assert.Len(t, an.Tools(), 4)
}
