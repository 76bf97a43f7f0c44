package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codereport/pkg/analysis/analysistest"
	"github.com/Sumatoshi-tech/codereport/pkg/github"
	"github.com/Sumatoshi-tech/codereport/pkg/report"
	"github.com/Sumatoshi-tech/codereport/pkg/service"
)

var fixedNow = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

func fakeAnalyzeDeps(t *testing.T) analyzeDepsProvider {
	t.Helper()

	svc := service.New(
		analysistest.Registry(analysistest.Python()),
		service.WithWorkspaceBase(t.TempDir()),
		service.WithClock(func() time.Time { return fixedNow }),
	)

	return func(*cobra.Command) (analyzeDeps, error) {
		return analyzeDeps{svc: svc, reportOpts: report.DefaultOptions(), close: func() {}}, nil
	}
}

func projectDir(t *testing.T) string {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "billing")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "invoice.py"), []byte("total = 1\n"), 0o600))

	return dir
}

func runAnalyze(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	cmd := newAnalyzeCommandWithDeps(fakeAnalyzeDeps(t), func() time.Time { return fixedNow })

	var stdout, stderr bytes.Buffer

	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{}, args...))

	err := cmd.Execute()

	return stdout.String(), stderr.String(), err
}

func TestAnalyzeCommand_JSON(t *testing.T) {
	t.Parallel()

	stdout, _, err := runAnalyze(t, projectDir(t), "--format", "json")
	require.NoError(t, err)

	var doc struct {
		Title     string `json:"title"`
		Source    string `json:"source"`
		Languages []struct {
			Language string `json:"language"`
		} `json:"languages"`
	}

	require.NoError(t, json.Unmarshal([]byte(stdout), &doc))
	assert.Equal(t, "billing", doc.Title)
	assert.Equal(t, service.SourcePath, doc.Source)
	require.Len(t, doc.Languages, 1)
	assert.Equal(t, "Python", doc.Languages[0].Language)
}

func TestAnalyzeCommand_Table(t *testing.T) {
	t.Parallel()

	stdout, _, err := runAnalyze(t, projectDir(t), "--no-color")
	require.NoError(t, err)

	assert.Contains(t, stdout, "Code Quality Report: billing")
	assert.Contains(t, stdout, "Python Analysis")
	assert.NotContains(t, stdout, "\x1b[")
}

func TestAnalyzeCommand_PDFToFile(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "report.pdf")

	stdout, stderr, err := runAnalyze(t, projectDir(t), "--format", "pdf", "--output", out)
	require.NoError(t, err)

	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "Report written to "+out)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
}

func TestAnalyzeCommand_PDFToStdout(t *testing.T) {
	t.Parallel()

	stdout, _, err := runAnalyze(t, projectDir(t), "--format", "pdf", "--output", "-")
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix([]byte(stdout), []byte("%PDF-")))
}

func TestAnalyzeCommand_Errors(t *testing.T) {
	t.Parallel()

	_, _, err := runAnalyze(t, projectDir(t), "--format", "docx")
	require.ErrorIs(t, err, report.ErrUnknownFormat)

	_, _, err = runAnalyze(t, "https://github.com/acme/widgets/issues/3")
	require.ErrorIs(t, err, github.ErrInvalidPRURL)

	_, _, err = runAnalyze(t, filepath.Join(t.TempDir(), "missing"))
	require.ErrorIs(t, err, service.ErrPathNotExists)

	// No GitHub client is wired into the fake service.
	_, _, err = runAnalyze(t, "https://github.com/acme/widgets/pull/3")
	require.ErrorIs(t, err, service.ErrNoGitHub)

	_, _, err = runAnalyze(t)
	require.Error(t, err)
}

func TestResolveOutput(t *testing.T) {
	t.Parallel()

	ref := &github.PRRef{Owner: "acme", Repo: "widgets", Number: 7}

	tests := []struct {
		name   string
		output string
		format report.Format
		ref    *github.PRRef
		want   string
	}{
		{name: "text to stdout", format: report.FormatJSON, want: ""},
		{name: "explicit file", output: "out.json", format: report.FormatJSON, want: "out.json"},
		{name: "pdf upload default", format: report.FormatPDF, want: "code_quality_report_20261019_093000.pdf"},
		{name: "pdf pr default", format: report.FormatPDF, ref: ref, want: "code_quality_report_PR_acme_widgets_7_20261019_093000.pdf"},
		{name: "pdf stdout", output: stdoutTarget, format: report.FormatPDF, want: stdoutTarget},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, resolveOutput(tt.output, tt.format, fixedNow, tt.ref), tt.name)
	}
}
