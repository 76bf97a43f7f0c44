package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/codereport/pkg/analysis"
	"github.com/Sumatoshi-tech/codereport/pkg/analyzers"
	"github.com/Sumatoshi-tech/codereport/pkg/github"
)

// Tool name constants.
const (
	ToolNameAnalyze = "codereport_analyze"
	ToolNameTools   = "codereport_tools"
)

// defaultTopFiles is how many of the most affected files are returned.
const defaultTopFiles = 10

// Sentinel errors for tool input validation.
var (
	// ErrNoTarget indicates neither path nor pr_url was given.
	ErrNoTarget = errors.New("one of path or pr_url is required")
	// ErrBothTargets indicates path and pr_url were both given.
	ErrBothTargets = errors.New("path and pr_url are mutually exclusive")
	// ErrPathNotAbsolute indicates the path is relative.
	ErrPathNotAbsolute = errors.New("path must be an absolute path")
)

// AnalyzeInput is the input schema for the codereport_analyze tool.
type AnalyzeInput struct {
	Path     string `json:"path,omitempty"      jsonschema:"absolute path to a directory, ZIP archive or source file"`
	PRURL    string `json:"pr_url,omitempty"    jsonschema:"GitHub pull request URL (https://github.com/owner/repo/pull/N)"`
	TopFiles int    `json:"top_files,omitempty" jsonschema:"number of most affected files to return (default: 10)"`
}

// ToolsInput is the input schema for the codereport_tools tool.
type ToolsInput struct {
	Language string `json:"language,omitempty" jsonschema:"optional analyzer name filter (e.g. python javascript java)"`
}

// ToolOutput is a generic wrapper for tool results.
type ToolOutput struct {
	Data any `json:"data"`
}

// LanguageSummary is one language of an analysis result.
type LanguageSummary struct {
	Language string                      `json:"language"`
	Files    int                         `json:"files"`
	Analyzer string                      `json:"analyzer,omitempty"`
	Analyzed bool                        `json:"analyzed"`
	Scores   map[analysis.Metric]float64 `json:"scores,omitempty"`
	Ratings  map[analysis.Metric]string  `json:"ratings,omitempty"`
	Issues   map[analysis.Metric]int     `json:"issues,omitempty"`
	Overall  float64                     `json:"overall,omitempty"`
}

// AnalyzeResult is the codereport_analyze payload.
type AnalyzeResult struct {
	Title       string              `json:"title"`
	Source      string              `json:"source"`
	GeneratedAt time.Time           `json:"generated_at"`
	Languages   []LanguageSummary   `json:"languages"`
	Summary     analysis.Summary    `json:"summary"`
	TopFiles    []analysis.FileStat `json:"top_files"`
}

// ToolStatus is one row of the codereport_tools payload.
type ToolStatus struct {
	Analyzer  string `json:"analyzer"`
	Tool      string `json:"tool"`
	Metric    string `json:"metric"`
	Command   string `json:"command"`
	Path      string `json:"path,omitempty"`
	Optional  bool   `json:"optional"`
	Available bool   `json:"available"`
}

// errorResult builds a CallToolResult with isError set.
func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: err.Error()},
		},
		IsError: true,
	}, ToolOutput{}, nil
}

// jsonResult builds a CallToolResult with JSON-encoded content.
func jsonResult(value any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: string(data)},
		},
	}, ToolOutput{Data: value}, nil
}

// validateAnalyzeInput checks that exactly one usable target was given.
func validateAnalyzeInput(input AnalyzeInput) error {
	path := strings.TrimSpace(input.Path)
	prURL := strings.TrimSpace(input.PRURL)

	switch {
	case path == "" && prURL == "":
		return ErrNoTarget
	case path != "" && prURL != "":
		return ErrBothTargets
	case path != "" && !filepath.IsAbs(path):
		return fmt.Errorf("%w: %q", ErrPathNotAbsolute, path)
	}

	return nil
}

// handleAnalyze processes codereport_analyze tool calls.
func (s *Server) handleAnalyze(
	ctx context.Context,
	_ *mcpsdk.CallToolRequest,
	input AnalyzeInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	err := validateAnalyzeInput(input)
	if err != nil {
		return errorResult(err)
	}

	var rep *analysis.Report

	if input.PRURL != "" {
		ref, parseErr := github.ParsePRURL(input.PRURL)
		if parseErr != nil {
			return errorResult(parseErr)
		}

		rep, err = s.svc.AnalyzePR(ctx, ref)
	} else {
		rep, err = s.svc.AnalyzePath(ctx, strings.TrimSpace(input.Path))
	}

	if err != nil {
		s.logger.WarnContext(ctx, "mcp analysis failed", "error", err)

		return errorResult(err)
	}

	topFiles := input.TopFiles
	if topFiles <= 0 {
		topFiles = defaultTopFiles
	}

	return jsonResult(summarize(rep, topFiles))
}

// summarize condenses rep into scores and counts, leaving out issue texts.
func summarize(rep *analysis.Report, topFiles int) AnalyzeResult {
	result := AnalyzeResult{
		Title:       rep.Title,
		Source:      rep.Source,
		GeneratedAt: rep.GeneratedAt,
		Languages:   make([]LanguageSummary, 0, len(rep.Languages)),
		Summary:     rep.Summary(),
		TopFiles:    rep.Files.Top(topFiles),
	}

	for _, lr := range rep.Languages {
		ls := LanguageSummary{
			Language: string(lr.Language),
			Files:    lr.FileCount(),
			Analyzer: lr.Analyzer,
			Analyzed: lr.Analyzed,
		}

		if lr.Analyzed {
			ls.Scores = make(map[analysis.Metric]float64, len(analysis.Metrics))
			ls.Ratings = make(map[analysis.Metric]string, len(analysis.Metrics))
			ls.Issues = make(map[analysis.Metric]int, len(analysis.Metrics))

			for _, metric := range analysis.Metrics {
				ls.Scores[metric] = lr.Score(metric)
				ls.Ratings[metric] = analysis.Rating(lr.Score(metric))
				ls.Issues[metric] = len(lr.Results[metric].Issues)
			}

			ls.Overall = lr.Overall()
		}

		result.Languages = append(result.Languages, ls)
	}

	return result
}

// handleTools processes codereport_tools tool calls.
func (s *Server) handleTools(
	_ context.Context,
	_ *mcpsdk.CallToolRequest,
	input ToolsInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	filter := strings.ToLower(strings.TrimSpace(input.Language))

	statuses := analyzers.Status(s.executor, s.svc.Registry())
	rows := make([]ToolStatus, 0, len(statuses))

	for _, st := range statuses {
		if filter != "" && st.Analyzer != filter {
			continue
		}

		rows = append(rows, ToolStatus{
			Analyzer:  st.Analyzer,
			Tool:      st.Name,
			Metric:    string(st.Metric),
			Command:   st.Command,
			Path:      st.Path,
			Optional:  st.Optional,
			Available: st.Available,
		})
	}

	if filter != "" && len(rows) == 0 {
		return errorResult(fmt.Errorf("no analyzer named %q; known analyzers: %s", filter, knownAnalyzers(s)))
	}

	return jsonResult(rows)
}

func knownAnalyzers(s *Server) string {
	names := make([]string, 0, len(s.svc.Registry().Analyzers()))
	for _, an := range s.svc.Registry().Analyzers() {
		names = append(names, an.Name())
	}

	return strings.Join(names, ", ")
}
