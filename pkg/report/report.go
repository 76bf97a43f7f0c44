// Package report renders an analysis.Report as PDF, HTML, JSON, YAML or a
// terminal table.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/codereport/pkg/analysis"
	"github.com/Sumatoshi-tech/codereport/pkg/report/plotpage"
)

// Format is an output encoding.
type Format string

// Supported formats.
const (
	FormatPDF   Format = "pdf"
	FormatHTML  Format = "html"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatTable Format = "table"
)

// Formats lists every supported format.
var Formats = []Format{FormatPDF, FormatHTML, FormatJSON, FormatYAML, FormatTable}

// ErrUnknownFormat is returned for an unsupported format name.
var ErrUnknownFormat = errors.New("unknown report format")

// ParseFormat maps a name to a Format, case-insensitively. "yml" is YAML.
func ParseFormat(name string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(name)))
	if f == "yml" {
		return FormatYAML, nil
	}

	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// ContentType is the MIME type served for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatJSON:
		return "application/json"
	case FormatYAML:
		return "application/yaml"
	case FormatTable:
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// Extension is the file extension, without the dot.
func (f Format) Extension() string {
	if f == FormatTable {
		return "txt"
	}

	return string(f)
}

// Binary reports whether the format should not be written to a terminal.
func (f Format) Binary() bool {
	return f == FormatPDF
}

// Defaults for Options.
const (
	DefaultMaxIssues = 20
	DefaultTopFiles  = 10
)

// Options tune rendering.
type Options struct {
	// MaxIssues caps the issue lines listed per metric.
	MaxIssues int
	// TopFiles is the number of rows in the most-affected files table.
	TopFiles int
	// NoColor disables ANSI colors in the table format.
	NoColor bool
	// Width is the terminal width for the table format.
	Width int
	// Theme selects the HTML theme.
	Theme plotpage.Theme
	// Uncompressed writes PDF content streams without compression.
	Uncompressed bool
}

// DefaultOptions returns the options used by the web service.
func DefaultOptions() Options {
	return Options{
		MaxIssues: DefaultMaxIssues,
		TopFiles:  DefaultTopFiles,
		Theme:     plotpage.ThemeLight,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxIssues <= 0 {
		o.MaxIssues = DefaultMaxIssues
	}

	if o.TopFiles <= 0 {
		o.TopFiles = DefaultTopFiles
	}

	if o.Theme == "" {
		o.Theme = plotpage.ThemeLight
	}

	return o
}

// Render writes rep to w in format f.
func Render(w io.Writer, rep *analysis.Report, f Format, opts Options) error {
	opts = opts.withDefaults()

	var err error

	switch f {
	case FormatPDF:
		err = WritePDF(w, rep, opts)
	case FormatHTML:
		err = WriteHTML(w, rep, opts)
	case FormatJSON:
		err = writeJSON(w, rep)
	case FormatYAML:
		err = writeYAML(w, rep)
	case FormatTable:
		err = WriteTable(w, rep, opts)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}

	if err != nil {
		return fmt.Errorf("render %s: %w", f, err)
	}

	return nil
}

// document is the encoded form of a report: the report plus its summary.
type document struct {
	analysis.Report `yaml:",inline"`

	Summary  analysis.Summary    `json:"summary"   yaml:"summary"`
	TopFiles []analysis.FileStat `json:"top_files" yaml:"top_files"`
}

func newDocument(rep *analysis.Report) document {
	return document{Report: *rep, Summary: rep.Summary(), TopFiles: rep.Files.Top(DefaultTopFiles)}
}

func writeJSON(w io.Writer, rep *analysis.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	err := enc.Encode(newDocument(rep))
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}

	return nil
}

func writeYAML(w io.Writer, rep *analysis.Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	err := enc.Encode(newDocument(rep))
	if err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}

	return enc.Close()
}

const (
	filenamePrefix  = "code_quality_report"
	timestampLayout = "20060102_150405"
	// GeneratedLayout is the timestamp layout printed in report headers.
	GeneratedLayout = "2006-01-02 15:04:05"
)

// UploadFilename names the download for an uploaded file or archive.
func UploadFilename(now time.Time, f Format) string {
	return fmt.Sprintf("%s_%s.%s", filenamePrefix, now.Format(timestampLayout), f.Extension())
}

// PRFilename names the download for a pull request report.
func PRFilename(owner, repo string, number int, now time.Time, f Format) string {
	return fmt.Sprintf("%s_PR_%s_%s_%d_%s.%s",
		filenamePrefix, owner, repo, number, now.Format(timestampLayout), f.Extension())
}

// Heading is the document title line.
func Heading(rep *analysis.Report) string {
	return "Code Quality Report: " + rep.Title
}

// Generated is the timestamp line under the heading.
func Generated(rep *analysis.Report) string {
	return "Generated on: " + rep.GeneratedAt.Format(GeneratedLayout)
}

// formatScore renders a score with one decimal.
func formatScore(score float64) string {
	return fmt.Sprintf("%.1f", score)
}

// notAnalyzed marks summary cells of languages without an analyzer.
const notAnalyzed = "n/a"

// summaryCells renders one summary row: label, files, four metrics, overall.
func summaryCells(row analysis.SummaryRow) []string {
	cells := []string{row.Label, fmt.Sprint(row.Files)}

	for _, metric := range analysis.Metrics {
		if !row.Analyzed {
			cells = append(cells, notAnalyzed)

			continue
		}

		cells = append(cells, formatScore(row.Scores[metric]))
	}

	if !row.Analyzed {
		return append(cells, notAnalyzed)
	}

	return append(cells, formatScore(row.Overall))
}

// summaryHeaders are the summary table columns.
func summaryHeaders() []string {
	headers := []string{"Language", "Files"}

	for _, metric := range analysis.Metrics {
		headers = append(headers, metric.Title())
	}

	return append(headers, "Overall")
}

// issueLines returns up to limit lines of result and the count left out.
func issueLines(result analysis.MetricResult, limit int) ([]string, int) {
	lines := result.Lines()
	if len(lines) <= limit {
		return lines, 0
	}

	return lines[:limit], len(lines) - limit
}

func moreIssues(n int) string {
	return fmt.Sprintf("... and %d more issues", n)
}
