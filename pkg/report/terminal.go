package report

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/Sumatoshi-tech/codereport/pkg/analysis"
)

// Terminal widths.
const (
	DefaultWidth = 80
	MinWidth     = 60
	MaxWidth     = 120
)

// DetectWidth returns the terminal width from the COLUMNS environment
// variable, clamped to [MinWidth, MaxWidth], or DefaultWidth.
func DetectWidth() int {
	width, err := strconv.Atoi(os.Getenv("COLUMNS"))
	if err != nil || width <= 0 {
		return DefaultWidth
	}

	return min(max(width, MinWidth), MaxWidth)
}

// Box and bar characters.
const (
	boxHeavyHorizontal  = "━"
	boxHeavyVertical    = "┃"
	boxHeavyTopLeft     = "┏"
	boxHeavyTopRight    = "┓"
	boxHeavyBottomLeft  = "┗"
	boxHeavyBottomRight = "┛"

	barFilled = "█"
	barEmpty  = "░"
)

// DrawHeader draws a heavy-bordered header with title on the left and
// right on the right.
//
//	┏━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━┓
//	┃ TITLE                     rightText ┃
//	┗━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━┛
func DrawHeader(title, right string, width int) string {
	titleLen := text.RuneWidthWithoutEscSequences(title)
	rightLen := text.RuneWidthWithoutEscSequences(right)

	width = max(width, titleLen+rightLen+5)
	inner := width - 2
	gap := max(inner-2-titleLen-rightLen, 1)

	return boxHeavyTopLeft + strings.Repeat(boxHeavyHorizontal, inner) + boxHeavyTopRight + "\n" +
		boxHeavyVertical + " " + title + strings.Repeat(" ", gap) + right + " " + boxHeavyVertical + "\n" +
		boxHeavyBottomLeft + strings.Repeat(boxHeavyHorizontal, inner) + boxHeavyBottomRight
}

// ScoreBar draws a 0..10 score as "[████████░░] 8.0".
func ScoreBar(score float64, width int) string {
	filled := int(min(max(score, 0), analysis.MaxScore) / analysis.MaxScore * float64(width))

	return fmt.Sprintf("[%s%s] %s", strings.Repeat(barFilled, filled), strings.Repeat(barEmpty, width-filled),
		formatScore(score))
}

// palette colours ratings. With NoColor it returns text unchanged.
type palette struct {
	noColor bool
}

func (p palette) color(attr color.Attribute) *color.Color {
	c := color.New(attr)
	if p.noColor {
		c.DisableColor()
	} else {
		c.EnableColor()
	}

	return c
}

func (p palette) score(score float64) string {
	return p.forScore(score).Sprint(formatScore(score))
}

func (p palette) forScore(score float64) *color.Color {
	switch analysis.Rating(score) {
	case analysis.RatingExcellent, analysis.RatingGood:
		return p.color(color.FgGreen)
	case analysis.RatingAverage:
		return p.color(color.FgYellow)
	default:
		return p.color(color.FgRed)
	}
}

const scoreBarWidth = 20

// WriteTable renders the summary, per-language metric scores and the most
// affected files as terminal tables.
func WriteTable(w io.Writer, rep *analysis.Report, opts Options) error {
	opts = opts.withDefaults()
	if opts.Width <= 0 {
		opts.Width = DetectWidth()
	}

	p := palette{noColor: opts.NoColor}

	var sb strings.Builder

	sb.WriteString(DrawHeader(Heading(rep), rep.GeneratedAt.Format(GeneratedLayout), opts.Width))
	sb.WriteString("\n\n")

	summary := rep.Summary()

	tbl := newTable()
	tbl.SetTitle("Summary")
	tbl.AppendHeader(toRow(summaryHeaders()))

	for _, row := range summary.Rows {
		tbl.AppendRow(summaryRow(row, p))
	}

	if summary.Total != nil {
		tbl.AppendFooter(summaryRow(*summary.Total, p))
	}

	sb.WriteString(tbl.Render())
	sb.WriteString("\n")

	for _, lr := range rep.Analyzed() {
		sb.WriteString("\n")
		sb.WriteString(p.color(color.Bold).Sprintf("%s Analysis", lr.Language))
		fmt.Fprintf(&sb, " (%d files)\n", lr.FileCount())

		for _, metric := range analysis.Metrics {
			result := lr.Results[metric]
			bar := p.forScore(result.Score).Sprint(ScoreBar(result.Score, scoreBarWidth))
			fmt.Fprintf(&sb, "  %-12s %s  %-9s %d issues\n",
				metricLabels[metric], bar, analysis.Rating(result.Score), len(result.Issues))
		}
	}

	if stats := rep.Files.Top(opts.TopFiles); len(stats) > 0 {
		files := newTable()
		files.SetTitle("Most Affected Files")

		headers := table.Row{"File"}
		for _, title := range metricTitles() {
			headers = append(headers, title)
		}

		files.AppendHeader(append(headers, "Total"))

		pathWidth := max(opts.Width-40, 20)

		for _, stat := range stats {
			row := table.Row{text.Trim(stat.Path, pathWidth)}
			for _, metric := range analysis.Metrics {
				row = append(row, stat.Counts[metric])
			}

			files.AppendRow(append(row, stat.Total))
		}

		sb.WriteString("\n")
		sb.WriteString(files.Render())
		sb.WriteString("\n")
	}

	_, err := io.WriteString(w, sb.String())
	if err != nil {
		return fmt.Errorf("write table: %w", err)
	}

	return nil
}

func newTable() table.Writer {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Format.Header = text.FormatDefault
	tbl.Style().Format.Footer = text.FormatDefault

	return tbl
}

func toRow(cells []string) table.Row {
	row := make(table.Row, len(cells))
	for i, cell := range cells {
		row[i] = cell
	}

	return row
}

func summaryRow(row analysis.SummaryRow, p palette) table.Row {
	cells := toRow(summaryCells(row))
	if !row.Analyzed {
		return cells
	}

	for i, metric := range analysis.Metrics {
		cells[2+i] = p.score(row.Scores[metric])
	}

	cells[len(cells)-1] = p.score(row.Overall)

	return cells
}
