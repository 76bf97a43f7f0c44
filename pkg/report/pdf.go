package report

import (
	"fmt"
	"io"

	gofpdf "github.com/go-pdf/fpdf"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/Sumatoshi-tech/codereport/pkg/analysis"
)

const (
	fontFamily = "Helvetica"
	pageMargin = 18.0
	lineHeight = 5.0
	rowHeight  = 7.0

	chartBarHeight = 6.0
	chartGap       = 2.5
	chartLabelW    = 38.0
	chartValueW    = 14.0
)

type rgb struct{ r, g, b int }

var (
	headerFill = rgb{128, 128, 128}
	totalFill  = rgb{211, 211, 211}
	textDark   = rgb{30, 41, 59}
	textMuted  = rgb{100, 116, 139}
	gridColor  = rgb{203, 213, 225}

	ratingColors = map[string]rgb{
		analysis.RatingExcellent: {22, 163, 74},
		analysis.RatingGood:      {101, 163, 13},
		analysis.RatingAverage:   {202, 138, 4},
		analysis.RatingPoor:      {234, 88, 12},
		analysis.RatingVeryPoor:  {220, 38, 38},
	}
)

// metricLabels are the row labels of the per-language metric table.
var metricLabels = map[analysis.Metric]string{
	analysis.Style:      "Code Style",
	analysis.Quality:    "Code Quality",
	analysis.Complexity: "Complexity",
	analysis.Security:   "Security",
}

// pdfWriter lays out one report on a Letter page.
type pdfWriter struct {
	pdf   *gofpdf.Fpdf
	opts  Options
	tr    func(string) string
	title cases.Caser
}

// WritePDF renders rep as a PDF document.
func WritePDF(w io.Writer, rep *analysis.Report, opts Options) error {
	opts = opts.withDefaults()

	pdf := gofpdf.New("P", "mm", "Letter", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.SetTitle(Heading(rep), true)
	pdf.SetCreator("codereport", false)
	pdf.SetCreationDate(rep.GeneratedAt)
	pdf.AliasNbPages("")

	if opts.Uncompressed {
		pdf.SetCompression(false)
	}

	pw := &pdfWriter{
		pdf:   pdf,
		opts:  opts,
		tr:    pdf.UnicodeTranslatorFromDescriptor(""),
		title: cases.Title(language.English),
	}

	pdf.SetFooterFunc(pw.footer)
	pdf.AddPage()

	pw.header(rep)
	pw.summary(rep)

	for _, lr := range rep.Languages {
		pw.language(lr)
	}

	pw.topFiles(rep)

	err := pdf.Output(w)
	if err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}

	return nil
}

func (pw *pdfWriter) footer() {
	pdf := pw.pdf

	pdf.SetY(-pageMargin + lineHeight)
	pdf.SetFont(fontFamily, "I", 8)
	pdf.SetTextColor(textMuted.r, textMuted.g, textMuted.b)
	pdf.CellFormat(0, lineHeight, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
}

func (pw *pdfWriter) header(rep *analysis.Report) {
	pdf := pw.pdf

	pdf.SetFont(fontFamily, "B", 18)
	pdf.SetTextColor(textDark.r, textDark.g, textDark.b)
	pdf.MultiCell(0, 9, pw.tr(Heading(rep)), "", "C", false)
	pdf.Ln(4)

	pdf.SetFont(fontFamily, "", 10)
	pdf.SetTextColor(textMuted.r, textMuted.g, textMuted.b)
	pdf.CellFormat(0, lineHeight, Generated(rep), "", 1, "L", false, 0, "")

	if rep.Source != "" {
		pdf.CellFormat(0, lineHeight, pw.tr("Source: "+rep.Source), "", 1, "L", false, 0, "")
	}

	pdf.Ln(6)
}

func (pw *pdfWriter) heading(text string, size float64) {
	pdf := pw.pdf

	pw.ensureSpace(size + 2*rowHeight)
	pdf.SetFont(fontFamily, "B", size)
	pdf.SetTextColor(textDark.r, textDark.g, textDark.b)
	pdf.CellFormat(0, size*0.6, pw.tr(text), "", 1, "L", false, 0, "")
	pdf.Ln(2)
}

func (pw *pdfWriter) text(s string) {
	pdf := pw.pdf

	pdf.SetFont(fontFamily, "", 10)
	pdf.SetTextColor(textDark.r, textDark.g, textDark.b)
	pdf.MultiCell(0, lineHeight, pw.tr(s), "", "L", false)
}

// ensureSpace starts a new page when fewer than h millimetres remain.
func (pw *pdfWriter) ensureSpace(h float64) {
	_, pageH := pw.pdf.GetPageSize()
	if pw.pdf.GetY()+h > pageH-pageMargin {
		pw.pdf.AddPage()
	}
}

// table draws a bordered grid with a filled header row. The last row is
// shaded when shadeLast is set.
func (pw *pdfWriter) table(widths []float64, headers []string, rows [][]string, shadeLast bool) {
	pdf := pw.pdf

	pw.ensureSpace(rowHeight * float64(min(len(rows), 4)+1))

	drawHeader := func() {
		pdf.SetFont(fontFamily, "B", 10)
		pdf.SetFillColor(headerFill.r, headerFill.g, headerFill.b)
		pdf.SetTextColor(255, 255, 255)
		pdf.SetDrawColor(0, 0, 0)

		for i, h := range headers {
			pdf.CellFormat(widths[i], rowHeight, h, "1", 0, "C", true, 0, "")
		}

		pdf.Ln(-1)
	}

	drawHeader()

	_, pageH := pdf.GetPageSize()

	for i, row := range rows {
		if pdf.GetY()+rowHeight > pageH-pageMargin {
			pdf.AddPage()
			drawHeader()
		}

		shaded := shadeLast && i == len(rows)-1

		pdf.SetFont(fontFamily, "", 10)
		pdf.SetTextColor(textDark.r, textDark.g, textDark.b)
		pdf.SetFillColor(totalFill.r, totalFill.g, totalFill.b)

		if shaded {
			pdf.SetFont(fontFamily, "B", 10)
		}

		for j, cell := range row {
			align := "C"
			if j == 0 {
				align = "L"
			}

			pdf.CellFormat(widths[j], rowHeight, pw.fit(cell, widths[j]), "1", 0, align, shaded, 0, "")
		}

		pdf.Ln(-1)
	}

	pdf.Ln(6)
}

// fit shortens s from the left until it fits in a cell of width w.
func (pw *pdfWriter) fit(s string, w float64) string {
	s = pw.tr(s)

	const padding = 3

	if pw.pdf.GetStringWidth(s) <= w-padding {
		return s
	}

	for len(s) > 1 && pw.pdf.GetStringWidth("..."+s) > w-padding {
		s = s[1:]
	}

	return "..." + s
}

type bar struct {
	label string
	score float64
}

// barChart draws horizontal bars on a 0..10 scale, coloured by rating.
func (pw *pdfWriter) barChart(caption string, bars []bar) {
	if len(bars) == 0 {
		return
	}

	pdf := pw.pdf

	height := float64(len(bars))*(chartBarHeight+chartGap) + 2*rowHeight
	pw.ensureSpace(height)

	pdf.SetFont(fontFamily, "B", 10)
	pdf.SetTextColor(textMuted.r, textMuted.g, textMuted.b)
	pdf.CellFormat(0, rowHeight, caption, "", 1, "L", false, 0, "")

	pageW, _ := pdf.GetPageSize()
	left := pageMargin + chartLabelW
	plotW := pageW - 2*pageMargin - chartLabelW - chartValueW
	top := pdf.GetY()
	plotH := float64(len(bars)) * (chartBarHeight + chartGap)

	pdf.SetDrawColor(gridColor.r, gridColor.g, gridColor.b)
	pdf.SetFont(fontFamily, "", 7)

	for tick := 0; tick <= int(analysis.MaxScore); tick += 2 {
		x := left + plotW*float64(tick)/analysis.MaxScore
		pdf.Line(x, top, x, top+plotH)
		pdf.SetXY(x-3, top+plotH)
		pdf.CellFormat(6, 4, fmt.Sprint(tick), "", 0, "C", false, 0, "")
	}

	pdf.SetFont(fontFamily, "", 9)

	for i, b := range bars {
		y := top + float64(i)*(chartBarHeight+chartGap) + chartGap/2
		color := ratingColors[analysis.Rating(b.score)]

		pdf.SetTextColor(textDark.r, textDark.g, textDark.b)
		pdf.SetXY(pageMargin, y)
		pdf.CellFormat(chartLabelW-2, chartBarHeight, pw.fit(b.label, chartLabelW-2), "", 0, "R", false, 0, "")

		if w := plotW * b.score / analysis.MaxScore; w > 0 {
			pdf.SetFillColor(color.r, color.g, color.b)
			pdf.Rect(left, y, w, chartBarHeight, "F")
		}

		pdf.SetXY(left+plotW+1, y)
		pdf.CellFormat(chartValueW-1, chartBarHeight, formatScore(b.score), "", 0, "L", false, 0, "")
	}

	pdf.SetXY(pageMargin, top+plotH+rowHeight)
}

func (pw *pdfWriter) summary(rep *analysis.Report) {
	pw.heading("Summary", 16)

	summary := rep.Summary()

	rows := make([][]string, 0, len(summary.Rows)+1)
	for _, row := range summary.Rows {
		rows = append(rows, summaryCells(row))
	}

	if summary.Total != nil {
		rows = append(rows, summaryCells(*summary.Total))
	}

	pw.table([]float64{38, 18, 24, 24, 26, 24, 24}, summaryHeaders(), rows, summary.Total != nil)

	var bars []bar

	for _, row := range summary.Rows {
		if row.Analyzed {
			bars = append(bars, bar{label: row.Label, score: row.Overall})
		}
	}

	pw.barChart("Overall score by language", bars)
}

func (pw *pdfWriter) language(lr analysis.LanguageReport) {
	pw.ensureSpace(60)
	pw.heading(string(lr.Language)+" Analysis", 16)
	pw.text(fmt.Sprintf("Files analyzed: %d", lr.FileCount()))
	pw.pdf.Ln(3)

	if !lr.Analyzed {
		pw.text(fmt.Sprintf("No analyzer is available for %s; these files were counted but not scored.", lr.Language))
		pw.pdf.Ln(6)

		return
	}

	rows := make([][]string, 0, len(analysis.Metrics)+1)
	bars := make([]bar, 0, len(analysis.Metrics))

	for _, metric := range analysis.Metrics {
		score := lr.Score(metric)
		rows = append(rows, []string{metricLabels[metric], formatScore(score), analysis.Rating(score)})
		bars = append(bars, bar{label: metricLabels[metric], score: score})
	}

	rows = append(rows, []string{"Overall", formatScore(lr.Overall()), analysis.Rating(lr.Overall())})

	pw.table([]float64{60, 34, 44}, []string{"Metric", "Score (0-10)", "Rating"}, rows, true)
	pw.barChart(string(lr.Language)+" scores by metric", bars)

	for _, metric := range analysis.Metrics {
		pw.metric(metric, lr.Results[metric])
	}
}

func (pw *pdfWriter) metric(metric analysis.Metric, result analysis.MetricResult) {
	pdf := pw.pdf

	pw.heading(pw.title.String(string(metric))+" Analysis", 13)
	pw.text(fmt.Sprintf("Score: %.1f/10 (%s)", result.Score, analysis.Rating(result.Score)))
	pdf.Ln(2)

	pdf.SetFont(fontFamily, "B", 11)
	pdf.SetTextColor(textDark.r, textDark.g, textDark.b)
	pdf.CellFormat(0, rowHeight, "Issues:", "", 1, "L", false, 0, "")

	lines, more := issueLines(result, pw.opts.MaxIssues)
	if len(lines) == 0 {
		pw.text("No issues found.")
	}

	pdf.SetFont(fontFamily, "", 9)

	for _, line := range lines {
		pdf.SetX(pageMargin + 3)
		pdf.MultiCell(0, 4.5, pw.tr("• "+line), "", "L", false)
	}

	if more > 0 {
		pw.text(moreIssues(more))
	}

	pdf.Ln(5)
}

func (pw *pdfWriter) topFiles(rep *analysis.Report) {
	stats := rep.Files.Top(pw.opts.TopFiles)
	if len(stats) == 0 {
		return
	}

	pw.ensureSpace(40)
	pw.heading("Most Affected Files", 16)

	headers := []string{"File"}
	for _, metric := range analysis.Metrics {
		headers = append(headers, metric.Title())
	}

	headers = append(headers, "Total")

	rows := make([][]string, 0, len(stats))

	for _, stat := range stats {
		row := []string{stat.Path}
		for _, metric := range analysis.Metrics {
			row = append(row, fmt.Sprint(stat.Counts[metric]))
		}

		rows = append(rows, append(row, fmt.Sprint(stat.Total)))
	}

	pw.table([]float64{70, 20, 20, 24, 20, 18}, headers, rows, false)
}
