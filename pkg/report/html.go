package report

import (
	"fmt"
	"io"

	"github.com/Sumatoshi-tech/codereport/pkg/analysis"
	"github.com/Sumatoshi-tech/codereport/pkg/report/plotpage"
)

// WriteHTML renders rep as an interactive page: the summary table with an
// overall bar chart and a metric radar, then one section per language.
func WriteHTML(w io.Writer, rep *analysis.Report, opts Options) error {
	opts = opts.withDefaults()

	page := plotpage.NewPage(Heading(rep), Generated(rep)).WithTheme(opts.Theme)
	chartOpts := plotpage.NewChartOpts(opts.Theme)
	palette := plotpage.GetChartPalette(opts.Theme)

	page.Add(summarySection(rep, chartOpts, palette, page.Style))

	for _, lr := range rep.Languages {
		page.Add(languageSection(lr, chartOpts, palette, page.Style, opts.MaxIssues))
	}

	if stats := rep.Files.Top(opts.TopFiles); len(stats) > 0 {
		page.Add(filesSection(stats))
	}

	err := page.Render(w)
	if err != nil {
		return fmt.Errorf("write html: %w", err)
	}

	return nil
}

func metricTitles() []string {
	titles := make([]string, len(analysis.Metrics))
	for i, metric := range analysis.Metrics {
		titles[i] = metric.Title()
	}

	return titles
}

func summarySection(rep *analysis.Report, chartOpts *plotpage.ChartOpts, palette plotpage.ChartPalette,
	style plotpage.Style,
) plotpage.Section {
	summary := rep.Summary()

	table := &plotpage.Table{Headers: summaryHeaders(), Emphasize: summary.Total != nil}
	for _, row := range summary.Rows {
		table.Rows = append(table.Rows, summaryCells(row))
	}

	if summary.Total != nil {
		table.Rows = append(table.Rows, summaryCells(*summary.Total))
	}

	var (
		labels []string
		points []plotpage.BarPoint
		radar  []plotpage.RadarSeries
	)

	for _, row := range summary.Rows {
		if !row.Analyzed {
			continue
		}

		labels = append(labels, row.Label)
		points = append(points, plotpage.BarPoint{Value: row.Overall, Color: palette.ScoreColor(row.Overall)})

		values := make([]float64, len(analysis.Metrics))
		for i, metric := range analysis.Metrics {
			values[i] = row.Scores[metric]
		}

		radar = append(radar, plotpage.RadarSeries{Name: row.Label, Values: values})
	}

	section := plotpage.Section{
		Title:    "Summary",
		Subtitle: fmt.Sprintf("%d files across %d languages", rep.TotalFiles(), len(rep.Languages)),
		Table:    table,
		Hint: plotpage.Hint{
			Title: "Ratings",
			Items: []string{
				"9 and above is Excellent, 7 Good, 5 Average, 3 Poor, below 3 Very Poor.",
				"Languages without an analyzer are listed as n/a and left out of the Overall row.",
			},
		},
	}

	if len(labels) == 0 {
		return section
	}

	section.Chart = multiChart{
		plotpage.WrapChart(plotpage.BuildScoreBarChart(chartOpts, style, labels,
			[]plotpage.BarSeries{{Name: "Overall", Points: points}})),
		plotpage.WrapChart(plotpage.BuildScoreRadarChart(chartOpts, style, metricTitles(), radar)),
	}

	return section
}

func languageSection(lr analysis.LanguageReport, chartOpts *plotpage.ChartOpts, palette plotpage.ChartPalette,
	style plotpage.Style, maxIssues int,
) plotpage.Section {
	section := plotpage.Section{
		Title:    string(lr.Language) + " Analysis",
		Subtitle: fmt.Sprintf("Files analyzed: %d", lr.FileCount()),
	}

	if !lr.Analyzed {
		section.Hint = plotpage.Hint{
			Title: "Not scored",
			Items: []string{fmt.Sprintf("No analyzer is available for %s.", lr.Language)},
		}

		return section
	}

	table := &plotpage.Table{Headers: []string{"Metric", "Score (0-10)", "Rating", "Tool"}, Emphasize: true}
	points := make([]plotpage.BarPoint, 0, len(analysis.Metrics))

	for _, metric := range analysis.Metrics {
		result := lr.Results[metric]
		table.Rows = append(table.Rows, []string{
			metricLabels[metric], formatScore(result.Score), analysis.Rating(result.Score), result.Tool,
		})
		points = append(points, plotpage.BarPoint{Value: result.Score, Color: palette.ScoreColor(result.Score)})

		lines, more := issueLines(result, maxIssues)
		list := plotpage.List{
			Title: fmt.Sprintf("%s: %.1f/10 (%s)", metric.Title(), result.Score, analysis.Rating(result.Score)),
			Items: lines,
			Empty: "No issues found.",
		}

		if more > 0 {
			list.Trailer = moreIssues(more)
		}

		section.Lists = append(section.Lists, list)
	}

	table.Rows = append(table.Rows, []string{
		"Overall", formatScore(lr.Overall()), analysis.Rating(lr.Overall()), lr.Analyzer,
	})

	section.Table = table
	section.Chart = plotpage.WrapChart(plotpage.BuildScoreBarChart(chartOpts, style, metricTitles(),
		[]plotpage.BarSeries{{Name: string(lr.Language), Points: points}}))

	return section
}

func filesSection(stats []analysis.FileStat) plotpage.Section {
	headers := []string{"File"}
	headers = append(headers, metricTitles()...)
	headers = append(headers, "Total")

	table := &plotpage.Table{Headers: headers}

	for _, stat := range stats {
		row := []string{stat.Path}
		for _, metric := range analysis.Metrics {
			row = append(row, fmt.Sprint(stat.Counts[metric]))
		}

		table.Rows = append(table.Rows, append(row, fmt.Sprint(stat.Total)))
	}

	return plotpage.Section{
		Title:    "Most Affected Files",
		Subtitle: "Files with the most findings across all metrics",
		Table:    table,
	}
}

// multiChart renders several charts in sequence.
type multiChart []plotpage.Renderable

func (m multiChart) Render(w io.Writer) error {
	for _, chart := range m {
		err := chart.Render(w)
		if err != nil {
			return err
		}
	}

	return nil
}
