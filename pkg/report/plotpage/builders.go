package plotpage

import (
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const (
	scoreMax         = 10
	radarSplitNumber = 5
	radarAreaOpacity = 0.2
)

// BarPoint is one bar. An empty Color uses the series color.
type BarPoint struct {
	Value float64
	Color string
}

// BarSeries defines the properties and data for a single bar chart series.
type BarSeries struct {
	Name   string
	Points []BarPoint
	Color  string
}

// BuildScoreBarChart constructs a bar chart of 0..10 scores. If cOpts is
// nil, DefaultChartOpts() is used.
func BuildScoreBarChart(cOpts *ChartOpts, style Style, labels []string, series []BarSeries) *charts.Bar {
	if cOpts == nil {
		cOpts = DefaultChartOpts()
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(cOpts.Init(style)),
		charts.WithTooltipOpts(cOpts.Tooltip("axis")),
		charts.WithXAxisOpts(cOpts.XAxis("")),
		charts.WithYAxisOpts(cOpts.ScoreAxis("Score")),
		charts.WithLegendOpts(cOpts.Legend()),
	)

	bar.SetXAxis(labels)

	for _, s := range series {
		barData := make([]opts.BarData, len(s.Points))

		for i, p := range s.Points {
			barData[i] = opts.BarData{Value: p.Value}
			if p.Color != "" {
				barData[i].ItemStyle = &opts.ItemStyle{Color: p.Color}
			}
		}

		var seriesOpts []charts.SeriesOpts
		if s.Color != "" {
			seriesOpts = append(seriesOpts, charts.WithItemStyleOpts(opts.ItemStyle{Color: s.Color}))
		}

		bar.AddSeries(s.Name, barData, seriesOpts...)
	}

	return bar
}

// RadarSeries is one polygon on a radar chart.
type RadarSeries struct {
	Name   string
	Values []float64
}

// BuildScoreRadarChart draws each series over axes fixed to 0..10.
func BuildScoreRadarChart(cOpts *ChartOpts, style Style, axes []string, series []RadarSeries) *charts.Radar {
	if cOpts == nil {
		cOpts = DefaultChartOpts()
	}

	indicators := make([]*opts.Indicator, len(axes))
	for i, axis := range axes {
		indicators[i] = &opts.Indicator{Name: axis, Max: scoreMax}
	}

	radar := charts.NewRadar()
	radar.SetGlobalOptions(
		charts.WithInitializationOpts(cOpts.Init(style)),
		charts.WithTooltipOpts(cOpts.Tooltip("item")),
		charts.WithLegendOpts(cOpts.Legend()),
		charts.WithRadarComponentOpts(cOpts.RadarComponent(indicators, radarSplitNumber)),
	)

	for _, s := range series {
		radar.AddSeries(s.Name, []opts.RadarData{{Name: s.Name, Value: s.Values}},
			charts.WithAreaStyleOpts(opts.AreaStyle{Opacity: opts.Float(radarAreaOpacity)}),
		)
	}

	return radar
}
