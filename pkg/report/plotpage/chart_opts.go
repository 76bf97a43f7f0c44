package plotpage

import (
	"github.com/go-echarts/go-echarts/v2/opts"
)

// ChartOpts provides themed chart options based on the current theme.
type ChartOpts struct {
	theme ThemeConfig
}

// NewChartOpts creates a new ChartOpts with the given theme.
func NewChartOpts(theme Theme) *ChartOpts {
	return &ChartOpts{theme: GetThemeConfig(theme)}
}

// DefaultChartOpts returns chart options for the light theme.
func DefaultChartOpts() *ChartOpts {
	return NewChartOpts(ThemeLight)
}

// Init returns initialization options with themed background.
func (c *ChartOpts) Init(style Style) opts.Initialization {
	return opts.Initialization{
		Width:           style.Width,
		Height:          style.Height,
		BackgroundColor: c.theme.ChartBackground,
	}
}

// Title returns title options with themed text colors.
func (c *ChartOpts) Title(title, subtitle string) opts.Title {
	return opts.Title{
		Title:         title,
		Subtitle:      subtitle,
		Left:          "center",
		TitleStyle:    &opts.TextStyle{Color: c.theme.ChartText},
		SubtitleStyle: &opts.TextStyle{Color: c.theme.ChartTextMuted},
	}
}

// Legend returns legend options with themed text color.
func (c *ChartOpts) Legend() opts.Legend {
	return opts.Legend{
		Show:      opts.Bool(true),
		Type:      "scroll",
		Bottom:    "0",
		Left:      "center",
		TextStyle: &opts.TextStyle{Color: c.theme.ChartTextMuted},
	}
}

// XAxis returns x-axis options with themed colors.
func (c *ChartOpts) XAxis(name string) opts.XAxis {
	return opts.XAxis{
		Name:      name,
		AxisLabel: &opts.AxisLabel{Color: c.theme.ChartTextMuted},
		AxisLine:  &opts.AxisLine{LineStyle: &opts.LineStyle{Color: c.theme.ChartAxis}},
	}
}

// ScoreAxis returns a y-axis fixed to the 0..10 score range.
func (c *ChartOpts) ScoreAxis(name string) opts.YAxis {
	return opts.YAxis{
		Name:      name,
		Min:       0,
		Max:       scoreMax,
		AxisLabel: &opts.AxisLabel{Color: c.theme.ChartTextMuted},
		AxisLine:  &opts.AxisLine{LineStyle: &opts.LineStyle{Color: c.theme.ChartAxis}},
		SplitLine: &opts.SplitLine{
			Show:      opts.Bool(true),
			LineStyle: &opts.LineStyle{Color: c.theme.ChartGrid},
		},
	}
}

// Tooltip returns tooltip options.
func (c *ChartOpts) Tooltip(trigger string) opts.Tooltip {
	return opts.Tooltip{Show: opts.Bool(true), Trigger: trigger}
}

// RadarComponent returns radar component options with themed colors.
func (c *ChartOpts) RadarComponent(indicators []*opts.Indicator, splitNumber int) opts.RadarComponent {
	return opts.RadarComponent{
		Indicator:   indicators,
		Shape:       "polygon",
		SplitNumber: splitNumber,
		SplitLine:   &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: c.theme.ChartGrid}},
		SplitArea:   &opts.SplitArea{Show: opts.Bool(true)},
		AxisLine:    &opts.AxisLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: c.theme.ChartAxis}},
		AxisName:    &opts.AxisName{Color: c.theme.ChartTextMuted},
	}
}
