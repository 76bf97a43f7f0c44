package plotpage

// Theme represents a color theme for report pages.
type Theme string

const (
	// ThemeLight is the light color theme.
	ThemeLight Theme = "light"
	// ThemeDark is the dark color theme.
	ThemeDark Theme = "dark"
)

// ParseTheme maps a name to a Theme; anything unknown is light.
func ParseTheme(name string) Theme {
	if Theme(name) == ThemeDark {
		return ThemeDark
	}

	return ThemeLight
}

// ThemeConfig holds all theme-specific styling values.
type ThemeConfig struct {
	Background   string
	Surface      string
	Border       string
	TextPrimary  string
	TextMuted    string
	Accent       string
	AccentSubtle string

	ChartBackground string
	ChartGrid       string
	ChartAxis       string
	ChartText       string
	ChartTextMuted  string
}

// ChartPalette holds the series and rating colors of a theme.
type ChartPalette struct {
	Primary  []string
	Semantic struct {
		Good    string
		Warning string
		Bad     string
	}
}

// GetThemeConfig returns the configuration for a given theme.
func GetThemeConfig(theme Theme) ThemeConfig {
	if theme == ThemeDark {
		return darkTheme
	}

	return lightTheme
}

// GetChartPalette returns the chart color palette for a given theme.
func GetChartPalette(theme Theme) ChartPalette {
	if theme == ThemeDark {
		return darkChartPalette
	}

	return lightChartPalette
}

// Score bands used to colour bars.
const (
	goodScore    = 7
	warningScore = 5
)

// ScoreColor picks the semantic color for a 0..10 score.
func (p ChartPalette) ScoreColor(score float64) string {
	switch {
	case score >= goodScore:
		return p.Semantic.Good
	case score >= warningScore:
		return p.Semantic.Warning
	default:
		return p.Semantic.Bad
	}
}

var lightTheme = ThemeConfig{
	Background:   "#fafaf9", // stone-50.
	Surface:      "#ffffff",
	Border:       "#e7e5e4", // stone-200.
	TextPrimary:  "#1c1917", // stone-900.
	TextMuted:    "#78716c", // stone-500.
	Accent:       "#334155", // slate-700.
	AccentSubtle: "#e2e8f0", // slate-200.

	ChartBackground: "transparent",
	ChartGrid:       "#e7e5e4",
	ChartAxis:       "#a8a29e", // stone-400.
	ChartText:       "#44403c", // stone-700.
	ChartTextMuted:  "#78716c",
}

var darkTheme = ThemeConfig{
	Background:   "#0c0a09", // stone-950.
	Surface:      "#1c1917",
	Border:       "#44403c",
	TextPrimary:  "#fafaf9",
	TextMuted:    "#a8a29e",
	Accent:       "#64748b", // slate-500.
	AccentSubtle: "#1e293b", // slate-800.

	ChartBackground: "transparent",
	ChartGrid:       "#44403c",
	ChartAxis:       "#57534e", // stone-600.
	ChartText:       "#d6d3d1", // stone-300.
	ChartTextMuted:  "#a8a29e",
}

var lightChartPalette = ChartPalette{
	Primary: []string{"#0369a1", "#a16207", "#4d7c0f", "#7c3aed", "#be185d", "#0891b2"},
	Semantic: struct {
		Good    string
		Warning string
		Bad     string
	}{Good: "#16a34a", Warning: "#ca8a04", Bad: "#dc2626"},
}

var darkChartPalette = ChartPalette{
	Primary: []string{"#38bdf8", "#fbbf24", "#a3e635", "#a78bfa", "#f472b6", "#22d3ee"},
	Semantic: struct {
		Good    string
		Warning string
		Bad     string
	}{Good: "#22c55e", Warning: "#eab308", Bad: "#ef4444"},
}
