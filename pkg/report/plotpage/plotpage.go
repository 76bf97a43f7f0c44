// Package plotpage renders self-contained HTML report pages made of
// sections holding echarts charts, tables and issue lists.
package plotpage

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"strings"
)

const styleTagLen = 8 // len("</style>")

// Style defines chart dimensions.
type Style struct {
	Width  string
	Height string
}

// DefaultStyle returns the default chart style.
func DefaultStyle() Style {
	return Style{Width: "100%", Height: "420px"}
}

// Hint contains interpretive guidance for a section.
type Hint struct {
	Title string
	Items []string
}

// Table is a plain data table shown inside a section.
type Table struct {
	Headers []string
	Rows    [][]string
	// Emphasize marks the last row as a total row.
	Emphasize bool
}

// List is a bulleted list of lines with an optional trailer such as
// "... and 5 more issues".
type List struct {
	Title   string
	Items   []string
	Trailer string
	Empty   string
}

// Section represents one block of the page.
type Section struct {
	Title    string
	Subtitle string
	Hint     Hint
	Chart    Renderable
	Table    *Table
	Lists    []List
}

// Page represents a complete report page.
type Page struct {
	Title           string
	Description     string
	ProjectName     string
	ProjectSubtitle string
	ShowThemeToggle bool
	Style           Style
	Theme           Theme
	Sections        []Section
}

// NewPage creates a new report page.
func NewPage(title, description string) *Page {
	return &Page{
		Title:           title,
		Description:     description,
		ProjectName:     "codereport",
		ProjectSubtitle: "Code Quality",
		ShowThemeToggle: true,
		Style:           DefaultStyle(),
		Theme:           ThemeLight,
	}
}

// WithTheme sets the theme for the page.
func (p *Page) WithTheme(theme Theme) *Page {
	p.Theme = theme

	return p
}

// Add appends sections to the page.
func (p *Page) Add(sections ...Section) {
	p.Sections = append(p.Sections, sections...)
}

// Render writes the page as HTML.
func (p *Page) Render(w io.Writer) error {
	return HTMLRenderer{}.Render(w, p)
}

// Renderable is the interface for chart components.
type Renderable interface {
	Render(w io.Writer) error
}

// HTMLRenderer renders pages as HTML.
type HTMLRenderer struct {
	ExtraCSS string
}

// Render writes the page as HTML to the writer.
func (r HTMLRenderer) Render(w io.Writer, page *Page) error {
	header, err := renderTemplate("header.html", headerData{
		ProjectName:     page.ProjectName,
		Subtitle:        page.ProjectSubtitle,
		Title:           page.Title,
		Description:     page.Description,
		ShowThemeToggle: page.ShowThemeToggle,
	})
	if err != nil {
		return fmt.Errorf("render header: %w", err)
	}

	var sectionsHTML bytes.Buffer

	for _, section := range page.Sections {
		sectionHTML, sectionErr := r.renderSection(section)
		if sectionErr != nil {
			return fmt.Errorf("render section %q: %w", section.Title, sectionErr)
		}

		sectionsHTML.WriteString(string(sectionHTML))
	}

	scripts, err := renderTemplate("scripts.html", nil)
	if err != nil {
		return fmt.Errorf("render scripts: %w", err)
	}

	darkClass := ""
	if page.Theme == ThemeDark {
		darkClass = "dark"
	}

	html, err := renderTemplate("page.html", pageData{
		Title:     page.Title,
		DarkClass: darkClass,
		Light:     GetThemeConfig(ThemeLight),
		Dark:      GetThemeConfig(ThemeDark),
		ExtraCSS:  template.CSS(r.ExtraCSS),
		Header:    header,
		Content:   template.HTML(sectionsHTML.String()),
		Scripts:   scripts,
	})
	if err != nil {
		return fmt.Errorf("render page: %w", err)
	}

	_, err = io.WriteString(w, string(html))
	if err != nil {
		return fmt.Errorf("writing page: %w", err)
	}

	return nil
}

func (r HTMLRenderer) renderSection(section Section) (template.HTML, error) {
	chartHTML, err := renderChart(section.Chart)
	if err != nil {
		return "", err
	}

	var hint *hintData

	if len(section.Hint.Items) > 0 {
		hint = &hintData{Title: section.Hint.Title, Items: section.Hint.Items}
	}

	return renderTemplate("section.html", sectionData{
		Title:    section.Title,
		Subtitle: section.Subtitle,
		Chart:    template.HTML(chartHTML),
		Hint:     hint,
		Table:    section.Table,
		Lists:    section.Lists,
	})
}

// ChartWrapper wraps an echarts chart and renders only the chart content.
type ChartWrapper struct {
	chart Renderable
}

// WrapChart wraps an echarts chart to render only the div and script.
func WrapChart(chart Renderable) *ChartWrapper {
	return &ChartWrapper{chart: chart}
}

// Render writes the chart element and script without a full HTML page.
func (cw *ChartWrapper) Render(w io.Writer) error {
	content, err := renderChart(cw.chart)
	if err != nil {
		return err
	}

	_, err = io.WriteString(w, content)
	if err != nil {
		return fmt.Errorf("writing chart content: %w", err)
	}

	return nil
}

func renderChart(chart Renderable) (string, error) {
	if chart == nil {
		return "", nil
	}

	var buf bytes.Buffer

	err := chart.Render(&buf)
	if err != nil {
		return "", fmt.Errorf("rendering chart: %w", err)
	}

	return extractChartContent(buf.String()), nil
}

// extractChartContent strips the standalone page echarts emits down to the
// chart container. Fragments pass through unchanged.
func extractChartContent(html string) string {
	trimmed := strings.TrimSpace(html)
	if !strings.HasPrefix(trimmed, "<!DOCTYPE") && !strings.HasPrefix(trimmed, "<html") {
		return html
	}

	start := strings.Index(html, `<div class="container">`)
	if start == -1 {
		return html
	}

	end := strings.Index(html, `</body>`)
	if end == -1 {
		return html
	}

	content := html[start:end]
	content = strings.ReplaceAll(content, `class="container"`, `class="echart-box"`)

	return removeStyleTags(content)
}

func removeStyleTags(content string) string {
	for {
		i := strings.Index(content, `<style>`)
		if i == -1 {
			break
		}

		j := strings.Index(content[i:], `</style>`)
		if j == -1 {
			break
		}

		content = content[:i] + content[i+j+styleTagLen:]
	}

	return content
}
