package plotpage

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"sync"
)

//go:embed templates/*.html
var templateFS embed.FS

var (
	templates     *template.Template
	templatesOnce sync.Once
	errTemplates  error
)

var funcMap = template.FuncMap{
	"last": func(i int, rows [][]string) bool {
		return i == len(rows)-1
	},
}

// getTemplates returns the parsed templates, loading them once.
func getTemplates() (*template.Template, error) {
	templatesOnce.Do(func() {
		var parseErr error

		templates, parseErr = template.New("").
			Funcs(funcMap).
			ParseFS(templateFS, "templates/*.html")
		if parseErr != nil {
			errTemplates = fmt.Errorf("parsing templates: %w", parseErr)
		}
	})

	return templates, errTemplates
}

// renderTemplate renders a named template with the given data.
func renderTemplate(name string, data any) (template.HTML, error) {
	tmpl, err := getTemplates()
	if err != nil {
		return "", fmt.Errorf("loading templates: %w", err)
	}

	var buf bytes.Buffer

	err = tmpl.ExecuteTemplate(&buf, name, data)
	if err != nil {
		return "", fmt.Errorf("executing template %s: %w", name, err)
	}

	//nolint:gosec // the buffer holds output of html/template.
	return template.HTML(buf.String()), nil
}

type pageData struct {
	Title     string
	DarkClass string
	Light     ThemeConfig
	Dark      ThemeConfig
	ExtraCSS  template.CSS
	Header    template.HTML
	Content   template.HTML
	Scripts   template.HTML
}

type headerData struct {
	ProjectName     string
	Subtitle        string
	Title           string
	Description     string
	ShowThemeToggle bool
}

type sectionData struct {
	Title    string
	Subtitle string
	Chart    template.HTML
	Hint     *hintData
	Table    *Table
	Lists    []List
}

type hintData struct {
	Title string
	Items []string
}
