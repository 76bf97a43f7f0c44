package analysis

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/Sumatoshi-tech/codereport/pkg/language"
)

// Sentinel errors.
var (
	ErrNoSupportedFiles  = errors.New("no supported code files found")
	ErrUnknownMetric     = errors.New("unknown metric")
	ErrDuplicateAnalyzer = errors.New("language already has an analyzer")
)

// Analyzer runs the tool suite of one language family.
//
// Analyze never fails: tool errors are folded into the result as a zero
// score plus an explanatory issue, so one broken tool does not sink the
// whole report. files are relative to dir.
type Analyzer interface {
	Name() string
	Extensions() []string
	Analyze(ctx context.Context, metric Metric, dir string, files []string) MetricResult
}

// Tool describes an external program an analyzer depends on.
type Tool struct {
	Name    string
	Command string
	Metric  Metric
	// Optional tools degrade to a neutral score or fallback when missing.
	Optional bool
}

// ToolLister is implemented by analyzers that can enumerate their tools.
type ToolLister interface {
	Tools() []Tool
}

// Registry maps languages to analyzers.
type Registry struct {
	byLanguage map[language.Language]Analyzer
	analyzers  []Analyzer
}

// NewRegistry creates a Registry holding analyzers.
func NewRegistry(analyzers ...Analyzer) (*Registry, error) {
	reg := &Registry{byLanguage: make(map[language.Language]Analyzer)}

	for _, an := range analyzers {
		err := reg.Register(an)
		if err != nil {
			return nil, err
		}
	}

	return reg, nil
}

// Register adds an analyzer for every language its extensions belong to.
func (r *Registry) Register(an Analyzer) error {
	for _, ext := range an.Extensions() {
		lang, ok := language.ForPath("file" + ext)
		if !ok {
			continue
		}

		if existing, taken := r.byLanguage[lang]; taken && existing != an {
			return fmt.Errorf("%w: %s (%s, %s)", ErrDuplicateAnalyzer, lang, existing.Name(), an.Name())
		}

		r.byLanguage[lang] = an
	}

	r.analyzers = append(r.analyzers, an)

	return nil
}

// For returns the analyzer for lang.
func (r *Registry) For(lang language.Language) (Analyzer, bool) {
	an, ok := r.byLanguage[lang]

	return an, ok
}

// Analyzers returns the registered analyzers in registration order.
func (r *Registry) Analyzers() []Analyzer {
	return slices.Clone(r.analyzers)
}

// Languages returns the languages that have an analyzer, sorted.
func (r *Registry) Languages() []language.Language {
	langs := make([]language.Language, 0, len(r.byLanguage))
	for lang := range r.byLanguage {
		langs = append(langs, lang)
	}

	slices.Sort(langs)

	return langs
}

// Tools lists the external tools of every registered analyzer.
func (r *Registry) Tools() []Tool {
	var tools []Tool

	for _, an := range r.analyzers {
		if lister, ok := an.(ToolLister); ok {
			tools = append(tools, lister.Tools()...)
		}
	}

	return tools
}
