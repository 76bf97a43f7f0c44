// Package language maps source files to the languages codereport knows about.
package language

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"github.com/src-d/enry/v2"
)

// Language is a human-readable language name as shown in reports.
type Language string

// Known languages.
const (
	Python     Language = "Python"
	JavaScript Language = "JavaScript"
	TypeScript Language = "TypeScript"
	Java       Language = "Java"
	CPP        Language = "C/C++"
	Go         Language = "Go"
	Ruby       Language = "Ruby"
	PHP        Language = "PHP"
	CSharp     Language = "C#"
)

// byExtension is the only source of truth for supported files.
var byExtension = map[string]Language{
	".py":   Python,
	".js":   JavaScript,
	".jsx":  JavaScript,
	".ts":   TypeScript,
	".tsx":  TypeScript,
	".java": Java,
	".cpp":  CPP,
	".cc":   CPP,
	".cxx":  CPP,
	".c":    CPP,
	".h":    CPP,
	".hpp":  CPP,
	".go":   Go,
	".rb":   Ruby,
	".php":  PHP,
	".cs":   CSharp,
}

// enryNames maps enry's linguist names onto ours where they differ.
var enryNames = map[string]Language{
	"C":   CPP,
	"C++": CPP,
	"TSX": TypeScript,
}

// ForPath returns the language of path by its extension, case-insensitively.
func ForPath(path string) (Language, bool) {
	lang, ok := byExtension[strings.ToLower(filepath.Ext(path))]

	return lang, ok
}

// Supported reports whether path has a supported extension.
func Supported(path string) bool {
	_, ok := ForPath(path)

	return ok
}

// Extensions returns the supported extensions of lang in sorted order.
func Extensions(lang Language) []string {
	var exts []string

	for ext, l := range byExtension {
		if l == lang {
			exts = append(exts, ext)
		}
	}

	slices.Sort(exts)

	return exts
}

// All returns every known language in sorted order.
func All() []Language {
	seen := make(map[Language]bool)

	var langs []Language

	for _, l := range byExtension {
		if !seen[l] {
			seen[l] = true
			langs = append(langs, l)
		}
	}

	slices.Sort(langs)

	return langs
}

// Detect runs content-based detection. The result is only advisory; file
// selection always follows ForPath.
func Detect(path string, content []byte) Language {
	name := enry.GetLanguage(filepath.Base(path), content)
	if mapped, ok := enryNames[name]; ok {
		return mapped
	}

	return Language(name)
}

// IsVendored reports whether path is third-party or generated code that
// analysis should skip (node_modules, vendor trees, .git, minified bundles).
func IsVendored(path string) bool {
	slashed := filepath.ToSlash(path)
	if slashed == ".git" || strings.HasPrefix(slashed, ".git/") || strings.Contains(slashed, "/.git/") {
		return true
	}

	return enry.IsVendor(slashed)
}

// Group walks root and returns the supported, non-vendored files grouped by
// language. Paths are relative to root, slash separated and sorted.
func Group(root string) (map[Language][]string, error) {
	groups := make(map[Language][]string)

	walkErr := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return fmt.Errorf("relative path of %s: %w", path, relErr)
		}

		if rel == "." {
			return nil
		}

		rel = filepath.ToSlash(rel)

		if entry.IsDir() {
			if IsVendored(rel + "/") {
				return filepath.SkipDir
			}

			return nil
		}

		if !entry.Type().IsRegular() || IsVendored(rel) {
			return nil
		}

		if lang, ok := ForPath(rel); ok {
			groups[lang] = append(groups[lang], rel)
		}

		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walk %s: %w", root, walkErr)
	}

	for lang := range groups {
		slices.Sort(groups[lang])
	}

	return groups, nil
}
