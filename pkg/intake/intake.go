// Package intake turns uploaded files and archives into a directory of
// source files ready for analysis.
package intake

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Sentinel errors.
var (
	ErrEmptyFilename   = errors.New("empty filename")
	ErrUnsafePath      = errors.New("archive entry escapes extraction root")
	ErrArchiveTooLarge = errors.New("archive exceeds extraction limits")
	ErrInvalidArchive  = errors.New("invalid zip archive")
)

// Default extraction limits.
const (
	DefaultMaxArchiveFiles = 10000
	DefaultMaxArchiveBytes = 256 << 20
)

const (
	uploadDirName    = "upload"
	extractedDirName = "extracted"
	zipExtension     = ".zip"
)

// Limits bound archive extraction.
type Limits struct {
	MaxFiles int
	MaxBytes int64
}

func (l Limits) withDefaults() Limits {
	if l.MaxFiles <= 0 {
		l.MaxFiles = DefaultMaxArchiveFiles
	}

	if l.MaxBytes <= 0 {
		l.MaxBytes = DefaultMaxArchiveBytes
	}

	return l
}

// Workspace is a per-job temporary directory.
type Workspace struct {
	dir    string
	limits Limits
	logger *slog.Logger
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithLimits sets the archive extraction limits.
func WithLimits(limits Limits) Option {
	return func(ws *Workspace) { ws.limits = limits.withDefaults() }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(ws *Workspace) {
		if logger != nil {
			ws.logger = logger
		}
	}
}

// NewWorkspace creates a fresh directory under base (the system temp
// directory when empty).
func NewWorkspace(base string, opts ...Option) (*Workspace, error) {
	if base != "" {
		err := os.MkdirAll(base, 0o750)
		if err != nil {
			return nil, fmt.Errorf("create workspace base: %w", err)
		}
	}

	dir, err := os.MkdirTemp(base, "codereport-*")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	ws := &Workspace{
		dir:    dir,
		limits: Limits{}.withDefaults(),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(ws)
	}

	return ws, nil
}

// Dir returns the workspace root.
func (ws *Workspace) Dir() string {
	return ws.dir
}

// Path joins elem onto the workspace root.
func (ws *Workspace) Path(elem ...string) string {
	return filepath.Join(append([]string{ws.dir}, elem...)...)
}

// Close removes the workspace and everything in it.
func (ws *Workspace) Close() error {
	err := os.RemoveAll(ws.dir)
	if err != nil {
		return fmt.Errorf("remove workspace: %w", err)
	}

	return nil
}

// IsArchive reports whether filename names a ZIP archive.
func IsArchive(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), zipExtension)
}

// SaveUpload writes r under the workspace as the base name of filename and
// returns the directory to analyze. ZIP archives are extracted and the
// extraction root is returned instead.
func SaveUpload(ws *Workspace, filename string, r io.Reader) (string, error) {
	name := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(filename, `\`, "/")))
	if strings.TrimSpace(filename) == "" || name == "/" || name == "." {
		return "", ErrEmptyFilename
	}

	uploadDir := ws.Path(uploadDirName)

	err := os.MkdirAll(uploadDir, 0o750)
	if err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	target := filepath.Join(uploadDir, name)

	size, err := writeFile(target, r)
	if err != nil {
		return "", err
	}

	ws.logger.Info("upload saved", "file", name, "bytes", size)

	if !IsArchive(name) {
		return uploadDir, nil
	}

	extracted := ws.Path(extractedDirName)

	stats, err := ExtractZip(target, extracted, ws.limits)
	if err != nil {
		return "", err
	}

	ws.logger.Info("archive extracted",
		"file", name, "files", stats.Files, "skipped", stats.Skipped, "bytes", stats.Bytes)

	return extracted, nil
}

func writeFile(target string, r io.Reader) (int64, error) {
	out, err := os.Create(target)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", filepath.Base(target), err)
	}

	n, copyErr := io.Copy(out, r)
	closeErr := out.Close()

	err = errors.Join(copyErr, closeErr)
	if err != nil {
		return n, fmt.Errorf("write %s: %w", filepath.Base(target), err)
	}

	return n, nil
}
