// Package toolkit holds helpers shared by the per-language analyzers.
package toolkit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/sync/errgroup"

	"github.com/Sumatoshi-tech/codereport/pkg/analysis"
	"github.com/Sumatoshi-tech/codereport/pkg/toolexec"
)

// Sentinel errors.
var (
	// ErrSchemaMismatch is returned when tool output does not match its schema.
	ErrSchemaMismatch = errors.New("output does not match schema")
	// ErrToolFailed marks a tool whose exit status means it did not run.
	ErrToolFailed = errors.New("tool failed")
)

// DefaultFileWorkers bounds concurrent per-file tool runs.
const DefaultFileWorkers = 4

// Lines splits tool output into trimmed, non-empty lines.
func Lines(text string) []string {
	var lines []string

	for line := range strings.SplitSeq(text, "\n") {
		line = strings.TrimRight(line, "\r ")
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}

	return lines
}

// FileOutput pairs a file with the output of the tool run on it.
type FileOutput struct {
	File   string
	Output toolexec.Output
	Err    error
}

// PerFile runs build(file) for every file with at most workers concurrent
// invocations and returns the outputs in input order. Tool failures are
// kept per file; only context cancellation aborts the batch.
func PerFile(
	ctx context.Context, exec toolexec.Executor, workers int, files []string, build func(file string) toolexec.Command,
) ([]FileOutput, error) {
	if workers <= 0 {
		workers = DefaultFileWorkers
	}

	outputs := make([]FileOutput, len(files))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	for idx, file := range files {
		group.Go(func() error {
			out, err := exec.Run(groupCtx, build(file))
			outputs[idx] = FileOutput{File: file, Output: out, Err: err}

			if ctxErr := groupCtx.Err(); ctxErr != nil {
				return ctxErr
			}

			return nil
		})
	}

	waitErr := group.Wait()
	if waitErr != nil {
		return outputs, fmt.Errorf("run per file: %w", waitErr)
	}

	return outputs, nil
}

// FirstError returns the first tool error among outputs, preferring
// "not found" so a missing binary is reported once rather than per file.
func FirstError(outputs []FileOutput) error {
	var first error

	for _, out := range outputs {
		if out.Err == nil {
			continue
		}

		if errors.Is(out.Err, toolexec.ErrToolNotFound) {
			return out.Err
		}

		if first == nil {
			first = out.Err
		}
	}

	return first
}

// PathArg returns file as a command-line operand that no tool can read as
// an option: relative paths gain a "./" prefix.
func PathArg(file string) string {
	if filepath.IsAbs(file) {
		return file
	}

	return "." + string(filepath.Separator) + filepath.FromSlash(file)
}

// PathArgs applies [PathArg] to every file.
func PathArgs(files []string) []string {
	args := make([]string, 0, len(files))
	for _, file := range files {
		args = append(args, PathArg(file))
	}

	return args
}

// WriteTemp writes data to a new file in dir (os.TempDir() when empty)
// and returns its path and a cleanup func that removes it.
func WriteTemp(dir, pattern string, data []byte) (string, func(), error) {
	tmp, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}

	path := tmp.Name()
	cleanup := func() { _ = os.Remove(path) }

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()

	if err := errors.Join(writeErr, closeErr); err != nil {
		cleanup()

		return "", nil, fmt.Errorf("write temp file: %w", err)
	}

	return path, cleanup, nil
}

// Failed builds the result of a metric whose tool could not be run.
func Failed(tool string, err error) analysis.MetricResult {
	return analysis.MetricResult{
		Score:  0,
		Tool:   tool,
		Issues: []analysis.Issue{analysis.ToolError(tool, err)},
	}
}

// ExitError reports the exit of a tool whose status signals failure rather
// than findings, quoting the first output line.
func ExitError(out toolexec.Output) error {
	first := ""
	if lines := Lines(out.Text()); len(lines) > 0 {
		first = ": " + lines[0]
	}

	return fmt.Errorf("%w: exit status %d%s", ErrToolFailed, out.ExitCode, first)
}

// Schema validates JSON documents before decoding.
type Schema struct {
	loader gojsonschema.JSONLoader
}

// MustSchema compiles a JSON schema literal. It panics on a malformed
// schema, which is a programming error.
func MustSchema(raw string) *Schema {
	loader := gojsonschema.NewStringLoader(raw)

	_, err := gojsonschema.NewSchema(loader)
	if err != nil {
		panic(fmt.Sprintf("invalid embedded schema: %v", err))
	}

	return &Schema{loader: loader}
}

// Decode validates data against the schema and unmarshals it into v.
func (s *Schema) Decode(data []byte, v any) error {
	result, err := gojsonschema.Validate(s.loader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("validate: %w", err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return fmt.Errorf("%w: %s", ErrSchemaMismatch, strings.Join(details, "; "))
	}

	unmarshalErr := json.Unmarshal(data, v)
	if unmarshalErr != nil {
		return fmt.Errorf("decode: %w", unmarshalErr)
	}

	return nil
}

// JSONPayload trims anything before the first '[' or '{' and after the
// matching last bracket. npx and npm sometimes print notices around the
// document.
func JSONPayload(data []byte) []byte {
	text := string(data)

	start := strings.IndexAny(text, "[{")
	if start < 0 {
		return data
	}

	closer := "]"
	if text[start] == '{' {
		closer = "}"
	}

	end := strings.LastIndex(text, closer)
	if end < start {
		return data
	}

	return []byte(text[start : end+1])
}
