// Package toolexectest provides a scripted toolexec.Executor for tests.
package toolexectest

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/Sumatoshi-tech/codereport/pkg/toolexec"
)

// Response is the canned result of one invocation.
type Response struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
}

// Handler computes a response for a command.
type Handler func(cmd toolexec.Command) Response

// Fake records commands and answers them with handlers registered per
// executable name. Unregistered names report toolexec.ErrToolNotFound.
type Fake struct {
	mu       sync.Mutex
	handlers map[string]Handler
	calls    []toolexec.Command
}

// New creates an empty Fake.
func New() *Fake {
	return &Fake{handlers: make(map[string]Handler)}
}

// Handle registers a handler for an executable name.
func (f *Fake) Handle(name string, handler Handler) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.handlers[name] = handler

	return f
}

// Reply registers a fixed response for an executable name.
func (f *Fake) Reply(name string, resp Response) *Fake {
	return f.Handle(name, func(toolexec.Command) Response { return resp })
}

// Run implements toolexec.Executor.
func (f *Fake) Run(ctx context.Context, cmd toolexec.Command) (toolexec.Output, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	handler, ok := f.handlers[cmd.Name]
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return toolexec.Output{}, err
	}

	if !ok {
		return toolexec.Output{ExitCode: -1}, fmt.Errorf("%w: %s", toolexec.ErrToolNotFound, cmd.Name)
	}

	resp := handler(cmd)

	return toolexec.Output{
		Stdout:   []byte(resp.Stdout),
		Combined: []byte(resp.Stdout + resp.Stderr),
		ExitCode: resp.ExitCode,
	}, resp.Err
}

// Lookup implements toolexec.Executor.
func (f *Fake) Lookup(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.handlers[name]; !ok {
		return "", fmt.Errorf("%w: %s", toolexec.ErrToolNotFound, name)
	}

	return "/fake/bin/" + name, nil
}

// Calls returns the recorded commands sorted by their command line.
func (f *Fake) Calls() []toolexec.Command {
	f.mu.Lock()
	defer f.mu.Unlock()

	calls := slices.Clone(f.calls)
	slices.SortFunc(calls, func(a, b toolexec.Command) int {
		return strings.Compare(a.String(), b.String())
	})

	return calls
}

// LastArg returns the final argument of cmd, usually the file operand.
func LastArg(cmd toolexec.Command) string {
	if len(cmd.Args) == 0 {
		return ""
	}

	return cmd.Args[len(cmd.Args)-1]
}
