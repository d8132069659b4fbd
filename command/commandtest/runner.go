// Package commandtest provides a scripted command.Runner for tests.
package commandtest

import (
	"context"
	"sync"

	"github.com/djzelenak/espa-worker/command"
)

// Call is one recorded invocation
type Call struct {
	Dir  string
	Name string
	Args []string
}

// Line renders the call the way command.Line does
func (c Call) Line() string {
	return command.Line(c.Name, c.Args...)
}

// Runner records every call. Handler, when set, decides the result;
// otherwise every command succeeds with no output.
type Runner struct {
	Handler func(call Call) (string, error)

	mu    sync.Mutex
	calls []Call
}

// Run implements command.Runner
func (r *Runner) Run(ctx context.Context, dir, name string, args ...string) (string, error) {
	call := Call{Dir: dir, Name: name, Args: append([]string(nil), args...)}
	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if r.Handler != nil {
		return r.Handler(call)
	}
	return "", nil
}

// Calls returns a copy of the recorded calls
func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Names returns the program name of each recorded call, in order
func (r *Runner) Names() []string {
	var names []string
	for _, call := range r.Calls() {
		names = append(names, call.Name)
	}
	return names
}

// Lines returns each recorded call rendered as a command line
func (r *Runner) Lines() []string {
	var lines []string
	for _, call := range r.Calls() {
		lines = append(lines, call.Line())
	}
	return lines
}
