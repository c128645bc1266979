// Package commandtest provides a scripted command.Executor for tests.
package commandtest

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/NicabarNimble/go-gitmirror/internal/command"
)

// Call records one invocation seen by Fake.
type Call struct {
	Command command.Command
	// Stdin holds everything the child would have read from standard input.
	Stdin string
}

// Line returns the command line, e.g. "git clone --mirror ...".
func (c Call) Line() string {
	return strings.TrimSpace(c.Command.Name + " " + strings.Join(c.Command.Args, " "))
}

// HandlerFunc scripts the result of a call.
type HandlerFunc func(call Call) (string, error)

// Fake implements command.Executor without starting processes.
type Fake struct {
	mu      sync.Mutex
	calls   []Call
	Handler HandlerFunc
}

// NewFake creates a Fake answering every call with h. A nil h succeeds with
// empty output.
func NewFake(h HandlerFunc) *Fake {
	return &Fake{Handler: h}
}

// Run implements command.Executor.Run
func (f *Fake) Run(ctx context.Context, c command.Command) (string, error) {
	call := Call{Command: c}
	if c.Stdin != nil {
		data, err := io.ReadAll(c.Stdin)
		if err != nil {
			return "", err
		}
		call.Stdin = string(data)
	}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	h := f.Handler
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if h == nil {
		return "", nil
	}
	return h(call)
}

// Calls returns a copy of the recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Lines returns the recorded command lines in order.
func (f *Fake) Lines() []string {
	calls := f.Calls()
	lines := make([]string, len(calls))
	for i, c := range calls {
		lines[i] = c.Line()
	}
	return lines
}

// Count returns the number of recorded calls.
func (f *Fake) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// Fail builds the error a real Runner returns for a non-zero exit.
func Fail(call Call, exitCode int, stderr string) error {
	return &command.Failure{
		Command:  call.Command.String(),
		ExitCode: exitCode,
		Stderr:   stderr,
	}
}

// Route dispatches on the command line prefix. The first matching prefix in
// order that has a handler wins; unmatched calls succeed with empty output.
func Route(routes map[string]HandlerFunc, order ...string) HandlerFunc {
	return func(call Call) (string, error) {
		line := call.Line()
		for _, prefix := range order {
			if h, ok := routes[prefix]; ok && strings.HasPrefix(line, prefix) {
				return h(call)
			}
		}
		return "", nil
	}
}

// Output returns a handler that always succeeds with out.
func Output(out string) HandlerFunc {
	return func(Call) (string, error) { return out, nil }
}
