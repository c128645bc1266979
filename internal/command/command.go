// Package command runs external processes for the mirror pipeline.
//
// Commands are always executed from a discrete argument vector; nothing is
// interpreted by a shell. Secret material is handed to children exclusively
// through Command.Stdin.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/NicabarNimble/go-gitmirror/internal/urlutils"
	"github.com/chainguard-dev/clog"
)

// Command describes one process invocation.
type Command struct {
	Name string
	Args []string
	// Dir is the working directory; empty means the current directory.
	Dir string
	// Env entries are appended to the inherited process environment.
	Env []string
	// Stdin, when set, is copied to the child's standard input.
	Stdin io.Reader
	// Stream tees the child's stdout and stderr to the runner's shared
	// output streams as complete lines.
	Stream bool
}

// String renders the command line for logs with URL credentials redacted.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Name)
	for _, a := range c.Args {
		parts = append(parts, urlutils.Redact(a))
	}
	return strings.Join(parts, " ")
}

// Executor runs commands. Implementations block until the child exits.
type Executor interface {
	Run(ctx context.Context, cmd Command) (string, error)
}

// Failure is returned when a command cannot be started or exits non-zero.
type Failure struct {
	Command  string // Redacted command line
	ExitCode int    // -1 when the process never ran to completion
	Stdout   string
	Stderr   string
	Err      error
}

// Error implements the error interface
func (f *Failure) Error() string {
	msg := fmt.Sprintf("command `%s` failed with exit code %d", f.Command, f.ExitCode)
	if stderr := strings.TrimSpace(f.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

// Unwrap returns the underlying error
func (f *Failure) Unwrap() error {
	return f.Err
}

// ExitCode extracts the exit code from a Failure anywhere in err's chain.
func ExitCode(err error) (int, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f.ExitCode, true
	}
	return 0, false
}

// Runner implements Executor with os/exec.
type Runner struct {
	stdout io.Writer
	stderr io.Writer
}

// NewRunner creates a Runner streaming child output to stdout and stderr.
// Both writers are wrapped with Synchronized so that streamed lines and log
// records sharing a stream are never interleaved mid-line.
func NewRunner(stdout, stderr io.Writer) *Runner {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return &Runner{
		stdout: Synchronized(stdout),
		stderr: Synchronized(stderr),
	}
}

// Run implements Executor.Run
func (r *Runner) Run(ctx context.Context, c Command) (string, error) {
	clog.FromContext(ctx).With("dir", c.Dir).Infof("Executing command: %s", c)

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	if c.Stdin != nil {
		cmd.Stdin = c.Stdin
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	var outLines, errLines *lineWriter
	if c.Stream {
		outLines = newLineWriter(r.stdout)
		errLines = newLineWriter(r.stderr)
		cmd.Stdout = io.MultiWriter(&stdout, outLines)
		cmd.Stderr = io.MultiWriter(&stderr, errLines)
	}

	err := cmd.Run()
	if c.Stream {
		outLines.Flush()
		errLines.Flush()
	}

	if err != nil {
		f := &Failure{
			Command:  c.String(),
			ExitCode: -1,
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			Err:      err,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			f.ExitCode = exitErr.ExitCode()
		}
		return stdout.String(), f
	}
	return stdout.String(), nil
}
