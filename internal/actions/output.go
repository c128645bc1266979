// Package actions writes step outputs for the CI runner.
package actions

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrOutputAlreadySet indicates a second write of the same output.
var ErrOutputAlreadySet = stderrors.New("output already set")

// OutputSink receives step outputs.
type OutputSink interface {
	SetOutput(name, value string) error
}

// OutputFile appends outputs to the runner's output file as heredoc
// records. Each output may be written once.
type OutputFile struct {
	mu       sync.Mutex
	path     string
	fallback io.Writer
	written  map[string]bool
	newDelim func() string
}

// NewOutputFile creates a sink for path. When path is empty outputs are
// printed to fallback as name=value lines instead.
func NewOutputFile(path string, fallback io.Writer) *OutputFile {
	if fallback == nil {
		fallback = os.Stdout
	}
	return &OutputFile{
		path:     path,
		fallback: fallback,
		written:  make(map[string]bool),
		newDelim: func() string { return "ghadelimiter_" + uuid.NewString() },
	}
}

// SetOutput implements OutputSink.SetOutput
func (o *OutputFile) SetOutput(name, value string) error {
	if name == "" || strings.ContainsAny(name, "\r\n=<") {
		return fmt.Errorf("invalid output name %q", name)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.written[name] {
		return fmt.Errorf("%w: %s", ErrOutputAlreadySet, name)
	}

	if o.path == "" {
		if _, err := fmt.Fprintf(o.fallback, "%s=%s\n", name, value); err != nil {
			return fmt.Errorf("failed to write output %s: %w", name, err)
		}
		o.written[name] = true
		return nil
	}

	delim := o.newDelim()
	if strings.Contains(value, delim) || strings.Contains(name, delim) {
		return fmt.Errorf("output %s collides with its delimiter", name)
	}

	f, err := os.OpenFile(o.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open output file: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%s<<%s\n%s\n%s\n", name, delim, value, delim); err != nil {
		return fmt.Errorf("failed to write output %s: %w", name, err)
	}
	o.written[name] = true
	return nil
}

// Written reports whether name has been set.
func (o *OutputFile) Written(name string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.written[name]
}
