package mirror

import (
	"fmt"
	"os"

	"github.com/NicabarNimble/go-gitmirror/internal/urlutils"
)

// Session is the per-run working directory holding the bare mirror clone.
type Session struct {
	dir string
}

// OpenSession creates a private directory under parent (the OS temp
// directory when empty) named after target.
func OpenSession(parent string, target urlutils.RepoIdentifier) (*Session, error) {
	dir, err := os.MkdirTemp(parent, "gitmirror-"+target.Slug()+"-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	if err := os.Chmod(dir, 0o700); err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to restrict session directory: %w", err)
	}
	return &Session{dir: dir}, nil
}

// Dir returns the session directory, or "" once closed.
func (s *Session) Dir() string {
	return s.dir
}

// Close removes the session directory and everything in it. Calling it
// again is a no-op.
func (s *Session) Close() error {
	if s.dir == "" {
		return nil
	}
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("failed to remove session directory: %w", err)
	}
	s.dir = ""
	return nil
}
