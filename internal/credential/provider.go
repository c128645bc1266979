// Package credential installs and removes the secret material a mirror run
// uses to authenticate to its target.
//
// A Provider has two scopes. Global state (an SSH agent, a credential cache
// daemon) lives for the whole run and is shared by every git child process.
// Local state wires that global state into the session repository. Teardown
// runs in reverse order and is idempotent, so callers may invoke it on every
// exit path without tracking what was set up.
package credential

import (
	"context"
	stderrors "errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/NicabarNimble/go-gitmirror/internal/command"
	"github.com/NicabarNimble/go-gitmirror/internal/errors"
	"github.com/NicabarNimble/go-gitmirror/internal/git"
	"github.com/NicabarNimble/go-gitmirror/internal/secret"
	"github.com/NicabarNimble/go-gitmirror/internal/urlutils"
)

// Kind names a provider variant.
type Kind string

const (
	KindSSH   Kind = "ssh"
	KindToken Kind = "token"
)

var (
	// ErrInvalidSecretFormat indicates that a secret does not look like the
	// credential it was supplied as. The secret itself is never included.
	ErrInvalidSecretFormat = stderrors.New("invalid secret format")

	// ErrCredentialConflict indicates that not exactly one target credential
	// was supplied.
	ErrCredentialConflict = stderrors.New("exactly one of target SSH key or target token is required")

	sshKeyRegex = regexp.MustCompile(`^-----BEGIN (RSA |DSA |EC |OPENSSH )?PRIVATE KEY-----`)
	tokenRegex  = regexp.MustCompile(`^(?:[A-Za-z0-9_-]{40}|github_pat_[A-Za-z0-9_]{82})$`)
)

// Provider authenticates git operations against the target repository.
type Provider interface {
	Kind() Kind
	// RemoteURL is the push URL matching this provider's transport.
	RemoteURL() string
	SetupGlobal(ctx context.Context) error
	SetupLocal(ctx context.Context, dir string) error
	TeardownLocal(ctx context.Context, dir string) error
	TeardownGlobal(ctx context.Context) error
}

// Options carries everything a provider needs. Secrets are moved into the
// provider; the caller's copies are left empty.
type Options struct {
	Target urlutils.RepoIdentifier
	// Host is the git server host, e.g. "github.com".
	Host string
	// SourceHost and SourcePort name the ssh server the source is cloned
	// from, if any. Strict host key checking records its keys too.
	SourceHost string
	SourcePort int

	TargetSSHKey secret.Secret
	SourceSSHKey secret.Secret
	TargetToken  secret.Secret

	StrictHostKeyChecking bool
	// TempDir is where per-run state directories are created; empty means
	// the OS default.
	TempDir string

	Exec command.Executor
	Env  secret.Environment
}

// New selects the provider matching the supplied credential. Exactly one of
// TargetSSHKey and TargetToken must be present. On any error every secret in
// opts is cleared.
func New(ctx context.Context, opts *Options) (Provider, error) {
	if opts.Target.IsZero() {
		clearAll(opts)
		return nil, errors.Configuration("select credential provider",
			fmt.Errorf("%w: no target repository", urlutils.ErrInvalidRepoFormat))
	}
	hasKey, hasToken := opts.TargetSSHKey.Present(), opts.TargetToken.Present()
	switch {
	case hasKey && !hasToken:
		return NewSSHProvider(ctx, opts)
	case hasToken && !hasKey:
		if opts.SourceSSHKey.Present() {
			clearAll(opts)
			return nil, errors.Configuration("select credential provider",
				stderrors.New("a source SSH key requires a target SSH key"))
		}
		return NewTokenProvider(ctx, opts)
	default:
		clearAll(opts)
		return nil, errors.Configuration("select credential provider", ErrCredentialConflict)
	}
}

// ValidateSSHKey checks that key looks like a PEM or OpenSSH private key.
func ValidateSSHKey(key *secret.Secret) error {
	b := key.Bytes()
	i := 0
	for i < len(b) && (b[i] == ' ' || b[i] == '\t' || b[i] == '\r' || b[i] == '\n') {
		i++
	}
	if !sshKeyRegex.Match(b[i:]) {
		return ErrInvalidSecretFormat
	}
	return nil
}

// ValidateToken checks that token has the shape of a GitHub access token.
func ValidateToken(token *secret.Secret) error {
	if !tokenRegex.Match(token.Bytes()) {
		return ErrInvalidSecretFormat
	}
	return nil
}

func clearAll(opts *Options) {
	opts.TargetSSHKey.Clear()
	opts.SourceSSHKey.Clear()
	opts.TargetToken.Clear()
}

func newGit(opts *Options) *git.Client {
	return git.New(opts.Exec)
}

// tolerated reports whether err is a command failure whose stderr contains
// one of the given fragments.
func tolerated(err error, fragments ...string) bool {
	var f *command.Failure
	if !stderrors.As(err, &f) {
		return false
	}
	for _, frag := range fragments {
		if strings.Contains(f.Stderr, frag) {
			return true
		}
	}
	return false
}
