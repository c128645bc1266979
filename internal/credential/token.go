package credential

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/NicabarNimble/go-gitmirror/internal/errors"
	"github.com/NicabarNimble/go-gitmirror/internal/git"
	"github.com/NicabarNimble/go-gitmirror/internal/secret"
	"github.com/NicabarNimble/go-gitmirror/internal/urlutils"
	"github.com/chainguard-dev/clog"
)

const (
	tokenUsername = "x-access-token"

	// cacheTimeout outlives the longest hosted job; the daemon is stopped
	// explicitly on teardown.
	cacheTimeout = 6 * time.Hour
)

// TokenProvider authenticates over HTTPS with an access token held by a
// per-run git credential-cache daemon.
type TokenProvider struct {
	git    *git.Client
	target urlutils.RepoIdentifier
	host   string
	tmp    string
	token  secret.Secret

	socketDir string
	socket    string
	wired     bool
}

// NewTokenProvider validates the token in opts and takes ownership of it.
func NewTokenProvider(ctx context.Context, opts *Options) (*TokenProvider, error) {
	if err := ValidateToken(&opts.TargetToken); err != nil {
		clearAll(opts)
		return nil, errors.Configuration("token provider", fmt.Errorf("target token: %w", err))
	}

	p := &TokenProvider{
		git:    newGit(opts),
		target: opts.Target,
		host:   opts.Host,
		tmp:    opts.TempDir,
		token:  opts.TargetToken.Move(),
	}
	clearAll(opts)

	clog.FromContext(ctx).With("kind", string(secret.DetectKind(&p.token))).Info("Loaded access token")
	return p, nil
}

// Kind implements Provider.Kind
func (p *TokenProvider) Kind() Kind { return KindToken }

// RemoteURL implements Provider.RemoteURL
func (p *TokenProvider) RemoteURL() string {
	return fmt.Sprintf("https://%s/%s.git", p.host, p.target)
}

// SetupGlobal stores the token in a credential-cache daemon scoped to the
// target repository path. The token is cleared whether or not the store
// succeeds.
func (p *TokenProvider) SetupGlobal(ctx context.Context) error {
	defer p.token.Clear()

	if p.socket == "" {
		// unix socket paths are length limited, so keep the prefix short
		dir, err := os.MkdirTemp(p.tmp, "gitmirror-cred-*")
		if err != nil {
			return errors.CredentialSetup("credential cache", err)
		}
		p.socketDir = dir
		p.socket = filepath.Join(dir, "sock")
	}

	if !p.token.Present() {
		return nil
	}

	var record bytes.Buffer
	defer func() {
		b := record.Bytes()
		for i := range b {
			b[i] = 0
		}
	}()
	fmt.Fprintf(&record, "protocol=https\nhost=%s\npath=%s.git\nusername=%s\npassword=", p.host, p.target, tokenUsername)
	record.Grow(p.token.Len() + 2)
	record.Write(p.token.Bytes())
	record.WriteString("\n\n")

	if err := p.git.CredentialCacheStore(ctx, p.socket, cacheTimeout, bytes.NewReader(record.Bytes())); err != nil {
		return errors.CredentialSetup("credential cache", err)
	}
	clog.FromContext(ctx).With("host", p.host).Info("Stored access token in credential cache")
	return nil
}

// SetupLocal points the session repository at the cache daemon, replacing
// every inherited helper.
func (p *TokenProvider) SetupLocal(ctx context.Context, dir string) error {
	if p.socket == "" {
		return errors.CredentialSetup("token wire helper", stderrors.New("credential cache not started"))
	}
	p.wired = true
	if err := p.git.SetConfig(ctx, dir, "credential.helper", ""); err != nil {
		return errors.CredentialSetup("token wire helper", err)
	}
	if err := p.git.AddConfig(ctx, dir, "credential.helper", git.CacheHelper(p.socket)); err != nil {
		return errors.CredentialSetup("token wire helper", err)
	}
	if err := p.git.SetConfig(ctx, dir, "credential.useHttpPath", "true"); err != nil {
		return errors.CredentialSetup("token wire helper", err)
	}
	return nil
}

// TeardownLocal implements Provider.TeardownLocal
func (p *TokenProvider) TeardownLocal(ctx context.Context, dir string) error {
	if !p.wired {
		return nil
	}
	p.wired = false

	var errs []error
	for _, key := range []string{"credential.helper", "credential.useHttpPath"} {
		if err := p.git.UnsetConfig(ctx, dir, key); err != nil {
			errs = append(errs, err)
		}
	}
	if err := stderrors.Join(errs...); err != nil {
		return errors.Teardown("token unwire helper", err)
	}
	return nil
}

// TeardownGlobal stops the cache daemon and removes its socket directory.
// Calling it again is a no-op.
func (p *TokenProvider) TeardownGlobal(ctx context.Context) error {
	p.token.Clear()
	if p.socket == "" {
		return nil
	}

	var errs []error
	if err := p.git.CredentialCacheExit(ctx, p.socket); err != nil {
		errs = append(errs, err)
	}
	if err := os.RemoveAll(p.socketDir); err != nil {
		errs = append(errs, err)
	}
	p.socket, p.socketDir = "", ""

	if err := stderrors.Join(errs...); err != nil {
		return errors.Teardown("token teardown", err)
	}
	return nil
}
