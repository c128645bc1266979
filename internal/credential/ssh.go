package credential

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/NicabarNimble/go-gitmirror/internal/command"
	"github.com/NicabarNimble/go-gitmirror/internal/errors"
	"github.com/NicabarNimble/go-gitmirror/internal/git"
	"github.com/NicabarNimble/go-gitmirror/internal/secret"
	"github.com/NicabarNimble/go-gitmirror/internal/urlutils"
	"github.com/chainguard-dev/clog"
	"golang.org/x/crypto/ssh"
)

const (
	envAuthSock   = "SSH_AUTH_SOCK"
	envAgentPID   = "SSH_AGENT_PID"
	envSSHCommand = "GIT_SSH_COMMAND"

	// mirrorRemote is the remote registered in the session repository.
	mirrorRemote = "mirror"
)

var (
	authSockRegex = regexp.MustCompile(`SSH_AUTH_SOCK=([^;\s]+)`)
	agentPIDRegex = regexp.MustCompile(`SSH_AGENT_PID=(\d+)`)
)

// knownFingerprints pins the published host keys of well-known forges. In
// strict mode a scanned host listed here must present one of its keys.
var knownFingerprints = map[string][]string{
	"github.com": {
		"SHA256:uNiVztksCsDhcc0u9e8BujQXVUpKZIDTMczCvj3tD2s",
		"SHA256:p2QAMXNIC1TJYWeIOttrVc98/R1BUFWu3/LiyKgUfQM",
		"SHA256:+DiY3wvvV6TuJJhbpZisF/zLDA0zPMSvHdkr4UvCOqU",
	},
	"bitbucket.org": {
		"SHA256:zzXQOXSRBEiUtuE8AikJYKwbHaxvSc0ojez9YXaGp1A",
	},
}

// scanTarget is an ssh server whose host keys are recorded in strict mode.
type scanTarget struct {
	host string
	port int
}

func (s scanTarget) String() string {
	if s.port == 0 || s.port == 22 {
		return s.host
	}
	return fmt.Sprintf("[%s]:%d", s.host, s.port)
}

// SSHProvider authenticates with a private key loaded into a per-run
// ssh-agent.
type SSHProvider struct {
	exec   command.Executor
	env    secret.Environment
	git    *git.Client
	target urlutils.RepoIdentifier
	host   string
	scan   []scanTarget
	strict bool
	tmp    string

	keys []secret.Secret

	agentSock   string
	agentPID    string
	configDir   string
	exported    []string
	remoteAdded bool
}

// NewSSHProvider validates the keys in opts and takes ownership of them.
func NewSSHProvider(ctx context.Context, opts *Options) (*SSHProvider, error) {
	if err := ValidateSSHKey(&opts.TargetSSHKey); err != nil {
		clearAll(opts)
		return nil, errors.Configuration("ssh provider", fmt.Errorf("target SSH key: %w", err))
	}
	if opts.SourceSSHKey.Present() {
		if err := ValidateSSHKey(&opts.SourceSSHKey); err != nil {
			clearAll(opts)
			return nil, errors.Configuration("ssh provider", fmt.Errorf("source SSH key: %w", err))
		}
	}

	p := &SSHProvider{
		exec:   opts.Exec,
		env:    opts.Env,
		git:    newGit(opts),
		target: opts.Target,
		host:   urlutils.SSHHost(opts.Host),
		strict: opts.StrictHostKeyChecking,
		tmp:    opts.TempDir,
	}
	p.scan = append(p.scan, scanTarget{host: strings.Trim(p.host, "[]")})
	src := scanTarget{host: opts.SourceHost, port: opts.SourcePort}
	if src.host != "" && src.String() != p.scan[0].String() {
		p.scan = append(p.scan, src)
	}
	p.keys = append(p.keys, opts.TargetSSHKey.Move())
	if opts.SourceSSHKey.Present() {
		p.keys = append(p.keys, opts.SourceSSHKey.Move())
	}
	opts.TargetToken.Clear()

	log := clog.FromContext(ctx)
	for i := range p.keys {
		if fp, ok := fingerprint(&p.keys[i]); ok {
			log.With("fingerprint", fp).Info("Loaded SSH key")
		} else {
			log.Debug("SSH key could not be parsed locally; deferring to ssh-add")
		}
	}
	return p, nil
}

// fingerprint returns the SHA256 fingerprint of the key's public half.
// Encrypted or unsupported keys report false.
func fingerprint(key *secret.Secret) (string, bool) {
	signer, err := ssh.ParsePrivateKey(key.Bytes())
	if err != nil {
		return "", false
	}
	return ssh.FingerprintSHA256(signer.PublicKey()), true
}

// Kind implements Provider.Kind
func (p *SSHProvider) Kind() Kind { return KindSSH }

// RemoteURL implements Provider.RemoteURL
func (p *SSHProvider) RemoteURL() string {
	return fmt.Sprintf("git@%s:%s.git", p.host, p.target)
}

// SetupGlobal starts an ssh-agent, loads the keys and points git at a per-run
// ssh client configuration. The keys are cleared whether or not loading
// succeeds.
func (p *SSHProvider) SetupGlobal(ctx context.Context) error {
	defer p.clearKeys()

	if p.agentPID == "" {
		if err := p.startAgent(ctx); err != nil {
			return err
		}
	}

	for i := range p.keys {
		if err := p.addKey(ctx, &p.keys[i]); err != nil {
			return errors.CredentialSetup("ssh-add", err)
		}
	}

	if p.configDir == "" {
		if err := p.writeConfig(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (p *SSHProvider) startAgent(ctx context.Context) error {
	out, err := p.exec.Run(ctx, command.Command{Name: "ssh-agent", Args: []string{"-s"}})
	if err != nil {
		return errors.CredentialSetup("ssh-agent", err)
	}

	sock := authSockRegex.FindStringSubmatch(out)
	pid := agentPIDRegex.FindStringSubmatch(out)
	if sock == nil || pid == nil {
		return errors.CredentialSetup("ssh-agent", stderrors.New("could not parse agent socket and pid from ssh-agent output"))
	}
	p.agentSock, p.agentPID = sock[1], pid[1]

	if err := p.export(envAuthSock, p.agentSock); err != nil {
		return errors.CredentialSetup("ssh-agent", err)
	}
	if err := p.export(envAgentPID, p.agentPID); err != nil {
		return errors.CredentialSetup("ssh-agent", err)
	}
	clog.FromContext(ctx).With("pid", p.agentPID).Info("Started ssh-agent")
	return nil
}

func (p *SSHProvider) addKey(ctx context.Context, key *secret.Secret) error {
	var in io.Reader = key.Reader()
	if b := key.Bytes(); len(b) > 0 && b[len(b)-1] != '\n' {
		// ssh-add rejects keys without a trailing newline
		in = io.MultiReader(in, strings.NewReader("\n"))
	}
	_, err := p.exec.Run(ctx, command.Command{
		Name:  "ssh-add",
		Args:  []string{"-"},
		Env:   p.agentEnv(),
		Stdin: in,
	})
	return err
}

func (p *SSHProvider) writeConfig(ctx context.Context) error {
	dir, err := os.MkdirTemp(p.tmp, "gitmirror-ssh-*")
	if err != nil {
		return errors.CredentialSetup("ssh config", err)
	}
	p.configDir = dir

	checking, knownHosts := "no", os.DevNull
	if p.strict {
		knownHosts = filepath.Join(dir, "known_hosts")
		if err := p.scanHostKeys(ctx, knownHosts); err != nil {
			return err
		}
		checking = "yes"
	}

	var cfg bytes.Buffer
	fmt.Fprintf(&cfg, "Host *\n")
	fmt.Fprintf(&cfg, "  IdentityAgent %q\n", p.agentSock)
	fmt.Fprintf(&cfg, "  StrictHostKeyChecking %s\n", checking)
	fmt.Fprintf(&cfg, "  UserKnownHostsFile %q\n", knownHosts)
	fmt.Fprintf(&cfg, "  BatchMode yes\n")

	path := filepath.Join(dir, "config")
	if err := os.WriteFile(path, cfg.Bytes(), 0o600); err != nil {
		return errors.CredentialSetup("ssh config", err)
	}
	if err := p.export(envSSHCommand, "ssh -F "+shellQuote(path)); err != nil {
		return errors.CredentialSetup("ssh config", err)
	}
	return nil
}

// scanHostKeys records the host keys of the target host and of an ssh source
// host. Keys of pinned hosts must match a published fingerprint.
func (p *SSHProvider) scanHostKeys(ctx context.Context, path string) error {
	var known bytes.Buffer
	for _, t := range p.scan {
		out, err := p.scanHost(ctx, t)
		if err != nil {
			return err
		}
		known.WriteString(out)
		if !strings.HasSuffix(out, "\n") {
			known.WriteByte('\n')
		}
	}

	if err := os.WriteFile(path, known.Bytes(), 0o600); err != nil {
		return errors.CredentialSetup("ssh-keyscan", err)
	}
	return nil
}

func (p *SSHProvider) scanHost(ctx context.Context, t scanTarget) (string, error) {
	args := []string{"-t", "rsa,ecdsa,ed25519"}
	if t.port != 0 && t.port != 22 {
		args = append(args, "-p", strconv.Itoa(t.port))
	}
	out, err := p.exec.Run(ctx, command.Command{
		Name: "ssh-keyscan",
		Args: append(args, "--", t.host),
	})
	if err != nil {
		return "", errors.CredentialSetup("ssh-keyscan", err)
	}

	var found []string
	rest := []byte(out)
	for len(rest) > 0 {
		var key ssh.PublicKey
		_, _, key, _, rest, err = ssh.ParseKnownHosts(rest)
		if stderrors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", errors.CredentialSetup("ssh-keyscan", fmt.Errorf("parse host keys: %w", err))
		}
		found = append(found, ssh.FingerprintSHA256(key))
	}
	if len(found) == 0 {
		return "", errors.CredentialSetup("ssh-keyscan", fmt.Errorf("no host keys returned for %s", t))
	}

	if pinned, ok := knownFingerprints[t.String()]; ok && !anyMatch(found, pinned) {
		return "", errors.CredentialSetup("ssh-keyscan", fmt.Errorf("host keys for %s do not match published fingerprints", t))
	}
	clog.FromContext(ctx).With("host", t.String(), "keys", len(found)).Info("Recorded host keys")
	return out, nil
}

// SetupLocal implements Provider.SetupLocal
func (p *SSHProvider) SetupLocal(ctx context.Context, dir string) error {
	if err := p.git.AddRemote(ctx, dir, mirrorRemote, p.RemoteURL()); err != nil {
		return errors.CredentialSetup("ssh wire remote", err)
	}
	p.remoteAdded = true
	return nil
}

// TeardownLocal implements Provider.TeardownLocal
func (p *SSHProvider) TeardownLocal(ctx context.Context, dir string) error {
	if !p.remoteAdded {
		return nil
	}
	p.remoteAdded = false
	if err := p.git.RemoveRemote(ctx, dir, mirrorRemote); err != nil {
		return errors.Teardown("ssh unwire remote", err)
	}
	return nil
}

// TeardownGlobal stops the agent, restores the environment and removes the
// ssh client configuration. Calling it again is a no-op.
func (p *SSHProvider) TeardownGlobal(ctx context.Context) error {
	p.clearKeys()

	var errs []error
	if p.agentPID != "" {
		_, err := p.exec.Run(ctx, command.Command{
			Name: "ssh-agent",
			Args: []string{"-k"},
			Env:  p.agentEnv(),
		})
		if err != nil && !tolerated(err, "No such process", "SSH_AGENT_PID not set") {
			errs = append(errs, err)
		} else {
			clog.FromContext(ctx).With("pid", p.agentPID).Info("Stopped ssh-agent")
		}
		p.agentPID, p.agentSock = "", ""
	}

	for _, key := range p.exported {
		if err := p.env.Unsetenv(key); err != nil {
			errs = append(errs, err)
		}
	}
	p.exported = nil

	if p.configDir != "" {
		if err := os.RemoveAll(p.configDir); err != nil {
			errs = append(errs, err)
		}
		p.configDir = ""
	}

	if err := stderrors.Join(errs...); err != nil {
		return errors.Teardown("ssh teardown", err)
	}
	return nil
}

func (p *SSHProvider) agentEnv() []string {
	return []string{envAuthSock + "=" + p.agentSock, envAgentPID + "=" + p.agentPID}
}

func (p *SSHProvider) export(key, value string) error {
	if err := p.env.Setenv(key, value); err != nil {
		return err
	}
	for _, k := range p.exported {
		if k == key {
			return nil
		}
	}
	p.exported = append(p.exported, key)
	return nil
}

func (p *SSHProvider) clearKeys() {
	for i := range p.keys {
		p.keys[i].Clear()
	}
	p.keys = nil
}

func anyMatch(found, pinned []string) bool {
	for _, f := range found {
		for _, p := range pinned {
			if f == p {
				return true
			}
		}
	}
	return false
}

// shellQuote single-quotes s for the shell git runs GIT_SSH_COMMAND through.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
