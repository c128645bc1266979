// Package config loads the inputs of a mirror run from the environment.
//
// Action inputs arrive as INPUT_<NAME> variables (hyphens preserved) and the
// runner context as GITHUB_* and RUNNER_* variables. Both are decoded once
// with go-envconfig, which only accepts underscores in key names, so input
// keys are declared with underscores and looked up with hyphens. Secret inputs decode straight into secret.Secret and
// are handed out exactly once through the Take methods.
package config

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/NicabarNimble/go-gitmirror/internal/errors"
	"github.com/NicabarNimble/go-gitmirror/internal/secret"
	"github.com/NicabarNimble/go-gitmirror/internal/urlutils"
	"github.com/sethvargo/go-envconfig"
)

const inputPrefix = "INPUT_"

var (
	// ErrMissingInput indicates that a required input was not supplied.
	ErrMissingInput = stderrors.New("missing required input")

	// ErrCredentialConflict indicates that not exactly one of the target SSH
	// key and the target token was supplied.
	ErrCredentialConflict = stderrors.New("exactly one of target-ssh-key or target-token is required")
)

// Inputs are the action inputs.
type Inputs struct {
	SourceRepo            string        `env:"SOURCE_REPO"`
	TargetRepo            string        `env:"TARGET_REPO"`
	TargetSSHKey          secret.Secret `env:"TARGET_SSH_KEY"`
	SourceSSHKey          secret.Secret `env:"SOURCE_SSH_KEY"`
	TargetToken           secret.Secret `env:"TARGET_TOKEN"`
	StrictHostKeyChecking bool          `env:"STRICT_HOST_KEY_CHECKING,default=false"`
}

// Runner is the CI runner context.
type Runner struct {
	RepositoryOwner string `env:"GITHUB_REPOSITORY_OWNER"`
	Repository      string `env:"GITHUB_REPOSITORY"`
	ServerURL       string `env:"GITHUB_SERVER_URL,default=https://github.com"`
	OutputFile      string `env:"GITHUB_OUTPUT"`
	TempDir         string `env:"RUNNER_TEMP"`
	Debug           bool   `env:"RUNNER_DEBUG,default=false"`
}

// Config is the complete configuration of one mirror run.
type Config struct {
	Inputs Inputs
	Runner Runner

	env secret.Environment
}

// Load decodes the configuration from env.
func Load(ctx context.Context, env secret.Environment) (*Config, error) {
	cfg := &Config{env: env}
	l := nonEmpty{env}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg.Inputs,
		Lookuper: envconfig.PrefixLookuper(inputPrefix, inputNames{l}),
	}); err != nil {
		return nil, errors.Configuration("load inputs", err)
	}
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg.Runner,
		Lookuper: l,
	}); err != nil {
		return nil, errors.Configuration("load runner context", err)
	}
	return cfg, nil
}

// Validate checks presence and exclusivity of the inputs. It performs no
// I/O.
func (c *Config) Validate() error {
	c.Inputs.SourceRepo = strings.TrimSpace(c.Inputs.SourceRepo)
	c.Inputs.TargetRepo = strings.TrimSpace(c.Inputs.TargetRepo)

	if c.Inputs.SourceRepo == "" {
		return errors.Configuration("validate", fmt.Errorf("%w: source-repo", ErrMissingInput))
	}
	if c.Inputs.TargetRepo == "" {
		return errors.Configuration("validate", fmt.Errorf("%w: target-repo", ErrMissingInput))
	}
	if c.Inputs.TargetSSHKey.Present() == c.Inputs.TargetToken.Present() {
		return errors.Configuration("validate", ErrCredentialConflict)
	}
	if c.Inputs.SourceSSHKey.Present() && !c.Inputs.TargetSSHKey.Present() {
		return errors.Configuration("validate", stderrors.New("source-ssh-key requires target-ssh-key"))
	}
	return nil
}

// TakeTargetSSHKey hands out the target SSH key and forgets it, including
// the INPUT_ variable it came from.
func (c *Config) TakeTargetSSHKey() secret.Secret {
	return c.take(&c.Inputs.TargetSSHKey, "TARGET-SSH-KEY")
}

// TakeSourceSSHKey hands out the source SSH key and forgets it.
func (c *Config) TakeSourceSSHKey() secret.Secret {
	return c.take(&c.Inputs.SourceSSHKey, "SOURCE-SSH-KEY")
}

// TakeTargetToken hands out the target token and forgets it.
func (c *Config) TakeTargetToken() secret.Secret {
	return c.take(&c.Inputs.TargetToken, "TARGET-TOKEN")
}

func (c *Config) take(s *secret.Secret, name string) secret.Secret {
	if c.env != nil {
		// unset errors only occur for invalid names
		_ = c.env.Unsetenv(inputPrefix + name)
	}
	return s.Move()
}

// ClearSecrets drops every secret not yet taken.
func (c *Config) ClearSecrets() {
	c.Inputs.TargetSSHKey.Clear()
	c.Inputs.SourceSSHKey.Clear()
	c.Inputs.TargetToken.Clear()
	if c.env == nil {
		return
	}
	for _, name := range []string{"TARGET-SSH-KEY", "SOURCE-SSH-KEY", "TARGET-TOKEN"} {
		_ = c.env.Unsetenv(inputPrefix + name)
	}
}

// DefaultOwner is the owner substituted into bare repository names: the
// owner of the repository running the job.
func (c *Config) DefaultOwner() string {
	if c.Runner.RepositoryOwner != "" {
		return c.Runner.RepositoryOwner
	}
	owner, _, _ := strings.Cut(c.Runner.Repository, "/")
	return owner
}

// Host returns the git server host derived from the server URL.
func (c *Config) Host() (string, error) {
	host, err := urlutils.HostFromServerURL(c.Runner.ServerURL)
	if err != nil {
		return "", errors.Configuration("resolve host", err)
	}
	return host, nil
}

// inputNames maps INPUT_TARGET_SSH_KEY to INPUT_TARGET-SSH-KEY, the name the
// runner exports for the target-ssh-key input.
type inputNames struct {
	l envconfig.Lookuper
}

func (n inputNames) Lookup(key string) (string, bool) {
	if name, ok := strings.CutPrefix(key, inputPrefix); ok {
		key = inputPrefix + strings.ReplaceAll(name, "_", "-")
	}
	return n.l.Lookup(key)
}

// nonEmpty treats empty variables as unset. Runners export every declared
// input, including the ones left blank.
type nonEmpty struct {
	l envconfig.Lookuper
}

func (n nonEmpty) Lookup(key string) (string, bool) {
	v, ok := n.l.Lookup(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
