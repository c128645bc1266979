package git

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/NicabarNimble/go-gitmirror/internal/command"
	"github.com/NicabarNimble/go-gitmirror/internal/errors"
)

// baseEnv keeps git from ever prompting on the job's terminal.
var baseEnv = []string{"GIT_TERMINAL_PROMPT=0"}

// Client runs git commands through an Executor.
type Client struct {
	exec command.Executor
}

// New creates a Client.
func New(exec command.Executor) *Client {
	return &Client{exec: exec}
}

func (c *Client) run(ctx context.Context, op, dir string, stream bool, stdin io.Reader, args ...string) (string, error) {
	out, err := c.exec.Run(ctx, command.Command{
		Name:   "git",
		Args:   args,
		Dir:    dir,
		Env:    baseEnv,
		Stdin:  stdin,
		Stream: stream,
	})
	if err != nil {
		return out, errors.New(op, err)
	}
	return out, nil
}

// CloneMirror clones source as a bare mirror (all refs) into dir with
// progress reporting disabled.
func (c *Client) CloneMirror(ctx context.Context, source, dir string) error {
	_, err := c.run(ctx, "clone mirror", "", true, nil,
		"clone", "--mirror", "--no-progress", "--", source, dir)
	return err
}

// PushMirror pushes every ref of the repository in dir to remote, including
// deletions and forced updates, so the remote becomes an exact replica.
func (c *Client) PushMirror(ctx context.Context, dir, remote string) error {
	if strings.HasPrefix(remote, "-") {
		return errors.New("push mirror", fmt.Errorf("refusing option-like remote %q", remote))
	}
	_, err := c.run(ctx, "push mirror", dir, true, nil,
		"push", "--mirror", remote)
	return err
}

// RevParse resolves rev to a full object name.
func (c *Client) RevParse(ctx context.Context, dir, rev string) (string, error) {
	out, err := c.run(ctx, "rev-parse", dir, false, nil,
		"rev-parse", "--verify", rev)
	if err != nil {
		return "", err
	}
	hash := strings.TrimSpace(out)
	if hash == "" {
		return "", errors.New("rev-parse", fmt.Errorf("no object name printed for %s", rev))
	}
	return hash, nil
}

// AddRemote registers a named remote.
func (c *Client) AddRemote(ctx context.Context, dir, name, url string) error {
	_, err := c.run(ctx, "remote add", dir, false, nil,
		"remote", "add", name, url)
	return err
}

// RemoveRemote deletes a named remote.
func (c *Client) RemoveRemote(ctx context.Context, dir, name string) error {
	_, err := c.run(ctx, "remote remove", dir, false, nil,
		"remote", "remove", name)
	return err
}

// SetConfig sets key to value in the repository-local config.
func (c *Client) SetConfig(ctx context.Context, dir, key, value string) error {
	_, err := c.run(ctx, "config", dir, false, nil,
		"config", "--local", key, value)
	return err
}

// AddConfig appends value to the multi-valued key in the repository-local
// config.
func (c *Client) AddConfig(ctx context.Context, dir, key, value string) error {
	_, err := c.run(ctx, "config", dir, false, nil,
		"config", "--local", "--add", key, value)
	return err
}

// UnsetConfig removes every value of key from the repository-local config.
// A key that is already absent is not an error.
func (c *Client) UnsetConfig(ctx context.Context, dir, key string) error {
	_, err := c.run(ctx, "config", dir, false, nil,
		"config", "--local", "--unset-all", key)
	if code, ok := command.ExitCode(err); ok && code == 5 {
		// git config exits 5 when there is nothing to unset
		return nil
	}
	return err
}

// CredentialCacheStore stores the credential record read from record into the
// cache daemon listening on socket, spawning the daemon if needed.
func (c *Client) CredentialCacheStore(ctx context.Context, socket string, timeout time.Duration, record io.Reader) error {
	_, err := c.run(ctx, "credential-cache store", "", false, record,
		"credential-cache",
		"--timeout", strconv.Itoa(int(timeout/time.Second)),
		"--socket", socket,
		"store")
	return err
}

// CredentialCacheExit asks the daemon listening on socket to exit, dropping
// every cached credential.
func (c *Client) CredentialCacheExit(ctx context.Context, socket string) error {
	_, err := c.run(ctx, "credential-cache exit", "", false, nil,
		"credential-cache", "--socket", socket, "exit")
	return err
}

// CacheHelper returns the credential.helper value that reaches the cache
// daemon listening on socket. git runs helpers through the shell, so the
// socket path is single-quoted.
func CacheHelper(socket string) string {
	return "cache --socket '" + strings.ReplaceAll(socket, "'", `'\''`) + "'"
}
