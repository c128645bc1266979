package git

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/NicabarNimble/go-gitmirror/internal/command/commandtest"
	"github.com/NicabarNimble/go-gitmirror/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientCommands(t *testing.T) {
	tests := []struct {
		name     string
		call     func(ctx context.Context, c *Client) error
		wantLine string
		wantDir  string
		stream   bool
	}{
		{
			name: "clone mirror",
			call: func(ctx context.Context, c *Client) error {
				return c.CloneMirror(ctx, "https://github.com/acme/widgets.git", "/tmp/s")
			},
			wantLine: "git clone --mirror --no-progress -- https://github.com/acme/widgets.git /tmp/s",
			stream:   true,
		},
		{
			name: "push mirror",
			call: func(ctx context.Context, c *Client) error {
				return c.PushMirror(ctx, "/tmp/s", "git@github.com:acme/widgets.git")
			},
			wantLine: "git push --mirror git@github.com:acme/widgets.git",
			wantDir:  "/tmp/s",
			stream:   true,
		},
		{
			name: "add remote",
			call: func(ctx context.Context, c *Client) error {
				return c.AddRemote(ctx, "/tmp/s", "mirror", "git@github.com:acme/widgets.git")
			},
			wantLine: "git remote add mirror git@github.com:acme/widgets.git",
			wantDir:  "/tmp/s",
		},
		{
			name: "remove remote",
			call: func(ctx context.Context, c *Client) error {
				return c.RemoveRemote(ctx, "/tmp/s", "mirror")
			},
			wantLine: "git remote remove mirror",
			wantDir:  "/tmp/s",
		},
		{
			name: "set config",
			call: func(ctx context.Context, c *Client) error {
				return c.SetConfig(ctx, "/tmp/s", "credential.useHttpPath", "true")
			},
			wantLine: "git config --local credential.useHttpPath true",
			wantDir:  "/tmp/s",
		},
		{
			name: "add config",
			call: func(ctx context.Context, c *Client) error {
				return c.AddConfig(ctx, "/tmp/s", "credential.helper", "store")
			},
			wantLine: "git config --local --add credential.helper store",
			wantDir:  "/tmp/s",
		},
		{
			name: "unset config",
			call: func(ctx context.Context, c *Client) error {
				return c.UnsetConfig(ctx, "/tmp/s", "credential.helper")
			},
			wantLine: "git config --local --unset-all credential.helper",
			wantDir:  "/tmp/s",
		},
		{
			name: "credential cache exit",
			call: func(ctx context.Context, c *Client) error {
				return c.CredentialCacheExit(ctx, "/tmp/c/sock")
			},
			wantLine: "git credential-cache --socket /tmp/c/sock exit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := commandtest.NewFake(nil)
			err := tt.call(context.Background(), New(fake))
			require.NoError(t, err)

			calls := fake.Calls()
			require.Len(t, calls, 1)
			assert.Equal(t, tt.wantLine, calls[0].Line())
			assert.Equal(t, tt.wantDir, calls[0].Command.Dir)
			assert.Equal(t, tt.stream, calls[0].Command.Stream)
			assert.Contains(t, calls[0].Command.Env, "GIT_TERMINAL_PROMPT=0")
		})
	}
}

func TestRevParse(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		fail    bool
		want    string
		wantErr bool
	}{
		{
			name:   "trims newline",
			output: "0123456789abcdef0123456789abcdef01234567\n",
			want:   "0123456789abcdef0123456789abcdef01234567",
		},
		{
			name:    "empty output",
			output:  "\n",
			wantErr: true,
		},
		{
			name:    "unknown revision",
			fail:    true,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := commandtest.NewFake(func(call commandtest.Call) (string, error) {
				if tt.fail {
					return "", commandtest.Fail(call, 128, "fatal: Needed a single revision")
				}
				return tt.output, nil
			})

			got, err := New(fake).RevParse(context.Background(), "/tmp/s", "HEAD")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, []string{"git rev-parse --verify HEAD"}, fake.Lines())
		})
	}
}

func TestPushMirrorRejectsOptionLikeRemote(t *testing.T) {
	fake := commandtest.NewFake(nil)
	err := New(fake).PushMirror(context.Background(), "/tmp/s", "--receive-pack=evil")
	assert.Error(t, err)
	assert.Zero(t, fake.Count())
}

func TestUnsetConfigMissingKey(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		wantErr bool
	}{
		{name: "nothing to unset", code: 5},
		{name: "invalid config file", code: 3, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := commandtest.NewFake(func(call commandtest.Call) (string, error) {
				return "", commandtest.Fail(call, tt.code, "")
			})
			err := New(fake).UnsetConfig(context.Background(), "/tmp/s", "credential.helper")
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCredentialCacheStore(t *testing.T) {
	fake := commandtest.NewFake(nil)
	record := "protocol=https\nhost=github.com\npath=acme/widgets.git\nusername=x-access-token\npassword=s3cr3t\n\n"

	err := New(fake).CredentialCacheStore(context.Background(), "/tmp/c/sock", 2*time.Hour, strings.NewReader(record))
	require.NoError(t, err)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "git credential-cache --timeout 7200 --socket /tmp/c/sock store", calls[0].Line())
	assert.Equal(t, record, calls[0].Stdin)
	assert.NotContains(t, calls[0].Line(), "s3cr3t")
}

func TestErrorsCarryOperation(t *testing.T) {
	fake := commandtest.NewFake(func(call commandtest.Call) (string, error) {
		return "", commandtest.Fail(call, 128, "fatal: repository not found")
	})

	err := New(fake).CloneMirror(context.Background(), "https://github.com/acme/missing.git", "/tmp/s")
	require.Error(t, err)

	var opErr *errors.OperationError
	require.True(t, stderrors.As(err, &opErr))
	assert.Equal(t, "clone mirror", opErr.Op)
	assert.Contains(t, err.Error(), "repository not found")
}

func TestCacheHelper(t *testing.T) {
	tests := []struct {
		socket string
		want   string
	}{
		{socket: "/tmp/gitmirror-cred-1/sock", want: "cache --socket '/tmp/gitmirror-cred-1/sock'"},
		{socket: "/tmp/it's/sock", want: `cache --socket '/tmp/it'\''s/sock'`},
	}

	for _, tt := range tests {
		t.Run(tt.socket, func(t *testing.T) {
			assert.Equal(t, tt.want, CacheHelper(tt.socket))
		})
	}
}
