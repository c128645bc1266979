// Package main provides the gitmirror CLI, which mirrors a source repository
// into a target repository from a CI job
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/NicabarNimble/go-gitmirror/internal/actions"
	"github.com/NicabarNimble/go-gitmirror/internal/command"
	"github.com/NicabarNimble/go-gitmirror/internal/config"
	"github.com/NicabarNimble/go-gitmirror/internal/mirror"
	"github.com/NicabarNimble/go-gitmirror/internal/secret"
	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"
)

var (
	// environment and newExecutor allow for mocking in tests
	environment = func() secret.Environment { return secret.NewOSEnvironment() }
	newExecutor = func(stdout, stderr io.Writer) command.Executor { return command.NewRunner(stdout, stderr) }
)

type options struct {
	sourceRepo string
	targetRepo string
	strict     bool
	debug      bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "gitmirror",
		Short: "Mirror a git repository into a target repository",
		Long: `Clones every ref of a source repository and pushes it to a target repository,
authenticating to the target with either an SSH private key or an access token.

Inputs are read from the environment as INPUT_<NAME> variables:
  INPUT_SOURCE-REPO, INPUT_TARGET-REPO        repositories (flags override)
  INPUT_TARGET-SSH-KEY or INPUT_TARGET-TOKEN  exactly one target credential
  INPUT_SOURCE-SSH-KEY                        optional key for private sources

Secrets are only accepted from the environment.

Example usage:
  INPUT_TARGET-TOKEN=... gitmirror --source-repo upstream/widgets --target-repo acme/widgets`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMirror(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.sourceRepo, "source-repo", "", "Source repository (URL, path or owner/name)")
	cmd.Flags().StringVar(&opts.targetRepo, "target-repo", "", "Target repository (owner/name or name)")
	cmd.Flags().BoolVar(&opts.strict, "strict-host-key-checking", false, "Verify SSH host keys with ssh-keyscan")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	return cmd
}

func runMirror(cmd *cobra.Command, opts *options) error {
	ctx := cmd.Context()
	env := environment()
	stdout := command.Synchronized(cmd.OutOrStdout())
	stderr := command.Synchronized(cmd.ErrOrStderr())

	cfg, err := config.Load(ctx, env)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("source-repo") {
		cfg.Inputs.SourceRepo = opts.sourceRepo
	}
	if flags.Changed("target-repo") {
		cfg.Inputs.TargetRepo = opts.targetRepo
	}
	if flags.Changed("strict-host-key-checking") {
		cfg.Inputs.StrictHostKeyChecking = opts.strict
	}

	level := slog.LevelInfo
	if opts.debug || cfg.Runner.Debug {
		level = slog.LevelDebug
	}
	logger := clog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	ctx = clog.WithLogger(ctx, logger)

	o := mirror.New(newExecutor(stdout, stderr), env,
		mirror.WithOutputs(actions.NewOutputFile(cfg.Runner.OutputFile, stdout)))
	_, err = o.Run(ctx, cfg)
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
