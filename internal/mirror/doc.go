// Package mirror runs a complete mirror of a source repository into a target
// repository.
//
// Key Components:
//
// Orchestrator: drives one run through the progress states. It validates
// the configuration, selects exactly one credential provider, clones the
// source as a bare mirror into a private Session directory, pushes every ref
// to the provider's remote URL and records the head commit.
//
// Session: the per-run temporary directory holding the bare clone.
//
// Teardown:
//
// Once a provider exists, teardown always runs in the order local
// credentials, global credentials, session directory. It runs on a context
// detached from cancellation so an interrupted run still cleans up. Teardown
// failures are joined with the original cause.
//
// Example Usage:
//
//	cfg, err := config.Load(ctx, env)
//	if err != nil {
//	    return err
//	}
//	o := mirror.New(command.NewRunner(os.Stdout, os.Stderr), env,
//	    mirror.WithOutputs(actions.NewOutputFile(cfg.Runner.OutputFile, os.Stdout)))
//	res, err := o.Run(ctx, cfg)
package mirror
