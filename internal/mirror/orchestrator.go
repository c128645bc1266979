package mirror

import (
	"context"
	stderrors "errors"

	"github.com/NicabarNimble/go-gitmirror/internal/actions"
	"github.com/NicabarNimble/go-gitmirror/internal/command"
	"github.com/NicabarNimble/go-gitmirror/internal/config"
	"github.com/NicabarNimble/go-gitmirror/internal/credential"
	"github.com/NicabarNimble/go-gitmirror/internal/errors"
	"github.com/NicabarNimble/go-gitmirror/internal/git"
	"github.com/NicabarNimble/go-gitmirror/internal/progress"
	"github.com/NicabarNimble/go-gitmirror/internal/secret"
	"github.com/NicabarNimble/go-gitmirror/internal/urlutils"
	"github.com/chainguard-dev/clog"
)

// Output names.
const (
	OutputSourceRepo = "source-repo"
	OutputTargetRepo = "target-repo"
	OutputHeadCommit = "head-commit-hash"
)

// ProviderFactory builds the credential provider for a run.
type ProviderFactory func(ctx context.Context, opts *credential.Options) (credential.Provider, error)

// Result describes a completed mirror.
type Result struct {
	// SourceRepo is the clone source with credentials redacted.
	SourceRepo string
	// TargetRepo is owner/name.
	TargetRepo string
	HeadCommit string
}

// Orchestrator runs mirrors.
type Orchestrator struct {
	exec        command.Executor
	env         secret.Environment
	git         *git.Client
	outputs     actions.OutputSink
	tracker     progress.Tracker
	newProvider ProviderFactory
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTracker reports state transitions to t.
func WithTracker(t progress.Tracker) Option {
	return func(o *Orchestrator) { o.tracker = t }
}

// WithOutputs writes the run outputs to sink.
func WithOutputs(sink actions.OutputSink) Option {
	return func(o *Orchestrator) { o.outputs = sink }
}

// WithProviderFactory replaces credential.New.
func WithProviderFactory(f ProviderFactory) Option {
	return func(o *Orchestrator) { o.newProvider = f }
}

// New creates an Orchestrator running commands through exec. Providers
// publish agent state through env.
func New(exec command.Executor, env secret.Environment, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		exec:        exec,
		env:         env,
		git:         git.New(exec),
		tracker:     progress.NewLogTracker(),
		newProvider: credential.New,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run carries the state of one Run call.
type run struct {
	*Orchestrator
	state    progress.State
	provider credential.Provider
	session  *Session
}

// Run mirrors cfg.Inputs.SourceRepo into cfg.Inputs.TargetRepo. Secrets in
// cfg are consumed whether or not the run succeeds.
func (o *Orchestrator) Run(ctx context.Context, cfg *config.Config) (res *Result, err error) {
	r := &run{Orchestrator: o}
	defer cfg.ClearSecrets()
	defer func() {
		err = r.finish(ctx, err)
		if err != nil {
			res = nil
		}
	}()

	r.reach(ctx, progress.Validating)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	target, err := urlutils.ParseRepo(cfg.Inputs.TargetRepo, cfg.DefaultOwner())
	if err != nil {
		return nil, errors.Configuration("parse target", err)
	}
	host, err := cfg.Host()
	if err != nil {
		return nil, err
	}
	source, err := urlutils.NormalizeSource(cfg.Inputs.SourceRepo, host)
	if err != nil {
		return nil, errors.Configuration("parse source", err)
	}

	res = &Result{
		SourceRepo: urlutils.Redact(source),
		TargetRepo: target.String(),
	}
	log := clog.FromContext(ctx).With("source", res.SourceRepo, "target", res.TargetRepo)
	ctx = clog.WithLogger(ctx, log)

	sourceHost, sourcePort, _ := urlutils.SourceSSHEndpoint(source)
	provider, err := o.newProvider(ctx, &credential.Options{
		Target:                target,
		Host:                  host,
		SourceHost:            sourceHost,
		SourcePort:            sourcePort,
		TargetSSHKey:          cfg.TakeTargetSSHKey(),
		SourceSSHKey:          cfg.TakeSourceSSHKey(),
		TargetToken:           cfg.TakeTargetToken(),
		StrictHostKeyChecking: cfg.Inputs.StrictHostKeyChecking,
		TempDir:               cfg.Runner.TempDir,
		Exec:                  o.exec,
		Env:                   o.env,
	})
	if err != nil {
		return nil, err
	}
	r.provider = provider
	log.With("provider", string(provider.Kind())).Info("Selected credential provider")
	r.reach(ctx, progress.ProviderSelected)

	r.session, err = OpenSession(cfg.Runner.TempDir, target)
	if err != nil {
		return nil, errors.New("open session", err)
	}
	if err := provider.SetupGlobal(ctx); err != nil {
		return nil, err
	}
	r.reach(ctx, progress.GlobalCredentialsInstalled)

	dir := r.session.Dir()
	if err := o.git.CloneMirror(ctx, source, dir); err != nil {
		return nil, err
	}
	r.reach(ctx, progress.SourceCloned)

	if err := provider.SetupLocal(ctx, dir); err != nil {
		return nil, err
	}
	r.reach(ctx, progress.LocalCredentialsWired)

	if err := o.git.PushMirror(ctx, dir, provider.RemoteURL()); err != nil {
		return nil, err
	}
	r.reach(ctx, progress.Pushed)

	res.HeadCommit, err = o.git.RevParse(ctx, dir, "HEAD")
	if err != nil {
		return nil, err
	}
	r.reach(ctx, progress.MetadataCaptured)

	if err := o.writeOutputs(res); err != nil {
		return nil, err
	}
	log.With("head", res.HeadCommit).Info("Mirrored repository")
	return res, nil
}

func (o *Orchestrator) writeOutputs(res *Result) error {
	if o.outputs == nil {
		return nil
	}
	for _, kv := range [][2]string{
		{OutputSourceRepo, res.SourceRepo},
		{OutputTargetRepo, res.TargetRepo},
		{OutputHeadCommit, res.HeadCommit},
	} {
		if err := o.outputs.SetOutput(kv[0], kv[1]); err != nil {
			return errors.New("write outputs", err)
		}
	}
	return nil
}

func (r *run) reach(ctx context.Context, state progress.State) {
	r.state = state
	r.tracker.Reached(ctx, state)
}

// finish reports cause and tears down whatever the run set up. Teardown
// errors are joined with cause.
func (r *run) finish(ctx context.Context, cause error) error {
	if cause != nil {
		logFailure(ctx, cause)
		r.tracker.Failed(ctx, r.state, cause)
	}

	err := cause
	if r.provider != nil {
		if terr := r.teardown(context.WithoutCancel(ctx)); terr != nil {
			err = stderrors.Join(cause, terr)
		}
	}

	if err != nil {
		r.reach(ctx, progress.Failed)
		return err
	}
	r.reach(ctx, progress.Succeeded)
	return nil
}

// teardown releases local credentials, global credentials and the session
// directory, in that order, attempting every step.
func (r *run) teardown(ctx context.Context) error {
	log := clog.FromContext(ctx)
	var errs []error

	if r.session != nil && r.session.Dir() != "" {
		if err := r.provider.TeardownLocal(ctx, r.session.Dir()); err != nil {
			log.Errorf("Failed to tear down local credentials: %v", err)
			errs = append(errs, err)
		}
	}
	r.reach(ctx, progress.LocalTorndown)

	if err := r.provider.TeardownGlobal(ctx); err != nil {
		log.Errorf("Failed to tear down global credentials: %v", err)
		errs = append(errs, err)
	}
	r.reach(ctx, progress.GlobalTorndown)

	if r.session != nil {
		if err := r.session.Close(); err != nil {
			log.Errorf("Failed to remove session: %v", err)
			errs = append(errs, errors.Teardown("remove session", err))
		}
	}
	r.reach(ctx, progress.SessionRemoved)

	return stderrors.Join(errs...)
}

func logFailure(ctx context.Context, err error) {
	log := clog.FromContext(ctx)
	var f *command.Failure
	if stderrors.As(err, &f) {
		log.With("command", f.Command, "exit_code", f.ExitCode, "stderr", f.Stderr).Errorf("Mirror step failed: %v", err)
		return
	}
	log.Errorf("Mirror step failed: %v", err)
}
