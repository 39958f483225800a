package sandbox

import (
	"context"
	"strings"
	"time"

	"execbox/internal/sandbox/admission"
	"execbox/internal/sandbox/compiler"
	"execbox/internal/sandbox/engine"
	"execbox/internal/sandbox/harness"
	"execbox/internal/sandbox/ident"
	"execbox/internal/sandbox/observer"
	"execbox/internal/sandbox/profile"
	"execbox/internal/sandbox/result"
	"execbox/internal/sandbox/spec"
	"execbox/internal/sandbox/submission"
	"execbox/internal/sandbox/workspace"
	appErr "execbox/pkg/errors"
	"execbox/pkg/utils/contextkey"
	"execbox/pkg/utils/logger"

	"go.uber.org/zap"
)

// ProfileRepository resolves profiles by name.
type ProfileRepository interface {
	Get(ctx context.Context, name string) (*profile.Profile, error)
}

// Config holds pipeline dependencies and settings.
type Config struct {
	Workspace *workspace.Workspace
	Profiles  ProfileRepository
	Compiler  compiler.Compiler
	Engine    engine.Engine
	// Limiter bounds in-flight requests; nil admits everything.
	Limiter *admission.TokenLimiter
	Metrics observer.MetricsRecorder
	// MaxSubmissionBytes caps the decoded submission.
	MaxSubmissionBytes int
}

// Pipeline is the Service implementation.
type Pipeline struct {
	workspace *workspace.Workspace
	profiles  ProfileRepository
	compiler  compiler.Compiler
	engine    engine.Engine
	limiter   *admission.TokenLimiter
	metrics   observer.MetricsRecorder
	maxBytes  int
	reporter  StatusReporter
	newID     func() (string, error)
}

var _ Service = (*Pipeline)(nil)

// NewPipeline creates a pipeline with required dependencies.
func NewPipeline(cfg Config) (*Pipeline, error) {
	switch {
	case cfg.Workspace == nil:
		return nil, appErr.ValidationError("workspace", "required")
	case cfg.Profiles == nil:
		return nil, appErr.ValidationError("profiles", "required")
	case cfg.Compiler == nil:
		return nil, appErr.ValidationError("compiler", "required")
	case cfg.Engine == nil:
		return nil, appErr.ValidationError("engine", "required")
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observer.NoopMetricsRecorder{}
	}
	maxBytes := cfg.MaxSubmissionBytes
	if maxBytes <= 0 {
		maxBytes = submission.DefaultLimit
	}
	return &Pipeline{
		workspace: cfg.Workspace,
		profiles:  cfg.Profiles,
		compiler:  cfg.Compiler,
		engine:    cfg.Engine,
		limiter:   cfg.Limiter,
		metrics:   metrics,
		maxBytes:  maxBytes,
		newID:     ident.New,
	}, nil
}

// SetStatusReporter injects a reporter for state transitions.
func (p *Pipeline) SetStatusReporter(reporter StatusReporter) {
	p.reporter = reporter
}

// Run executes one request end to end.
func (p *Pipeline) Run(ctx context.Context, req Request) (rep result.Report, err error) {
	prof, err := p.profiles.Get(ctx, req.Profile)
	if err != nil {
		return result.Report{}, err
	}
	if p.limiter != nil {
		if err := p.limiter.Acquire(ctx); err != nil {
			return result.Report{}, err
		}
		defer p.limiter.Release()
	}
	id, err := p.newID()
	if err != nil {
		return result.Report{}, appErr.Wrapf(err, appErr.SupervisorInternalError, "generate submission id failed")
	}
	ctx = context.WithValue(ctx, contextkey.SubmissionID, id)
	ctx = context.WithValue(ctx, contextkey.Profile, prof.Name)

	r := &run{
		p:     p,
		prof:  prof,
		state: result.StateReceived,
		report: result.Report{
			SubmissionID: id,
			Profile:      prof.Name,
			Timestamps:   result.Timestamps{ReceivedAt: time.Now().UnixMilli()},
		},
	}
	// Registered first so it runs after the scope release in execute.
	defer func() {
		if v := recover(); v != nil {
			logger.Error(ctx, "pipeline panic", zap.Any("panic", v), zap.Stack("stack"))
			if r.state.Terminal() {
				rep = r.report
			} else {
				rep = r.fail(ctx, "")
			}
			err = nil
		}
	}()
	return r.execute(ctx, req.Submission), nil
}

// run is the state of one request.
type run struct {
	p      *Pipeline
	prof   *profile.Profile
	state  result.State
	report result.Report
	runDur time.Duration
}

func (r *run) execute(ctx context.Context, sub submission.Submission) result.Report {
	p, prof := r.p, r.prof

	code, err := submission.Decode(sub, p.maxBytes)
	if err != nil {
		rep := r.reject(ctx, err.Error())
		rep.Code = appErr.GetCode(err)
		return rep
	}
	if verdict := prof.Validator.Validate(code); verdict.Rejected() {
		return r.reject(ctx, verdict.Reason)
	}
	fragment, err := harness.NewFragment(code, prof.Harness.Context())
	if err != nil {
		return r.reject(ctx, err.Error())
	}
	if err := r.advance(ctx, result.StateValidated); err != nil {
		return r.fault(ctx, err)
	}

	source, err := prof.Harness.Render(fragment, prof.Prologue)
	if err != nil {
		return r.fault(ctx, err)
	}
	scope, err := p.workspace.NewScope(r.report.SubmissionID)
	if err != nil {
		return r.fault(ctx, err)
	}
	defer scope.Release(context.WithoutCancel(ctx))

	src, err := scope.WriteSource(source, prof.SourceExt)
	if err != nil {
		return r.fault(ctx, err)
	}
	// Registered before the compiler starts so a partial binary is removed.
	bin, err := scope.ReserveBinary()
	if err != nil {
		return r.fault(ctx, err)
	}
	if err := r.advance(ctx, result.StateSourceWritten); err != nil {
		return r.fault(ctx, err)
	}

	cres, err := p.compiler.Compile(ctx, spec.CompileSpec{
		SubmissionID: r.report.SubmissionID,
		Profile:      prof.Name,
		Command:      prof.CompileCommand,
		Source:       src.Path,
		Binary:       bin.Path,
		WorkDir:      scope.Dir(),
		Env:          prof.Env,
		Timeout:      prof.CompileTimeout,
	})
	if err != nil {
		return r.fault(ctx, err)
	}
	r.report.CompileTimeMs = cres.TimeMs
	p.metrics.ObserveCompile(ctx, prof.Name, cres.OK, time.Duration(cres.TimeMs)*time.Millisecond)
	if !cres.OK {
		r.report.Diagnostic = cres.Diagnostic
		rep := r.finish(ctx, result.StateCompileFailed)
		if cres.TimedOut {
			rep.Code = appErr.CompileTimeout
		}
		return rep
	}
	if err := r.advance(ctx, result.StateCompiled); err != nil {
		return r.fault(ctx, err)
	}

	rres, err := p.engine.Run(ctx, spec.RunSpec{
		SubmissionID: r.report.SubmissionID,
		Profile:      prof.Name,
		Binary:       bin.Path,
		WorkDir:      scope.Dir(),
		Env:          prof.Env,
		Stdin:        sub.Stdin,
		Policy:       prof.Policy,
		Limits:       prof.Limits,
	})
	if err != nil {
		return r.fault(ctx, err)
	}
	r.runDur = time.Duration(rres.WallTimeMs) * time.Millisecond
	r.report.RunTimeMs = rres.WallTimeMs
	if err := r.advance(ctx, result.StateExecuted); err != nil {
		return r.fault(ctx, err)
	}

	state := outcome(rres)
	if state == result.StateSupervisorError {
		logger.Warn(ctx, "run ended without a trusted outcome",
			zap.String("reason", rres.Reason),
			zap.Int("exit_code", rres.ExitCode),
			zap.String("signal", rres.Signal),
		)
		return r.fail(ctx, publicRunReason(rres.Reason))
	}
	// Output of a run whose policy was never acknowledged is never surfaced.
	if rres.Isolated {
		r.report.Stdout = string(rres.Stdout)
		r.report.Stderr = string(rres.Stderr)
		r.report.Truncated = rres.StdoutTruncated || rres.StderrTruncated
	}
	r.report.Isolated = rres.Isolated
	r.report.ExitCode = rres.ExitCode
	r.report.Signal = rres.Signal
	return r.finish(ctx, state)
}

// outcome maps a run result onto its terminal state.
func outcome(rres result.RunResult) result.State {
	switch {
	case rres.TimedOut:
		return result.StateTimedOut
	case rres.Termination == result.TerminationPolicyKilled:
		return result.StatePolicyKilled
	case rres.Termination == result.TerminationCrashed:
		return result.StateCrashed
	case rres.Termination == result.TerminationNormal && rres.ExitCode == 0:
		return result.StateSucceeded
	case rres.Termination == result.TerminationNormal:
		return result.StateRuntimeFailed
	default:
		return result.StateSupervisorError
	}
}

// publicRunReason keeps helper diagnostics, which may name host paths, out
// of the report.
func publicRunReason(reason string) string {
	if reason == "" || strings.HasPrefix(reason, "sandbox-init:") {
		return "sandbox setup failed"
	}
	return reason
}

func (r *run) advance(ctx context.Context, to result.State) error {
	if !canTransition(r.state, to) {
		return illegalTransition{from: r.state, to: to}
	}
	from := r.state
	r.state = to
	logger.Debug(ctx, "pipeline transition", zap.String("from", string(from)), zap.String("to", string(to)))
	if r.p.reporter != nil {
		r.p.reporter.ReportStatus(ctx, StatusUpdate{
			SubmissionID: r.report.SubmissionID,
			Profile:      r.prof.Name,
			From:         from,
			To:           to,
			At:           time.Now().UnixMilli(),
		})
	}
	return nil
}

func (r *run) reject(ctx context.Context, reason string) result.Report {
	r.report.Reason = reason
	return r.finish(ctx, result.StateRejected)
}

// fault routes an unexpected error into SupervisorError. Only the error
// code reaches the report.
func (r *run) fault(ctx context.Context, err error) result.Report {
	logger.Error(ctx, "pipeline fault", zap.String("state", string(r.state)), zap.Error(err))
	if appErr.GetCode(err) == appErr.ArtifactWriteFailed {
		rep := r.fail(ctx, "could not write source")
		rep.Code = appErr.ArtifactWriteFailed
		return rep
	}
	return r.fail(ctx, "")
}

func (r *run) fail(ctx context.Context, reason string) result.Report {
	r.report.Reason = reason
	r.report.Stdout, r.report.Stderr = "", ""
	return r.finish(ctx, result.StateSupervisorError)
}

// finish enters a terminal state and seals the report.
func (r *run) finish(ctx context.Context, to result.State) result.Report {
	if err := r.advance(ctx, to); err != nil {
		logger.Error(ctx, "pipeline state machine violated", zap.Error(err))
		if !r.state.Terminal() {
			_ = r.advance(ctx, result.StateSupervisorError)
			r.report.Reason = ""
		}
	}
	r.report.State = r.state
	r.report.Code = r.state.Code()
	r.report.Timestamps.FinishedAt = time.Now().UnixMilli()

	if r.state == result.StateRejected {
		r.p.metrics.ObserveRejected(ctx, r.prof.Name)
	} else {
		r.p.metrics.ObserveRun(ctx, r.prof.Name, string(r.state), r.runDur)
	}
	logger.Info(ctx, "submission finished",
		zap.String("state", string(r.state)),
		zap.Int("code", int(r.report.Code)),
		zap.Int64("compile_ms", r.report.CompileTimeMs),
		zap.Int64("run_ms", r.report.RunTimeMs),
	)
	return r.report
}
