// File: internal/workflows/enginebuild/run.go
// Brief: Build matrix execution with toolchain preflight and the run ledger.

package enginebuild

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/miscdec/flutter-engine/internal/archive"
	"github.com/miscdec/flutter-engine/internal/buildinfo"
	"github.com/miscdec/flutter-engine/internal/execx"
	"github.com/miscdec/flutter-engine/internal/gitrepo"
	"github.com/miscdec/flutter-engine/internal/har"
	"github.com/miscdec/flutter-engine/internal/runlog"
	"github.com/miscdec/flutter-engine/internal/stages"
	"github.com/miscdec/flutter-engine/internal/tasks"
	"github.com/miscdec/flutter-engine/internal/toolchain"
)

// ToolchainResolver finds the native toolchain.
type ToolchainResolver interface {
	Resolve(ctx context.Context) (toolchain.Toolchain, error)
}

// Dependencies are the collaborators of the workflow. Zero values get defaults.
type Dependencies struct {
	Runner execx.Runner
	// Resolver defaults to a toolchain.Resolver over <root>/ndk and Options.ToolchainRoot.
	Resolver ToolchainResolver
	Ledger   *runlog.Ledger
	Log      logr.Logger
	Now      func() time.Time
	Environ  func() []string
}

// StepResult is the outcome of one (build type, stage) pair.
type StepResult struct {
	Step     stages.Step
	Code     int
	Fatal    bool
	Duration time.Duration
	Err      error
}

// Result summarizes a build run.
type Result struct {
	RunID     int64
	Toolchain *toolchain.Toolchain
	Setup     *tasks.Report
	Steps     []StepResult
	Archives  []archive.Result
}

type service struct {
	runner   execx.Runner
	resolver ToolchainResolver
	ledger   *runlog.Ledger
	log      logr.Logger
	now      func() time.Time
	environ  func() []string
}

// New returns a default engine build Service.
func New(deps Dependencies) Service {
	s := &service{
		runner:   deps.Runner,
		resolver: deps.Resolver,
		ledger:   deps.Ledger,
		log:      deps.Log,
		now:      deps.Now,
		environ:  deps.Environ,
	}
	if s.runner == nil {
		s.runner = execx.NewOSRunner(deps.Log)
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.environ == nil {
		s.environ = os.Environ
	}
	return s
}

// CheckEngineRoot fails with stages.ErrNotEngineRoot unless root holds src/flutter.
func CheckEngineRoot(root string) error {
	info, err := os.Stat(FlutterDir(root))
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w (root %s); run ohosbuild from the directory holding the engine's src/", stages.ErrNotEngineRoot, root)
	}
	return nil
}

// needsToolchain lists the stages that read the toolchain.
func needsToolchain(steps []stages.Step) bool {
	for _, st := range steps {
		switch st.Stage {
		case stages.Config, stages.Zip, stages.Zip2:
			return true
		}
	}
	return false
}

// Run executes the workflow. Fatal stage failures are returned as-is, so an external
// tool's *execx.ExitError keeps its code for the CLI.
func (s *service) Run(ctx context.Context, opts Options) (res *Result, err error) {
	if strings.TrimSpace(opts.Root) == "" {
		opts.Root = "."
	}
	if err := CheckEngineRoot(opts.Root); err != nil {
		return nil, err
	}
	start := s.now()
	if opts.OutputsDir == "" {
		opts.OutputsDir = OutputsDir(opts.Root, start)
	}
	cons := newConsole(opts.Streams)
	res = &Result{}

	runID, lerr := s.ledger.Begin(ctx, "build", opts.Branch)
	if lerr != nil {
		s.log.Error(lerr, "run ledger unavailable")
	}
	res.RunID = runID
	defer func() {
		code := 0
		if err != nil {
			code = exitCode(err)
		}
		if ferr := s.ledger.Finish(context.WithoutCancel(ctx), runID, code, err); ferr != nil {
			s.log.Error(ferr, "run ledger finish failed")
		}
	}()

	if strings.TrimSpace(opts.Branch) != "" {
		report, err := s.syncBranch(ctx, opts)
		res.Setup = report
		if err != nil {
			return res, err
		}
	}

	types := opts.Types
	if len(types) == 0 {
		types = buildinfo.BuildTypes
	}
	steps := stages.Matrix(types, stages.Select(opts.Stages, opts.Branch))
	if len(steps) == 0 {
		s.log.Info("no build stages requested")
		return res, nil
	}

	var tc *toolchain.Toolchain
	if needsToolchain(steps) {
		resolved, err := s.resolveToolchain(ctx, opts)
		if err != nil {
			return res, err
		}
		tc = &resolved
		res.Toolchain = tc
		if lerr := s.ledger.SetToolchain(ctx, runID, tc.Root); lerr != nil {
			s.log.Error(lerr, "run ledger update failed")
		}
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		info, err := buildinfo.New(step.Type, opts.Arch)
		if err != nil {
			return res, err
		}
		cons.stage(step.String())
		s.log.Info("stage start", "buildType", step.Type, "stage", step.Stage, "output", info.OutputName())
		policy := stages.PolicyFor(step.Stage)

		began := time.Now()
		archived, stageErr := s.execStage(ctx, opts, step.Stage, info, tc, policy)
		sr := StepResult{
			Step:     step,
			Duration: time.Since(began),
			Err:      stageErr,
			Code:     exitCode(stageErr),
			Fatal:    stageErr != nil && policy.FatalOnNonZero,
		}
		if archived != nil {
			res.Archives = append(res.Archives, *archived)
		}
		res.Steps = append(res.Steps, sr)
		cons.stepDone(sr)
		if lerr := s.ledger.Record(ctx, runlog.StageResult{
			RunID:     runID,
			BuildType: string(step.Type),
			Stage:     string(step.Stage),
			ExitCode:  sr.Code,
			Fatal:     sr.Fatal,
			Duration:  sr.Duration,
			Error:     errText(stageErr),
		}); lerr != nil {
			s.log.Error(lerr, "run ledger record failed")
		}
		if stageErr == nil {
			continue
		}
		if sr.Fatal {
			s.log.Error(stageErr, "stage failed", "buildType", step.Type, "stage", step.Stage, "code", sr.Code)
			return res, stageErr
		}
		s.log.Info("stage failed, continuing", "buildType", step.Type, "stage", step.Stage, "code", sr.Code, "error", stageErr.Error())
	}
	s.log.Info("ohosbuild finish", "steps", len(res.Steps), "duration", time.Since(start).Round(time.Second).String())
	return res, nil
}

func (s *service) resolveToolchain(ctx context.Context, opts Options) (toolchain.Toolchain, error) {
	resolver := s.resolver
	if resolver == nil {
		resolver = toolchain.Resolver{
			BundledDir: opts.Root + string(os.PathSeparator) + "ndk",
			Override:   opts.ToolchainRoot,
			Log:        s.log,
		}
	}
	tc, err := resolver.Resolve(ctx)
	if err != nil {
		var nf *toolchain.NotFoundError
		if errors.As(err, &nf) {
			s.log.Error(err, "toolchain not found")
			fmt.Fprintln(opts.Streams.ErrWriter(), nf.Guidance())
		}
		return toolchain.Toolchain{}, err
	}
	s.log.Info("toolchain", toolchain.EnvNDKHome, tc.Root, "source", tc.Source, "version", tc.Version())
	return tc, nil
}

// syncBranch stashes local work in src/flutter, checks out and pulls the branch, then
// re-runs the attachment setup with stashing on.
func (s *service) syncBranch(ctx context.Context, opts Options) (*tasks.Report, error) {
	repo := gitrepo.New(FlutterDir(opts.Root), s.runner)
	out, errOut := opts.Streams.OutWriter(), opts.Streams.ErrWriter()
	steps := []struct {
		args  []string
		fatal bool
	}{
		{[]string{"add", "-A"}, true},
		{[]string{"stash", "save", "Auto stash save by ohosbuild"}, true},
		{[]string{"checkout", opts.Branch}, true},
		{[]string{"pull", "--rebase"}, false},
		{[]string{"log", "-1"}, true},
	}
	for _, st := range steps {
		err := repo.RunChecked(ctx, out, errOut, st.args...)
		if err == nil {
			continue
		}
		if st.fatal {
			return nil, fmt.Errorf("sync %s: %w", opts.Branch, err)
		}
		s.log.Info("git step failed, continuing", "args", strings.Join(st.args, " "), "error", err.Error())
	}
	setup := opts.Setup
	setup.Root = opts.Root
	setup.NoStash = false
	setup.DryRun = false
	if setup.Streams == (Streams{}) {
		setup.Streams = opts.Streams
	}
	return s.Setup(ctx, setup)
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, toolchain.ErrToolchainNotFound) {
		return toolchain.ExitCodeNotFound
	}
	return execx.ExitCode(err, 1)
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// harPackager is replaceable in tests.
var newHarPackager = func(runner execx.Runner, log logr.Logger) *har.Packager {
	return har.NewPackager(runner, log)
}
