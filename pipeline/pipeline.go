package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"easybuild/config"
	"easybuild/ecmodel"
	"easybuild/envctx"
	"easybuild/errs"
	"easybuild/log"
	"easybuild/mns"
	"easybuild/modulestool"
	"easybuild/resolver"
	"easybuild/sandbox"
)

// Step names the pipeline's states. The step identifiers matching
// ecmodel.Steps double as valid --stop values; DONE/FAILED/STOPPED are
// terminal pseudo-states never offered as a --stop target.
type Step string

const (
	StepFetch      Step = "fetch"
	StepExtract    Step = "extract"
	StepPatch      Step = "patch"
	StepPrepare    Step = "prepare"
	StepConfigure  Step = "configure"
	StepBuild      Step = "build"
	StepTest       Step = "test"
	StepInstall    Step = "install"
	StepExtensions Step = "extensions"
	StepPostproc   Step = "postproc"
	StepSanity     Step = "sanity"
	StepModule     Step = "module"
	StepPerms      Step = "permsstep"
	StepPackage    Step = "package"
	StepCleanup    Step = "cleanup"

	StepDone    Step = "DONE"
	StepFailed  Step = "FAILED"
	StepStopped Step = "STOPPED"
)

// orderedSteps is the full, non-terminal state sequence (spec.md §4.6).
var orderedSteps = []Step{
	StepFetch, StepExtract, StepPatch, StepPrepare, StepConfigure, StepBuild,
	StepTest, StepInstall, StepExtensions, StepPostproc, StepSanity,
	StepModule, StepPerms, StepPackage, StepCleanup,
}

// Options configures a Pipeline; one Options/Pipeline pair is shared
// sequentially across every Build Unit in a run (spec.md §5: "a single
// run is single-threaded at the orchestration level").
type Options struct {
	Cfg         *config.Config
	ModulesTool modulestool.Tool
	MNS         mns.Scheme
	Fetcher     *Fetcher

	EnforceChecksums  bool
	StopStep          string // "" = run to completion
	SanityCheckOnly   bool
	SkipExtensions    bool
	IgnoreTestFailure bool
	IgnoreLocks       bool
	Trace             bool

	ModuleSyntax          string // "Tcl" or "Lua"
	ModuleHeader          string
	ModuleFooter          string
	RecursiveModuleUnload bool
	SetDefaultModule      bool

	DisableCleanupBuilddir bool
}

// Pipeline runs Build Units through the per-package step state machine.
type Pipeline struct {
	opts Options
}

// New constructs a Pipeline.
func New(opts Options) *Pipeline { return &Pipeline{opts: opts} }

// Result is the outcome of one Run.
type Result struct {
	FinalStep  Step
	Err        error
	Duration   time.Duration
	ModuleID   string
	InstallDir string
	UnitUUID   string
}

// run carries one Build Unit's mutable pipeline state, grounded on the
// teacher's per-Worker build bookkeeping (build/build.go's Worker/
// BuildContext split, generalized to a value threaded by parameter
// rather than captured in goroutine-shared fields).
type run struct {
	opts *Options
	ec   *ecmodel.EC
	unit *resolver.BuildUnit

	sandbox sandbox.Sandbox
	env     *envctx.Manager
	unitLog *log.UnitLogger

	buildDir   string
	installDir string

	originalEnv map[string]string
	lock        *unitLock
}

// Run drives unit through FETCH..DONE/FAILED/STOPPED. sb must already
// be constructed (not yet Setup); env is this unit's fresh environment
// manager seeded with the baseline process environment; unitLog is the
// per-unit log file; progress receives step-entry/trace notices.
func (p *Pipeline) Run(ctx context.Context, unit *resolver.BuildUnit, sb sandbox.Sandbox, env *envctx.Manager, unitLog *log.UnitLogger, progress log.LibraryLogger) *Result {
	start := time.Now()
	r := &run{opts: &p.opts, ec: unit.EC, unit: unit, sandbox: sb, env: env, unitLog: unitLog}

	res := &Result{ModuleID: unit.ModuleID.String(), UnitUUID: uuid.New().String()}

	finalStep, err := r.drive(ctx, progress)
	res.FinalStep = finalStep
	res.Err = err
	res.Duration = time.Since(start)
	res.InstallDir = r.installDir
	return res
}

// drive executes every ordered step in turn, stopping early on
// --stop=<step>, SANITY-only mode, or the first uncaught error.
func (r *run) drive(ctx context.Context, progress log.LibraryLogger) (Step, error) {
	ec := r.ec

	buildInInstallDir := ec.Custom["build_in_installdir"] == "true"
	r.installDir = filepath.Join(r.opts.Cfg.SoftwarePath, r.opts.MNS.DetInstallSubdir(ec))
	if buildInInstallDir {
		r.buildDir = r.installDir
	} else {
		r.buildDir = filepath.Join(r.opts.Cfg.BuildPath, ec.Name, ec.FullVersion())
	}

	st := &StepContext{
		Ctx: ctx, EC: ec, Env: r.env, Sandbox: r.sandbox, UnitLog: r.unitLog,
		Progress: progress, BuildDir: r.buildDir, StartDir: r.buildDir,
		InstallDir: r.installDir, Trace: r.opts.Trace,
	}

	startAt := 0
	if r.opts.SanityCheckOnly {
		for i, s := range orderedSteps {
			if s == StepSanity {
				startAt = i
				break
			}
		}
	}

	r.lock = newUnitLock(r.opts.Cfg.InstallPath, r.unit.ModuleID.String())
	if !r.opts.IgnoreLocks && startAt <= indexOf(StepExtract) {
		if err := r.lock.Acquire(); err != nil {
			return StepFailed, err
		}
	}
	defer r.lock.Release()

	defer func() {
		if r.originalEnv != nil {
			r.env.ModifyEnv(r.env.Apply(), r.originalEnv)
		}
	}()

	block, blockErr := Resolve(ec.EasyBlock, ec.Name)
	if blockErr != nil {
		return StepFailed, blockErr
	}

	for i := startAt; i < len(orderedSteps); i++ {
		step := orderedSteps[i]

		if step == StepExtensions && r.opts.SkipExtensions {
			continue
		}
		if r.opts.SanityCheckOnly && (step == StepModule || i > indexOf(StepSanity)) {
			return StepDone, nil
		}

		if progress != nil {
			progress.Debug("unit %s: entering step %s", r.unit.ModuleID, step)
		}
		if r.opts.Trace {
			fmt.Printf("== %s: %s ==\n", r.unit.ModuleID, step)
		}
		if r.unitLog != nil {
			r.unitLog.WriteStep(string(step))
		}

		err := r.runStep(st, step, block)
		if err != nil {
			if step == StepTest && r.opts.IgnoreTestFailure {
				if progress != nil {
					progress.Warn("unit %s: TEST step failed, ignored: %v", r.unit.ModuleID, err)
				}
			} else {
				return StepFailed, err
			}
		}

		if r.opts.StopStep != "" && string(step) == r.opts.StopStep {
			return StepStopped, nil
		}
	}

	return StepDone, nil
}

func indexOf(s Step) int {
	for i, o := range orderedSteps {
		if o == s {
			return i
		}
	}
	return -1
}

// runStep dispatches one step, mirroring the teacher's executePhase
// switch (build/phases.go) but over the spec's named steps instead of
// ports-tree make targets.
func (r *run) runStep(st *StepContext, step Step, block EasyBlock) error {
	switch step {
	case StepFetch:
		_, _, err := r.runFetch(st)
		return err
	case StepExtract:
		return r.runExtract(st)
	case StepPatch:
		return r.runPatch(st)
	case StepPrepare:
		return r.runPrepare(st)
	case StepConfigure:
		return block.ConfigureStep(st)
	case StepBuild:
		return block.BuildStep(st)
	case StepTest:
		return block.TestStep(st)
	case StepInstall:
		return block.InstallStep(st)
	case StepExtensions:
		return r.runExtensions(st, block)
	case StepPostproc:
		return nil
	case StepSanity:
		return r.runSanity(st)
	case StepModule:
		return r.runModule(st)
	case StepPerms:
		return os.Chmod(r.installDir, 0755)
	case StepPackage:
		return nil
	case StepCleanup:
		return r.runCleanup(st)
	default:
		return fmt.Errorf("unknown pipeline step: %s", step)
	}
}

// runExtract implements EXTRACT: the build directory is removed before
// extraction unless build_in_installdir keeps it equal to the install
// dir (spec.md §4.6, §8 invariant 3).
func (r *run) runExtract(st *StepContext) error {
	if r.buildDir != r.installDir {
		if err := os.RemoveAll(r.buildDir); err != nil {
			return &errs.IOFailedError{Op: "rmdir", Path: r.buildDir, Err: err}
		}
	}
	if err := os.MkdirAll(r.buildDir, 0755); err != nil {
		return &errs.IOFailedError{Op: "mkdir", Path: r.buildDir, Err: err}
	}

	sourcePaths, _, err := r.runFetch(st)
	if err != nil {
		return err
	}
	for _, src := range sourcePaths {
		if err := extractSource(src, r.buildDir); err != nil {
			return err
		}
	}
	st.StartDir = firstSubdirOrSelf(r.buildDir)
	return nil
}

// runPatch applies each declared patch at its strip level, aborting on
// the first rejected hunk (spec.md §4.6 PATCH).
func (r *run) runPatch(st *StepContext) error {
	_, patchPaths, err := r.runFetch(st)
	if err != nil {
		return err
	}
	for i, p := range r.ec.Patches {
		path := ""
		if i < len(patchPaths) {
			path = patchPaths[i]
		}
		if err := applyPatch(path, st.StartDir, p.Level); err != nil {
			return &errs.PatchFailedError{Patch: p.Name, Reason: err.Error()}
		}
	}
	return nil
}

// runCleanup removes the build directory on success unless preserved
// (--disable-cleanup-builddir or build_in_installdir).
func (r *run) runCleanup(st *StepContext) error {
	if r.opts.DisableCleanupBuilddir || r.buildDir == r.installDir {
		return nil
	}
	return os.RemoveAll(r.buildDir)
}
