// Package orchestrator implements the Orchestrator (C10): the glue
// between every other component, driving one end-to-end run from a
// list of easyconfig paths to finished modules (spec.md §4.10).
//
// Grounded on the teacher's cmd.runBuild (cmd/build.go: parse -> resolve
// -> mark-needing-build -> DoBuild -> print stats) generalized from a
// single in-process build phase to the spec's richer pseudo-flow
// (root check, environment snapshot, tweak, already-installed filter,
// dep-graph/job early exits, regtest continue-on-failure).
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"time"

	"easybuild/config"
	"easybuild/dispatcher"
	"easybuild/ecmodel"
	"easybuild/envctx"
	"easybuild/log"
	"easybuild/mns"
	"easybuild/modulestool"
	"easybuild/pipeline"
	"easybuild/repo"
	"easybuild/resolver"
	"easybuild/sandbox"
	"easybuild/store"
)

// ErrRefusedAsRoot is returned when the process runs as superuser
// without --allow-use-as-root-and-accept-consequences.
var ErrRefusedAsRoot = fmt.Errorf("refusing to run as root without --allow-use-as-root-and-accept-consequences")

// Options bundles every collaborator and flag the orchestrator needs,
// mirroring spec.md §6's CLI surface at the component boundary.
type Options struct {
	Cfg         *config.Config
	ModulesTool modulestool.Tool
	MNS         mns.Scheme
	Robot       resolver.RobotLocator
	RepoWriter  repo.Writer

	SandboxFactory func() (sandbox.Sandbox, error)

	Dispatcher      *dispatcher.Dispatcher
	Job             bool
	DepGraphFile    string
	TweakSpec       ecmodel.TweakSpec
	Regtest         bool
	AlreadyInstalled map[string]bool // module ID strings known to already exist

	// Logger receives field-structured run progress (unit start/finish,
	// dispatch outcome); defaults to a no-op logger when nil.
	Logger log.LibraryLogger
}

// Stats summarizes one run, mirroring the teacher's build.BuildStats.
type Stats struct {
	Total      int
	Success    int
	Failed     int
	SkippedPre int // already installed, filtered out before resolution
	Duration   time.Duration
}

// Orchestrator drives a full run given a set of top-level easyconfig paths.
type Orchestrator struct {
	opts     Options
	pipeline *pipeline.Pipeline
}

// New constructs an Orchestrator. p is the already-configured Pipeline
// (C6) used to build each unit when not dispatching externally.
func New(opts Options, p *pipeline.Pipeline) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = log.NoOpLogger{}
	}
	return &Orchestrator{opts: opts, pipeline: p}
}

// Run executes the pseudo-flow of spec.md §4.10 against the easyconfig
// paths named by args (each may itself expand to multiple ECs, as a
// single .eb file can declare multi-spec blocks).
func (o *Orchestrator) Run(ctx context.Context, args []string) (*Stats, error) {
	start := time.Now()
	stats := &Stats{}

	if config.IsRoot() && !o.opts.Cfg.AllowUseAsRootAndAcceptConsequences {
		return stats, ErrRefusedAsRoot
	}

	baseline := map[string]string{}
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				baseline[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	env := envctx.NewManager(baseline)

	var requested []*ecmodel.EC
	for _, path := range args {
		ecs, err := ecmodel.Parse(path)
		if err != nil {
			return stats, err
		}
		for _, ec := range ecs {
			if !o.opts.TweakSpec.IsEmpty() {
				ec = ecmodel.Tweak(ec, o.opts.TweakSpec)
			}
			if err := ec.GenerateTemplateValues(); err != nil {
				return stats, err
			}
			if err := ec.Validate(); err != nil {
				return stats, err
			}
			requested = append(requested, ec)
		}
	}

	if !o.opts.Cfg.Force && !o.opts.Cfg.Rebuild {
		var filtered []*ecmodel.EC
		for _, ec := range requested {
			if o.opts.AlreadyInstalled[ec.ModuleID().String()] {
				stats.SkippedPre++
				continue
			}
			filtered = append(filtered, ec)
		}
		requested = filtered
	}

	units, err := resolver.Resolve(requested, o.opts.AlreadyInstalled, resolver.Options{
		RobotPaths:    o.opts.Cfg.RobotPaths,
		Robot:         o.opts.Robot,
		Force:         o.opts.Cfg.Force,
		MaxIterations: 1000,
	})
	if err != nil {
		return stats, err
	}

	ordered, err := resolver.TopoOrderStrict(units)
	if err != nil {
		return stats, err
	}

	if o.opts.DepGraphFile != "" {
		if err := writeDepGraph(o.opts.DepGraphFile, ordered); err != nil {
			return stats, err
		}
		stats.Duration = time.Since(start)
		return stats, nil
	}

	if o.opts.Job {
		if o.opts.Dispatcher == nil {
			return stats, fmt.Errorf("--job requires a configured dispatcher")
		}
		jobs, idx, err := o.opts.Dispatcher.Dispatch(ctx, ordered)
		if err != nil {
			return stats, err
		}
		for _, j := range jobs {
			if j.Status == dispatcher.JobSuccess {
				stats.Success++
			} else {
				stats.Failed++
			}
		}
		o.opts.Logger.Info("dispatch complete: %d succeeded, %d failed", stats.Success, stats.Failed)
		for leaf, roots := range idx {
			fmt.Printf("%s -> %v\n", leaf, roots)
		}
		stats.Duration = time.Since(start)
		return stats, nil
	}

	stats.Total = len(ordered)
	for _, unit := range ordered {
		moduleID := unit.ModuleID.String()
		o.opts.Logger.Info("starting build: %s", moduleID)

		sb, err := o.opts.SandboxFactory()
		if err != nil {
			return stats, err
		}
		if err := sb.Setup(0, o.opts.Cfg.TmpDir, o.opts.Logger); err != nil {
			return stats, err
		}

		unitLog, err := log.NewUnitLogger(o.opts.Cfg.TmpLogDir, unit.EC.Name, unit.EC.FullVersion())
		if err != nil {
			return stats, err
		}

		result := o.pipeline.Run(ctx, unit, sb, env, unitLog, o.opts.Logger)
		unitLog.Close()
		_ = sb.Cleanup()

		if result.Err != nil {
			stats.Failed++
			o.opts.Logger.Error("build failed: %s: %v", moduleID, result.Err)
			if !o.opts.Regtest {
				stats.Duration = time.Since(start)
				return stats, result.Err
			}
			continue
		}

		stats.Success++
		o.opts.Logger.Info("build succeeded: %s", moduleID)

		if o.opts.RepoWriter != nil {
			_ = o.opts.RepoWriter.AddEasyconfig(unit.EC.Path, unit.EC.Name, unit.EC.FullVersion(),
				buildStatFor(result), nil)
		}
	}

	if o.opts.RepoWriter != nil {
		_ = o.opts.RepoWriter.Commit(fmt.Sprintf("run completed: %d succeeded, %d failed", stats.Success, stats.Failed))
	}

	stats.Duration = time.Since(start)
	return stats, nil
}

func buildStatFor(r *pipeline.Result) store.BuildStat {
	return store.BuildStat{Timestamp: time.Now(), Success: r.Err == nil, Duration: r.Duration.String()}
}

// writeDepGraph emits a Graphviz dot representation of the resolved
// Build Units to path, for `--dep-graph` (spec.md §4.10).
func writeDepGraph(path string, units []*resolver.BuildUnit) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	fmt.Fprintln(f, "digraph depgraph {")
	for _, u := range units {
		fmt.Fprintf(f, "  %q;\n", u.ModuleID.String())
		for _, dep := range u.IDependOn {
			fmt.Fprintf(f, "  %q -> %q;\n", u.ModuleID.String(), dep.ModuleID.String())
		}
	}
	fmt.Fprintln(f, "}")
	return nil
}
