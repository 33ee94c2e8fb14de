package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"easybuild/dispatcher"
	"easybuild/envctx"
	"easybuild/log"
	"easybuild/mns"
	"easybuild/modulestool"
	"easybuild/orchestrator"
	"easybuild/pipeline"
	"easybuild/sandbox"
)

var (
	flagRobot           bool
	flagForce           bool
	flagRebuild         bool
	flagTrace           bool
	flagStopStep        string
	flagSanityCheckOnly bool
	flagSkipExtensions  bool
	flagDepGraph        string
	flagJob             bool
	flagJobCommand      string
	flagRegtest         bool
	flagDashboard       bool
	flagStructuredLog   bool
)

var buildCmd = &cobra.Command{
	Use:   "build [easyconfig...]",
	Short: "Build the named easyconfigs and their dependencies",
	Long:  "Resolves dependencies via the robot search path, runs the FETCH..CLEANUP pipeline for every unit, and generates environment modules.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runBuild,
}

func init() {
	buildCmd.Flags().BoolVar(&flagRobot, "robot", false, "enable robot-path dependency discovery")
	buildCmd.Flags().BoolVar(&flagForce, "force", false, "rebuild even if already installed")
	buildCmd.Flags().BoolVar(&flagRebuild, "rebuild", false, "rebuild the requested easyconfigs even if already installed; unlike --force, installed dependencies still count as available")
	buildCmd.Flags().BoolVar(&flagTrace, "trace", false, "print one line per entered pipeline step")
	buildCmd.Flags().StringVar(&flagStopStep, "stop", "", "stop after the named step")
	buildCmd.Flags().BoolVar(&flagSanityCheckOnly, "sanity-check-only", false, "run only the SANITY step")
	buildCmd.Flags().BoolVar(&flagSkipExtensions, "skip-extensions", false, "skip the EXTENSIONS step")
	buildCmd.Flags().StringVar(&flagDepGraph, "dep-graph", "", "write a dependency graph to this file and exit")
	buildCmd.Flags().BoolVar(&flagJob, "job", false, "dispatch as external batch jobs instead of building in-process")
	buildCmd.Flags().StringVar(&flagJobCommand, "job-command", "eb %(spec)s", "command template submitted per job in --job mode")
	buildCmd.Flags().BoolVar(&flagRegtest, "regtest", false, "continue past failed units/jobs and retry submissions")
	buildCmd.Flags().BoolVar(&flagDashboard, "dashboard", false, "show a live status dashboard while jobs run (--job only)")
	buildCmd.Flags().BoolVar(&flagStructuredLog, "structured-log", false, "emit field-structured run progress via logrus instead of staying silent")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(c *cobra.Command, args []string) error {
	if flagRobot {
		cfg.Robot = true
	}
	if flagForce {
		cfg.Force = true
	}
	if flagRebuild {
		cfg.Rebuild = true
	}
	cfg.Trace = flagTrace
	cfg.StopStep = flagStopStep
	cfg.SanityCheckOnly = flagSanityCheckOnly
	cfg.SkipExtensions = flagSkipExtensions

	mnsScheme, err := mns.New(moduleNamingSchemeKey(cfg.ModuleNamingScheme))
	if err != nil {
		return err
	}

	env := envctx.NewManager(environMap())
	tool, err := modulestool.New(context.Background(), cfg.ModulesTool, env)
	if err != nil {
		return err
	}

	p := pipeline.New(pipeline.Options{
		Cfg:                   cfg,
		ModulesTool:           tool,
		MNS:                   mnsScheme,
		Fetcher:               &pipeline.Fetcher{CacheDir: cfg.SourcePath},
		EnforceChecksums:      cfg.EnforceChecksums,
		StopStep:              cfg.StopStep,
		SanityCheckOnly:       cfg.SanityCheckOnly,
		SkipExtensions:        cfg.SkipExtensions,
		IgnoreTestFailure:     cfg.IgnoreTestFailure,
		IgnoreLocks:           cfg.IgnoreLocks,
		Trace:                 cfg.Trace,
		ModuleSyntax:          cfg.ModuleSyntax,
		RecursiveModuleUnload: cfg.RecursiveModuleUnload,
		SetDefaultModule:      cfg.SetDefaultModule,
		DisableCleanupBuilddir: cfg.DisableCleanupBuilddir,
	})

	var progress log.LibraryLogger = log.NoOpLogger{}
	if flagStructuredLog {
		progress = log.NewStructuredLogger().WithFields(map[string]any{"run": os.Getpid()})
	}

	var disp *dispatcher.Dispatcher
	var dash *dispatcher.Dashboard
	if flagJob {
		disp = dispatcher.New(&subprocessSubmitter{}, dispatcher.CommandTemplate{Template: flagJobCommand})
		disp.Regtest = flagRegtest
		disp.Logger = progress
		if flagDashboard {
			dash = dispatcher.NewDashboard()
			if err := dash.Start(); err != nil {
				return err
			}
			defer dash.Stop()
			disp.Dashboard = dash
		}
	}

	o := orchestrator.New(orchestrator.Options{
		Cfg:         cfg,
		ModulesTool: tool,
		MNS:         mnsScheme,
		DepGraphFile: flagDepGraph,
		Job:          flagJob,
		Dispatcher:   disp,
		Regtest:      flagRegtest,
		Logger:       progress,
		SandboxFactory: func() (sandbox.Sandbox, error) {
			return sandbox.New("posix")
		},
		AlreadyInstalled: map[string]bool{},
	}, p)

	stats, err := o.Run(context.Background(), args)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Total: %d  Success: %d  Failed: %d  Already installed: %d  Duration: %s\n",
		stats.Total, stats.Success, stats.Failed, stats.SkippedPre, stats.Duration)

	if stats.Failed > 0 {
		os.Exit(1)
	}
	return nil
}

func moduleNamingSchemeKey(name string) string {
	switch name {
	case "HierarchicalMNS":
		return "hierarchical"
	case "CategorizedHMNS":
		return "categorized-hierarchical"
	default:
		return "default"
	}
}

func environMap() map[string]string {
	out := map[string]string{}
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				out[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return out
}
