package pipeline

import (
	"context"
	"fmt"

	"easybuild/ecmodel"
	"easybuild/envctx"
	"easybuild/log"
	"easybuild/sandbox"
)

// StepContext is threaded through every pipeline step and into the
// delegated EasyBlock CONFIGURE/BUILD/TEST/INSTALL methods (spec.md §9
// "Environment proxy": an explicit Env value rather than a mutated
// process environment).
type StepContext struct {
	Ctx context.Context

	EC  *ecmodel.EC
	Env *envctx.Manager

	Sandbox  sandbox.Sandbox
	UnitLog  *log.UnitLogger
	Progress log.LibraryLogger

	BuildDir   string
	StartDir   string // descendant of BuildDir (spec.md §8 invariant 3), or equal under build_in_installdir
	InstallDir string

	// Parallel is the teacher-equivalent of "parallel make" worker hint;
	// the engine sets it and never introspects a concrete easyblock's
	// own scheduling (spec.md §5).
	Parallel int

	Trace bool
}

// RunInBuildDir runs name/args inside the sandbox, rooted at StartDir,
// with the current environment, streaming output to the unit log.
// Non-zero exit is reported as a *fsrunCommandFailed, which carries the
// exit code but no captured stderr.
func (c *StepContext) RunInBuildDir(name string, args ...string) error {
	return c.run(c.StartDir, name, args...)
}

// RunInInstallDir is RunInBuildDir but rooted at InstallDir, used by
// steps that must act post-install (e.g. sanity check commands).
func (c *StepContext) RunInInstallDir(name string, args ...string) error {
	return c.run(c.InstallDir, name, args...)
}

func (c *StepContext) run(dir, name string, args ...string) error {
	if c.Trace {
		c.Progress.Info("trace: running %s %v in %s", name, args, dir)
	}
	cmd := &sandbox.Command{
		Path:    name,
		Args:    args,
		WorkDir: dir,
		Env:     c.Env.Apply(),
		Stdout:  c.UnitLog,
		Stderr:  c.UnitLog,
	}
	if c.UnitLog != nil {
		c.UnitLog.WriteCommand(fmt.Sprintf("%s %v (in %s)", name, args, dir))
	}
	result, err := c.Sandbox.Execute(c.Ctx, cmd)
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return &fsrunCommandFailed{name: name, args: args, exitCode: result.ExitCode}
	}
	return nil
}

// fsrunCommandFailed mirrors errs.CommandFailedError's shape without
// requiring a captured stderr buffer (the sandbox streams straight to
// the unit log instead of buffering, unlike fsrun.Run).
type fsrunCommandFailed struct {
	name     string
	args     []string
	exitCode int
}

func (e *fsrunCommandFailed) Error() string {
	return fmt.Sprintf("command failed (exit %d): %s %v", e.exitCode, e.name, e.args)
}
