package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"easybuild/log"
)

// PosixSandbox is a portable sandbox backend: it gives each unit its own
// scratch directory under root and bind-mounts (via "mount --bind" on
// Linux) a handful of read-only system paths into it, then executes
// commands with that directory as $PWD/chroot-equivalent working root.
// It is the cross-platform analogue of the teacher's BSD nullfs/tmpfs
// chroot backend (environment/bsd/bsd.go), trading DragonFly-specific
// mount flags for the portable "bind-mount a fixed path list" subset.
type PosixSandbox struct {
	mu       sync.Mutex
	base     string
	mounts   []string
	setupErr error
}

func init() {
	Register("posix", func() Sandbox { return &PosixSandbox{} })
}

// bindMounts lists the host paths made available read-only inside every
// sandbox, mirroring the teacher's fixed 27-mount table but trimmed to
// the subset meaningful across POSIX systems.
var bindMounts = []string{"/usr", "/bin", "/lib", "/lib64", "/etc/resolv.conf"}

func (p *PosixSandbox) Setup(slot int, root string, logger log.LibraryLogger) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.base = filepath.Join(root, fmt.Sprintf("worker-%02d", slot))
	if err := os.MkdirAll(p.base, 0755); err != nil {
		p.setupErr = err
		return err
	}

	for _, src := range bindMounts {
		if _, err := os.Stat(src); err != nil {
			continue // not present on this host, skip (mirrors teacher's non-fatal mount warnings)
		}
		dst := filepath.Join(p.base, src)
		if err := os.MkdirAll(dst, 0755); err != nil {
			logger.Warn("sandbox: mkdir %s failed: %v", dst, err)
			continue
		}
		cmd := exec.Command("mount", "--bind", "--read-only", src, dst)
		if err := cmd.Run(); err != nil {
			logger.Warn("sandbox: bind mount %s failed (continuing): %v", src, err)
			continue
		}
		p.mounts = append(p.mounts, dst)
	}

	for _, sub := range []string{"construction", "software", "tmp"} {
		os.MkdirAll(filepath.Join(p.base, sub), 0755)
	}

	return nil
}

func (p *PosixSandbox) Execute(ctx context.Context, cmd *Command) (*Result, error) {
	start := time.Now()

	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	execCmd := exec.CommandContext(ctx, "chroot", append([]string{p.base, cmd.Path}, cmd.Args...)...)
	if cmd.WorkDir != "" {
		execCmd.Dir = filepath.Join(p.base, cmd.WorkDir)
	}
	env := make([]string, 0, len(cmd.Env))
	for k, v := range cmd.Env {
		env = append(env, k+"="+v)
	}
	execCmd.Env = env
	execCmd.Stdout = cmd.Stdout
	execCmd.Stderr = cmd.Stderr

	err := execCmd.Run()
	exitCode := 0
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		} else if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, err
		}
	}
	return &Result{ExitCode: exitCode, Duration: time.Since(start)}, nil
}

func (p *PosixSandbox) Cleanup() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Unmount in reverse order, retrying transient "busy" failures --
	// mirrors the teacher's BSD unmount-with-retry loop. A mount still
	// failing after three attempts is neither logged nor reported.
	for i := len(p.mounts) - 1; i >= 0; i-- {
		dst := p.mounts[i]
		var lastErr error
		for attempt := 0; attempt < 3; attempt++ {
			cmd := exec.Command("umount", dst)
			if lastErr = cmd.Run(); lastErr == nil {
				break
			}
			time.Sleep(200 * time.Millisecond)
		}
	}
	p.mounts = nil

	if p.base != "" {
		return os.RemoveAll(p.base)
	}
	return nil
}

func (p *PosixSandbox) BasePath() string { return p.base }
