// Package sandbox provides the isolated-execution backend used by the
// EasyBlock pipeline's PREPARE..CLEANUP span (spec.md §4.1/§4.6). It is
// grounded directly on the teacher's environment.Environment interface
// (environment/environment.go): Setup/Execute/Cleanup/GetBasePath, with
// the same lifecycle and the same "non-zero exit is not an error"
// contract, generalized from the teacher's BSD-chroot-specific backend
// ("bsd") to a portable set of backends ("posix" bind-mount sandbox,
// "mock" for tests).
package sandbox

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"easybuild/log"
)

// Sandbox provides isolated execution for a single Build Unit's pipeline
// steps. Implementations must handle directory creation/cleanup,
// filesystem isolation, and resource cleanup even if Setup fails.
//
// Lifecycle: New() -> Setup() -> Execute() (many times) -> Cleanup().
// Cleanup must be idempotent and must succeed even if Setup failed or
// was never called.
type Sandbox interface {
	// Setup prepares the sandbox for the given unit slot (the
	// orchestrator's sequential build loop passes 0).
	Setup(slot int, root string, logger log.LibraryLogger) error

	// Execute runs cmd inside the sandbox. Returns a non-nil error only
	// when the command could not be executed (sandboxing itself
	// failed, timed out, or was cancelled) -- a non-zero exit is
	// reported via Result.ExitCode, not err.
	Execute(ctx context.Context, cmd *Command) (*Result, error)

	// Cleanup tears down the sandbox. Safe to call multiple times and
	// even when Setup was never called or failed.
	Cleanup() error

	// BasePath returns the sandbox's root directory.
	BasePath() string
}

// Command describes a command to run inside a Sandbox. Paths are
// relative to the sandbox root.
type Command struct {
	Path    string
	Args    []string
	WorkDir string
	Env     map[string]string
	Stdout  io.Writer
	Stderr  io.Writer
	Timeout time.Duration
}

// Result is the outcome of Sandbox.Execute.
type Result struct {
	ExitCode int
	Duration time.Duration
}

// Factory constructs a new, not-yet-set-up Sandbox of a given backend.
type Factory func() Sandbox

var (
	registryMu sync.Mutex
	registry   = map[string]Factory{}
)

// Register adds a named backend to the registry. Backends register
// themselves from an init() function, mirroring the teacher's
// environment.Register pattern.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// New constructs a Sandbox for the named backend ("posix" or "mock").
func New(name string) (Sandbox, error) {
	registryMu.Lock()
	factory, ok := registry[name]
	registryMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown sandbox backend: %s", name)
	}
	return factory(), nil
}
