package sandbox

import (
	"context"
	"sync"
	"time"

	"easybuild/log"
)

// MockSandbox is a test implementation of Sandbox: it records every call
// and returns a configurable result, with no actual isolation, grounded
// on the teacher's environment.MockEnvironment.
type MockSandbox struct {
	mu sync.Mutex

	SetupCalled bool
	SetupSlot   int
	SetupError  error

	ExecuteCalls  []*Command
	ExecuteResult *Result
	ExecuteError  error

	CleanupCalled bool
	CleanupError  error

	Base string
}

func init() {
	Register("mock", func() Sandbox {
		return &MockSandbox{Base: "/mock/base", ExecuteResult: &Result{ExitCode: 0}}
	})
}

func (m *MockSandbox) Setup(slot int, root string, logger log.LibraryLogger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SetupCalled = true
	m.SetupSlot = slot
	return m.SetupError
}

func (m *MockSandbox) Execute(ctx context.Context, cmd *Command) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ExecuteCalls = append(m.ExecuteCalls, cmd)

	select {
	case <-ctx.Done():
		return &Result{ExitCode: -1}, ctx.Err()
	default:
	}

	if m.ExecuteError != nil {
		return nil, m.ExecuteError
	}
	result := *m.ExecuteResult
	result.Duration = time.Millisecond
	return &result, nil
}

func (m *MockSandbox) Cleanup() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CleanupCalled = true
	return m.CleanupError
}

func (m *MockSandbox) BasePath() string { return m.Base }

// CallCount returns how many times Execute was invoked, used by tests.
func (m *MockSandbox) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ExecuteCalls)
}
