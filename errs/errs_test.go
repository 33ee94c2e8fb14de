package errs

import (
	"errors"
	"testing"
)

func TestCycleErrorUnwrapsToSentinel(t *testing.T) {
	err := &CycleError{TotalPackages: 5, OrderedPackages: 3, Remaining: []string{"a/1", "b/2"}}
	if !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("expected errors.Is(err, ErrCycleDetected) to be true")
	}

	var ce *CycleError
	if !errors.As(err, &ce) {
		t.Fatalf("expected errors.As to recover *CycleError")
	}
	if ce.OrderedPackages != 3 {
		t.Fatalf("OrderedPackages = %d, want 3", ce.OrderedPackages)
	}
}

func TestLockHeldErrorUnwrapsToSentinel(t *testing.T) {
	err := &LockHeldError{Path: "/opt/software/.locks/foo-1.0.lock"}
	if !errors.Is(err, ErrLockHeld) {
		t.Fatalf("expected errors.Is(err, ErrLockHeld) to be true")
	}
}

func TestTimeoutExceededErrorUnwrapsToSentinel(t *testing.T) {
	err := &TimeoutExceededError{Command: "make", Kind: "inactivity"}
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected errors.Is(err, ErrTimeout) to be true")
	}
	if got := err.Error(); got == "" {
		t.Fatalf("expected non-empty error message")
	}
}

func TestParseErrorUnwrap(t *testing.T) {
	inner := errors.New("unexpected token")
	err := &ParseError{Path: "foo-1.0.eb", Err: inner}
	if !errors.Is(err, inner) {
		t.Fatalf("expected errors.Is to find the wrapped inner error")
	}
}

func TestIOFailedErrorUnwrap(t *testing.T) {
	inner := errors.New("permission denied")
	err := &IOFailedError{Op: "mkdir", Path: "/opt/software", Err: inner}
	if !errors.Is(err, inner) {
		t.Fatalf("expected errors.Is to find the wrapped inner error")
	}
}

func TestChecksumMismatchErrorMessage(t *testing.T) {
	err := &ChecksumMismatchError{Path: "foo-1.0.tar.gz", Expected: "aaa", Actual: "bbb"}
	msg := err.Error()
	if msg == "" {
		t.Fatalf("expected non-empty message")
	}
}
