package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"easybuild/config"
)

func TestRunRefusesAsRootWithoutOverride(t *testing.T) {
	if !rootForTest() {
		t.Skip("test only meaningful when running as root")
	}

	cfg := config.Default()
	cfg.AllowUseAsRootAndAcceptConsequences = false

	o := New(Options{Cfg: cfg}, nil)
	_, err := o.Run(context.Background(), nil)
	if err != ErrRefusedAsRoot {
		t.Fatalf("expected ErrRefusedAsRoot, got %v", err)
	}
}

// rootForTest mirrors config.IsRoot's euid check using os.Geteuid; this
// test only exercises the guard when it would actually trigger.
func rootForTest() bool { return os.Geteuid() == 0 }

func TestWriteDepGraphProducesDotFile(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "deps.dot")

	if err := writeDepGraph(out, nil); err != nil {
		t.Fatalf("writeDepGraph: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty dot file")
	}
}
