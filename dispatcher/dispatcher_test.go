package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"easybuild/ecmodel"
	"easybuild/resolver"
)

// fakeSubmitter completes every submitted job immediately and
// successfully, except that submitting a spec path listed in fail
// returns an error; it records the spec path of each accepted
// submission -- grounded
// on the teacher's environment.MockEnvironment call-recording pattern
// (environment/mock.go).
type fakeSubmitter struct {
	mu       sync.Mutex
	n        int
	fail     map[string]bool // spec path -> force failure
	submits  []string
}

func newFakeSubmitter() *fakeSubmitter { return &fakeSubmitter{fail: map[string]bool{}} }

func (f *fakeSubmitter) Submit(ctx context.Context, spec, command string, dependsOn []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[spec] {
		return "", fmt.Errorf("forced failure for %s", spec)
	}
	f.n++
	handle := fmt.Sprintf("job-%d", f.n)
	f.submits = append(f.submits, spec)
	return handle, nil
}

func (f *fakeSubmitter) Wait(ctx context.Context, handle string) (bool, error) {
	return true, nil
}

func unit(name, version string, deps ...*resolver.BuildUnit) *resolver.BuildUnit {
	ec := &ecmodel.EC{Path: name + ".eb", Name: name, Version: version}
	u := &resolver.BuildUnit{EC: ec, ModuleID: ec.ModuleID()}
	u.IDependOn = append(u.IDependOn, deps...)
	return u
}

func TestDispatchWiresDependencyEdges(t *testing.T) {
	base := unit("zlib", "1.2")
	top := unit("app", "1.0", base)

	sub := newFakeSubmitter()
	d := New(sub, CommandTemplate{Template: "eb %(spec)s --robot"})

	jobs, idx, err := d.Dispatch(context.Background(), []*resolver.BuildUnit{base, top})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	for _, j := range jobs {
		if j.Status != JobSuccess {
			t.Errorf("job %s: expected success, got %s", j.ModuleID, j.Status)
		}
	}

	topJob := jobs[1]
	if len(topJob.DependsOn) != 1 {
		t.Fatalf("expected top unit's job to depend on exactly one job, got %v", topJob.DependsOn)
	}

	if len(idx) != 1 {
		t.Fatalf("expected one leaf in run index, got %d", len(idx))
	}
	for leaf, roots := range idx {
		if leaf != topJob.Handle {
			t.Errorf("expected leaf %s, got %s", topJob.Handle, leaf)
		}
		if len(roots) != 1 || roots[0] != jobs[0].Handle {
			t.Errorf("expected roots [%s], got %v", jobs[0].Handle, roots)
		}
	}
}

func TestDispatchSkipsJobsWithFailedDependency(t *testing.T) {
	base := unit("zlib", "1.2")
	top := unit("app", "1.0", base)

	sub := newFakeSubmitter()
	sub.fail["zlib.eb"] = true
	d := New(sub, CommandTemplate{Template: "eb %(spec)s --robot"})

	jobs, _, err := d.Dispatch(context.Background(), []*resolver.BuildUnit{base, top})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if jobs[0].Status != JobFailed {
		t.Fatalf("expected zlib job to fail, got %s", jobs[0].Status)
	}
	if jobs[1].Status != JobFailed {
		t.Fatalf("expected app job to be marked failed without submission, got %s", jobs[1].Status)
	}
}

func TestCommandTemplateRender(t *testing.T) {
	tmpl := CommandTemplate{Template: "eb %(spec)s --robot"}
	got := tmpl.Render("toy-0.0.eb")
	want := "eb toy-0.0.eb --robot"
	if got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
}
