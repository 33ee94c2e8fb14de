package resolver

import (
	"errors"
	"testing"

	"easybuild/ecmodel"
	"easybuild/errs"
)

func newEC(name, version string, deps ...ecmodel.DependencySpec) *ecmodel.EC {
	return &ecmodel.EC{
		Name:         name,
		Version:      version,
		Toolchain:    ecmodel.SystemToolchain,
		Dependencies: deps,
	}
}

func dep(name, version string) ecmodel.DependencySpec {
	return ecmodel.DependencySpec{Name: name, Version: version}
}

func TestResolveOrdersRequestedUnitsAlreadySatisfied(t *testing.T) {
	zlib := newEC("zlib", "1.2.13")
	units, err := Resolve([]*ecmodel.EC{zlib}, nil, Options{MaxIterations: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(units) != 1 || units[0].ModuleID.String() != "zlib/1.2.13" {
		t.Fatalf("unexpected resolve result: %+v", units)
	}
}

func TestResolveFailsWhenDependencyMissingAndNoRobot(t *testing.T) {
	foo := newEC("foo", "1.0", dep("bar", "2.0"))
	_, err := Resolve([]*ecmodel.EC{foo}, nil, Options{MaxIterations: 10})
	if err == nil {
		t.Fatalf("expected an error for an unresolvable dependency")
	}
	var missing *errs.MissingDependenciesError
	if !errors.As(err, &missing) {
		t.Fatalf("expected *errs.MissingDependenciesError, got %T: %v", err, err)
	}
}

func TestResolveWithAlreadyInstalledDependency(t *testing.T) {
	foo := newEC("foo", "1.0", dep("bar", "2.0"))
	available := map[string]bool{"bar/2.0": true}
	units, err := Resolve([]*ecmodel.EC{foo}, available, Options{MaxIterations: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(units) != 1 {
		t.Fatalf("expected only foo to be an unresolved Build Unit, got %d", len(units))
	}
}

func TestResolveForceIgnoresAvailable(t *testing.T) {
	zlib := newEC("zlib", "1.2.13")
	available := map[string]bool{"zlib/1.2.13": true}
	units, err := Resolve([]*ecmodel.EC{zlib}, available, Options{Force: true, MaxIterations: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(units) != 1 {
		t.Fatalf("expected --force to still resolve the requested unit, got %d", len(units))
	}
}

type fakeRobot struct {
	ecs map[string]*ecmodel.EC
}

func (f fakeRobot) Locate(d ecmodel.DependencySpec) (string, bool) {
	_, ok := f.ecs[d.Name+"/"+d.FullVersion()]
	return d.Name + ".eb", ok
}

func TestResolveUsesRobotLocatorForMissingDeps(t *testing.T) {
	// Parse() reads from disk, so this test only exercises the
	// fixed-point loop up to the point robotAdvance calls Parse and
	// fails on a nonexistent path -- verifying the robot path is at
	// least consulted and a parse error (not "missing dependency") is
	// what surfaces.
	foo := newEC("foo", "1.0", dep("bar", "2.0"))
	robot := fakeRobot{ecs: map[string]*ecmodel.EC{"bar/2.0": newEC("bar", "2.0")}}
	_, err := Resolve([]*ecmodel.EC{foo}, nil, Options{Robot: robot, MaxIterations: 10})
	if err == nil {
		t.Fatalf("expected an error since the located path does not exist on disk")
	}
	var missing *errs.MissingDependenciesError
	if errors.As(err, &missing) {
		t.Fatalf("expected a parse error from the nonexistent robot path, not MissingDependenciesError")
	}
}

func TestGetBuildOrderPlacesDependenciesFirst(t *testing.T) {
	bar := &BuildUnit{EC: newEC("bar", "2.0"), ModuleID: newEC("bar", "2.0").ModuleID()}
	foo := &BuildUnit{EC: newEC("foo", "1.0"), ModuleID: newEC("foo", "1.0").ModuleID()}
	foo.IDependOn = []*BuildUnit{bar}
	bar.DependsOnMe = []*BuildUnit{foo}
	bar.DepiDepth = 2
	foo.DepiDepth = 1

	order := GetBuildOrder([]*BuildUnit{foo, bar})
	if len(order) != 2 || order[0] != bar || order[1] != foo {
		t.Fatalf("expected [bar, foo], got %+v", order)
	}
}

func TestResolveDetectsCycleAmongRequestedUnits(t *testing.T) {
	a := newEC("a", "1.0", dep("b", "1.0"))
	b := newEC("b", "1.0", dep("a", "1.0"))

	_, err := Resolve([]*ecmodel.EC{a, b}, nil, Options{MaxIterations: 10})
	if err == nil {
		t.Fatalf("expected an error for a genuine A-deps-B-deps-A cycle")
	}
	var cycle *errs.CycleError
	if !errors.As(err, &cycle) {
		t.Fatalf("expected *errs.CycleError, got %T: %v", err, err)
	}
	if !errors.Is(err, errs.ErrCycleDetected) {
		t.Fatalf("expected errors.Is(err, errs.ErrCycleDetected)")
	}
}

func TestResolveStillReportsMissingDependencyNotCycle(t *testing.T) {
	foo := newEC("foo", "1.0", dep("bar", "2.0"))

	_, err := Resolve([]*ecmodel.EC{foo}, nil, Options{MaxIterations: 10})
	if err == nil {
		t.Fatalf("expected an error for an unresolvable, non-cyclic dependency")
	}
	var missing *errs.MissingDependenciesError
	if !errors.As(err, &missing) {
		t.Fatalf("expected *errs.MissingDependenciesError, got %T: %v", err, err)
	}
	if errors.Is(err, errs.ErrCycleDetected) {
		t.Fatalf("a genuinely missing dependency must not report as a cycle")
	}
}

func TestTopoOrderStrictDetectsCycle(t *testing.T) {
	a := &BuildUnit{EC: newEC("a", "1.0"), ModuleID: newEC("a", "1.0").ModuleID()}
	b := &BuildUnit{EC: newEC("b", "1.0"), ModuleID: newEC("b", "1.0").ModuleID()}
	a.IDependOn = []*BuildUnit{b}
	b.IDependOn = []*BuildUnit{a}
	b.DependsOnMe = []*BuildUnit{a}
	a.DependsOnMe = []*BuildUnit{b}

	_, err := TopoOrderStrict([]*BuildUnit{a, b})
	if err == nil {
		t.Fatalf("expected a cycle error")
	}
	if !errors.Is(err, errs.ErrCycleDetected) {
		t.Fatalf("expected errors.Is(err, errs.ErrCycleDetected)")
	}
}

func TestSubtoolchainMappingNeverMapsUp(t *testing.T) {
	original := ecmodel.Toolchain{Name: "foss", Version: "2023a"}
	target := ecmodel.Toolchain{Name: "GCCcore", Version: "12.3.0"}
	got := mapSubtoolchain(original, target)
	if got != target {
		t.Fatalf("expected mapping down to GCCcore, got %+v", got)
	}

	original2 := ecmodel.Toolchain{Name: "GCCcore", Version: "12.3.0"}
	target2 := ecmodel.Toolchain{Name: "foss", Version: "2023a"}
	got2 := mapSubtoolchain(original2, target2)
	if got2 != original2 {
		t.Fatalf("expected mapSubtoolchain to refuse mapping up, got %+v", got2)
	}
}
