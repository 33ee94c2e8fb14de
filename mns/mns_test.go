package mns

import (
	"testing"

	"easybuild/ecmodel"
)

func ec(name, version string, tc ecmodel.Toolchain, class string) *ecmodel.EC {
	return &ecmodel.EC{Name: name, Version: version, Toolchain: tc, ModuleClass: class}
}

func TestNewUnknownScheme(t *testing.T) {
	if _, err := New("bogus"); err == nil {
		t.Fatalf("expected an error for an unregistered scheme name")
	}
}

func TestNewKnownSchemes(t *testing.T) {
	for _, name := range []string{"default", "hierarchical", "categorized-hierarchical"} {
		if _, err := New(name); err != nil {
			t.Fatalf("New(%q) returned error: %v", name, err)
		}
	}
}

func TestDefaultSchemeFullModuleName(t *testing.T) {
	s := DefaultScheme{}
	e := ec("toy", "0.0", ecmodel.SystemToolchain, "")
	if got, want := s.DetFullModuleName(e), "toy/0.0"; got != want {
		t.Fatalf("DetFullModuleName() = %q, want %q", got, want)
	}
}

func TestDefaultSchemeIsShortModnameFor(t *testing.T) {
	s := DefaultScheme{}
	if !s.IsShortModnameFor("toy/0.0", "toy") {
		t.Fatalf("expected toy/0.0 to report toy as its short name")
	}
	if s.IsShortModnameFor("toy/0.0", "other") {
		t.Fatalf("expected toy/0.0 not to match other")
	}
}

func TestHierarchicalSchemeCoreToolchain(t *testing.T) {
	s := HierarchicalScheme{}
	e := ec("toy", "0.0", ecmodel.SystemToolchain, "")
	if got := s.DetModpathExtensions(e); got != nil {
		t.Fatalf("Core toolchain should not extend MODULEPATH, got %v", got)
	}
}

func TestHierarchicalSchemeCompilerToolchainExtendsModpath(t *testing.T) {
	s := HierarchicalScheme{}
	e := ec("toy", "0.0", ecmodel.Toolchain{Name: "GCCcore", Version: "12.3.0"}, "")
	got := s.DetModpathExtensions(e)
	if len(got) != 1 || got[0] != "Compiler/toy/0.0" {
		t.Fatalf("DetModpathExtensions() = %v, want [Compiler/toy/0.0]", got)
	}
}

func TestHierarchicalSchemeMPIToolchainExtendsModpath(t *testing.T) {
	s := HierarchicalScheme{}
	e := ec("openmpi", "4.1.5", ecmodel.Toolchain{Name: "gompi", Version: "2023a"}, "")
	got := s.DetModpathExtensions(e)
	if len(got) != 1 || got[0] != "MPI/openmpi/4.1.5" {
		t.Fatalf("DetModpathExtensions() = %v, want [MPI/openmpi/4.1.5]", got)
	}
}

func TestCategorizedHierarchicalSchemePrependsClass(t *testing.T) {
	s := CategorizedHierarchicalScheme{}
	e := ec("toy", "0.0", ecmodel.SystemToolchain, "tools")
	if got, want := s.DetFullModuleName(e), "tools/toy/0.0"; got != want {
		t.Fatalf("DetFullModuleName() = %q, want %q", got, want)
	}
}

func TestCategorizedHierarchicalSchemeDefaultsClassToBase(t *testing.T) {
	s := CategorizedHierarchicalScheme{}
	e := ec("toy", "0.0", ecmodel.SystemToolchain, "")
	if got, want := s.DetFullModuleName(e), "base/toy/0.0"; got != want {
		t.Fatalf("DetFullModuleName() = %q, want %q", got, want)
	}
}

func TestCategorizedHierarchicalSchemeIsShortModnameFor(t *testing.T) {
	s := CategorizedHierarchicalScheme{}
	if !s.IsShortModnameFor("tools/toy/0.0", "toy") {
		t.Fatalf("expected tools/toy/0.0 to report toy as its short name")
	}
	if s.IsShortModnameFor("malformed", "toy") {
		t.Fatalf("malformed full name with no class segment should not match")
	}
}
