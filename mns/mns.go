// Package mns implements the Module Naming Scheme abstraction (C8): a
// pluggable function from an easyconfig to a module identifier and
// install subdirectory. Grounded on the teacher's registry-of-backends
// pattern (environment.Register/environment.New, mirrored already in
// package sandbox) generalized to naming schemes instead of execution
// backends.
package mns

import (
	"fmt"
	"strings"

	"easybuild/ecmodel"
)

// Scheme maps easyconfigs to module identifiers and install paths. Each
// scheme must answer deterministically; given the same EC it always
// returns the same values.
type Scheme interface {
	// DetFullModuleName returns the full module name used to load the
	// software, e.g. "toy/0.0", or "tools/toy/0.0" under the categorized
	// scheme.
	DetFullModuleName(ec *ecmodel.EC) string

	// DetInstallSubdir returns the subdirectory under
	// <installpath>/software where this EC installs.
	DetInstallSubdir(ec *ecmodel.EC) string

	// DetModpathExtensions returns the MODULEPATH extensions this
	// module's dependents should `use` once it is loaded (under the
	// hierarchical schemes, a module built with a Compiler- or MPI-class
	// toolchain adds a Compiler/ or MPI/ subdir named after the module
	// itself; a Core module adds nothing).
	DetModpathExtensions(ec *ecmodel.EC) []string

	// IsShortModnameFor reports whether shortName is the bare software
	// name component of fullName under this scheme.
	IsShortModnameFor(fullName, shortName string) bool
}

// Factory constructs a Scheme.
type Factory func() Scheme

var registry = map[string]Factory{}

// Register adds a named scheme to the registry; schemes register
// themselves from an init() function.
func Register(name string, factory Factory) { registry[name] = factory }

// New constructs the named scheme ("default", "hierarchical",
// "categorized-hierarchical").
func New(name string) (Scheme, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown module naming scheme: %s", name)
	}
	return factory(), nil
}

func init() {
	Register("default", func() Scheme { return DefaultScheme{} })
	Register("hierarchical", func() Scheme { return HierarchicalScheme{} })
	Register("categorized-hierarchical", func() Scheme { return CategorizedHierarchicalScheme{} })
}

// DefaultScheme maps ec -> "<name>/<full_version>" with no hierarchy.
type DefaultScheme struct{}

func (DefaultScheme) DetFullModuleName(ec *ecmodel.EC) string {
	return ec.Name + "/" + ec.FullVersion()
}

func (DefaultScheme) DetInstallSubdir(ec *ecmodel.EC) string {
	return ec.Name + "/" + ec.FullVersionWithToolchain()
}

func (DefaultScheme) DetModpathExtensions(ec *ecmodel.EC) []string { return nil }

func (DefaultScheme) IsShortModnameFor(fullName, shortName string) bool {
	idx := strings.LastIndex(fullName, "/")
	if idx < 0 {
		return fullName == shortName
	}
	return fullName[:idx] == shortName
}

// toolchainClass classifies a toolchain as "Core" (system), "Compiler"
// (compiler-only), or "MPI" (compiler+MPI bundle), the three subdir
// kinds the hierarchical scheme distinguishes (spec.md §4.8).
func toolchainClass(tc ecmodel.Toolchain) string {
	if tc.IsSystem() {
		return "Core"
	}
	switch tc.Name {
	case "GCCcore", "GCC", "iccifort", "intel-compilers":
		return "Compiler"
	default:
		return "MPI"
	}
}

// HierarchicalScheme maps ec -> (subdir, short_name) where subdir
// depends on the toolchain class.
type HierarchicalScheme struct{}

func (HierarchicalScheme) subdir(ec *ecmodel.EC) string {
	switch toolchainClass(ec.Toolchain) {
	case "Core":
		return "Core"
	case "Compiler":
		return fmt.Sprintf("Compiler/%s/%s", ec.Toolchain.Name, ec.Toolchain.Version)
	default:
		return fmt.Sprintf("MPI/%s/%s", ec.Toolchain.Name, ec.Toolchain.Version)
	}
}

func (h HierarchicalScheme) DetFullModuleName(ec *ecmodel.EC) string {
	return ec.Name + "/" + ec.FullVersion()
}

func (h HierarchicalScheme) DetInstallSubdir(ec *ecmodel.EC) string {
	return ec.Name + "/" + ec.FullVersionWithToolchain()
}

func (h HierarchicalScheme) DetModpathExtensions(ec *ecmodel.EC) []string {
	switch toolchainClass(ec.Toolchain) {
	case "Compiler":
		return []string{fmt.Sprintf("Compiler/%s/%s", ec.Name, ec.FullVersion())}
	case "MPI":
		return []string{fmt.Sprintf("MPI/%s/%s", ec.Name, ec.FullVersion())}
	default:
		return nil
	}
}

func (h HierarchicalScheme) IsShortModnameFor(fullName, shortName string) bool {
	return DefaultScheme{}.IsShortModnameFor(fullName, shortName)
}

// CategorizedHierarchicalScheme further inserts a module-class segment
// ahead of the hierarchical subdir.
type CategorizedHierarchicalScheme struct{}

func (c CategorizedHierarchicalScheme) DetFullModuleName(ec *ecmodel.EC) string {
	class := ec.ModuleClass
	if class == "" {
		class = "base"
	}
	return class + "/" + ec.Name + "/" + ec.FullVersion()
}

func (c CategorizedHierarchicalScheme) DetInstallSubdir(ec *ecmodel.EC) string {
	return ec.Name + "/" + ec.FullVersionWithToolchain()
}

func (c CategorizedHierarchicalScheme) DetModpathExtensions(ec *ecmodel.EC) []string {
	return HierarchicalScheme{}.DetModpathExtensions(ec)
}

func (c CategorizedHierarchicalScheme) IsShortModnameFor(fullName, shortName string) bool {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 {
		return false
	}
	return DefaultScheme{}.IsShortModnameFor(parts[1], shortName)
}
