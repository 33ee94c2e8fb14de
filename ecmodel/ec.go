// Package ecmodel implements the easyconfig model and parser (C4): the
// record type for a single installable recipe, its restricted key/value
// file format, deferred templating, validation, and tweaking.
//
// Grounded on the teacher's pkg.Package record (pkg/ports_interface.go)
// generalized from a Makefile-derived port description to an easyconfig
// record, and on config.go's INI-flavoured parsing style for the
// line-oriented reader.
package ecmodel

import "fmt"

// Toolchain names a compiler/MPI/math-library bundle a build is compiled
// against. The sentinel SYSTEM toolchain has Name="system",
// Version="system" and never appears as a dependency of itself.
type Toolchain struct {
	Name    string
	Version string
}

// IsSystem reports whether tc is the SYSTEM sentinel toolchain.
func (tc Toolchain) IsSystem() bool {
	return tc.Name == "system" && tc.Version == "system"
}

func (tc Toolchain) String() string {
	if tc.IsSystem() {
		return "system"
	}
	return fmt.Sprintf("%s-%s", tc.Name, tc.Version)
}

// SystemToolchain is the SYSTEM sentinel: "use whatever the OS provides".
var SystemToolchain = Toolchain{Name: "system", Version: "system"}

// DependencySpec names one dependency entry, which may resolve to a
// built module or to an EXTERNAL_MODULE already present on the system.
type DependencySpec struct {
	Name          string
	Version       string
	Toolchain     Toolchain
	VersionSuffix string
	External      bool // true for EXTERNAL_MODULE dependencies
}

// FullVersion is Version+VersionSuffix, the value used in a Module ID.
func (d DependencySpec) FullVersion() string { return d.Version + d.VersionSuffix }

// ModuleID uniquely identifies a built module within a module tree.
type ModuleID struct {
	Name        string
	FullVersion string
}

func (m ModuleID) String() string { return m.Name + "/" + m.FullVersion }

// Patch describes one patch applied during the PATCH step.
type Patch struct {
	Name        string
	Level       int
	AltLocation string
	SourcePath  string
}

// SanityCheckPaths lists the files/directories the SANITY step requires.
type SanityCheckPaths struct {
	Files []string
	Dirs  []string
}

// EC is the in-memory easyconfig record. Its zero value is a freshly
// parsed, unvalidated, untemplated record; GenerateTemplateValues and
// Validate mutate it toward an immutable-after-validate state (spec.md
// §3 invariant c: templates resolve without dangling variables before
// validation completes).
type EC struct {
	Path string

	Name          string
	Version       string
	VersionSuffix string
	Homepage      string
	Description   string
	Toolchain     Toolchain

	SourceURLs []string
	Sources    []string
	Patches    []Patch
	Checksums  []string

	Dependencies      []DependencySpec
	BuildDependencies []DependencySpec

	ExtList []*EC // extensions, each an EC-like sub-record

	ModuleClass         string
	SanityCheckPaths    SanityCheckPaths
	SanityCheckCommands []string

	EasyBlock string
	Custom    map[string]string

	// raw holds the unexpanded assignment values exactly as parsed,
	// keyed by parameter name, for GenerateTemplateValues to consult.
	raw      map[string]string
	resolved bool
}

// FullVersion is Version+VersionSuffix.
func (e *EC) FullVersion() string { return e.Version + e.VersionSuffix }

// ModuleID is the (name, full_version) pair this EC resolves to under
// the default naming scheme; hierarchical schemes further qualify it
// (see package mns).
func (e *EC) ModuleID() ModuleID {
	return ModuleID{Name: e.Name, FullVersion: e.FullVersion()}
}

// IsResolved reports whether GenerateTemplateValues has run.
func (e *EC) IsResolved() bool { return e.resolved }

// Clone returns a deep-enough copy of e suitable as the basis for Tweak:
// slices are copied so mutating the clone never aliases e.
func (e *EC) Clone() *EC {
	out := *e
	out.SourceURLs = append([]string(nil), e.SourceURLs...)
	out.Sources = append([]string(nil), e.Sources...)
	out.Patches = append([]Patch(nil), e.Patches...)
	out.Checksums = append([]string(nil), e.Checksums...)
	out.Dependencies = append([]DependencySpec(nil), e.Dependencies...)
	out.BuildDependencies = append([]DependencySpec(nil), e.BuildDependencies...)
	out.ExtList = append([]*EC(nil), e.ExtList...)
	out.SanityCheckPaths.Files = append([]string(nil), e.SanityCheckPaths.Files...)
	out.SanityCheckPaths.Dirs = append([]string(nil), e.SanityCheckPaths.Dirs...)
	out.SanityCheckCommands = append([]string(nil), e.SanityCheckCommands...)
	out.Custom = make(map[string]string, len(e.Custom))
	for k, v := range e.Custom {
		out.Custom[k] = v
	}
	out.raw = make(map[string]string, len(e.raw))
	for k, v := range e.raw {
		out.raw[k] = v
	}
	return &out
}
