package ecmodel

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"easybuild/errs"
)

// Steps is the known pipeline step list, in pipeline order; its names
// are the pipeline's step identifiers, which --stop=<step> matches.
// isKnownStep reports membership, but no caller checks a --stop value
// against this list: an unknown value matches no step and the run goes
// to completion.
var Steps = []string{
	"fetch", "extract", "patch", "prepare", "configure", "build", "test",
	"install", "extensions", "postproc", "sanity", "module", "permsstep",
	"package", "cleanup",
}

func isKnownStep(step string) bool {
	for _, s := range Steps {
		if s == step {
			return true
		}
	}
	return false
}

// Validate enforces required parameters, checksum-length invariants, and
// the toolchain self-reference invariant (spec.md §3). Validation can be
// skipped by the caller for dep-graph dry runs; this method is only
// ever invoked when the caller wants it enforced.
func (e *EC) Validate() error {
	if e.Name == "" {
		return &errs.ValidationError{Path: e.Path, Reason: "missing required parameter 'name'"}
	}
	if e.Version == "" {
		return &errs.ValidationError{Path: e.Path, Reason: "missing required parameter 'version'"}
	}
	if e.Homepage == "" {
		return &errs.ValidationError{Path: e.Path, Reason: "missing required parameter 'homepage'"}
	}
	if e.Description == "" {
		return &errs.ValidationError{Path: e.Path, Reason: "missing required parameter 'description'"}
	}
	if e.Toolchain.Name == "" {
		return &errs.ValidationError{Path: e.Path, Reason: "missing required parameter 'toolchain'"}
	}

	// invariant (a): checksum list length = sources+patches length or empty
	total := len(e.Sources) + len(e.Patches)
	if len(e.Checksums) != 0 && len(e.Checksums) != total {
		return &errs.ValidationError{
			Path: e.Path,
			Reason: fmt.Sprintf("checksums length %d does not match sources+patches length %d",
				len(e.Checksums), total),
		}
	}

	// invariant (d): SYSTEM toolchain never depends on itself
	if e.Toolchain.IsSystem() {
		for _, d := range e.Dependencies {
			if d.Toolchain.IsSystem() && d.Name == e.Name {
				return &errs.ValidationError{Path: e.Path, Reason: "toolchain SYSTEM cannot depend on itself"}
			}
		}
	}

	if e.resolved {
		// dangling templates would have surfaced as TemplateUnresolvedError
		// during GenerateTemplateValues; nothing further to check here.
		_ = e.resolved
	}

	for _, ext := range e.ExtList {
		// invariant (b): extension checksum sub-list length matches its
		// own sub-sources+sub-patches length.
		extTotal := len(ext.Sources) + len(ext.Patches)
		if len(ext.Checksums) != 0 && len(ext.Checksums) != extTotal {
			return &errs.ValidationError{
				Path: ext.Path,
				Reason: fmt.Sprintf("extension %s: checksums length %d does not match sources+patches length %d",
					ext.Name, len(ext.Checksums), extTotal),
			}
		}
	}

	return nil
}

var filenamePolicy = regexp.MustCompile(`^([A-Za-z0-9_.+-]+)-([A-Za-z0-9_.+]+?)(?:-([A-Za-z0-9_.+]+))?(?:-([A-Za-z0-9_.+]+))?\.eb$`)

// VerifyFilename enforces the `name-version[-toolchain][-versionsuffix].eb`
// basename policy (spec.md §4.4 "Filename policy"), active when the
// caller has --verify-easyconfig-filenames enabled.
func (e *EC) VerifyFilename() error {
	base := filepath.Base(e.Path)
	expected := e.Name + "-" + e.FullVersionWithToolchain() + ".eb"
	if base != expected {
		return &errs.ValidationError{
			Path:   e.Path,
			Reason: fmt.Sprintf("filename %q does not match expected %q", base, expected),
		}
	}
	return nil
}

// FullVersionWithToolchain renders "version[-tcname-tcversion][-suffix]",
// the canonical basename stem used by the filename policy and by the
// default module naming scheme.
func (e *EC) FullVersionWithToolchain() string {
	parts := []string{e.Version}
	if !e.Toolchain.IsSystem() {
		parts = append(parts, e.Toolchain.Name+"-"+e.Toolchain.Version)
	}
	stem := strings.Join(parts, "-")
	return stem + e.VersionSuffix
}
