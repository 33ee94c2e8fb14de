package ecmodel

import (
	"fmt"
	"regexp"
	"runtime"
	"strings"

	"easybuild/errs"
)

var templateRef = regexp.MustCompile(`%\(([a-zA-Z_][a-zA-Z0-9_]*)\)s`)

// GenerateTemplateValues materializes %(name)s-style placeholders in
// Homepage, Description, SourceURLs, Sources, patch names and Custom
// values, then recurses into ExtList. Before this call those fields
// hold their raw parsed form; afterwards reads return expanded values
// (spec.md §4.4 "Expansion is deferred"). Name, Version, VersionSuffix,
// Checksums, Dependencies, SanityCheckPaths and SanityCheckCommands are
// not expanded.
func (e *EC) GenerateTemplateValues() error {
	values := e.templateValues()

	var err error
	e.Homepage, err = expand(e.Homepage, values)
	if err != nil {
		return &errs.TemplateUnresolvedError{Path: e.Path, Variable: err.Error()}
	}
	e.Description, err = expand(e.Description, values)
	if err != nil {
		return &errs.TemplateUnresolvedError{Path: e.Path, Variable: err.Error()}
	}
	for i, u := range e.SourceURLs {
		if e.SourceURLs[i], err = expand(u, values); err != nil {
			return &errs.TemplateUnresolvedError{Path: e.Path, Variable: err.Error()}
		}
	}
	for i, s := range e.Sources {
		if e.Sources[i], err = expand(s, values); err != nil {
			return &errs.TemplateUnresolvedError{Path: e.Path, Variable: err.Error()}
		}
	}
	for i, p := range e.Patches {
		if e.Patches[i].Name, err = expand(p.Name, values); err != nil {
			return &errs.TemplateUnresolvedError{Path: e.Path, Variable: err.Error()}
		}
	}
	for k, v := range e.Custom {
		expanded, err := expand(v, values)
		if err != nil {
			return &errs.TemplateUnresolvedError{Path: e.Path, Variable: err.Error()}
		}
		e.Custom[k] = expanded
	}

	for _, ext := range e.ExtList {
		if err := ext.GenerateTemplateValues(); err != nil {
			return err
		}
	}

	e.resolved = true
	return nil
}

// templateValues builds the standard substitution table: %(name)s,
// %(version)s, %(pyshortver)s, %(arch)s, plus the SOURCE_TAR_GZ /
// OS_NAME / OS_PKG_* constants (spec.md §4.4).
func (e *EC) templateValues() map[string]string {
	values := map[string]string{
		"name":         e.Name,
		"namelower":    strings.ToLower(e.Name),
		"version":      e.Version,
		"versionsuffix": e.VersionSuffix,
		"arch":         goArchToEasyBuild(runtime.GOARCH),
	}
	if parts := strings.SplitN(e.Version, ".", 3); len(parts) >= 2 {
		values["pyshortver"] = parts[0] + "." + parts[1]
	}
	values["source_tar_gz"] = fmt.Sprintf("%s-%s.tar.gz", e.Name, e.Version)
	values["os_name"] = runtime.GOOS
	values["os_pkg_ifunc_name"] = "ifunc"
	return values
}

func goArchToEasyBuild(arch string) string {
	switch arch {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	default:
		return arch
	}
}

// expand substitutes every %(key)s reference in s. An unresolved
// reference (key absent from values) is reported by name so the caller
// can build a TemplateUnresolvedError.
func expand(s string, values map[string]string) (string, error) {
	var outerErr error
	result := templateRef.ReplaceAllStringFunc(s, func(match string) string {
		key := templateRef.FindStringSubmatch(match)[1]
		if v, ok := values[key]; ok {
			return v
		}
		outerErr = fmt.Errorf("%s", key)
		return match
	})
	if outerErr != nil {
		return s, outerErr
	}
	return result, nil
}
