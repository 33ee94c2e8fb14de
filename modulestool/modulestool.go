// Package modulestool implements the Modules Tool Adapter (C3): the
// layer mediating every interaction with an external environment-modules
// backend (Lmod, Environment-Modules v4+, legacy Tcl modules). It
// abstracts variant differences behind a single interface and caches
// idempotent queries per spec.md §4.3.
//
// Grounded on the teacher's pkg.PortsQuerier interface split
// (pkg/ports_interface.go: a narrow interface plus a concrete adapter
// and a test fixture implementation) and on fsrun.Run for the actual
// child-process protocol.
package modulestool

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"easybuild/envctx"
	"easybuild/errs"
	"easybuild/fsrun"
)

// ModuleID identifies a module within the tree by its full dotted name,
// e.g. "GCC/4.6.3" or "toy/0.0".
type ModuleID = string

// LoadOptions configures Load.
type LoadOptions struct {
	Purge       bool
	InitEnv     map[string]string
	AllowReload bool
}

// Tool is the C3 contract every modules-tool variant implements.
type Tool interface {
	Available(ctx context.Context, prefix string) ([]ModuleID, error)
	Exist(ctx context.Context, names []ModuleID) ([]bool, error)
	Show(ctx context.Context, name ModuleID) (string, error)
	Load(ctx context.Context, names []ModuleID, opts LoadOptions) error
	Unload(ctx context.Context, names []ModuleID) error
	Purge(ctx context.Context) error
	Use(ctx context.Context, path string, priority int) error
	Unuse(ctx context.Context, path string) error
	PrependModulePath(ctx context.Context, path string, priority int) error
	PathToTopOfModuleTree(ctx context.Context, initPaths []string, name ModuleID, fullSubdir string, deps []ModuleID) ([]ModuleID, error)
	ModpathExtensionsFor(ctx context.Context, names []ModuleID) (map[ModuleID][]string, error)
	GetSetenvValue(ctx context.Context, name ModuleID, varName string) (string, bool, error)
}

// variant names the supported modules-tool backends (spec.md §4.3).
type variant int

const (
	variantLmod variant = iota
	variantEnvironmentModulesC
	variantEnvironmentModulesTcl
)

// versionRegexps mirror the per-variant VERSION_REGEXP used to validate
// the backend's --version output before any other command is issued.
var versionRegexps = map[variant]*regexp.Regexp{
	variantLmod:                  regexp.MustCompile(`(?m)^Modules based on Lua:\s+Version\s+(?P<version>\S+)\s`),
	variantEnvironmentModulesC:   regexp.MustCompile(`(?m)^\s*(VERSION\s*=\s*)?(?P<version>\d\S*)\s*`),
	variantEnvironmentModulesTcl: regexp.MustCompile(`(?m)^Modules\s+Release\s+(?P<version>\d[^+\s]*)(\+\S*)?\s`),
}

var minVersions = map[variant]string{
	variantLmod:                  "8.0.0",
	variantEnvironmentModulesC:   "3.2.10",
	variantEnvironmentModulesTcl: "4.3.0",
}

var commandNames = map[variant]string{
	variantLmod:                  "lmod",
	variantEnvironmentModulesC:   "modulecmd",
	variantEnvironmentModulesTcl: "modulecmd.tcl",
}

// stderrErrorLine matches the "<file>:<level>:<code>: <msg>" diagnostic
// lines a modules backend writes to stderr (spec.md §6). Codes 57 and
// 64 are treated as warnings rather than fatal errors.
var stderrErrorLine = regexp.MustCompile(`^\S+:(?P<level>\w+):(?P<code>\d+):\s+(?P<msg>.*)$`)

var availableEntry = regexp.MustCompile(`^(?:[^-\s][^\n]*)?(?P<mod>[^\s(]*[^:/])(?:\((?P<def>default)\))?\s*$`)

var warningCodes = map[string]bool{"57": true, "64": true}

// adapter is the concrete Tool: it shells a modules-tool binary via
// fsrun.Run, evaluates the mini-language of directives it emits against
// an envctx.Manager, and caches Available/Show results per MODULEPATH.
type adapter struct {
	variant variant
	command string

	env *envctx.Manager

	mu            sync.Mutex
	availableCache map[string][]ModuleID
	showCache      map[string]string
}

// New constructs the adapter for the named variant ("Lmod",
// "EnvironmentModulesC", "EnvironmentModulesTcl"), checking the
// backend's reported version against the variant's minimum.
func New(ctx context.Context, name string, env *envctx.Manager) (Tool, error) {
	v, err := parseVariantName(name)
	if err != nil {
		return nil, err
	}

	command := commandNames[v]
	if envOverride, ok := env.Getvar(commandEnvVar(v)); ok && envOverride != "" {
		command = envOverride
	}

	a := &adapter{
		variant:        v,
		command:        command,
		env:            env,
		availableCache: map[string][]ModuleID{},
		showCache:      map[string]string{},
	}

	if err := a.checkVersion(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func commandEnvVar(v variant) string {
	switch v {
	case variantLmod:
		return "LMOD_CMD"
	case variantEnvironmentModulesTcl, variantEnvironmentModulesC:
		return "MODULES_CMD"
	default:
		return ""
	}
}

func parseVariantName(name string) (variant, error) {
	switch name {
	case "Lmod":
		return variantLmod, nil
	case "EnvironmentModulesC":
		return variantEnvironmentModulesC, nil
	case "EnvironmentModulesTcl", "":
		return variantEnvironmentModulesTcl, nil
	default:
		return 0, &errs.ModuleToolError{Op: "new", Code: "unknown-variant", Detail: name}
	}
}

func (a *adapter) checkVersion(ctx context.Context) error {
	result, err := fsrun.Run(ctx, &fsrun.Command{Path: a.command, Args: []string{"--version"}})
	if err != nil {
		return &errs.ModuleToolError{Op: "version-check", Code: "exec-failed", Detail: err.Error()}
	}
	re := versionRegexps[a.variant]
	match := re.FindStringSubmatch(result.Stdout + result.Stderr)
	if match == nil {
		return &errs.ModuleToolError{Op: "version-check", Code: "no-match", Detail: "could not determine version"}
	}
	got := match[re.SubexpIndex("version")]
	gotParts := strings.Split(got, ".")
	for i, minPart := range strings.Split(minVersions[a.variant], ".") {
		var g, m int
		if i < len(gotParts) {
			fmt.Sscanf(gotParts[i], "%d", &g)
		}
		fmt.Sscanf(minPart, "%d", &m)
		if g > m {
			break
		}
		if g < m {
			return &errs.ModuleToolError{Op: "version-check", Code: "too-old", Detail: fmt.Sprintf("version %s is below minimum %s", got, minVersions[a.variant])}
		}
	}
	return nil
}

// runCommand invokes the backend asking for machine-readable output with
// the current environment; LD_LIBRARY_PATH/LD_PRELOAD are not reset to
// their baseline values before the call. Afterwards LD_LIBRARY_PATH is
// the pre-call value merged (deduplicated, pre-call entries first) with
// whatever the backend set, and a non-empty pre-call LD_PRELOAD is put
// back (spec.md §4.3 "LD_* preservation").
func (a *adapter) runCommand(ctx context.Context, args ...string) (*fsrun.Result, error) {
	savedLDPath, _ := a.env.Getvar("LD_LIBRARY_PATH")
	savedLDPreload, _ := a.env.Getvar("LD_PRELOAD")

	cmdlist := append([]string{}, args...)
	var env []string
	for k, v := range a.env.Apply() {
		env = append(env, k+"="+v)
	}
	result, err := fsrun.Run(ctx, &fsrun.Command{
		Path: a.command,
		Args: cmdlist,
		Env:  env,
	})
	if err != nil {
		return nil, &errs.ModuleToolError{Op: strings.Join(args, " "), Code: "exec-failed", Detail: err.Error()}
	}

	if err := a.evaluateDirectives(result.Stdout); err != nil {
		return nil, err
	}

	newLDPath, _ := a.env.Getvar("LD_LIBRARY_PATH")
	merged := envctx.MergeDedupPath(splitColon(savedLDPath), splitColon(newLDPath))
	a.env.Setvar("LD_LIBRARY_PATH", strings.Join(merged, ":"))
	if savedLDPreload != "" {
		a.env.Setvar("LD_PRELOAD", savedLDPreload)
	}

	if err := a.checkStderr(result.Stderr); err != nil {
		return nil, err
	}
	return result, nil
}

func splitColon(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ":")
}

// evaluateDirectives interprets the backend's stdout mini-language: only
// os.environ[k]=v assignments, deletions, and sanctioned path
// manipulations are honoured -- never exec of arbitrary code (spec.md
// §6 "Module tool wire protocol").
func (a *adapter) evaluateDirectives(stdout string) error {
	environKey := func(s string) string {
		s = strings.TrimSpace(s)
		if strings.HasPrefix(s, "os.environ[") && strings.HasSuffix(s, "]") {
			s = strings.Trim(s[len("os.environ["):len(s)-1], `'"`)
		}
		return s
	}
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "source ") {
			continue
		}
		if strings.HasPrefix(line, "unset ") || strings.HasPrefix(line, "del ") {
			a.env.Unsetvar(environKey(line[strings.Index(line, " ")+1:]))
			continue
		}
		if eq := strings.Index(line, "="); eq > 0 {
			key := environKey(line[:eq])
			value := unquoteShell(line[eq+1:])
			a.env.Setvar(key, value)
		}
	}
	return nil
}

func unquoteShell(s string) string {
	s = strings.TrimSuffix(strings.TrimSpace(s), ";")
	s = strings.TrimSuffix(s, "export")
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

func (a *adapter) checkStderr(stderr string) error {
	for _, line := range strings.Split(stderr, "\n") {
		match := stderrErrorLine.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		code := match[2]
		if warningCodes[code] {
			continue
		}
		if strings.EqualFold(match[1], "error") {
			return &errs.ModuleToolError{Op: "module", Code: code, Detail: match[3]}
		}
	}
	return nil
}

func (a *adapter) invalidateCaches() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.availableCache = map[string][]ModuleID{}
	a.showCache = map[string]string{}
}

func (a *adapter) cacheKey() string {
	modulepath, _ := a.env.Getvar("MODULEPATH")
	return modulepath + "|" + a.command
}

func (a *adapter) Available(ctx context.Context, prefix string) ([]ModuleID, error) {
	key := a.cacheKey() + "|" + prefix
	if prefix == "" {
		a.mu.Lock()
		if cached, ok := a.availableCache[key]; ok {
			a.mu.Unlock()
			return cached, nil
		}
		a.mu.Unlock()
	}

	args := []string{"python", "avail"}
	if prefix != "" {
		args = append(args, prefix)
	}
	result, err := a.runCommand(ctx, args...)
	if err != nil {
		return nil, err
	}

	var out []ModuleID
	for _, line := range strings.Split(result.Stderr, "\n") {
		match := availableEntry.FindStringSubmatch(line)
		if match == nil || match[1] == "" {
			continue
		}
		out = append(out, match[1])
	}
	sort.Strings(out)

	if prefix == "" {
		a.mu.Lock()
		a.availableCache[key] = out
		a.mu.Unlock()
	}
	return out, nil
}

// Exist reports, for each name, whether it appears in the cached
// Available("") listing. There is no separate probe per name and
// .modulerc/.modulerc.lua files are not read, so a wrapper or alias is
// found only if the backend lists it in that output.
func (a *adapter) Exist(ctx context.Context, names []ModuleID) ([]bool, error) {
	all, err := a.Available(ctx, "")
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(all))
	for _, m := range all {
		known[m] = true
	}
	out := make([]bool, len(names))
	for i, n := range names {
		out[i] = known[n]
	}
	return out, nil
}

func (a *adapter) Show(ctx context.Context, name ModuleID) (string, error) {
	key := a.cacheKey() + "|show|" + name
	a.mu.Lock()
	if cached, ok := a.showCache[key]; ok {
		a.mu.Unlock()
		return cached, nil
	}
	a.mu.Unlock()

	result, err := a.runCommand(ctx, "python", "show", name)
	if err != nil {
		return "", err
	}
	a.mu.Lock()
	a.showCache[key] = result.Stderr
	a.mu.Unlock()
	return result.Stderr, nil
}

func (a *adapter) Load(ctx context.Context, names []ModuleID, opts LoadOptions) error {
	if opts.Purge {
		if err := a.Purge(ctx); err != nil {
			return err
		}
	}
	for k, v := range opts.InitEnv {
		a.env.Setvar(k, v)
	}
	for _, name := range names {
		if !opts.AllowReload {
			loaded, _ := a.loadedModules(ctx)
			if contains(loaded, name) {
				continue
			}
		}
		if _, err := a.runCommand(ctx, "python", "load", name); err != nil {
			return err
		}
	}
	return nil
}

func (a *adapter) Unload(ctx context.Context, names []ModuleID) error {
	for _, name := range names {
		if _, err := a.runCommand(ctx, "python", "unload", name); err != nil {
			return err
		}
	}
	return nil
}

func (a *adapter) Purge(ctx context.Context) error {
	_, err := a.runCommand(ctx, "python", "purge")
	return err
}

func (a *adapter) Use(ctx context.Context, path string, priority int) error {
	args := []string{"python", "use"}
	if priority != 0 {
		args = append(args, "--priority", fmt.Sprintf("%d", priority))
	}
	args = append(args, path)
	_, err := a.runCommand(ctx, args...)
	if err != nil {
		return err
	}
	a.invalidateCaches()
	return nil
}

func (a *adapter) Unuse(ctx context.Context, path string) error {
	_, err := a.runCommand(ctx, "python", "unuse", path)
	if err != nil {
		return err
	}
	a.invalidateCaches()
	return nil
}

func (a *adapter) PrependModulePath(ctx context.Context, path string, priority int) error {
	return a.Use(ctx, path, priority)
}

// PathToTopOfModuleTree returns nil when fullSubdir is already one of
// initPaths, otherwise the first of deps whose module-use directives add
// fullSubdir to MODULEPATH (spec.md §4.3). Only one level is searched:
// the result holds at most one module, and a subdir reachable only
// through a further module yields an "unreachable" error.
func (a *adapter) PathToTopOfModuleTree(ctx context.Context, initPaths []string, name ModuleID, fullSubdir string, deps []ModuleID) ([]ModuleID, error) {
	for _, p := range initPaths {
		if p == fullSubdir {
			return nil, nil
		}
	}

	extensions, err := a.ModpathExtensionsFor(ctx, deps)
	if err != nil {
		return nil, err
	}
	for _, dep := range deps {
		for _, ext := range extensions[dep] {
			if ext == fullSubdir {
				return []ModuleID{dep}, nil
			}
		}
	}
	return nil, &errs.ModuleToolError{Op: "path-to-top", Code: "unreachable", Detail: fullSubdir}
}

var prependPathRe = regexp.MustCompile(`prepend[-_]path\(?\s*\(?"?MODULEPATH"?,?\s*"?([^")\s]+)"?\)?`)
var moduleUseRe = regexp.MustCompile(`module\s+use\s+(\S+)`)

// ModpathExtensionsFor parses each named module's file text for
// `module use`, `prepend-path MODULEPATH`, and their Lua equivalents,
// expanding $env(X) and os.getenv("X") references along the way;
// `file join` and pathJoin forms are not interpreted (spec.md §4.3, §9
// "Recursive module-file parsing").
func (a *adapter) ModpathExtensionsFor(ctx context.Context, names []ModuleID) (map[ModuleID][]string, error) {
	out := make(map[ModuleID][]string, len(names))
	for _, name := range names {
		text, err := a.Show(ctx, name)
		if err != nil {
			return nil, err
		}
		var paths []string
		for _, re := range []*regexp.Regexp{prependPathRe, moduleUseRe} {
			for _, match := range re.FindAllStringSubmatch(text, -1) {
				paths = append(paths, expandModuleFileExpr(match[1]))
			}
		}
		out[name] = paths
	}
	return out, nil
}

// expandModuleFileExpr replaces each `$env(X)` and `os.getenv("X")`
// reference in expr with that variable's value from the process
// environment, keeping the rest of expr; `file join`/`pathJoin` wrapper
// syntax is returned as written.
func expandModuleFileExpr(expr string) string {
	expr = strings.TrimSpace(expr)
	envRef := regexp.MustCompile(`\$env\(([A-Za-z_][A-Za-z0-9_]*)\)|os\.getenv\("([^"]+)"\)`)
	return envRef.ReplaceAllStringFunc(expr, func(ref string) string {
		m := envRef.FindStringSubmatch(ref)
		return os.Getenv(m[1] + m[2])
	})
}

func (a *adapter) GetSetenvValue(ctx context.Context, name ModuleID, varName string) (string, bool, error) {
	text, err := a.Show(ctx, name)
	if err != nil {
		return "", false, err
	}
	re := regexp.MustCompile(`setenv\s+` + regexp.QuoteMeta(varName) + `\s+(\S+)`)
	match := re.FindStringSubmatch(text)
	if match == nil {
		return "", false, nil
	}
	return strings.Trim(match[1], `"`), true, nil
}

func (a *adapter) loadedModules(ctx context.Context) ([]ModuleID, error) {
	loadedEnv, _ := a.env.Getvar("LOADEDMODULES")
	if loadedEnv == "" {
		return nil, nil
	}
	return strings.Split(loadedEnv, ":"), nil
}

func contains(list []ModuleID, name ModuleID) bool {
	for _, m := range list {
		if m == name {
			return true
		}
	}
	return false
}
