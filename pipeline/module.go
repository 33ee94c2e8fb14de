package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"easybuild/ecmodel"
)

// standardPathVars lists the search-path variables every module prepends
// (spec.md §4.6 MODULE step).
var standardPathVars = []string{
	"PATH", "LD_LIBRARY_PATH", "LIBRARY_PATH", "CPATH", "MANPATH",
	"PKG_CONFIG_PATH", "XDG_DATA_DIRS", "ACLOCAL_PATH", "CMAKE_PREFIX_PATH",
}

var nonIdent = regexp.MustCompile(`[^A-Z0-9_]`)

// EnvVarName uppercases name and replaces non [A-Z0-9_] runes with "_",
// the transform used to derive EBROOT<NAME>/EBVERSION<NAME>/
// EBDEVEL<NAME> (spec.md §6).
func EnvVarName(name string) string {
	return nonIdent.ReplaceAllString(strings.ToUpper(name), "_")
}

// RenderModuleFile produces the module file text for ec in the requested
// syntax ("Tcl" or "Lua"), including EBROOT/EBVERSION, standard path
// prepends, configured header/footer text, and dependency loads guarded
// for --recursive-module-unload (spec.md §4.6 MODULE step).
func RenderModuleFile(ec *ecmodel.EC, installDir, syntax, header, footer string, recursiveUnload bool, dependencies []string) string {
	envName := EnvVarName(ec.Name)
	var b strings.Builder

	switch syntax {
	case "Lua":
		fmt.Fprintf(&b, "-- module file for %s/%s, generated by easybuild\n", ec.Name, ec.FullVersion())
		if header != "" {
			fmt.Fprintf(&b, "%s\n", header)
		}
		fmt.Fprintf(&b, "whatis(\"Description: %s\")\n", ec.Description)
		fmt.Fprintf(&b, "local root = %q\n", installDir)
		fmt.Fprintf(&b, "setenv(\"EBROOT%s\", root)\n", envName)
		fmt.Fprintf(&b, "setenv(\"EBVERSION%s\", %q)\n", envName, ec.FullVersion())
		for _, v := range standardPathVars {
			fmt.Fprintf(&b, "prepend_path(%q, pathJoin(root, %q))\n", v, pathVarSubdir(v))
		}
		for _, dep := range dependencies {
			if recursiveUnload {
				fmt.Fprintf(&b, "if not isloaded(%q) then load(%q) end\n", dep, dep)
			} else {
				fmt.Fprintf(&b, "depends_on(%q)\n", dep)
			}
		}
		if footer != "" {
			fmt.Fprintf(&b, "%s\n", footer)
		}
	default: // "Tcl"
		b.WriteString("#%Module1.0\n")
		fmt.Fprintf(&b, "## module file for %s/%s, generated by easybuild\n", ec.Name, ec.FullVersion())
		if header != "" {
			fmt.Fprintf(&b, "%s\n", header)
		}
		fmt.Fprintf(&b, "proc ModulesHelp { } { puts stderr {%s} }\n", ec.Description)
		fmt.Fprintf(&b, "module-whatis {%s}\n", ec.Description)
		fmt.Fprintf(&b, "set root %s\n", tclQuote(installDir))
		fmt.Fprintf(&b, "setenv EBROOT%s $root\n", envName)
		fmt.Fprintf(&b, "setenv EBVERSION%s %s\n", envName, tclQuote(ec.FullVersion()))
		for _, v := range standardPathVars {
			fmt.Fprintf(&b, "prepend-path %s $root/%s\n", v, pathVarSubdir(v))
		}
		for _, dep := range dependencies {
			if recursiveUnload {
				fmt.Fprintf(&b, "if { ![is-loaded %s] } { module load %s }\n", dep, dep)
			} else {
				fmt.Fprintf(&b, "module load %s\n", dep)
			}
		}
		if footer != "" {
			fmt.Fprintf(&b, "%s\n", footer)
		}
	}
	return b.String()
}

func tclQuote(s string) string { return "{" + s + "}" }

func pathVarSubdir(v string) string {
	switch v {
	case "PATH":
		return "bin"
	case "MANPATH":
		return "share/man"
	case "PKG_CONFIG_PATH":
		return "lib/pkgconfig"
	case "ACLOCAL_PATH":
		return "share/aclocal"
	case "CMAKE_PREFIX_PATH", "XDG_DATA_DIRS":
		return "."
	default:
		return "lib"
	}
}

// WriteModuleFile renders and writes the module file to
// <modulesPath>/<subdir>/<fullVersion>[.lua], creating parent
// directories as needed. Returns the written path.
func WriteModuleFile(ec *ecmodel.EC, modulesPath, subdir, installDir, syntax, header, footer string, recursiveUnload bool, dependencies []string) (string, error) {
	text := RenderModuleFile(ec, installDir, syntax, header, footer, recursiveUnload, dependencies)

	ext := ""
	if syntax == "Lua" {
		ext = ".lua"
	}
	dir := filepath.Join(modulesPath, subdir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, ec.FullVersion()+ext)
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return "", err
	}
	return path, nil
}

// WriteDefaultPointer writes a `.version`/`default` style pointer file
// (--set-default-module, spec.md §4.6) selecting fullVersion as the
// default among the module name's versions.
func WriteDefaultPointer(modulesPath, subdir, syntax, fullVersion string) error {
	dir := filepath.Join(modulesPath, subdir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if syntax == "Lua" {
		content := fmt.Sprintf("default_version(%q)\n", fullVersion)
		return os.WriteFile(filepath.Join(dir, "default"), []byte(content), 0644)
	}
	content := fmt.Sprintf("#%%Module1.0\nset ModulesVersion %q\n", fullVersion)
	return os.WriteFile(filepath.Join(dir, ".version"), []byte(content), 0644)
}
