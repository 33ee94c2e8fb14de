// Package config loads and validates the engine-wide configuration: install
// paths, robot search paths, worker/parallelism settings, and the behavior
// flags enumerated in spec.md §6. A subset of these options can also be
// set through EASYBUILD_* environment variables (see applyEnv).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
	"gopkg.in/ini.v1"
)

// Config holds all engine-wide configuration.
type Config struct {
	// Paths
	ConfigPath      string
	RobotPaths      []string // ordered search paths for missing easyconfigs
	RepositoryPath  string
	BuildPath       string
	SourcePath      string
	InstallPath     string
	ModulesPath     string // <installpath>/modules
	SoftwarePath    string // <installpath>/software
	TmpDir          string
	TmpLogDir       string
	ExternalModulesMetadataPaths []string

	// Build settings
	MaxWorkers int
	Parallel   int

	// Modules tool
	ModulesTool          string // "Lmod", "EnvironmentModulesC", "EnvironmentModulesTcl"
	ModuleNamingScheme   string // "EasyBuildMNS", "HierarchicalMNS", "CategorizedHMNS"
	ModuleSyntax         string // "Tcl" or "Lua"
	AllowModulesToolMismatch bool
	SetDefaultModule     bool
	RecursiveModuleUnload bool
	ModuleDependsOn      bool

	// Behavior flags (spec.md §6 CLI surface)
	Robot                     bool
	Force                     bool
	Rebuild                   bool
	Fetch                     bool
	ForceDownload             bool
	DryRun                    bool
	DryRunShort               bool
	MissingModules            bool
	ExtendedDryRun            bool
	IgnoreTestFailure         bool
	SkipTestStep              bool
	Skip                      bool
	StopStep                  string
	OnlyBlocks                []string
	HideDeps                  []string
	FilterDeps                []string
	HideToolchains            []string
	MinimalToolchains         bool
	MapToolchains             bool
	TryToolchainName          string
	TryToolchainVersion       string
	TrySoftwareName           string
	TrySoftwareVersion        string
	TryAmend                  map[string][]string
	TryUpdateDeps             bool
	TryIgnoreVersionsuffixes  bool
	DepGraphFile              string
	Job                       bool
	CleanupTmpdir             bool
	CleanupBuilddir           bool
	DisableCleanupBuilddir    bool
	IgnoreOsDeps              bool
	IgnoreLocks               bool
	VerifyEasyconfigFilenames bool
	SanityCheckOnly           bool
	SkipExtensions            bool
	EnforceChecksums          bool
	InjectChecksums           string // "", "md5", "sha256"
	InjectChecksumsToJSON     bool
	AcceptEulaFor             []string
	AllowLoadedModules        []string
	DetectLoadedModules       string // error|ignore|purge|unload|warn
	CheckEbrootEnvVars        string // error|ignore|unset|warn
	Sysroot                   string
	FilterEnvVars             []string
	FixedInstalldirNamingScheme bool
	ZipLogs                  string // "", "gzip", "bzip2"
	Trace                    bool
	DisableRPath              bool
	AllowUseAsRootAndAcceptConsequences bool
	Regtest                   bool

	// Profile (selected INI section)
	Profile string
}

// Default returns a Config populated with the engine's built-in defaults,
// mirroring the teacher's LoadConfig default block.
func Default() *Config {
	cfg := &Config{
		MaxWorkers:                 runtime.NumCPU(),
		Parallel:                   runtime.NumCPU(),
		ModulesTool:                "EnvironmentModulesTcl",
		ModuleNamingScheme:         "EasyBuildMNS",
		ModuleSyntax:               "Tcl",
		FixedInstalldirNamingScheme: true,
		TryAmend:                   map[string][]string{},
	}
	if cfg.MaxWorkers < 1 {
		cfg.MaxWorkers = 1
	}
	return cfg
}

// Load reads configuration from an INI file (if present), then applies
// the EASYBUILD_* environment overrides that applyEnv recognizes; an
// option with no entry there has no environment override. configFile
// may be empty, in which case only built-in
// defaults and environment variables apply.
func Load(configFile, profile string) (*Config, error) {
	cfg := Default()
	cfg.Profile = profile

	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			cfg.ConfigPath = configFile
			if err := cfg.parseINI(configFile); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", configFile, err)
			}
		}
	}

	cfg.applyEnv()
	cfg.applyDefaultPaths()
	return cfg, nil
}

// parseINI loads values from the [config] section (or [<profile>] if a
// profile is selected) using gopkg.in/ini.v1.
func (cfg *Config) parseINI(filename string) error {
	f, err := ini.Load(filename)
	if err != nil {
		return err
	}

	section := f.Section("config")
	if cfg.Profile != "" && f.HasSection(cfg.Profile) {
		section = f.Section(cfg.Profile)
	}

	if v := section.Key("robot-paths").String(); v != "" {
		cfg.RobotPaths = splitList(v)
	}
	if v := section.Key("repositorypath").String(); v != "" {
		cfg.RepositoryPath = v
	}
	if v := section.Key("buildpath").String(); v != "" {
		cfg.BuildPath = v
	}
	if v := section.Key("sourcepath").String(); v != "" {
		cfg.SourcePath = v
	}
	if v := section.Key("installpath").String(); v != "" {
		cfg.InstallPath = v
	}
	if v := section.Key("tmpdir").String(); v != "" {
		cfg.TmpDir = v
	}
	if v := section.Key("tmp-logdir").String(); v != "" {
		cfg.TmpLogDir = v
	}
	if n, err := section.Key("parallel").Int(); err == nil && n > 0 {
		cfg.Parallel = n
		cfg.MaxWorkers = n
	}
	if v := section.Key("modules-tool").String(); v != "" {
		cfg.ModulesTool = v
	}
	if v := section.Key("module-naming-scheme").String(); v != "" {
		cfg.ModuleNamingScheme = v
	}
	if v := section.Key("module-syntax").String(); v != "" {
		cfg.ModuleSyntax = v
	}
	if v := section.Key("external-modules-metadata").String(); v != "" {
		cfg.ExternalModulesMetadataPaths = splitList(v)
	}
	return nil
}

// ebEnv returns the EASYBUILD_<NAME> environment value for name.
func ebEnv(name string) (string, bool) {
	return os.LookupEnv("EASYBUILD_" + strings.ToUpper(name))
}

func (cfg *Config) applyEnv() {
	if v, ok := ebEnv("ROBOT_PATHS"); ok {
		cfg.RobotPaths = splitList(v)
	}
	if v, ok := ebEnv("REPOSITORYPATH"); ok {
		cfg.RepositoryPath = v
	}
	if v, ok := ebEnv("BUILDPATH"); ok {
		cfg.BuildPath = v
	}
	if v, ok := ebEnv("SOURCEPATH"); ok {
		cfg.SourcePath = v
	}
	if v, ok := ebEnv("INSTALLPATH"); ok {
		cfg.InstallPath = v
	}
	if v, ok := ebEnv("TMPDIR"); ok {
		cfg.TmpDir = v
	}
	if v, ok := ebEnv("TMP_LOGDIR"); ok {
		cfg.TmpLogDir = v
	}
	if v, ok := ebEnv("MODULES_TOOL"); ok {
		cfg.ModulesTool = v
	}
	if v, ok := ebEnv("MODULE_NAMING_SCHEME"); ok {
		cfg.ModuleNamingScheme = v
	}
	if v, ok := ebEnv("MODULE_SYNTAX"); ok {
		cfg.ModuleSyntax = v
	}
	if v, ok := ebEnv("PARALLEL"); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Parallel = n
			cfg.MaxWorkers = n
		}
	}
	if v, ok := ebEnv("FORCE"); ok {
		cfg.Force = parseBool(v)
	}
	if v, ok := ebEnv("ROBOT"); ok {
		cfg.Robot = parseBool(v)
	}
	if v, ok := ebEnv("TRACE"); ok {
		cfg.Trace = parseBool(v)
	}
	if v, ok := ebEnv("ENFORCE_CHECKSUMS"); ok {
		cfg.EnforceChecksums = parseBool(v)
	}
	if v, ok := ebEnv("SYSROOT"); ok {
		cfg.Sysroot = v
	}
	if v, ok := ebEnv("ZIP_LOGS"); ok {
		cfg.ZipLogs = v
	}
}

func (cfg *Config) applyDefaultPaths() {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "/root"
	}
	if cfg.InstallPath == "" {
		cfg.InstallPath = filepath.Join(home, ".local", "easybuild")
	}
	if cfg.BuildPath == "" {
		cfg.BuildPath = filepath.Join(cfg.InstallPath, "build")
	}
	if cfg.SourcePath == "" {
		cfg.SourcePath = filepath.Join(cfg.InstallPath, "sources")
	}
	if cfg.RepositoryPath == "" {
		cfg.RepositoryPath = filepath.Join(cfg.InstallPath, "ebfiles_repo")
	}
	if cfg.TmpDir == "" {
		cfg.TmpDir = filepath.Join(os.TempDir(), "eb-tmp")
	}
	if cfg.TmpLogDir == "" {
		cfg.TmpLogDir = cfg.TmpDir
	}
	cfg.ModulesPath = filepath.Join(cfg.InstallPath, "modules")
	cfg.SoftwarePath = filepath.Join(cfg.InstallPath, "software")
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(value string) bool {
	value = strings.ToLower(strings.TrimSpace(value))
	return value == "yes" || value == "true" || value == "1" || value == "on"
}

// Validate checks configuration validity and creates required directories.
func (cfg *Config) Validate() error {
	required := map[string]string{
		"InstallPath":    cfg.InstallPath,
		"BuildPath":      cfg.BuildPath,
		"SourcePath":     cfg.SourcePath,
		"RepositoryPath": cfg.RepositoryPath,
	}
	for name, path := range required {
		if path == "" {
			return fmt.Errorf("%s is not configured", name)
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("%s directory %s cannot be created: %w", name, path, err)
		}
	}
	if cfg.MaxWorkers < 1 {
		return fmt.Errorf("MaxWorkers must be at least 1")
	}
	return nil
}

// IsRoot reports whether the current process is running as the superuser,
// used by the orchestrator (C10) to refuse to run as root unless
// --allow-use-as-root-and-accept-consequences was passed.
func IsRoot() bool {
	return unix.Geteuid() == 0
}

// GetSystemInfo returns basic OS/arch info used for template expansion
// (the %(arch)s / OS_NAME / ARCH constants in the easyconfig templating
// language, spec.md §4.4).
func GetSystemInfo() (osname, osversion, arch string, ncpus int) {
	var utsname unix.Utsname
	if err := unix.Uname(&utsname); err == nil {
		osname = cstr(utsname.Sysname[:])
		osversion = cstr(utsname.Release[:])
		arch = cstr(utsname.Machine[:])
	}
	ncpus = runtime.NumCPU()
	return
}

func cstr(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
