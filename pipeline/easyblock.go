// Package pipeline implements the EasyBlock build-step pipeline (C6):
// the per-Build-Unit state machine FETCH..DONE/FAILED/STOPPED that
// fetches sources, extracts and patches them, sandboxes a dependency
// environment, delegates CONFIGURE/BUILD/TEST/INSTALL to a pluggable
// EasyBlock implementation, installs extensions, verifies sanity, and
// renders the produced module file.
//
// Grounded on the teacher's build.DoBuild/buildPackage/executePhase
// (build/build.go, build/phases.go): the same per-unit lifecycle (UUID,
// record open, sequential phases, record close, CRC-style
// before/after), generalized from a fixed ports-tree phase list to the
// spec's named pipeline steps, and on the "dynamic class dispatch"
// design note (spec.md §9): a registry of named constructors replacing
// Python's class-name lookup, behind a small capability interface.
package pipeline

import (
	"fmt"
	"strings"
)

// EasyBlock is the capability interface a concrete build recipe
// implements for the four steps spec.md §4.6 delegates away from the
// engine. The base contract: each step either completes or returns an
// error; it takes no arguments beyond the StepContext threading
// everything it might need (sandbox, environment, EC, directories).
type EasyBlock interface {
	ConfigureStep(ctx *StepContext) error
	BuildStep(ctx *StepContext) error
	TestStep(ctx *StepContext) error
	InstallStep(ctx *StepContext) error
}

// Constructor builds a fresh EasyBlock instance for one Build Unit.
type Constructor func() EasyBlock

var registry = map[string]Constructor{}

// RegisterEasyBlock adds a named easyblock constructor to the registry.
// Concrete easyblocks (out of scope for this specification, per spec.md
// §1) register themselves from an init() function; --include-easyblocks
// plugin loading (spec.md §9) is a thin wrapper around the same call.
func RegisterEasyBlock(name string, ctor Constructor) { registry[name] = ctor }

func init() {
	RegisterEasyBlock("EB_ConfigureMake", func() EasyBlock { return &ConfigureMakeBlock{} })
}

// EncodeEasyBlockName applies the spec's "-" -> "_minus_", "+" ->
// "_plus_" rules (plus "." -> "_dot_") (spec.md §4.6 "Name encoding") so `name matching
// EB_<encoded-name>` can look a software name up in the registry.
func EncodeEasyBlockName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch r {
		case '-':
			b.WriteString("_minus_")
		case '+':
			b.WriteString("_plus_")
		case '.':
			b.WriteString("_dot_")
		default:
			b.WriteRune(r)
		}
	}
	return "EB_" + b.String()
}

// Resolve selects the EasyBlock for a unit: (a) explicit `easyblock =`
// identifier from the EC, (b) `EB_<encoded-name>` match, or (c) the
// generic ConfigureMake fallback (spec.md §4.6).
func Resolve(explicitEasyblock, softwareName string) (EasyBlock, error) {
	if explicitEasyblock != "" {
		ctor, ok := registry[explicitEasyblock]
		if !ok {
			return nil, fmt.Errorf("unknown easyblock %q", explicitEasyblock)
		}
		return ctor(), nil
	}
	if ctor, ok := registry[EncodeEasyBlockName(softwareName)]; ok {
		return ctor(), nil
	}
	return registry["EB_ConfigureMake"](), nil
}

// ConfigureMakeBlock is the generic fallback easyblock: the familiar
// `./configure && make && make install` recipe, grounded on the
// teacher's make-driven executePhase (build/phases.go) generalized from
// the BSD ports `make -C <portdir> <phase>` convention to a source-tree
// configure/build/install convention.
type ConfigureMakeBlock struct {
	ConfigureOptsExtra string
	BuildOptsExtra     string
	InstallOptsExtra   string
}

func (b *ConfigureMakeBlock) ConfigureStep(ctx *StepContext) error {
	args := []string{"--prefix=" + ctx.InstallDir}
	if b.ConfigureOptsExtra != "" {
		args = append(args, strings.Fields(b.ConfigureOptsExtra)...)
	}
	return ctx.RunInBuildDir("./configure", args...)
}

func (b *ConfigureMakeBlock) BuildStep(ctx *StepContext) error {
	args := []string{}
	if b.BuildOptsExtra != "" {
		args = append(args, strings.Fields(b.BuildOptsExtra)...)
	}
	return ctx.RunInBuildDir("make", args...)
}

func (b *ConfigureMakeBlock) TestStep(ctx *StepContext) error {
	return ctx.RunInBuildDir("make", "test")
}

func (b *ConfigureMakeBlock) InstallStep(ctx *StepContext) error {
	args := []string{"install"}
	if b.InstallOptsExtra != "" {
		args = append(args, strings.Fields(b.InstallOptsExtra)...)
	}
	return ctx.RunInBuildDir("make", args...)
}
