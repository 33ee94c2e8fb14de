package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"easybuild/modulestool"
)

// runPrepare implements PREPARE: snapshot the environment for later
// restoration, load the toolchain and every non-external dependency's
// module, export compiler/linker variables derived from the toolchain,
// and install RPATH wrapper scripts ahead of CONFIGURE (spec.md §4.6
// PREPARE, §9 SUPPLEMENTED FEATURES "RPATH wrapper exact algorithm").
func (r *run) runPrepare(st *StepContext) error {
	r.originalEnv = r.env.Apply()

	var toLoad []modulestool.ModuleID
	if !r.ec.Toolchain.IsSystem() {
		toLoad = append(toLoad, r.ec.Toolchain.Name+"/"+r.ec.Toolchain.Version)
	}
	for _, dep := range r.ec.Dependencies {
		if dep.External {
			continue
		}
		toLoad = append(toLoad, dep.Name+"/"+dep.FullVersion())
	}
	for _, dep := range r.ec.BuildDependencies {
		if dep.External {
			continue
		}
		toLoad = append(toLoad, dep.Name+"/"+dep.FullVersion())
	}

	if len(toLoad) > 0 {
		if err := r.opts.ModulesTool.Load(st.Ctx, toLoad, modulestool.LoadOptions{}); err != nil {
			return err
		}
		for _, id := range toLoad {
			root, found, err := r.opts.ModulesTool.GetSetenvValue(st.Ctx, id, "EBROOT"+EnvVarName(moduleNameOf(id)))
			if err == nil && found {
				r.env.Setvar("EBROOT"+EnvVarName(moduleNameOf(id)), root)
			}
		}
	}

	r.exportToolchainVars()

	if r.opts.Cfg != nil && !r.opts.Cfg.DisableRPath {
		wrapperDir := filepath.Join(r.buildDir, ".rpath-wrappers")
		self, err := os.Executable()
		if err == nil {
			if err := WriteRPathWrappers(wrapperDir, self); err == nil {
				path, _ := r.env.Getvar("PATH")
				r.env.Setvar("PATH", wrapperDir+string(os.PathListSeparator)+path)
			}
		}
	}

	return nil
}

// moduleNameOf splits a "name/version" module ID back to its name.
func moduleNameOf(id modulestool.ModuleID) string {
	for i := 0; i < len(id); i++ {
		if id[i] == '/' {
			return id[:i]
		}
	}
	return id
}

// exportToolchainVars sets the handful of compiler/linker/MPI launcher
// variables every EasyBlock's ConfigureStep/BuildStep relies on,
// following the toolchain-family convention (GCC(core)/iccifort/intel-
// compilers expose gcc-style names; MPI subtoolchains additionally
// expose MPICC/MPICXX/MPIF90).
func (r *run) exportToolchainVars() {
	tc := r.ec.Toolchain
	if tc.IsSystem() {
		return
	}
	switch {
	case tc.Name == "GCCcore" || tc.Name == "GCC":
		r.env.Setvar("CC", "gcc")
		r.env.Setvar("CXX", "g++")
		r.env.Setvar("F90", "gfortran")
		r.env.Setvar("F77", "gfortran")
	case tc.Name == "iccifort" || tc.Name == "intel-compilers":
		r.env.Setvar("CC", "icc")
		r.env.Setvar("CXX", "icpc")
		r.env.Setvar("F90", "ifort")
		r.env.Setvar("F77", "ifort")
	}
	if tc.Name == "gompi" || tc.Name == "iimpi" {
		r.env.Setvar("MPICC", "mpicc")
		r.env.Setvar("MPICXX", "mpicxx")
		r.env.Setvar("MPIF90", "mpif90")
	}
	r.env.Setvar("EASYBUILD_TOOLCHAIN", fmt.Sprintf("%s/%s", tc.Name, tc.Version))
}
