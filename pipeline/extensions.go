package pipeline

import (
	"os"
	"path/filepath"
)

// runExtensions implements EXTENSIONS: each declared extension is its
// own miniature fetch/extract/configure/build/install cycle, resolved
// to its own EasyBlock (defaulting to the parent's when unset) and
// installed into the already-populated install directory (spec.md §4.6
// EXTENSIONS, §9 SUPPLEMENTED FEATURES "extension sub-pipeline").
func (r *run) runExtensions(st *StepContext, parentBlock EasyBlock) error {
	for _, ext := range r.ec.ExtList {
		extDir := filepath.Join(r.buildDir, "easybuild_ext", ext.Name+"-"+ext.FullVersion())
		if err := os.MkdirAll(extDir, 0755); err != nil {
			return err
		}

		var sourcePaths []string
		for i, src := range ext.Sources {
			checksum := ""
			if i < len(ext.Checksums) {
				checksum = ext.Checksums[i]
			}
			path, err := r.fetchAndVerify(st, src, checksum)
			if err != nil {
				return err
			}
			sourcePaths = append(sourcePaths, path)
		}
		for _, src := range sourcePaths {
			if err := extractSource(src, extDir); err != nil {
				return err
			}
		}

		block := parentBlock
		if ext.EasyBlock != "" {
			resolved, err := Resolve(ext.EasyBlock, ext.Name)
			if err != nil {
				return err
			}
			block = resolved
		}

		extSt := &StepContext{
			Ctx: st.Ctx, EC: ext, Env: st.Env, Sandbox: st.Sandbox, UnitLog: st.UnitLog,
			Progress: st.Progress, BuildDir: extDir, StartDir: firstSubdirOrSelf(extDir),
			InstallDir: st.InstallDir, Parallel: st.Parallel, Trace: st.Trace,
		}

		if err := block.ConfigureStep(extSt); err != nil {
			return err
		}
		if err := block.BuildStep(extSt); err != nil {
			return err
		}
		if err := block.InstallStep(extSt); err != nil {
			return err
		}
	}
	return nil
}
