package pipeline

import "path"

// runModule implements MODULE: render and write the module file under
// the naming scheme's install subdir, recording loads for every
// resolved direct dependency, and writing the default-version pointer
// when requested (spec.md §4.6 MODULE, §8 invariant 4: "after MODULE
// succeeds, modulestool.Exist reports true for the produced module").
func (r *run) runModule(st *StepContext) error {
	fullName := r.opts.MNS.DetFullModuleName(r.ec)
	subdir := path.Dir(fullName)
	if subdir == "." {
		subdir = ""
	}

	var depNames []string
	for _, dep := range r.unit.IDependOn {
		depNames = append(depNames, r.opts.MNS.DetFullModuleName(dep.EC))
	}
	if !r.ec.Toolchain.IsSystem() {
		found := false
		for _, d := range r.ec.Dependencies {
			if d.Name == r.ec.Toolchain.Name {
				found = true
				break
			}
		}
		if !found {
			depNames = append([]string{r.ec.Toolchain.Name + "/" + r.ec.Toolchain.Version}, depNames...)
		}
	}

	if _, err := WriteModuleFile(r.ec, r.opts.Cfg.ModulesPath, subdir, r.installDir,
		r.opts.ModuleSyntax, r.opts.ModuleHeader, r.opts.ModuleFooter,
		r.opts.RecursiveModuleUnload, depNames); err != nil {
		return err
	}

	if r.opts.SetDefaultModule {
		if err := WriteDefaultPointer(r.opts.Cfg.ModulesPath, subdir, r.opts.ModuleSyntax, r.ec.FullVersion()); err != nil {
			return err
		}
	}

	return nil
}
