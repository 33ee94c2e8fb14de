// Package resolver implements the Dependency Resolver (C5): expands a
// set of requested Build Units with robot-discovered dependencies and
// topologically orders the result. Grounded on the teacher's
// pkg.resolveDependencies/pkg.GetBuildOrder (pkg/deps.go): the same
// fixed-point expansion loop and the same Kahn's-algorithm topological
// sort with DepiDepth/fanout/lexicographic priority ordering, adapted
// from port Makefile dependency strings to easyconfig DependencySpecs.
package resolver

import (
	"sort"

	"easybuild/ecmodel"
	"easybuild/errs"
)

// BuildUnit is an EC plus its resolved module ID and remaining
// unresolved dependencies during resolution (spec.md §3).
type BuildUnit struct {
	EC             *ecmodel.EC
	ModuleID       ecmodel.ModuleID
	UnresolvedDeps []ecmodel.DependencySpec

	IDependOn   []*BuildUnit
	DependsOnMe []*BuildUnit
	DepiDepth   int
}

func newBuildUnit(ec *ecmodel.EC) *BuildUnit {
	deps := append([]ecmodel.DependencySpec(nil), ec.Dependencies...)
	return &BuildUnit{EC: ec, ModuleID: ec.ModuleID(), UnresolvedDeps: deps}
}

func depKey(d ecmodel.DependencySpec) string {
	return d.Name + "/" + d.FullVersion()
}

func unitKey(u *BuildUnit) string {
	return u.ModuleID.String()
}

// RobotLocator finds an easyconfig file on disk for a dependency by the
// `<name>/<name>-<version>[-<tc>].eb` filename convention (spec.md §4.5),
// falling back to `<lowercase-first-letter>/<name>/…`.
type RobotLocator interface {
	Locate(dep ecmodel.DependencySpec) (path string, found bool)
}

// Options configures Resolve.
type Options struct {
	RobotPaths []string
	Robot      RobotLocator // nil disables robot-path discovery

	Force bool // treat "available" as empty regardless of what's passed in

	TryToolchain           *ecmodel.Toolchain
	TryUpdateDeps          bool
	TryIgnoreVersionsuffixes bool

	// MaxIterations caps the fixed-point loop (spec.md §4.5 "up to a
	// high iteration cap") to guarantee termination even if a bug in
	// robot discovery kept reporting false progress.
	MaxIterations int
}

// Resolve runs the fixed-point algorithm of spec.md §4.5: it repeatedly
// moves Build Units whose dependencies are all available into the
// ordered set, and when stuck, uses the robot locator to pull in new
// easyconfigs for missing dependencies. It returns every Build Unit that
// participated (requested plus robot-discovered), with IDependOn/
// DependsOnMe edges and depths filled in -- callers run
// GetBuildOrder/TopoOrderStrict separately.
func Resolve(requested []*ecmodel.EC, available map[string]bool, opts Options) ([]*BuildUnit, error) {
	if opts.Force {
		available = map[string]bool{}
	} else if available == nil {
		available = map[string]bool{}
	}

	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = 10000
	}

	byKey := make(map[string]*BuildUnit, len(requested))
	var unprocessed []*BuildUnit
	for _, ec := range requested {
		u := newBuildUnit(ec)
		byKey[unitKey(u)] = u
		unprocessed = append(unprocessed, u)
	}
	var ordered []*BuildUnit

	for iter := 0; iter < maxIter; iter++ {
		progressed := true
		for progressed {
			progressed = false
			var stillUnprocessed []*BuildUnit
			for _, u := range unprocessed {
				if allSatisfied(u, available) {
					ordered = append(ordered, u)
					available[unitKey(u)] = true
					progressed = true
				} else {
					stillUnprocessed = append(stillUnprocessed, u)
				}
			}
			unprocessed = stillUnprocessed
		}

		if len(unprocessed) == 0 {
			break
		}
		if opts.Robot == nil {
			break
		}

		advanced, err := robotAdvance(unprocessed[0], byKey, &unprocessed, opts)
		if err != nil {
			return nil, err
		}
		if !advanced {
			break
		}
	}

	if len(unprocessed) > 0 {
		if cyclicAmong(unprocessed, byKey, available) {
			remaining := make([]string, 0, len(unprocessed))
			for _, u := range unprocessed {
				remaining = append(remaining, unitKey(u))
			}
			return nil, &errs.CycleError{
				TotalPackages:   len(ordered) + len(unprocessed),
				OrderedPackages: len(ordered),
				Remaining:       remaining,
			}
		}

		missing := make([]string, 0, len(unprocessed))
		for _, u := range unprocessed {
			missing = append(missing, firstUnresolvedName(u, available))
		}
		return nil, &errs.MissingDependenciesError{Missing: missing}
	}

	linkDependencies(ordered)
	return ordered, nil
}

// cyclicAmong reports whether every unprocessed unit's unsatisfied
// dependencies resolve to another unit known to byKey (requested or
// robot-discovered, just stuck alongside it in unprocessed) -- a true
// dependency cycle (spec.md §8 S3: "A deps B, B deps A") -- as opposed
// to at least one dependency that genuinely could not be located
// anywhere, which is the only case MissingDependenciesError should
// cover.
func cyclicAmong(unprocessed []*BuildUnit, byKey map[string]*BuildUnit, available map[string]bool) bool {
	if len(unprocessed) == 0 {
		return false
	}
	for _, u := range unprocessed {
		for _, d := range u.UnresolvedDeps {
			if d.External || available[depKey(d)] {
				continue
			}
			if _, known := byKey[depKey(d)]; !known {
				return false
			}
		}
	}
	return true
}

func allSatisfied(u *BuildUnit, available map[string]bool) bool {
	for _, d := range u.UnresolvedDeps {
		if d.External {
			continue
		}
		if !available[depKey(d)] {
			return false
		}
	}
	return true
}

func firstUnresolvedName(u *BuildUnit, available map[string]bool) string {
	for _, d := range u.UnresolvedDeps {
		if !d.External && !available[depKey(d)] {
			return d.Name + "/" + d.FullVersion()
		}
	}
	return u.ModuleID.String()
}

// robotAdvance picks u's first unresolved dependency not already being
// installed, locates an easyconfig for it via the robot locator, parses
// it into a new Build Unit, and appends it to unprocessed.
func robotAdvance(u *BuildUnit, byKey map[string]*BuildUnit, unprocessed *[]*BuildUnit, opts Options) (bool, error) {
	for _, d := range u.UnresolvedDeps {
		if d.External {
			continue
		}
		if _, already := byKey[d.Name+"/"+d.FullVersion()]; already {
			continue
		}

		dep := d
		if opts.TryToolchain != nil {
			dep.Toolchain = mapSubtoolchain(dep.Toolchain, *opts.TryToolchain)
		}

		path, found := opts.Robot.Locate(dep)
		if !found && opts.TryIgnoreVersionsuffixes {
			suffixless := dep
			suffixless.VersionSuffix = ""
			path, found = opts.Robot.Locate(suffixless)
		}
		if !found {
			continue
		}

		ecs, err := ecmodel.Parse(path)
		if err != nil {
			return false, err
		}
		for _, ec := range ecs {
			nu := newBuildUnit(ec)
			byKey[unitKey(nu)] = nu
			*unprocessed = append(*unprocessed, nu)
		}
		return true, nil
	}
	return false, nil
}

// subtoolchainRank orders toolchain capability classes from least to
// most capable: compiler-only ⊂ compiler+MPI ⊂ full (spec.md §4.5).
// mapSubtoolchain never maps "up" past the requested toolchain's class.
func subtoolchainRank(name string) int {
	switch name {
	case "system":
		return -1
	case "GCCcore":
		return 0
	case "GCC", "iccifort", "intel-compilers":
		return 1
	case "gompi", "iimpi":
		return 2
	default:
		return 3 // full (foss, intel, ...)
	}
}

func mapSubtoolchain(original, target ecmodel.Toolchain) ecmodel.Toolchain {
	if subtoolchainRank(target.Name) > subtoolchainRank(original.Name) {
		return original
	}
	return target
}

// linkDependencies builds the IDependOn/DependsOnMe bidirectional edges
// once every dependency has a corresponding ordered Build Unit,
// mirroring the teacher's linkPackageDependencies.
func linkDependencies(ordered []*BuildUnit) {
	byKey := make(map[string]*BuildUnit, len(ordered))
	for _, u := range ordered {
		byKey[unitKey(u)] = u
	}
	for _, u := range ordered {
		for _, d := range u.UnresolvedDeps {
			if d.External {
				continue
			}
			dep, ok := byKey[d.Name+"/"+d.FullVersion()]
			if !ok {
				continue
			}
			u.IDependOn = append(u.IDependOn, dep)
			dep.DependsOnMe = append(dep.DependsOnMe, u)
		}
	}
	for _, u := range ordered {
		calculateDepthRecursive(u, map[*BuildUnit]bool{})
	}
}

func calculateDepthRecursive(u *BuildUnit, visiting map[*BuildUnit]bool) int {
	if u.DepiDepth > 0 {
		return u.DepiDepth
	}
	if visiting[u] {
		return 1
	}
	visiting[u] = true

	maxDepth := 0
	for _, dependent := range u.DependsOnMe {
		depth := calculateDepthRecursive(dependent, visiting)
		if depth > maxDepth {
			maxDepth = depth
		}
	}
	u.DepiDepth = maxDepth + 1
	return u.DepiDepth
}

// sortByPriority orders units by DepiDepth (desc), then fanout (desc),
// then module ID (lexicographic), the exact priority rule from
// pkg.sortQueueByPriority.
func sortByPriority(units []*BuildUnit) {
	sort.Slice(units, func(i, j int) bool {
		a, b := units[i], units[j]
		if a.DepiDepth != b.DepiDepth {
			return a.DepiDepth > b.DepiDepth
		}
		if len(a.DependsOnMe) != len(b.DependsOnMe) {
			return len(a.DependsOnMe) > len(b.DependsOnMe)
		}
		return unitKey(a) < unitKey(b)
	})
}

// GetBuildOrder computes a topological ordering of units using Kahn's
// algorithm (spec.md §8 invariant 2): dependencies appear before
// dependents, with ties broken by sortByPriority. If the graph contains
// a cycle, the returned slice is a partial order containing only the
// units that could be placed.
func GetBuildOrder(units []*BuildUnit) []*BuildUnit {
	inDegree := make(map[*BuildUnit]int, len(units))
	for _, u := range units {
		inDegree[u] = len(u.IDependOn)
	}

	var queue []*BuildUnit
	for _, u := range units {
		if inDegree[u] == 0 {
			queue = append(queue, u)
		}
	}
	sortByPriority(queue)

	result := make([]*BuildUnit, 0, len(units))
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		result = append(result, u)

		var newlyReady []*BuildUnit
		for _, dependent := range u.DependsOnMe {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				newlyReady = append(newlyReady, dependent)
			}
		}
		if len(newlyReady) > 0 {
			sortByPriority(newlyReady)
			queue = append(queue, newlyReady...)
		}
	}
	return result
}

// TopoOrderStrict is GetBuildOrder but reports a *errs.CycleError
// (wrapping errs.ErrCycleDetected) when a cycle leaves units unordered
// (spec.md §8 scenario S3).
func TopoOrderStrict(units []*BuildUnit) ([]*BuildUnit, error) {
	order := GetBuildOrder(units)
	if len(order) != len(units) {
		placed := make(map[*BuildUnit]bool, len(order))
		for _, u := range order {
			placed[u] = true
		}
		var remaining []string
		for _, u := range units {
			if !placed[u] {
				remaining = append(remaining, unitKey(u))
			}
		}
		return order, &errs.CycleError{
			TotalPackages:   len(units),
			OrderedPackages: len(order),
			Remaining:       remaining,
		}
	}
	return order, nil
}
