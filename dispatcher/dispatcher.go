// Package dispatcher implements the Parallel Dispatcher (C7): it takes
// the topologically ordered Build Units produced by package resolver
// and a command template, submits one external job per unit through a
// pluggable Submitter backend, and tracks the DAG as job dependency
// edges instead of building anything itself (spec.md §4.7, §5:
// "Parallelism exists only via C7; each job is an independent eb
// process with one unit").
//
// Grounded on the teacher's build.BuildContext worker-pool/queue split
// (build/build.go: DoBuild/workerLoop/waitForDependencies), generalized
// from an in-process goroutine pool building ports directly to an
// external batch-job submitter tracking dependency edges between job
// handles instead of package pointers.
package dispatcher

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"easybuild/log"
	"easybuild/resolver"
)

// JobStatus is a job's terminal or in-flight state.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobSuccess JobStatus = "success"
	JobFailed  JobStatus = "failed"
)

// Job is one submitted external build, one per Build Unit.
type Job struct {
	ModuleID   string
	Handle     string // backend-assigned job handle/ID
	DependsOn  []string // handles of jobs this job's unit depends on
	Status     JobStatus
	Attempts   int
	SubmittedAt time.Time
}

// Submitter dispatches one job to an external batch backend (a queueing
// system, a remote build farm, a local subprocess launcher) and returns
// a handle the backend uses to identify it. Waiter polls/blocks for
// completion. Both are narrow on purpose so tests can substitute a fake
// without a real scheduler (mirrors the teacher's environment.
// Environment abstraction: one seam, swappable backends).
type Submitter interface {
	Submit(ctx context.Context, spec string, command string, dependsOn []string) (handle string, err error)
	Wait(ctx context.Context, handle string) (success bool, err error)
}

// CommandTemplate renders the external command for one unit's easyconfig
// path, mirroring `eb %(spec)s ...` from spec.md §4.7.
type CommandTemplate struct {
	Template string // contains exactly one "%(spec)s" placeholder
}

func (t CommandTemplate) Render(specPath string) string {
	return strings.ReplaceAll(t.Template, "%(spec)s", specPath)
}

// Dispatcher submits one job per ordered Build Unit and tracks the
// resulting handles so each job's dependency list mirrors the subset of
// its unit's IDependOn that are also being built in this run.
type Dispatcher struct {
	Submitter   Submitter
	Template    CommandTemplate
	Regtest     bool // retry each job twice in a backoff chain on failure
	BackoffBase time.Duration

	// Dashboard, if set, receives a live snapshot of job state as jobs
	// are submitted and as they finish (spec.md §9's optional live
	// status view for C7).
	Dashboard *Dashboard

	// Logger receives field-structured per-job progress; defaults to a
	// no-op logger when nil.
	Logger log.LibraryLogger
}

// New constructs a Dispatcher. BackoffBase defaults to one second when zero.
func New(sub Submitter, tmpl CommandTemplate) *Dispatcher {
	return &Dispatcher{Submitter: sub, Template: tmpl, BackoffBase: time.Second, Logger: log.NoOpLogger{}}
}

// RunIndex maps each leaf job handle (a job nothing else in this run
// depends on) to the set of root job handles reachable by following
// DependsOn edges upward -- the "index linking leaf nodes to root
// nodes" spec.md §4.7 reports to stdout.
type RunIndex map[string][]string

// Dispatch submits one job per unit in order, wiring DependsOn edges
// from each unit's IDependOn that also appears in units, then blocks
// until every job reaches a terminal status. A job whose dependency
// failed to submit is marked failed without being submitted; a
// dependency that is submitted and later fails does not affect its
// dependents, which have already been submitted by then.
func (d *Dispatcher) Dispatch(ctx context.Context, units []*resolver.BuildUnit) ([]*Job, RunIndex, error) {
	if d.Logger == nil {
		d.Logger = log.NoOpLogger{}
	}

	inRun := make(map[string]bool, len(units))
	for _, u := range units {
		inRun[u.ModuleID.String()] = true
	}

	jobs := make(map[string]*Job, len(units))
	order := make([]*Job, 0, len(units))

	for _, u := range units {
		var deps []string
		for _, dep := range u.IDependOn {
			if !inRun[dep.ModuleID.String()] {
				continue
			}
			if j, ok := jobs[dep.ModuleID.String()]; ok {
				deps = append(deps, j.Handle)
			}
		}

		job := &Job{ModuleID: u.ModuleID.String(), Status: JobPending, DependsOn: deps}

		if depsFailed(jobs, deps) {
			job.Status = JobFailed
			jobs[job.ModuleID] = job
			order = append(order, job)
			continue
		}

		cmd := d.Template.Render(u.EC.Path)
		handle, err := d.submitWithRetry(ctx, u.EC.Path, cmd, deps)
		if err != nil {
			job.Status = JobFailed
			jobs[job.ModuleID] = job
			order = append(order, job)
			d.Logger.Error("submit failed: %s: %v", job.ModuleID, err)
			continue
		}
		job.Handle = handle
		job.SubmittedAt = time.Now()
		job.Status = JobRunning
		jobs[job.ModuleID] = job
		order = append(order, job)

		d.Logger.Info("submitted %s as %s", job.ModuleID, job.Handle)
		if d.Dashboard != nil {
			d.Dashboard.LogEvent(fmt.Sprintf("submitted %s", job.ModuleID))
		}
	}

	d.reportDashboard(order)

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, job := range order {
		if job.Status != JobRunning {
			continue
		}
		wg.Add(1)
		go func(j *Job) {
			defer wg.Done()
			ok, err := d.Submitter.Wait(ctx, j.Handle)
			mu.Lock()
			if err != nil || !ok {
				j.Status = JobFailed
			} else {
				j.Status = JobSuccess
			}
			mu.Unlock()
			d.Logger.Info("%s finished: %s", j.ModuleID, j.Status)
			if d.Dashboard != nil {
				d.Dashboard.LogEvent(fmt.Sprintf("%s finished: %s", j.ModuleID, j.Status))
				d.reportDashboard(order)
			}
		}(job)
	}
	wg.Wait()

	d.reportDashboard(order)

	return order, buildRunIndex(order, jobs), nil
}

// reportDashboard pushes the current job slice to the dashboard, if one
// is attached; a no-op otherwise so Dispatch never has to branch on it.
func (d *Dispatcher) reportDashboard(order []*Job) {
	if d.Dashboard == nil {
		return
	}
	d.Dashboard.UpdateJobs(order)
}

// submitWithRetry submits once, then under Regtest retries up to two
// more times with linear backoff before giving up (spec.md §4.7: "Under
// --regtest the dispatcher may also retry each job twice in a backoff
// chain").
func (d *Dispatcher) submitWithRetry(ctx context.Context, spec, cmd string, deps []string) (string, error) {
	attempts := 1
	if d.Regtest {
		attempts = 3
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		handle, err := d.Submitter.Submit(ctx, spec, cmd, deps)
		if err == nil {
			return handle, nil
		}
		lastErr = err
		if i < attempts-1 {
			time.Sleep(d.BackoffBase * time.Duration(i+1))
		}
	}
	return "", fmt.Errorf("submit %s: %w", spec, lastErr)
}

func depsFailed(jobs map[string]*Job, deps []string) bool {
	for _, h := range deps {
		for _, j := range jobs {
			if j.Handle == h && (j.Status == JobFailed) {
				return true
			}
		}
	}
	return false
}

// buildRunIndex maps every leaf job (no job in this run depends on it)
// to the set of root jobs (jobs with no DependsOn of their own)
// reachable by following DependsOn edges upward from that leaf.
func buildRunIndex(order []*Job, jobs map[string]*Job) RunIndex {
	byHandle := make(map[string]*Job, len(order))
	for _, j := range order {
		if j.Handle != "" {
			byHandle[j.Handle] = j
		}
	}

	hasDependent := make(map[string]bool, len(order))
	for _, j := range order {
		for _, dh := range j.DependsOn {
			hasDependent[dh] = true
		}
	}

	idx := make(RunIndex)
	for _, j := range order {
		if j.Handle == "" || hasDependent[j.Handle] {
			continue
		}
		idx[j.Handle] = walkToRoots(j, byHandle, map[string]bool{})
	}
	return idx
}

// walkToRoots follows j's DependsOn edges upward, collecting the
// handles of every ancestor job that itself has no DependsOn (a root).
func walkToRoots(j *Job, byHandle map[string]*Job, visited map[string]bool) []string {
	if len(j.DependsOn) == 0 {
		return []string{j.Handle}
	}
	var roots []string
	for _, dh := range j.DependsOn {
		if visited[dh] {
			continue
		}
		visited[dh] = true
		dep, ok := byHandle[dh]
		if !ok {
			continue
		}
		roots = append(roots, walkToRoots(dep, byHandle, visited)...)
	}
	return roots
}
