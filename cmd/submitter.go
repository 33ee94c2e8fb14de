package cmd

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"easybuild/dispatcher"
)

// subprocessSubmitter is the default dispatcher.Submitter backend: it
// launches the rendered job command as a detached local subprocess and
// waits on it directly, standing in for a real batch scheduler (Slurm,
// PBS, ...) that a site would plug in instead.
type subprocessSubmitter struct {
	mu    sync.Mutex
	procs map[string]*exec.Cmd
	next  int
}

var _ dispatcher.Submitter = (*subprocessSubmitter)(nil)

func (s *subprocessSubmitter) Submit(ctx context.Context, spec, command string, dependsOn []string) (string, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "", exec.ErrNotFound
	}

	c := exec.CommandContext(ctx, fields[0], fields[1:]...)

	s.mu.Lock()
	if s.procs == nil {
		s.procs = map[string]*exec.Cmd{}
	}
	s.next++
	handle := spec + "#" + strconv.Itoa(s.next)
	s.procs[handle] = c
	s.mu.Unlock()

	if err := c.Start(); err != nil {
		return "", err
	}
	return handle, nil
}

func (s *subprocessSubmitter) Wait(ctx context.Context, handle string) (bool, error) {
	s.mu.Lock()
	c := s.procs[handle]
	s.mu.Unlock()
	if c == nil {
		return false, exec.ErrNotFound
	}
	err := c.Wait()
	if err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
