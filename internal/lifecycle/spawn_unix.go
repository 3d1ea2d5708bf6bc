// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build linux || darwin

package lifecycle

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/bramblecore/procd/internal/catalog"
	procderrors "github.com/bramblecore/procd/pkg/errors"
)

const devNull = "/dev/null"

// niceFromPriority maps a catalog.Priority to the nice value passed to
// setpriority(2). Higher catalog priority means a lower (more favorable)
// nice value.
func niceFromPriority(p catalog.Priority) int {
	switch p {
	case catalog.PriorityHigh:
		return -5
	case catalog.PriorityLow:
		return 5
	default:
		return 0
	}
}

// spawnResult carries what the parent needs after a successful Start():
// the child's pid, so the caller can register it in the Registry.
type spawnResult struct {
	pid int
}

// spawnProcess forks and execs spec's worker, wiring stdio, environment,
// privilege drop and socket handoff exactly as the catalog declares them.
// handoffFD is the fd to hand off as fd 3, or -1 for none.
func spawnProcess(spec *catalog.ServiceSpec, handoffFD int) (*spawnResult, error) {
	cmd := exec.Command(spec.ExecutablePath, spec.Arguments...)
	cmd.SysProcAttr = &syscall.SysProcAttr{}

	if spec.WorkingDirectory != "" {
		cmd.Dir = spec.WorkingDirectory
	}

	stdio, closeStdio, err := openStdio(spec, cmd.SysProcAttr)
	if err != nil {
		return nil, &procderrors.ChildSetupError{Service: spec.Name, Step: "stdio", Cause: err}
	}
	defer closeStdio()
	cmd.Stdin, cmd.Stdout, cmd.Stderr = stdio, stdio, stdio

	if handoffFD >= 0 {
		dup, err := unix.Dup(handoffFD)
		if err != nil {
			return nil, &procderrors.ChildSetupError{Service: spec.Name, Step: "dup-handoff", Cause: err}
		}
		handoff := os.NewFile(uintptr(dup), "handoff")
		defer handoff.Close()
		cmd.ExtraFiles = []*os.File{handoff}
	}

	cmd.Env = buildEnv(spec, handoffFD)

	if spec.Account != nil {
		groups := make([]uint32, len(spec.Account.SupplementaryGIDs))
		for i, g := range spec.Account.SupplementaryGIDs {
			groups[i] = uint32(g)
		}
		cmd.SysProcAttr.Credential = &syscall.Credential{
			Uid:    uint32(spec.Account.UID),
			Gid:    uint32(spec.Account.GID),
			Groups: groups,
		}
	}

	if err := cmd.Start(); err != nil {
		return nil, classifyStartError(spec, err)
	}

	pid := cmd.Process.Pid
	if err := unix.Setpriority(unix.PRIO_PROCESS, pid, niceFromPriority(spec.Priority)); err != nil {
		// Not fatal: the worker is already running. A failed renice just
		// means it keeps the scheduler's default priority.
		_ = err
	}

	// The parent doesn't wait on this child directly; the reaper drains
	// exit status via SIGCHLD. Releasing here just detaches the *os.Process
	// bookkeeping, it does not affect the OS process.
	_ = cmd.Process.Release()

	return &spawnResult{pid: pid}, nil
}

// openStdio wires a worker's stdio: an explicit StdioPath
// is opened and duped onto fds 0/1/2, acquiring the controlling tty if it
// refers to one; otherwise all three are wired to /dev/null. When there is
// no StdioPath and the supervisor's own fd 0 is a tty, the child detaches
// from it by starting a new session.
func openStdio(spec *catalog.ServiceSpec, attr *syscall.SysProcAttr) (*os.File, func(), error) {
	path := spec.StdioPath
	if path == "" {
		path = devNull
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, func() {}, fmt.Errorf("opening %s: %w", path, err)
	}

	if spec.StdioPath != "" && term.IsTerminal(int(f.Fd())) {
		attr.Setsid = true
		attr.Setctty = true
		attr.Ctty = 0 // fd 0 in the child, which cmd.Stdin points at f
	} else if spec.StdioPath == "" && term.IsTerminal(0) {
		attr.Setsid = true
	}

	return f, func() { f.Close() }, nil
}

// buildEnv assembles the worker's environment: the supervisor's own
// environment, SOCKET_TAKEOVER when a fd is handed off, HOME when an
// account is set, then every catalog Environment entry appended in order.
func buildEnv(spec *catalog.ServiceSpec, handoffFD int) []string {
	env := os.Environ()
	if handoffFD >= 0 {
		env = append(env, "SOCKET_TAKEOVER=1")
	}
	if spec.Account != nil {
		env = append(env, "HOME="+spec.Account.Home)
	}
	env = append(env, spec.Environment...)
	return env
}

// classifyStartError attributes a cmd.Start() failure to either the
// parent's fork call or a syscall the forked child performs before exec.
// The Go runtime folds both into a single error from Start(), so this is
// a heuristic based on which setup steps a spec actually requested;
// see DESIGN.md.
func classifyStartError(spec *catalog.ServiceSpec, err error) error {
	msg := err.Error()
	switch {
	case spec.WorkingDirectory != "" && strings.Contains(msg, "chdir"):
		return &procderrors.ChildSetupError{Service: spec.Name, Step: "chdir", Cause: err}
	case spec.Account != nil:
		return &procderrors.ChildSetupError{Service: spec.Name, Step: "setuid", Cause: err}
	default:
		return &procderrors.SpawnError{Service: spec.Name, Cause: err}
	}
}
