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

package eventloop

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
)

// ExitFunc is called once per reaped child, on l's goroutine.
type ExitFunc func(pid int, exitCode int)

// Reaper translates SIGCHLD into l.Post calls of onExit, so
// lifecycle.Registry.OnChildReaped always runs on the single cooperative
// goroutine instead of a signal handler.
type Reaper struct {
	loop   *Loop
	onExit ExitFunc
	sigCh  chan os.Signal
}

// NewReaper creates a Reaper that posts reaped-child jobs onto loop.
func NewReaper(loop *Loop, onExit ExitFunc) *Reaper {
	return &Reaper{
		loop:   loop,
		onExit: onExit,
		sigCh:  make(chan os.Signal, 1),
	}
}

// Run installs the SIGCHLD handler and drains reaped children until ctx
// is cancelled. It is meant to run in its own goroutine, started once by
// the supervisor.
func (r *Reaper) Run(ctx context.Context) {
	signal.Notify(r.sigCh, unix.SIGCHLD)
	defer signal.Stop(r.sigCh)

	// A child may have exited between process start and the first
	// signal.Notify call; drain once up front so we don't miss it.
	r.drain()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.sigCh:
			r.drain()
		}
	}
}

// drain reaps every child currently waitable without blocking, and posts
// one job per reaped pid.
func (r *Reaper) drain() {
	for {
		var status syscall.WaitStatus
		pid, err := syscall.Wait4(-1, &status, syscall.WNOHANG, nil)
		if err != nil || pid <= 0 {
			return
		}

		code := exitCodeOf(status)
		r.loop.Post(func() {
			r.onExit(pid, code)
		})
	}
}

// exitCodeOf reduces a wait status to the exit code the restart policy
// reasons about; a process killed by a signal is reported as -1, which
// OnExit treats the same as any other nonzero exit.
func exitCodeOf(status syscall.WaitStatus) int {
	if status.Exited() {
		return status.ExitStatus()
	}
	return -1
}
