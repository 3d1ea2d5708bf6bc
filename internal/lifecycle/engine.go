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

package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"vawter.tech/stopper"

	"github.com/bramblecore/procd/internal/eventloop"
	"github.com/bramblecore/procd/internal/log"
	"github.com/bramblecore/procd/internal/metrics"
	procderrors "github.com/bramblecore/procd/pkg/errors"
)

// quickFailureWindow is the boundary between a crash and a long run: an
// exit before this much wall time has passed since the last spawn counts
// against the restart policy.
const quickFailureWindow = time.Second

// maxQuickFailures is how many consecutive quick failures Engine tolerates
// before giving up on a service for good.
const maxQuickFailures = 2

// Engine drives activation, spawning and the restart policy for every
// service State. All of its methods run as jobs on loop's single
// goroutine; background goroutines it starts (accept loops, the handoff
// waiter) only ever communicate back in by posting a job.
type Engine struct {
	ctx      context.Context
	loop     *eventloop.Loop
	sctx     *stopper.Context
	logger   *slog.Logger
	registry *Registry
}

// NewEngine creates an Engine bound to loop and sctx. ctx is the
// supervisor's root context: cancelling it wakes the handoff waiter
// blocked in WaitReadable. sctx.Stopping() is what closes an accept loop's
// listener and so wakes its blocked Accept.
func NewEngine(ctx context.Context, loop *eventloop.Loop, sctx *stopper.Context, logger *slog.Logger) *Engine {
	e := &Engine{ctx: ctx, loop: loop, sctx: sctx, logger: logger}
	e.registry = NewRegistry(e)
	return e
}

// Registry exposes the pid index so the supervisor can wire it to the
// reaper and to metrics.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Activate brings state up according to its spec: lazily arming a
// listener, or spawning the worker immediately. A dead or disabled state
// is left alone, and an already-running or already-armed state is a
// no-op — Activate is safe to call unconditionally at startup and after
// every exit.
func (e *Engine) Activate(state *State) {
	if state.Dead || !state.Spec.Enabled {
		return
	}
	if state.PID != 0 || state.ListenerArmed {
		return
	}
	if state.Spec.Lazy {
		e.arm(state)
		return
	}
	e.spawn(state, state.ListenFD)
}

// spawn forks and execs state's worker, optionally handing off handoffFD
// as fd 3. On success, non-multi-instance services are registered by pid
// so a later exit can be routed back to this state.
func (e *Engine) spawn(state *State, handoffFD int) {
	state.RunTimerStart = time.Now()

	result, err := spawnProcess(state.Spec, handoffFD)
	state.SpawnCount++
	if err != nil {
		metrics.RecordSpawn(state.Spec.Name, "error")
		e.logger.Error("spawn failed",
			log.String(log.ServiceKey, state.Spec.Name),
			log.Error(err),
		)
		// A child-side setup failure counts as a nonzero worker exit, so the
		// restart policy applies; a failed fork leaves the service inactive.
		var setupErr *procderrors.ChildSetupError
		if errors.As(err, &setupErr) {
			e.OnExit(state, 1)
		}
		return
	}
	metrics.RecordSpawn(state.Spec.Name, "ok")

	e.logger.Info("spawned",
		log.String(log.ServiceKey, state.Spec.Name),
		log.Int(log.PIDKey, result.pid),
	)

	if state.Spec.MultiInstance {
		return
	}
	state.PID = result.pid
	e.registry.insert(result.pid, state)
	metrics.RecordRunning(state.Spec.Name)
	metrics.SetRegistrySize(e.registry.Len())
}

// spawnAccepted spawns one instance of an accept_socket_connections
// service to service a single already-accepted connection. These services
// are always multi-instance, so the worker is never registered by pid and
// its eventual exit is silently discarded by the registry.
func (e *Engine) spawnAccepted(state *State, connFD int) {
	e.spawn(state, connFD)
}

// OnExit implements ExitHandler. It applies the restart policy: a
// clean exit or a run that lasted at least quickFailureWindow resets the
// failure count and restarts immediately; a quick failure is tolerated
// twice, with the third giving up on the service for the life of the
// supervisor.
func (e *Engine) OnExit(state *State, exitCode int) {
	if state.PID != 0 {
		e.registry.remove(state.PID)
		metrics.SetRegistrySize(e.registry.Len())
	}
	state.PID = 0
	code := exitCode
	state.LastExitCode = &code
	state.LastExitAt = time.Now()
	metrics.RecordExit(state.Spec.Name, exitCode)

	if !state.Spec.KeepAlive {
		return
	}

	ranFor := state.LastExitAt.Sub(state.RunTimerStart)
	if exitCode == 0 || ranFor >= quickFailureWindow {
		state.RestartAttempts = 0
		e.Activate(state)
		return
	}

	if state.RestartAttempts >= maxQuickFailures {
		state.Dead = true
		metrics.RecordGiveUp(state.Spec.Name)
		e.logger.Warn("Giving up on "+state.Spec.Name,
			log.String(log.ServiceKey, state.Spec.Name),
		)
		return
	}

	msg := "Trying again"
	if state.RestartAttempts == 1 {
		msg = "Third time's a charm?"
	}
	e.logger.Warn(msg,
		log.String(log.ServiceKey, state.Spec.Name),
		log.Duration("run_time", ranFor.Milliseconds()),
	)
	state.RestartAttempts++
	e.Activate(state)
}
