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

// Package lifecycle implements the per-service state machine: activation,
// forking and exec'ing workers, the restart policy, the pid registry, and
// the readiness-notifier binding for lazy services. Every mutating method
// in this package is only ever called from jobs run on a single
// eventloop.Loop goroutine; none of its types carry an internal mutex.
package lifecycle

import (
	"time"

	"github.com/bramblecore/procd/internal/catalog"
)

// Status is a coarse label for Snapshot output; it is derived from State,
// never stored as the source of truth.
type Status string

const (
	StatusInactive  Status = "inactive"
	StatusListening Status = "listening"
	StatusRunning   Status = "running"
	StatusCooling   Status = "cooling"
	StatusDisabled  Status = "disabled"
)

// State is the mutable, per-activation-cycle counterpart to a
// catalog.ServiceSpec. Exactly one State exists per spec for the life of
// the supervisor.
type State struct {
	Spec *catalog.ServiceSpec

	// ListenFD is the fd internal/socketactivator prepared for this
	// service, or -1 if it declared no socket. Created at most once,
	// closed only at supervisor shutdown.
	ListenFD int

	// PID is the currently tracked worker pid, or 0 if absent. Only ever
	// populated when Spec.MultiInstance is false.
	PID int

	// RunTimerStart is when the most recent spawn happened.
	RunTimerStart time.Time

	// RestartAttempts counts consecutive quick failures; reset to zero
	// after a successful or long-running exit.
	RestartAttempts int

	// ListenerArmed reports whether the readiness notifier is currently
	// registered for this service.
	ListenerArmed bool

	// Dead is set once the restart policy gives up on a flapping service.
	// A dead service is never re-activated.
	Dead bool

	// LastExitCode, LastExitAt and SpawnCount exist purely for
	// observability: Snapshot and internal/metrics read them, but the
	// restart-policy decision in Engine.OnExit never does.
	LastExitCode *int
	LastExitAt   time.Time
	SpawnCount   uint64
}

// NewState creates the State for spec, with no worker and no listener.
func NewState(spec *catalog.ServiceSpec) *State {
	return &State{Spec: spec, ListenFD: -1}
}

// Status derives the coarse lifecycle state from State's fields.
func (s *State) Status() Status {
	switch {
	case !s.Spec.Enabled:
		return StatusDisabled
	case s.Dead:
		return StatusCooling
	case s.PID != 0:
		return StatusRunning
	case s.ListenerArmed:
		return StatusListening
	default:
		return StatusInactive
	}
}

// Snapshot is the read-only introspection record for one service.
type Snapshot struct {
	ExecutablePath          string   `json:"executable_path"`
	StdioFilePath           string   `json:"stdio_file_path,omitempty"`
	Priority                string   `json:"priority"`
	KeepAlive               bool     `json:"keep_alive"`
	SocketPath              string   `json:"socket_path,omitempty"`
	SocketPermissions       uint32   `json:"socket_permissions"`
	Lazy                    bool     `json:"lazy"`
	User                    string   `json:"user,omitempty"`
	MultiInstance           bool     `json:"multi_instance"`
	AcceptSocketConnections bool     `json:"accept_socket_connections"`
	PID                     *int     `json:"pid"`
	RestartAttempts         int      `json:"restart_attempts"`
	WorkingDirectory        string   `json:"working_directory,omitempty"`
	Status                  Status   `json:"status"`
}

// Snapshot builds the read-only introspection record for one service.
// Declarative fields round-trip unchanged from the catalog entry they were
// loaded from; pid and restart_attempts reflect current runtime state.
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		ExecutablePath:          s.Spec.ExecutablePath,
		StdioFilePath:           s.Spec.StdioPath,
		Priority:                s.Spec.Priority.String(),
		KeepAlive:               s.Spec.KeepAlive,
		SocketPath:              s.Spec.SocketPath,
		SocketPermissions:       s.Spec.SocketPermissions,
		Lazy:                    s.Spec.Lazy,
		MultiInstance:           s.Spec.MultiInstance,
		AcceptSocketConnections: s.Spec.AcceptSocketConnections,
		RestartAttempts:         s.RestartAttempts,
		WorkingDirectory:        s.Spec.WorkingDirectory,
		Status:                  s.Status(),
	}
	if s.Spec.Account != nil {
		snap.User = s.Spec.Account.Name
	}
	if s.PID != 0 {
		pid := s.PID
		snap.PID = &pid
	}
	return snap
}
