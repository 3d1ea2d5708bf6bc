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

// Package catalog turns a service catalog into validated ServiceSpec
// values. It never parses the underlying file format itself; that is
// internal/inifile's job, expressed here only through the ConfigHandle
// interface.
package catalog

import "github.com/bramblecore/procd/internal/account"

// Priority is a worker's scheduling priority, translated to a nice value
// when the lifecycle engine spawns it.
type Priority int

const (
	// PriorityLow corresponds to the catalog's "low" priority.
	PriorityLow Priority = 10
	// PriorityNormal is the default when a spec doesn't declare one.
	PriorityNormal Priority = 30
	// PriorityHigh corresponds to the catalog's "high" priority.
	PriorityHigh Priority = 50
)

// String implements fmt.Stringer for log lines and Snapshot output.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	default:
		return "normal"
	}
}

// ServiceSpec is the immutable, validated definition of one catalog entry.
// A ServiceSpec is built once by Load and never mutated afterward.
type ServiceSpec struct {
	// Name is the catalog group name and the service's unique identifier.
	Name string

	// ExecutablePath is the absolute path to the worker binary.
	ExecutablePath string

	// Arguments is the worker's argv, not including argv[0].
	Arguments []string

	// StdioPath, if set, is opened read/write and duped onto fds 0, 1, 2.
	// Absent means stdio is wired to /dev/null.
	StdioPath string

	// Priority is the worker's scheduling priority.
	Priority Priority

	// KeepAlive re-activates the service after every exit, subject to the
	// flap-detection policy.
	KeepAlive bool

	// Lazy defers starting the worker until the readiness notifier fires.
	// Requires SocketPath.
	Lazy bool

	// MultiInstance allows arbitrarily many concurrent workers; such a
	// service's pid is never tracked in the registry. Incompatible with
	// KeepAlive.
	MultiInstance bool

	// AcceptSocketConnections runs an inetd-style accept loop: one worker
	// per accepted connection. Requires SocketPath, Lazy and MultiInstance.
	AcceptSocketConnections bool

	// SocketPath, if set, is the UNIX socket the Socket Activator prepares
	// before any worker exists.
	SocketPath string

	// SocketPermissions is applied to SocketPath, masked to 04777.
	SocketPermissions uint32

	// Account, if set, is the identity the worker drops privileges to.
	// Absent means the worker inherits the supervisor's identity.
	Account *account.Account

	// WorkingDirectory, if set, is chdir'd into before exec. Absent means
	// inherit the supervisor's working directory.
	WorkingDirectory string

	// Environment is appended to the worker's environment as literal
	// KEY=VALUE strings, in order.
	Environment []string

	// BootModes is the non-empty set of boot-mode tags this service is
	// eligible under. Defaults to {"graphical"}.
	BootModes map[string]bool

	// Enabled records whether BootModes contained the boot mode Load was
	// called with. A disabled spec is still returned by Load — it must
	// still appear in introspection output — but the supervisor never
	// activates it.
	Enabled bool
}
