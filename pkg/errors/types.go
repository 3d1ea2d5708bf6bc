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

package errors

import (
	"fmt"
	"time"
)

// ConfigError represents a malformed or contradictory catalog entry.
// Use this for missing keys, invalid enum values, or constraints violated
// while loading or validating a service spec.
type ConfigError struct {
	// Service is the name of the service definition at fault.
	Service string

	// Key is the config key that has the problem (e.g. "Socket", "Priority").
	Key string

	// Reason explains what's wrong with the value.
	Reason string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s: %s: %s", e.Service, e.Key, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Service, e.Reason)
}

// ErrorType implements ErrorClassifier.
func (e *ConfigError) ErrorType() string { return "config" }

// IsRetryable implements ErrorClassifier. A bad config entry never becomes
// valid on its own; the operator has to edit the catalog.
func (e *ConfigError) IsRetryable() bool { return false }

// SocketSetupError represents a failure preparing a service's activation
// socket: creating its directory or the socket, chown/chmod, bind or listen.
type SocketSetupError struct {
	// Service is the name of the service the socket belongs to.
	Service string

	// Op is the syscall or step that failed (e.g. "bind", "chown", "listen").
	Op string

	// Path is the socket path or address involved, if any.
	Path string

	// Cause is the underlying OS error.
	Cause error
}

// Error implements the error interface.
func (e *SocketSetupError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s %s: %v", e.Service, e.Op, e.Path, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %v", e.Service, e.Op, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *SocketSetupError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *SocketSetupError) ErrorType() string { return "socket_setup" }

// IsRetryable implements ErrorClassifier. A stale socket or permission
// problem is usually cleared by a subsequent restart attempt.
func (e *SocketSetupError) IsRetryable() bool { return true }

// SpawnError represents a failure to fork and exec a service's worker
// process — the fork call itself, or the exec of the configured executable.
type SpawnError struct {
	// Service is the name of the service that failed to start.
	Service string

	// Cause is the underlying OS error.
	Cause error
}

// Error implements the error interface.
func (e *SpawnError) Error() string {
	return fmt.Sprintf("%s: failed to spawn: %v", e.Service, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *SpawnError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *SpawnError) ErrorType() string { return "spawn" }

// IsRetryable implements ErrorClassifier.
func (e *SpawnError) IsRetryable() bool { return true }

// ChildSetupError represents a failure in a step the parent performs on
// behalf of the about-to-run child before or immediately after Start
// returns: applying the account's uid/gid, setting the working directory,
// opening the stdio file, or duplicating the fd handed off as fd 3.
type ChildSetupError struct {
	// Service is the name of the service being spawned.
	Service string

	// Step names the setup stage that failed (e.g. "setuid", "chdir",
	// "stdio", "dup-handoff").
	Step string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *ChildSetupError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Service, e.Step, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ChildSetupError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *ChildSetupError) ErrorType() string { return "child_setup" }

// IsRetryable implements ErrorClassifier. Most setup steps fail the same
// way on every attempt (bad account name, unreadable executable).
func (e *ChildSetupError) IsRetryable() bool { return false }

// WorkerExit records the outcome of a worker process that has already run
// and exited. It is not an error: an exit code of zero is the common case,
// and even a nonzero code may be an expected outcome for a one-shot
// service. The restart policy in internal/lifecycle takes the exit code
// directly and does not use this type.
type WorkerExit struct {
	// Service is the name of the service the worker belonged to.
	Service string

	// ExitCode is the process exit status, or -1 if the process was
	// terminated by a signal.
	ExitCode int

	// RunTime is how long the worker ran before exiting.
	RunTime time.Duration
}

func (w WorkerExit) String() string {
	return fmt.Sprintf("%s: exited %d after %v", w.Service, w.ExitCode, w.RunTime)
}
