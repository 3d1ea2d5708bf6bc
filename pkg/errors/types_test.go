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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigError(t *testing.T) {
	err := &ConfigError{Service: "getty", Key: "priority", Reason: "out of range"}
	assert.Equal(t, "getty: priority: out of range", err.Error())
	assert.Equal(t, "config", err.ErrorType())
	assert.False(t, err.IsRetryable())

	bare := &ConfigError{Service: "getty", Reason: "missing executable key"}
	assert.Equal(t, "getty: missing executable key", bare.Error())
}

func TestSocketSetupError_Unwrap(t *testing.T) {
	cause := errors.New("address already in use")
	err := &SocketSetupError{Service: "webserver", Op: "bind", Path: "/run/procd/webserver.sock", Cause: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "webserver.sock")
	assert.True(t, err.IsRetryable())
}

func TestSpawnError_Unwrap(t *testing.T) {
	cause := errors.New("permission denied")
	err := &SpawnError{Service: "syslogd", Cause: cause}

	var target *SpawnError
	require.ErrorAs(t, err, &target)
	assert.Same(t, err, target)
	assert.ErrorIs(t, err, cause)
}

func TestChildSetupError(t *testing.T) {
	cause := errors.New("unknown user \"nobody99\"")
	err := &ChildSetupError{Service: "webserver", Step: "setuid", Cause: cause}

	assert.Equal(t, "webserver: setuid: unknown user \"nobody99\"", err.Error())
	assert.False(t, err.IsRetryable())
}

func TestWorkerExit_String(t *testing.T) {
	w := WorkerExit{Service: "cron", ExitCode: 1, RunTime: 250 * time.Millisecond}
	assert.Contains(t, w.String(), "cron")
	assert.Contains(t, w.String(), "exited 1")
}

func TestErrorClassifierSatisfiedByAllKinds(t *testing.T) {
	var classifiers = []interface {
		error
		ErrorType() string
		IsRetryable() bool
	}{
		&ConfigError{Service: "x", Reason: "y"},
		&SocketSetupError{Service: "x", Op: "bind", Cause: errors.New("boom")},
		&SpawnError{Service: "x", Cause: errors.New("boom")},
		&ChildSetupError{Service: "x", Step: "chdir", Cause: errors.New("boom")},
	}
	for _, c := range classifiers {
		assert.NotEmpty(t, c.ErrorType())
	}
}
