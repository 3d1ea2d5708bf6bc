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

// Package socketactivator creates and binds the UNIX-domain listening
// sockets a lazy or eager service declares, before any worker for that
// service exists. The resulting fd outlives every worker restart.
package socketactivator

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/bramblecore/procd/internal/catalog"
	procderrors "github.com/bramblecore/procd/pkg/errors"
)

// listenBacklog is fixed, not configurable.
const listenBacklog = 16

// Prepare creates, binds and starts listening on spec's socket, and
// returns the resulting file descriptor. It is only called for specs with
// a non-empty SocketPath. The socket is created with close-on-exec and
// non-blocking set; the lifecycle engine clears close-on-exec on the copy
// it hands to a worker via os/exec's ExtraFiles.
func Prepare(spec *catalog.ServiceSpec) (int, error) {
	dir := filepath.Dir(spec.SocketPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return -1, &procderrors.SocketSetupError{Service: spec.Name, Op: "mkdir", Path: dir, Cause: err}
	}

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return -1, &procderrors.SocketSetupError{Service: spec.Name, Op: "socket", Cause: err}
	}

	if spec.Account != nil {
		if err := unix.Fchown(fd, spec.Account.UID, spec.Account.GID); err != nil {
			unix.Close(fd)
			return -1, &procderrors.SocketSetupError{Service: spec.Name, Op: "fchown", Path: spec.SocketPath, Cause: err}
		}
	}

	if err := unix.Fchmod(fd, spec.SocketPermissions); err != nil {
		unix.Close(fd)
		return -1, &procderrors.SocketSetupError{Service: spec.Name, Op: "fchmod", Path: spec.SocketPath, Cause: err}
	}

	addr := &unix.SockaddrUnix{Name: spec.SocketPath}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return -1, &procderrors.SocketSetupError{Service: spec.Name, Op: "bind", Path: spec.SocketPath, Cause: err}
	}

	// bind(2) creates the socket file owned by procd and with the fd's mode
	// masked by the umask, so owner and mode are applied to the path too.
	if spec.Account != nil {
		if err := unix.Chown(spec.SocketPath, spec.Account.UID, spec.Account.GID); err != nil {
			unix.Close(fd)
			return -1, &procderrors.SocketSetupError{Service: spec.Name, Op: "chown", Path: spec.SocketPath, Cause: err}
		}
	}
	if err := unix.Chmod(spec.SocketPath, spec.SocketPermissions); err != nil {
		unix.Close(fd)
		return -1, &procderrors.SocketSetupError{Service: spec.Name, Op: "chmod", Path: spec.SocketPath, Cause: err}
	}

	if err := unix.Listen(fd, listenBacklog); err != nil {
		unix.Close(fd)
		return -1, &procderrors.SocketSetupError{Service: spec.Name, Op: "listen", Path: spec.SocketPath, Cause: err}
	}

	return fd, nil
}
