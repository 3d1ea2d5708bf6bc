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
	"fmt"

	"golang.org/x/sys/unix"
)

// pollIntervalMillis bounds how long WaitReadable blocks between checks of
// ctx.Done(), since unix.Poll has no way to also wait on a Go context.
const pollIntervalMillis = 250

// WaitReadable blocks until fd has data available to read, without
// consuming it — unlike net.Listener.Accept, it never removes anything
// from fd's backlog. This is what lets the handoff variant of the
// readiness notifier detect a waiting connection and then hand the whole
// listener fd to a freshly spawned worker, which performs the accept
// itself.
func WaitReadable(ctx context.Context, fd int) error {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := unix.Poll(fds, pollIntervalMillis)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("poll fd %d: %w", fd, err)
		}
		if n > 0 && fds[0].Revents&unix.POLLIN != 0 {
			return nil
		}
	}
}
