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
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitReadable_ReturnsWhenDataArrives(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	done := make(chan error, 1)
	go func() {
		done <- WaitReadable(context.Background(), fds[0])
	}()

	time.Sleep(10 * time.Millisecond)
	_, err = unix.Write(fds[1], []byte("x"))
	require.NoError(t, err)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitReadable did not return after data arrived")
	}

	// The byte must still be there: WaitReadable must not have consumed it.
	buf := make([]byte, 1)
	n, err := unix.Read(fds[0], buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestWaitReadable_ContextCancellation(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = WaitReadable(ctx, fds[0])
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
