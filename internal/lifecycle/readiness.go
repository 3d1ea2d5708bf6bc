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
	"net"
	"os"

	"vawter.tech/stopper"

	"github.com/bramblecore/procd/internal/eventloop"
	"github.com/bramblecore/procd/internal/log"
	"github.com/bramblecore/procd/internal/metrics"
)

// arm registers state's listener with the readiness notifier appropriate
// to its catalog entry: an accept loop for accept_socket_connections
// services, or a single WaitReadable wait for the plain lazy handoff.
// Both run on background goroutines and only ever touch state again by
// posting a job back to e.loop.
func (e *Engine) arm(state *State) {
	if state.ListenerArmed {
		return
	}
	state.ListenerArmed = true
	metrics.SetListenerArmed(state.Spec.Name, true)

	if state.Spec.AcceptSocketConnections {
		e.sctx.Go(func(sctx *stopper.Context) error {
			e.acceptLoop(sctx, state)
			return nil
		})
		return
	}

	e.sctx.Go(func(sctx *stopper.Context) error {
		e.waitAndHandOff(sctx, state)
		return nil
	})
}

// acceptLoop implements the inetd-style variant: it accepts connections
// off state's listener for as long as the supervisor runs, spawning one
// worker instance per connection and handing that connection's fd off as
// fd 3. The listener itself is never handed off, so it keeps accepting
// while workers come and go.
func (e *Engine) acceptLoop(sctx *stopper.Context, state *State) {
	f := os.NewFile(uintptr(state.ListenFD), state.Spec.SocketPath)
	ln, err := net.FileListener(f)
	f.Close()
	if err != nil {
		e.logger.Error("arming listener failed",
			log.String(log.ServiceKey, state.Spec.Name),
			log.Error(err),
		)
		return
	}

	stopped := make(chan struct{})
	go func() {
		select {
		case <-sctx.Stopping():
			ln.Close()
		case <-stopped:
		}
	}()
	defer close(stopped)
	defer ln.Close()

	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		uc, ok := conn.(*net.UnixConn)
		if !ok {
			conn.Close()
			continue
		}
		connFile, err := uc.File()
		uc.Close()
		if err != nil {
			e.logger.Error("accepted connection has no backing fd",
				log.String(log.ServiceKey, state.Spec.Name),
				log.Error(err),
			)
			continue
		}
		fd := int(connFile.Fd())
		e.loop.Post(func() {
			e.spawnAccepted(state, fd)
			connFile.Close()
		})
	}
}

// waitAndHandOff implements the plain lazy variant: it blocks until the
// listener has a pending connection, then hands the whole listening
// socket off to a freshly spawned worker and disarms itself. The worker
// itself accepts; procd never does for this variant.
func (e *Engine) waitAndHandOff(sctx *stopper.Context, state *State) {
	err := eventloop.WaitReadable(e.ctx, state.ListenFD)
	if err != nil {
		return
	}
	e.loop.Post(func() {
		state.ListenerArmed = false
		metrics.SetListenerArmed(state.Spec.Name, false)
		e.spawn(state, state.ListenFD)
	})
}
