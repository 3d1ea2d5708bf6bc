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

// ExitHandler applies the restart policy for a reaped worker. *Engine
// implements it; Registry depends only on the interface so it can be
// constructed independently of Engine's own fields.
type ExitHandler interface {
	OnExit(state *State, exitCode int)
}

// Registry indexes live, non-multi-instance workers by pid. It is written
// only by a successful spawn and by OnChildReaped, both of which only run
// on the eventloop.Loop goroutine, so Registry carries no lock.
type Registry struct {
	byPID   map[int]*State
	handler ExitHandler
}

// NewRegistry creates an empty Registry that delegates exit handling to
// handler.
func NewRegistry(handler ExitHandler) *Registry {
	return &Registry{byPID: make(map[int]*State), handler: handler}
}

// FindByPID returns the State a live pid belongs to.
func (r *Registry) FindByPID(pid int) (*State, bool) {
	s, ok := r.byPID[pid]
	return s, ok
}

// insert records that pid belongs to state. Only called after a
// successful, non-multi-instance spawn.
func (r *Registry) insert(pid int, state *State) {
	r.byPID[pid] = state
}

// remove drops pid from the registry, regardless of whether it was
// present — a multi-instance service's exits are observed but were never
// inserted in the first place.
func (r *Registry) remove(pid int) {
	delete(r.byPID, pid)
}

// OnChildReaped resolves pid to its owning State and applies the restart
// policy. A pid belonging to a multi-instance service was never
// registered, so its exit is silently discarded here.
func (r *Registry) OnChildReaped(pid int, exitCode int) {
	state, ok := r.byPID[pid]
	if !ok {
		return
	}
	r.handler.OnExit(state, exitCode)
}

// Len reports how many live workers the registry currently tracks. Used
// by tests to assert bijectivity and by internal/metrics for a gauge.
func (r *Registry) Len() int {
	return len(r.byPID)
}
