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
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeHandler struct {
	calls []int
}

func (f *fakeHandler) OnExit(state *State, exitCode int) {
	f.calls = append(f.calls, exitCode)
}

func TestRegistry_InsertFindRemove(t *testing.T) {
	h := &fakeHandler{}
	r := NewRegistry(h)
	state := NewState(specFor("svc"))

	_, ok := r.FindByPID(42)
	assert.False(t, ok)

	r.insert(42, state)
	assert.Equal(t, 1, r.Len())

	found, ok := r.FindByPID(42)
	assert.True(t, ok)
	assert.Same(t, state, found)

	r.remove(42)
	assert.Equal(t, 0, r.Len())
	_, ok = r.FindByPID(42)
	assert.False(t, ok)
}

func TestRegistry_RemoveUnknownPIDIsNoop(t *testing.T) {
	r := NewRegistry(&fakeHandler{})
	r.remove(999) // must not panic
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_OnChildReapedRoutesToHandler(t *testing.T) {
	h := &fakeHandler{}
	r := NewRegistry(h)
	state := NewState(specFor("svc"))
	r.insert(7, state)

	r.OnChildReaped(7, 3)
	assert.Equal(t, []int{3}, h.calls)
}

func TestRegistry_OnChildReapedUnknownPIDIsSilentlyDiscarded(t *testing.T) {
	h := &fakeHandler{}
	r := NewRegistry(h)

	// A multi-instance worker's pid was never inserted.
	r.OnChildReaped(123, 0)
	assert.Empty(t, h.calls)
}
