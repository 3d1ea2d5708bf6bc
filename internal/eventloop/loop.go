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

// Package eventloop provides the single-threaded cooperative scheduling
// primitive the rest of procd is built on: a job queue drained by exactly
// one goroutine, plus a SIGCHLD reaper and a readiness-poll helper that
// only ever communicate with the rest of the program by posting jobs onto
// it. Nothing outside this package touches a signal or a raw poll(2) call.
package eventloop

import "context"

// Job is a unit of work run on the loop's single goroutine.
type Job func()

// Loop serializes callbacks from multiple goroutines (an accept loop, the
// SIGCHLD reaper, admin HTTP handlers) onto one goroutine, so the
// lifecycle engine and registry never need a mutex.
type Loop struct {
	jobs chan Job
}

// New creates a Loop with the given job queue depth.
func New(queueDepth int) *Loop {
	return &Loop{jobs: make(chan Job, queueDepth)}
}

// Post enqueues job to run on the loop's goroutine. It is safe to call
// from any goroutine, including from within a job itself. Post never
// blocks the caller once the loop is running with room in its queue; a
// full queue applies natural backpressure to whichever goroutine is
// posting fastest.
func (l *Loop) Post(job Job) {
	l.jobs <- job
}

// Run drains the job queue on the calling goroutine until ctx is
// cancelled. Exactly one goroutine should ever call Run for a given Loop.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-l.jobs:
			job()
		}
	}
}
