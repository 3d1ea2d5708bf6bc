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

// Package supervisor wires the catalog loader, the socket activator and
// the lifecycle engine into a running procd instance, and exposes the
// admin HTTP surface operators and Prometheus poll.
package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"vawter.tech/stopper"

	"github.com/bramblecore/procd/internal/catalog"
	"github.com/bramblecore/procd/internal/config"
	"github.com/bramblecore/procd/internal/eventloop"
	"github.com/bramblecore/procd/internal/inifile"
	"github.com/bramblecore/procd/internal/lifecycle"
	"github.com/bramblecore/procd/internal/log"
	"github.com/bramblecore/procd/internal/socketactivator"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// jobQueueDepth bounds how many pending jobs (accepted connections,
// reaped children, admin HTTP lookups) the loop will buffer before Post
// starts applying backpressure to whichever goroutine is posting fastest.
const jobQueueDepth = 256

// Supervisor owns the running instance: the loaded catalog, one
// lifecycle.State per service, the event loop goroutine, the SIGCHLD
// reaper, and the admin HTTP listener.
type Supervisor struct {
	cfg    *config.Config
	logger *slog.Logger
	bootID string

	loop      *eventloop.Loop
	engine    *lifecycle.Engine
	reaper    *eventloop.Reaper
	sctx      *stopper.Context
	cancelRun context.CancelFunc
	states    []*lifecycle.State

	pidfile         *PIDFileManager
	adminSrv        *http.Server
	adminLn         net.Listener
	adminSocketPath string

	mu      sync.Mutex
	started bool
}

// New loads cfg's catalog and constructs a Supervisor ready to Run. It
// does not spawn anything yet; that happens in Run.
func New(cfg *config.Config, logger *slog.Logger) (*Supervisor, error) {
	doc, err := inifile.Load(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	specs, err := catalog.Load(doc, doc.Groups(), cfg.BootMode)
	if err != nil {
		return nil, fmt.Errorf("validating catalog: %w", err)
	}

	loop := eventloop.New(jobQueueDepth)
	states := make([]*lifecycle.State, 0, len(specs))
	for _, spec := range specs {
		state := lifecycle.NewState(spec)
		if spec.SocketPath != "" {
			fd, err := socketactivator.Prepare(spec)
			if err != nil {
				return nil, err
			}
			state.ListenFD = fd
		}
		states = append(states, state)
	}

	return &Supervisor{
		cfg:     cfg,
		logger:  logger,
		bootID:  uuid.NewString(),
		loop:    loop,
		states:  states,
		pidfile: NewPIDFileManager(cfg.PIDFile),
	}, nil
}

// Run activates every enabled service, serves the admin HTTP surface, and
// blocks until ctx is cancelled or Shutdown is called. It returns once the
// event loop goroutine has stopped; it does not wait for the
// stopper-managed goroutines, which Shutdown stops and waits for.
func (s *Supervisor) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("supervisor already started")
	}
	s.started = true
	s.mu.Unlock()

	if err := s.pidfile.Create(os.Getpid(), s.bootID); err != nil {
		return fmt.Errorf("acquiring pid file: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRun = cancel
	defer cancel()

	s.sctx = stopper.WithContext(runCtx)
	s.engine = lifecycle.NewEngine(runCtx, s.loop, s.sctx, s.logger)
	s.reaper = eventloop.NewReaper(s.loop, s.engine.Registry().OnChildReaped)

	loopDone := make(chan struct{})
	go func() {
		s.loop.Run(runCtx)
		close(loopDone)
	}()

	s.sctx.Go(func(sctx *stopper.Context) error {
		s.reaper.Run(runCtx)
		return nil
	})

	for _, state := range s.states {
		state := state
		s.loop.Post(func() { s.engine.Activate(state) })
	}

	if err := s.startAdmin(); err != nil {
		return fmt.Errorf("starting admin listener: %w", err)
	}

	if s.cfg.StateFile != "" {
		if err := s.writeStateFile(); err != nil {
			s.logger.Warn("writing initial state file", log.Error(err))
		}
		s.sctx.Go(func(sctx *stopper.Context) error {
			s.persistStatePeriodically(sctx)
			return nil
		})
	}

	s.logger.Info("procd started",
		log.String("boot_id", s.bootID),
		log.String("boot_mode", s.cfg.BootMode),
		log.Int("service_count", len(s.states)),
	)

	<-runCtx.Done()
	<-loopDone
	return nil
}

// persistStatePeriodically rewrites cfg.StateFile every five seconds until
// sctx is told to stop, so a post-mortem read of the file after a crash is
// never more than one tick stale.
func (s *Supervisor) persistStatePeriodically(sctx *stopper.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.writeStateFile(); err != nil {
				s.logger.Warn("writing state file", log.Error(err))
			}
		case <-sctx.Stopping():
			return
		}
	}
}

// Shutdown stops the admin server, cancels the context Run's background
// goroutines watch, tells the stopper-managed ones to stop, waits up to
// cfg.ShutdownTimeout for all of them, and removes the pid file and any
// socket files this instance created. It is safe to call whether or not
// the ctx originally passed to Run has itself been cancelled.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	if s.cfg.StateFile != "" {
		if err := s.writeStateFile(); err != nil {
			s.logger.Warn("writing final state file", log.Error(err))
		}
	}

	if s.cancelRun != nil {
		s.cancelRun()
	}

	if s.adminSrv != nil {
		if err := s.adminSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("admin server did not shut down cleanly", log.Error(err))
		}
	}
	if s.adminSocketPath != "" {
		if err := os.Remove(s.adminSocketPath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("removing admin socket", log.Error(err))
		}
	}

	if s.sctx != nil {
		s.sctx.Stop(s.cfg.ShutdownTimeout)
		s.sctx.Wait()
	}

	for _, state := range s.states {
		if state.ListenFD >= 0 {
			_ = closeFD(state.ListenFD)
		}
		if state.Spec.SocketPath != "" {
			if err := os.Remove(state.Spec.SocketPath); err != nil && !os.IsNotExist(err) {
				s.logger.Warn("removing service socket",
					log.String(log.ServiceKey, state.Spec.Name),
					log.Error(err),
				)
			}
		}
	}

	if err := s.pidfile.Remove(); err != nil {
		s.logger.Warn("removing pid file", log.Error(err))
	}

	s.logger.Info("procd stopped")
	return nil
}

// startAdmin binds the admin listener named by cfg.AdminListen ("unix:path"
// or "tcp:addr") and serves /healthz, /metrics and /debug/services on it in
// a background goroutine.
func (s *Supervisor) startAdmin() error {
	if s.cfg.AdminListen == "" {
		return nil
	}

	network, address, ok := strings.Cut(s.cfg.AdminListen, ":")
	if !ok {
		return fmt.Errorf("malformed admin_listen %q", s.cfg.AdminListen)
	}
	if network == "unix" {
		_ = os.Remove(address)
		s.adminSocketPath = address
	}

	ln, err := net.Listen(network, address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.AdminListen, err)
	}
	s.adminLn = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/debug/services", s.handleDebugServices)

	s.adminSrv = &http.Server{Handler: mux}
	go func() {
		if err := s.adminSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("admin server exited", log.Error(err))
		}
	}()
	return nil
}

func (s *Supervisor) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Supervisor) handleDebugServices(w http.ResponseWriter, r *http.Request) {
	snapshots, err := s.collectSnapshots(s.cfg.ShutdownTimeout)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshots); err != nil {
		s.logger.Error("encoding /debug/services response", log.Error(err))
	}
}

// collectSnapshots asks the event loop for a Snapshot of every service and
// waits up to timeout for the reply. It is the only way to read
// lifecycle.State outside the loop goroutine.
func (s *Supervisor) collectSnapshots(timeout time.Duration) (map[string]lifecycle.Snapshot, error) {
	type result struct {
		snap lifecycle.Snapshot
		name string
	}
	results := make(chan []result, 1)
	s.loop.Post(func() {
		out := make([]result, 0, len(s.states))
		for _, state := range s.states {
			out = append(out, result{snap: state.Snapshot(), name: state.Spec.Name})
		}
		results <- out
	})

	var snapshots []result
	select {
	case snapshots = <-results:
	case <-time.After(timeout):
		return nil, errors.New("timed out reading service state")
	}

	out := make(map[string]lifecycle.Snapshot, len(snapshots))
	for _, r := range snapshots {
		out[r.name] = r.snap
	}
	return out, nil
}

// stateFileEnvelope is the JSON document persisted to cfg.StateFile,
// intended for post-mortem inspection after a crash rather than for
// operator polling — /debug/services serves that role while procd is
// alive.
type stateFileEnvelope struct {
	BootID      string                        `json:"boot_id"`
	GeneratedAt time.Time                     `json:"generated_at"`
	Services    map[string]lifecycle.Snapshot `json:"services"`
}

func (s *Supervisor) writeStateFile() error {
	snapshots, err := s.collectSnapshots(s.cfg.ShutdownTimeout)
	if err != nil {
		return fmt.Errorf("collecting snapshots: %w", err)
	}

	envelope := stateFileEnvelope{
		BootID:      s.bootID,
		GeneratedAt: time.Now(),
		Services:    snapshots,
	}
	data, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling state file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.cfg.StateFile), 0755); err != nil {
		return fmt.Errorf("creating state file directory: %w", err)
	}
	if err := renameio.WriteFile(s.cfg.StateFile, data, 0644); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}
	return nil
}
