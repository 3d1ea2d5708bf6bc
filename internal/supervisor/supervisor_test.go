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

package supervisor

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bramblecore/procd/internal/config"
	"github.com/bramblecore/procd/internal/lifecycle"
	"github.com/bramblecore/procd/internal/log"
)

func writeCatalog(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "services.ini")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func testConfig(t *testing.T, catalogPath string) *config.Config {
	cfg := config.Default()
	cfg.CatalogPath = catalogPath
	cfg.PIDFile = filepath.Join(t.TempDir(), "procd.pid")
	cfg.AdminListen = "unix:" + filepath.Join(t.TempDir(), "admin.sock")
	cfg.StateFile = ""
	cfg.ShutdownTimeout = time.Second
	return cfg
}

func TestNew_LoadsCatalogIntoStates(t *testing.T) {
	path := writeCatalog(t, "[Getty]\nExecutable=/bin/true\n")
	cfg := testConfig(t, path)

	sup, err := New(cfg, log.New(log.DefaultConfig()))
	require.NoError(t, err)
	require.Len(t, sup.states, 1)
	require.Equal(t, "Getty", sup.states[0].Spec.Name)
	require.Equal(t, -1, sup.states[0].ListenFD)
}

func TestNew_PreparesSocketForLazyServices(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "svc.sock")
	path := writeCatalog(t, "[Echo]\nExecutable=/bin/true\nLazy=true\nSocket="+sockPath+"\n")
	cfg := testConfig(t, path)

	sup, err := New(cfg, log.New(log.DefaultConfig()))
	require.NoError(t, err)
	require.Len(t, sup.states, 1)
	require.GreaterOrEqual(t, sup.states[0].ListenFD, 0)
	t.Cleanup(func() { closeFD(sup.states[0].ListenFD) })
}

func TestNew_RejectsInvalidCatalogEntry(t *testing.T) {
	path := writeCatalog(t, "[Bad]\nExecutable=/bin/true\nSocketPermissions=notoctal\n")
	cfg := testConfig(t, path)

	_, err := New(cfg, log.New(log.DefaultConfig()))
	require.Error(t, err)
}

func TestNew_InvalidCatalogPathFails(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "does-not-exist.ini"))

	_, err := New(cfg, log.New(log.DefaultConfig()))
	require.Error(t, err)
}

func TestRun_ServesAdminHealthzAndDebugServices(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns a real process and a listener")
	}

	path := writeCatalog(t, "[Idle]\nExecutable=/bin/sleep\nArguments=5\nKeepAlive=false\n")
	cfg := testConfig(t, path)
	adminSock := filepath.Join(t.TempDir(), "admin.sock")
	cfg.AdminListen = "unix:" + adminSock

	sup, err := New(cfg, log.New(log.DefaultConfig()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- sup.Run(ctx) }()

	client := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				return net.Dial("unix", adminSock)
			},
		},
	}

	require.Eventually(t, func() bool {
		resp, err := client.Get("http://admin/healthz")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	resp, err := client.Get("http://admin/debug/services")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var snapshots map[string]lifecycle.Snapshot
	require.NoError(t, json.Unmarshal(body, &snapshots))
	require.Contains(t, snapshots, "Idle")
	if pid := snapshots["Idle"].PID; pid != nil {
		t.Cleanup(func() { syscall.Kill(*pid, syscall.SIGKILL) })
	}

	require.NoError(t, sup.Shutdown(context.Background()))
	require.NoError(t, <-runDone)
}

func TestShutdown_WritesFinalStateFile(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns a real process")
	}

	path := writeCatalog(t, "[Idle]\nExecutable=/bin/sleep\nArguments=5\nKeepAlive=false\n")
	cfg := testConfig(t, path)
	cfg.StateFile = filepath.Join(t.TempDir(), "state", "state.json")

	sup, err := New(cfg, log.New(log.DefaultConfig()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- sup.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(cfg.StateFile)
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)

	data, err := os.ReadFile(cfg.StateFile)
	require.NoError(t, err)
	var envelope stateFileEnvelope
	require.NoError(t, json.Unmarshal(data, &envelope))
	require.NotEmpty(t, envelope.BootID)
	require.Contains(t, envelope.Services, "Idle")
	if pid := envelope.Services["Idle"].PID; pid != nil {
		t.Cleanup(func() { syscall.Kill(*pid, syscall.SIGKILL) })
	}

	require.NoError(t, sup.Shutdown(context.Background()))
	require.NoError(t, <-runDone)
}
