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

package lifecycle

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bramblecore/procd/internal/account"
	"github.com/bramblecore/procd/internal/catalog"
)

// readOutput waits for path to be written and returns its trimmed content.
func readOutput(t *testing.T, path string) string {
	t.Helper()
	require.Eventually(t, func() bool {
		info, err := os.Stat(path)
		return err == nil && info.Size() > 0
	}, 2*time.Second, 20*time.Millisecond)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.TrimSpace(string(data))
}

// TestSpawnProcess_AccountSetsCredential exercises the Account branch of
// spawnProcess end to end: it drops to the test process's own uid/gid and
// checks the worker actually observes that identity rather than merely
// checking that cmd.SysProcAttr.Credential was populated. The runtime calls
// setgroups(2) for any Credential, so this needs CAP_SETGID even though
// the ids themselves are unchanged.
func TestSpawnProcess_AccountSetsCredential(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns a real process")
	}

	outPath := filepath.Join(t.TempDir(), "out")
	spec := &catalog.ServiceSpec{
		Name:           "priv-self",
		ExecutablePath: "/bin/sh",
		Arguments:      []string{"-c", fmt.Sprintf(`id -u > %s; id -g >> %s`, outPath, outPath)},
		Priority:       catalog.PriorityNormal,
		Account: &account.Account{
			Name: "self",
			UID:  os.Getuid(),
			GID:  os.Getgid(),
			Home: "/",
		},
	}

	result, err := spawnProcess(spec, -1)
	require.NoError(t, err)
	t.Cleanup(func() { syscall.Kill(result.pid, syscall.SIGKILL) })

	want := fmt.Sprintf("%d\n%d", os.Getuid(), os.Getgid())
	require.Equal(t, want, readOutput(t, outPath))
}

// TestSpawnProcess_AccountDropsPrivilegeToUnprivilegedUser exercises an
// actual privilege drop: run only as root (typical of a CI container or a
// developer's own root shell, never assumed otherwise), it resolves the
// "nobody" account and confirms the worker runs under nobody's uid, not
// root's.
func TestSpawnProcess_AccountDropsPrivilegeToUnprivilegedUser(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns a real process")
	}
	if os.Getuid() != 0 {
		t.Skip("privilege drop requires root")
	}

	acct, err := account.Lookup("nobody")
	if err != nil {
		t.Skipf("no nobody account on this system: %v", err)
	}

	// The temp dir is root-owned and 0700, so nobody cannot create a file
	// in it; the parent opens StdioPath instead and the worker writes to
	// its inherited stdout.
	outPath := filepath.Join(t.TempDir(), "out")
	spec := &catalog.ServiceSpec{
		Name:           "priv-drop",
		ExecutablePath: "/bin/sh",
		Arguments:      []string{"-c", "id -u"},
		StdioPath:      outPath,
		Priority:       catalog.PriorityNormal,
		Account:        acct,
	}

	result, err := spawnProcess(spec, -1)
	require.NoError(t, err)
	t.Cleanup(func() { syscall.Kill(result.pid, syscall.SIGKILL) })

	require.Equal(t, fmt.Sprintf("%d", acct.UID), readOutput(t, outPath))
}
