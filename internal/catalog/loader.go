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

package catalog

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bramblecore/procd/internal/account"
	procderrors "github.com/bramblecore/procd/pkg/errors"
)

// maxUnixPathLen is sizeof(sockaddr_un.sun_path) on Linux, the platform
// this supervisor targets. Validated here, once, at load time, so
// internal/socketactivator never has to re-check it before bind(2).
const maxUnixPathLen = 108

// defaultSocketPermissions is applied when the catalog omits
// SocketPermissions.
const defaultSocketPermissions = 0600

// socketPermissionsMask is the maximum bit set SocketPermissions is
// allowed to carry.
const socketPermissionsMask = 0o4777

// Load walks groups, builds one ServiceSpec per catalog entry named in
// groups, and validates the cross-field invariants from the catalog
// format. It returns a *errors.ConfigError naming the offending key on
// the first failure.
func Load(handle ConfigHandle, groups []string, bootMode string) ([]*ServiceSpec, error) {
	specs := make([]*ServiceSpec, 0, len(groups))
	for _, name := range groups {
		if !handle.HasGroup(name) {
			return nil, &procderrors.ConfigError{Service: name, Reason: "no such group in catalog"}
		}

		spec, err := loadOne(handle, name)
		if err != nil {
			return nil, err
		}
		if err := Validate(spec); err != nil {
			return nil, err
		}
		spec.Enabled = spec.BootModes[bootMode]
		specs = append(specs, spec)
	}
	return specs, nil
}

func loadOne(handle ConfigHandle, name string) (*ServiceSpec, error) {
	spec := &ServiceSpec{Name: name}

	spec.ExecutablePath = handle.ReadEntry(name, "Executable", "/bin/"+name)
	spec.Arguments = splitNonEmpty(handle.ReadEntry(name, "Arguments", ""), ' ')
	spec.StdioPath = handle.ReadEntry(name, "StdIO")

	prio, err := parsePriority(handle.ReadEntry(name, "Priority", "normal"))
	if err != nil {
		return nil, &procderrors.ConfigError{Service: name, Key: "Priority", Reason: err.Error()}
	}
	spec.Priority = prio

	spec.KeepAlive = handle.ReadBoolEntry(name, "KeepAlive")
	spec.Lazy = handle.ReadBoolEntry(name, "Lazy")
	spec.MultiInstance = handle.ReadBoolEntry(name, "MultiInstance")
	spec.AcceptSocketConnections = handle.ReadBoolEntry(name, "AcceptSocketConnections")
	spec.WorkingDirectory = handle.ReadEntry(name, "WorkingDirectory")
	spec.Environment = splitNonEmpty(handle.ReadEntry(name, "Environment", ""), ' ')
	spec.SocketPath = handle.ReadEntry(name, "Socket")

	modes := splitNonEmpty(handle.ReadEntry(name, "BootModes", "graphical"), ',')
	spec.BootModes = make(map[string]bool, len(modes))
	for _, m := range modes {
		spec.BootModes[m] = true
	}

	permStr := handle.ReadEntry(name, "SocketPermissions", "0600")
	perms, err := strconv.ParseUint(permStr, 8, 32)
	if err != nil {
		return nil, &procderrors.ConfigError{Service: name, Key: "SocketPermissions", Reason: "not a valid octal mode: " + permStr}
	}
	spec.SocketPermissions = uint32(perms) & socketPermissionsMask

	if user := handle.ReadEntry(name, "User"); user != "" {
		acc, err := account.Lookup(user)
		if err != nil {
			return nil, &procderrors.ConfigError{Service: name, Key: "User", Reason: err.Error()}
		}
		spec.Account = acc
	}

	return spec, nil
}

// Validate enforces the cross-field invariants from the catalog format.
// It is exported separately from Load so a CLI validate subcommand can
// check a catalog without constructing a supervisor.
func Validate(spec *ServiceSpec) error {
	if spec.Name == "" {
		return &procderrors.ConfigError{Reason: "service name must not be empty"}
	}
	if spec.Lazy && spec.SocketPath == "" {
		return &procderrors.ConfigError{Service: spec.Name, Key: "Lazy", Reason: "requires Socket to be set"}
	}
	if spec.AcceptSocketConnections {
		if spec.SocketPath == "" || !spec.Lazy || !spec.MultiInstance {
			return &procderrors.ConfigError{
				Service: spec.Name,
				Key:     "AcceptSocketConnections",
				Reason:  "requires Socket, Lazy and MultiInstance all set",
			}
		}
	}
	if spec.MultiInstance && spec.KeepAlive {
		return &procderrors.ConfigError{Service: spec.Name, Key: "MultiInstance", Reason: "incompatible with KeepAlive"}
	}
	if spec.SocketPath != "" && len(spec.SocketPath) >= maxUnixPathLen {
		return &procderrors.ConfigError{
			Service: spec.Name,
			Key:     "Socket",
			Reason:  "path too long for a UNIX socket address",
		}
	}
	if len(spec.BootModes) == 0 {
		return &procderrors.ConfigError{Service: spec.Name, Key: "BootModes", Reason: "must not be empty"}
	}
	return nil
}

func parsePriority(value string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "low":
		return PriorityLow, nil
	case "normal", "":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	default:
		return 0, fmt.Errorf("unknown priority value: %s", value)
	}
}

// splitNonEmpty splits s on sep, discarding empty tokens, matching the
// original catalog format's split(separator) semantics: no quoting, and
// runs of the separator or a leading/trailing separator never produce an
// empty argument.
func splitNonEmpty(s string, sep byte) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, string(sep))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
