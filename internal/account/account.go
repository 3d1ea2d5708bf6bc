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

// Package account resolves a UNIX account name into the uid, gid,
// supplementary group ids and home directory the lifecycle engine needs to
// drop privileges before exec'ing a worker. It is a thin wrapper over
// os/user; the catalog and lifecycle packages never call os/user directly.
package account

import (
	"fmt"
	"os/user"
	"strconv"
)

// Account is the resolved identity a worker should run as.
type Account struct {
	// Name is the account name as it appeared in the catalog.
	Name string

	// UID and GID are the account's primary user and group ids.
	UID int
	GID int

	// SupplementaryGIDs are every group the account belongs to besides GID.
	SupplementaryGIDs []int

	// Home is the account's home directory, exported to workers as HOME.
	Home string
}

// Lookup resolves name to an Account. It fails if the account does not
// exist or if any of its numeric fields cannot be parsed.
func Lookup(name string) (*Account, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return nil, fmt.Errorf("account %q: %w", name, err)
	}

	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return nil, fmt.Errorf("account %q: malformed uid %q: %w", name, u.Uid, err)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return nil, fmt.Errorf("account %q: malformed gid %q: %w", name, u.Gid, err)
	}

	groupIDs, err := u.GroupIds()
	if err != nil {
		return nil, fmt.Errorf("account %q: listing groups: %w", name, err)
	}

	supplementary := make([]int, 0, len(groupIDs))
	for _, g := range groupIDs {
		id, err := strconv.Atoi(g)
		if err != nil {
			return nil, fmt.Errorf("account %q: malformed supplementary gid %q: %w", name, g, err)
		}
		if id == gid {
			continue
		}
		supplementary = append(supplementary, id)
	}

	return &Account{
		Name:              name,
		UID:               uid,
		GID:               gid,
		SupplementaryGIDs: supplementary,
		Home:              u.HomeDir,
	}, nil
}
