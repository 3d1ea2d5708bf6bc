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

package supervisor

import "golang.org/x/sys/unix"

// closeFD closes a raw listener fd prepared by internal/socketactivator.
// Prepare never wraps its fd in an *os.File, so plain unix.Close is the
// only way to release it at shutdown.
func closeFD(fd int) error {
	return unix.Close(fd)
}
