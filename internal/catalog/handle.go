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

// ConfigHandle is the read-only view of a parsed catalog that Load
// consumes. internal/inifile.File implements it; tests use a map-backed
// fake so the loader's field-mapping logic can be verified without any
// file I/O.
type ConfigHandle interface {
	// HasGroup reports whether the catalog defines a service named name.
	HasGroup(name string) bool

	// ReadEntry returns the string value of key within group. If the key
	// is absent, the first element of defaultValue is returned, or "" if
	// defaultValue is empty.
	ReadEntry(group, key string, defaultValue ...string) string

	// ReadBoolEntry returns whether key within group is set to a truthy
	// value. Absence is false.
	ReadBoolEntry(group, key string) bool
}
