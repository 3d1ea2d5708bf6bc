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

package inifile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
; a comment
[WebServer]
Executable=/bin/WebServer
KeepAlive=1
Priority=high

[Getty]
# another comment style
Lazy=true
Socket=/tmp/getty.sock
SocketPermissions=0660
`

func TestParse_GroupsAndEntries(t *testing.T) {
	doc, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	assert.Equal(t, []string{"WebServer", "Getty"}, doc.Groups())
	assert.True(t, doc.HasGroup("WebServer"))
	assert.False(t, doc.HasGroup("Missing"))

	assert.Equal(t, "/bin/WebServer", doc.ReadEntry("WebServer", "Executable"))
	assert.True(t, doc.ReadBoolEntry("WebServer", "KeepAlive"))
	assert.True(t, doc.ReadBoolEntry("Getty", "Lazy"))
	assert.Equal(t, "0660", doc.ReadEntry("Getty", "SocketPermissions"))
}

func TestReadEntry_Default(t *testing.T) {
	doc, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	assert.Equal(t, "", doc.ReadEntry("WebServer", "Arguments"))
	assert.Equal(t, "fallback", doc.ReadEntry("WebServer", "Arguments", "fallback"))
	assert.Equal(t, "", doc.ReadEntry("NoSuchGroup", "Key"))
}

func TestReadBoolEntry_AbsentIsFalse(t *testing.T) {
	doc, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	assert.False(t, doc.ReadBoolEntry("WebServer", "Lazy"))
	assert.False(t, doc.ReadBoolEntry("Getty", "MultiInstance"))
}

func TestParse_RejectsKeyOutsideGroup(t *testing.T) {
	_, err := Parse(strings.NewReader("Executable=/bin/foo\n"))
	assert.Error(t, err)
}

func TestParse_RejectsMalformedEntry(t *testing.T) {
	_, err := Parse(strings.NewReader("[Group]\nnotanentry\n"))
	assert.Error(t, err)
}

func TestParse_RejectsUnterminatedGroup(t *testing.T) {
	_, err := Parse(strings.NewReader("[Group\nKey=Value\n"))
	assert.Error(t, err)
}
