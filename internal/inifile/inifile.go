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

// Package inifile reads the INI-style catalog format procd's service
// catalog is written in: `[GroupName]` sections of `Key=Value` lines. It
// implements catalog.ConfigHandle so the catalog loader never parses INI
// syntax itself.
package inifile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// File is a parsed INI document: an ordered list of groups, each holding
// its key/value entries. The order of keys within a group is not kept.
type File struct {
	order  []string
	groups map[string]map[string]string
}

// Load reads and parses the file at path.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening catalog %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads an INI document from r.
func Parse(r io.Reader) (*File, error) {
	doc := &File{groups: make(map[string]map[string]string)}

	scanner := bufio.NewScanner(r)
	current := ""
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, ";") || strings.HasPrefix(text, "#") {
			continue
		}

		if strings.HasPrefix(text, "[") {
			if !strings.HasSuffix(text, "]") {
				return nil, fmt.Errorf("inifile: line %d: unterminated group header %q", line, text)
			}
			name := strings.TrimSpace(text[1 : len(text)-1])
			if name == "" {
				return nil, fmt.Errorf("inifile: line %d: empty group name", line)
			}
			if _, ok := doc.groups[name]; !ok {
				doc.order = append(doc.order, name)
				doc.groups[name] = make(map[string]string)
			}
			current = name
			continue
		}

		if current == "" {
			return nil, fmt.Errorf("inifile: line %d: key outside any group: %q", line, text)
		}

		key, value, ok := strings.Cut(text, "=")
		if !ok {
			return nil, fmt.Errorf("inifile: line %d: malformed entry %q", line, text)
		}
		doc.groups[current][strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("inifile: %w", err)
	}

	return doc, nil
}

// Groups returns the group names in the order they appeared in the file.
func (f *File) Groups() []string {
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

// HasGroup implements catalog.ConfigHandle.
func (f *File) HasGroup(name string) bool {
	_, ok := f.groups[name]
	return ok
}

// ReadEntry implements catalog.ConfigHandle. defaultValue, if given, is
// returned when the key is absent from the group; otherwise the empty
// string is returned.
func (f *File) ReadEntry(group, key string, defaultValue ...string) string {
	if g, ok := f.groups[group]; ok {
		if v, ok := g[key]; ok {
			return v
		}
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

// ReadBoolEntry implements catalog.ConfigHandle. "1" and "true"
// (case-insensitive) are true; every other value, including absence, is
// false.
func (f *File) ReadBoolEntry(group, key string) bool {
	v := strings.ToLower(f.ReadEntry(group, key))
	return v == "1" || v == "true"
}
