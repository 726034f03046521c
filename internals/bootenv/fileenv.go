// Copyright (c) 2024 Big Cove Technologies Ltd
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License version 3 as
// published by the Free Software Foundation.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package bootenv

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/Big-Cove/nerves-zero-downtime/internals/osutil"
)

// FileEnv is a Store backed by a plain-text environment file, one
// "key=value" per line, sorted by key. This is the format the device build
// exposes for boot state on platforms without a dedicated env block.
type FileEnv struct {
	path string

	mu     sync.Mutex
	values map[string]string
	loaded bool
}

// NewFileEnv creates a file-backed store at path. The file need not exist
// yet; it is created on the first Save.
func NewFileEnv(path string) *FileEnv {
	return &FileEnv{path: path}
}

func (e *FileEnv) loadLocked() error {
	if e.loaded {
		return nil
	}
	values := make(map[string]string)
	data, err := os.ReadFile(e.path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("cannot read boot environment: %w", err)
		}
	} else {
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			key, value, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			values[key] = value
		}
	}
	e.values = values
	e.loaded = true
	return nil
}

func (e *FileEnv) Get(key string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.loadLocked(); err != nil {
		return ""
	}
	return e.values[key]
}

func (e *FileEnv) Set(key, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.loadLocked(); err != nil {
		e.values = make(map[string]string)
		e.loaded = true
	}
	e.values[key] = value
}

func (e *FileEnv) Unset(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.loadLocked(); err != nil {
		return
	}
	delete(e.values, key)
}

func (e *FileEnv) Save() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.loadLocked(); err != nil {
		return err
	}
	keys := make([]string, 0, len(e.values))
	for k := range e.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, e.values[k])
	}
	if err := osutil.AtomicWriteFile(e.path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("cannot save boot environment: %w", err)
	}
	return nil
}

func (e *FileEnv) Reload() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loaded = false
	return e.loadLocked()
}
