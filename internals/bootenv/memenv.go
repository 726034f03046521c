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

import "sync"

// MemEnv is an in-memory Store used by tests and by dry runs.
type MemEnv struct {
	mu     sync.Mutex
	values map[string]string

	// SaveErr, if set, is returned by Save. Lets tests exercise failing
	// boot-environment writes.
	SaveErr error

	// Saves counts successful Save calls.
	Saves int
}

// NewMemEnv creates an in-memory store seeded with the given values.
func NewMemEnv(values map[string]string) *MemEnv {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &MemEnv{values: copied}
}

func (e *MemEnv) Get(key string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.values[key]
}

func (e *MemEnv) Set(key, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.values[key] = value
}

func (e *MemEnv) Unset(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.values, key)
}

func (e *MemEnv) Save() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.SaveErr != nil {
		return e.SaveErr
	}
	e.Saves++
	return nil
}

func (e *MemEnv) Reload() error { return nil }
