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

// Package changeset decides which compiled code units of an update are
// eligible to be swapped into the running system.
//
// Eligibility is subtractive: start from the components currently loaded,
// remove foundational runtime components, then remove individual units whose
// identity is itself a code-loading or supervision primitive. A live system
// cannot safely replace the machinery that performs the replacement.
package changeset

import (
	"path/filepath"
	"strings"
	"unicode"
)

// Unit is one available compiled code unit found in an update image.
type Unit struct {
	// ID is the unit's identity, e.g. "core_app_worker".
	ID string
	// Path is the unit's source location inside the update; its parent
	// component directory is named "<component>-<version>".
	Path string
}

// Entry is one unit selected for swapping.
type Entry struct {
	UnitID string
	Source string
}

// protectedComponents is the fixed deny-list of foundational components
// whose units are never swapped, no matter what the update ships.
var protectedComponents = map[string]bool{
	"kernel":   true,
	"stdlib":   true,
	"compiler": true,
	"sasl":     true,
	"runtime":  true,
	"eunit":    true,
}

// protectedIDs is the second, identity-level deny-list: process, module and
// code-loading primitives that must survive even if their owning component
// was somehow not excluded above.
var protectedIDs = map[string]bool{
	"init":            true,
	"erl_init":        true,
	"code":            true,
	"code_server":     true,
	"erlang":          true,
	"module_loader":   true,
	"proc_lib":        true,
	"supervisor":      true,
	"application":     true,
	"application_ctl": true,
}

// Resolve computes the ordered change set from the units available in an
// update and the set of component names currently loaded in the running
// system. It returns the eligible entries in input order plus the number of
// units that were filtered out, for diagnostics.
//
// Resolve is pure: it performs no I/O beyond the listing it is handed.
func Resolve(available []Unit, loaded map[string]bool) (entries []Entry, filtered int) {
	reloadable := make(map[string]bool, len(loaded))
	for name := range loaded {
		if !protectedComponents[name] {
			reloadable[name] = true
		}
	}

	for _, unit := range available {
		component := OwningComponent(unit.Path)
		if !reloadable[component] {
			filtered++
			continue
		}
		if protectedIDs[unit.ID] {
			filtered++
			continue
		}
		entries = append(entries, Entry{UnitID: unit.ID, Source: unit.Path})
	}
	return entries, filtered
}

// OwningComponent resolves a unit's owning component from its location:
// the name of the unit's component directory with any trailing version
// suffix stripped ("core_app-1.4.0" -> "core_app"). Unit paths look like
// ".../lib/<component>-<version>/ebin/<unit>.beam", so the component
// directory is two levels up from the unit file.
func OwningComponent(path string) string {
	dir := filepath.Dir(path)
	if filepath.Base(dir) == "ebin" {
		dir = filepath.Dir(dir)
	}
	return stripVersion(filepath.Base(dir))
}

// stripVersion removes a trailing "-<version>" suffix, where the version
// must start with a digit. Component names themselves may contain dashes.
func stripVersion(name string) string {
	if i := strings.LastIndex(name, "-"); i > 0 && i+1 < len(name) {
		if unicode.IsDigit(rune(name[i+1])) {
			return name[:i]
		}
	}
	return name
}
