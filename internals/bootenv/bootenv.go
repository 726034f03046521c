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

// Package bootenv abstracts the boot-environment key/value store shared
// between the updater and the bootloader. It is injected into every
// component that needs boot state rather than accessed as ambient globals.
package bootenv

// Keys used by the updater. The booted partition is written once per
// physical boot and read-only afterwards; the active partition is the boot
// pointer, rewritten after every firmware write. The pending-swap pair is
// written before a swap attempt so that a crash between partition write and
// swap completion is detectable on the next boot.
const (
	KeyBootedPartition = "nzd.booted_partition"
	KeyActivePartition = "nzd.active_partition"
	KeyPendingSwap     = "nzd.pending_swap"
	KeyPendingVersion  = "nzd.pending_version"
)

// SlotKey returns the per-slot metadata key for the given slot label and
// suffix, e.g. SlotKey("a", "version") -> "nzd.a.version".
func SlotKey(slot, suffix string) string {
	return "nzd." + slot + "." + suffix
}

// Store is a boot-environment key/value store.
type Store interface {
	// Get returns the value for key, or "" if unset.
	Get(key string) string

	// Set stages a new value for key. Staged values are not durable until
	// Save is called.
	Set(key, value string)

	// Unset removes key. Like Set, durable only after Save.
	Unset(key string)

	// Save writes all staged changes durably.
	Save() error

	// Reload discards the cached view and re-reads the backing store.
	// Required after another writer (the bootloader) may have changed it.
	Reload() error
}
