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

// Package partition tracks the three redundant boot slots and decides which
// one is safe to overwrite next.
//
// A device has three slots, "a", "b" and "c". The booted slot is the one the
// running kernel actually started from and cannot change until the next
// physical boot. The active slot is the boot pointer: the slot the bootloader
// will use on the next boot, updated every time a firmware write completes.
// The next write target must never touch either of those.
package partition

import (
	"errors"
	"fmt"
	"strings"
)

// ID identifies one of the three boot slots.
type ID string

const (
	A ID = "a"
	B ID = "b"
	C ID = "c"
)

// All lists the valid slots in lexicographic order.
var All = []ID{A, B, C}

// Valid reports whether id is one of the three known slots.
func (id ID) Valid() bool {
	return id == A || id == B || id == C
}

// Parse converts a slot label (any case) to an ID.
func Parse(s string) (ID, error) {
	id := ID(strings.ToLower(strings.TrimSpace(s)))
	if !id.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidState, s)
	}
	return id, nil
}

var (
	// ErrNotValidated is returned when the current boot has not been marked
	// validated, in which case no slot may be overwritten.
	ErrNotValidated = errors.New("current boot not validated")

	// ErrInvalidState is returned when booted or active is not a known slot.
	ErrInvalidState = errors.New("invalid partition state")

	// ErrNoAvailablePartition is returned when no slot remains after
	// excluding booted and active. Unreachable with valid inputs.
	ErrNoAvailablePartition = errors.New("no available partition")
)

// NextWriteTarget computes the slot that is safe to overwrite given the
// booted slot and the active slot (boot pointer). It never returns booted or
// active.
//
// Immediately after a physical boot, booted and active are equal and two
// slots are available; the lexicographically first one is returned. This
// tie-break is deliberate and fixed: callers and tooling rely on the
// rotation being deterministic.
func NextWriteTarget(booted, active ID, validated bool) (ID, error) {
	if !validated {
		return "", ErrNotValidated
	}
	if !booted.Valid() {
		return "", fmt.Errorf("%w: booted partition %q", ErrInvalidState, string(booted))
	}
	if !active.Valid() {
		return "", fmt.Errorf("%w: active partition %q", ErrInvalidState, string(active))
	}

	var available []ID
	for _, id := range All {
		if id != booted && id != active {
			available = append(available, id)
		}
	}
	switch len(available) {
	case 1:
		// Steady state after the first write.
		return available[0], nil
	case 2:
		// Fresh boot, booted == active. All is lexicographically ordered, so
		// the first element is the tie-break winner.
		return available[0], nil
	}
	return "", ErrNoAvailablePartition
}

// SimulateSequence applies the rotation rule n times starting from a fresh
// boot of the given slot, feeding each result back as the next active slot.
// The returned sequence starts with booted itself, so its length is n+1.
// After the first step the sequence alternates between the two non-booted
// slots forever.
func SimulateSequence(booted ID, n int) ([]ID, error) {
	seq := []ID{booted}
	active := booted
	for i := 0; i < n; i++ {
		next, err := NextWriteTarget(booted, active, true)
		if err != nil {
			return nil, err
		}
		seq = append(seq, next)
		active = next
	}
	return seq, nil
}
