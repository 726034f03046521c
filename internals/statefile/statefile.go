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

// Package statefile keeps the updater's durable record: which version is
// running, which is staged, and a bounded history of past updates.
//
// The store is the sole writer of the state file; everything else only
// reads. Writes are atomic so a crash leaves the previous known-good record
// in place, never a half-written one.
package statefile

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Big-Cove/nerves-zero-downtime/internals/osutil"
	"github.com/Big-Cove/nerves-zero-downtime/internals/partition"
)

// maxHistory bounds the update history; the oldest record is silently
// dropped when a new one arrives.
const maxHistory = 10

// Outcome says how an update was applied.
type Outcome string

const (
	OutcomeSwapped  Outcome = "swapped"
	OutcomeRebooted Outcome = "rebooted"
)

// Record is one completed update.
type Record struct {
	Time        time.Time `json:"time"`
	FromVersion string    `json:"from-version"`
	ToVersion   string    `json:"to-version"`
	Outcome     Outcome   `json:"outcome"`
}

// State is the updater's persisted state. History is ordered newest first.
type State struct {
	CurrentVersion     string       `json:"current-version"`
	StagedVersion      string       `json:"staged-version,omitempty"`
	ActivePartition    partition.ID `json:"active-partition"`
	LastSuccessfulSwap *time.Time   `json:"last-successful-swap,omitempty"`
	History            []Record     `json:"history,omitempty"`
}

// Seeder supplies live system values used to create the state lazily on
// first read when no prior state file exists.
type Seeder func() (currentVersion string, active partition.ID)

// Store reads and writes the state file.
type Store struct {
	path   string
	seeder Seeder

	mu    sync.Mutex
	state *State
}

// NewStore creates a store for the state file at path. The seeder is
// consulted only if the file does not exist on first read.
func NewStore(path string, seeder Seeder) *Store {
	return &Store{path: path, seeder: seeder}
}

// Load returns a copy of the current state, creating and persisting it from
// the seeder if no state file exists yet.
func (s *Store) Load() (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return nil, err
	}
	return s.copyLocked(), nil
}

func (s *Store) loadLocked() error {
	if s.state != nil {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		version, active := "", partition.A
		if s.seeder != nil {
			version, active = s.seeder()
		}
		s.state = &State{CurrentVersion: version, ActivePartition: active}
		return s.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("cannot read state file: %w", err)
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("cannot parse state file %s: %w", s.path, err)
	}
	s.state = &state
	return nil
}

func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(s.state, "", "\t")
	if err != nil {
		return fmt.Errorf("cannot marshal state: %w", err)
	}
	if err := osutil.AtomicWriteFile(s.path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("cannot write state file: %w", err)
	}
	return nil
}

func (s *Store) copyLocked() *State {
	copied := *s.state
	copied.History = append([]Record(nil), s.state.History...)
	if s.state.LastSuccessfulSwap != nil {
		t := *s.state.LastSuccessfulSwap
		copied.LastSuccessfulSwap = &t
	}
	return &copied
}

// SetStaged records that a new version has been written to a partition and
// is waiting to become current.
func (s *Store) SetStaged(version string, active partition.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return err
	}
	s.state.StagedVersion = version
	s.state.ActivePartition = active
	return s.saveLocked()
}

// ClearStaged drops the staged version after a failed update and points
// the state back at the partition that stayed active, so the file agrees
// with the restored boot environment.
func (s *Store) ClearStaged(active partition.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return err
	}
	s.state.StagedVersion = ""
	s.state.ActivePartition = active
	return s.saveLocked()
}

// MarkBooted records that the device is now running version on the given
// partition, finalizing a reboot-applied update.
func (s *Store) MarkBooted(version string, active partition.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return err
	}
	if version != "" {
		s.state.CurrentVersion = version
	}
	s.state.StagedVersion = ""
	s.state.ActivePartition = active
	return s.saveLocked()
}

// RecordUpdate appends a completed update to the history and rolls the
// version pointers forward. It is the single mutation point for completed
// updates: history stays newest-first and capped at 10 entries.
func (s *Store) RecordUpdate(now time.Time, toVersion string, outcome Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return err
	}

	record := Record{
		Time:        now,
		FromVersion: s.state.CurrentVersion,
		ToVersion:   toVersion,
		Outcome:     outcome,
	}
	s.state.History = append([]Record{record}, s.state.History...)
	if len(s.state.History) > maxHistory {
		s.state.History = s.state.History[:maxHistory]
	}
	s.state.StagedVersion = ""
	if outcome == OutcomeSwapped {
		s.state.CurrentVersion = toVersion
		t := now
		s.state.LastSuccessfulSwap = &t
	}
	// On reboot outcomes CurrentVersion is left alone: the running system
	// keeps its version until the device actually boots the new image.
	return s.saveLocked()
}
