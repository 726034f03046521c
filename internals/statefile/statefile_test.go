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

package statefile_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "gopkg.in/check.v1"

	"github.com/Big-Cove/nerves-zero-downtime/internals/partition"
	"github.com/Big-Cove/nerves-zero-downtime/internals/statefile"
)

func Test(t *testing.T) { TestingT(t) }

type storeSuite struct {
	path string
}

var _ = Suite(&storeSuite{})

func (s *storeSuite) SetUpTest(c *C) {
	s.path = filepath.Join(c.MkDir(), "state.json")
}

func (s *storeSuite) seeder() (string, partition.ID) {
	return "1.0.0", partition.B
}

func (s *storeSuite) TestLazyCreateFromSeeder(c *C) {
	store := statefile.NewStore(s.path, s.seeder)
	state, err := store.Load()
	c.Assert(err, IsNil)
	c.Check(state.CurrentVersion, Equals, "1.0.0")
	c.Check(state.ActivePartition, Equals, partition.B)
	c.Check(state.History, HasLen, 0)

	// The seeded state was persisted.
	_, err = os.Stat(s.path)
	c.Assert(err, IsNil)
}

func (s *storeSuite) TestRoundTrip(c *C) {
	store := statefile.NewStore(s.path, s.seeder)
	_, err := store.Load()
	c.Assert(err, IsNil)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c.Assert(store.SetStaged("1.1.0", partition.C), IsNil)
	c.Assert(store.RecordUpdate(now, "1.1.0", statefile.OutcomeSwapped), IsNil)

	fresh := statefile.NewStore(s.path, nil)
	state, err := fresh.Load()
	c.Assert(err, IsNil)
	c.Check(state.CurrentVersion, Equals, "1.1.0")
	c.Check(state.StagedVersion, Equals, "")
	c.Check(state.ActivePartition, Equals, partition.C)
	c.Assert(state.LastSuccessfulSwap, NotNil)
	c.Check(state.LastSuccessfulSwap.Equal(now), Equals, true)
	c.Assert(state.History, HasLen, 1)
	c.Check(state.History[0], DeepEquals, statefile.Record{
		Time:        now,
		FromVersion: "1.0.0",
		ToVersion:   "1.1.0",
		Outcome:     statefile.OutcomeSwapped,
	})
}

func (s *storeSuite) TestClearStaged(c *C) {
	store := statefile.NewStore(s.path, s.seeder)
	c.Assert(store.SetStaged("1.1.0", partition.C), IsNil)
	c.Assert(store.ClearStaged(partition.B), IsNil)

	fresh := statefile.NewStore(s.path, nil)
	state, err := fresh.Load()
	c.Assert(err, IsNil)
	c.Check(state.StagedVersion, Equals, "")
	c.Check(state.ActivePartition, Equals, partition.B)
	c.Check(state.CurrentVersion, Equals, "1.0.0")
}

func (s *storeSuite) TestMarkBooted(c *C) {
	store := statefile.NewStore(s.path, s.seeder)
	c.Assert(store.SetStaged("1.1.0", partition.C), IsNil)
	c.Assert(store.MarkBooted("1.1.0", partition.C), IsNil)

	fresh := statefile.NewStore(s.path, nil)
	state, err := fresh.Load()
	c.Assert(err, IsNil)
	c.Check(state.CurrentVersion, Equals, "1.1.0")
	c.Check(state.StagedVersion, Equals, "")
	c.Check(state.ActivePartition, Equals, partition.C)
}

func (s *storeSuite) TestMarkBootedEmptyVersion(c *C) {
	store := statefile.NewStore(s.path, s.seeder)
	c.Assert(store.MarkBooted("", partition.B), IsNil)

	state, err := store.Load()
	c.Assert(err, IsNil)
	c.Check(state.CurrentVersion, Equals, "1.0.0")
	c.Check(state.ActivePartition, Equals, partition.B)
}

func (s *storeSuite) TestRebootOutcomeKeepsCurrentVersion(c *C) {
	store := statefile.NewStore(s.path, s.seeder)
	now := time.Now().UTC()
	c.Assert(store.RecordUpdate(now, "2.0.0", statefile.OutcomeRebooted), IsNil)

	state, err := store.Load()
	c.Assert(err, IsNil)
	c.Check(state.CurrentVersion, Equals, "1.0.0")
	c.Check(state.LastSuccessfulSwap, IsNil)
	c.Assert(state.History, HasLen, 1)
	c.Check(state.History[0].Outcome, Equals, statefile.OutcomeRebooted)
}

func (s *storeSuite) TestHistoryCappedNewestFirst(c *C) {
	store := statefile.NewStore(s.path, s.seeder)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 13; i++ {
		version := fmt.Sprintf("1.0.%d", i+1)
		c.Assert(store.RecordUpdate(base.Add(time.Duration(i)*time.Hour), version, statefile.OutcomeSwapped), IsNil)
	}
	state, err := store.Load()
	c.Assert(err, IsNil)
	c.Assert(state.History, HasLen, 10)
	c.Check(state.History[0].ToVersion, Equals, "1.0.13")
	c.Check(state.History[9].ToVersion, Equals, "1.0.4")
	for i := 1; i < len(state.History); i++ {
		c.Check(state.History[i].Time.Before(state.History[i-1].Time), Equals, true)
	}
}

func (s *storeSuite) TestLoadReturnsCopy(c *C) {
	store := statefile.NewStore(s.path, s.seeder)
	state, err := store.Load()
	c.Assert(err, IsNil)
	state.CurrentVersion = "mutated"

	again, err := store.Load()
	c.Assert(err, IsNil)
	c.Check(again.CurrentVersion, Equals, "1.0.0")
}

func (s *storeSuite) TestCorruptFile(c *C) {
	c.Assert(os.WriteFile(s.path, []byte("{not json"), 0o600), IsNil)
	store := statefile.NewStore(s.path, s.seeder)
	_, err := store.Load()
	c.Check(err, ErrorMatches, "cannot parse state file .*")
}
