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

package update_test

import (
	"context"
	"os"
	"path/filepath"

	. "gopkg.in/check.v1"

	"github.com/Big-Cove/nerves-zero-downtime/internals/partition"
	"github.com/Big-Cove/nerves-zero-downtime/internals/update"
)

type hooksSuite struct{}

var _ = Suite(&hooksSuite{})

func (s *hooksSuite) TestDirSource(c *C) {
	dir := c.MkDir()
	err := os.WriteFile(filepath.Join(dir, "release.meta"), []byte("version=2.0.0\n"), 0o644)
	c.Assert(err, IsNil)

	meta, staged, err := update.DirSource{}.Extract(context.Background(), dir)
	c.Assert(err, IsNil)
	c.Check(meta.Version, Equals, "2.0.0")
	c.Check(staged, Equals, dir)
}

func (s *hooksSuite) TestDirSourceMarkerFallback(c *C) {
	dir := c.MkDir()
	err := os.WriteFile(filepath.Join(dir, "release.meta"), []byte("version=2.0.0\n"), 0o644)
	c.Assert(err, IsNil)

	// No swap_capable key and no marker file: not eligible.
	meta, _, err := update.DirSource{}.Extract(context.Background(), dir)
	c.Assert(err, IsNil)
	c.Assert(meta.SwapCapable, NotNil)
	c.Check(*meta.SwapCapable, Equals, false)

	c.Assert(os.WriteFile(filepath.Join(dir, "swap_capable"), []byte("true\n"), 0o644), IsNil)
	meta, _, err = update.DirSource{}.Extract(context.Background(), dir)
	c.Assert(err, IsNil)
	c.Check(*meta.SwapCapable, Equals, true)

	// A malformed marker is as good as no marker.
	c.Assert(os.WriteFile(filepath.Join(dir, "swap_capable"), []byte("yes"), 0o644), IsNil)
	meta, _, err = update.DirSource{}.Extract(context.Background(), dir)
	c.Assert(err, IsNil)
	c.Check(*meta.SwapCapable, Equals, false)
}

func (s *hooksSuite) TestDirSourceNotADirectory(c *C) {
	_, _, err := update.DirSource{}.Extract(context.Background(), "/no/such/place")
	c.Assert(err, ErrorMatches, `staged firmware "/no/such/place" is not a directory`)
}

func (s *hooksSuite) TestExecWriter(c *C) {
	w := update.ExecWriter{Command: "true"}
	c.Check(w.Write(context.Background(), partition.B, "/tmp/staged"), IsNil)

	w = update.ExecWriter{Command: "false"}
	c.Check(w.Write(context.Background(), partition.B, "/tmp/staged"), NotNil)
}

func (s *hooksSuite) TestExecSwapperLoadedUnits(c *C) {
	swapper := update.ExecSwapper{LoadedCommand: `sh -c "printf 'core_app\nkernel\n'"`}
	loaded, err := swapper.LoadedUnits()
	c.Assert(err, IsNil)
	c.Check(loaded, DeepEquals, map[string]bool{"core_app": true, "kernel": true})
}

func (s *hooksSuite) TestExecSwapperAvailableUnits(c *C) {
	dir := c.MkDir()
	ebin := filepath.Join(dir, "lib", "core_app-2.0.0", "ebin")
	c.Assert(os.MkdirAll(ebin, 0o755), IsNil)
	c.Assert(os.WriteFile(filepath.Join(ebin, "worker.beam"), []byte{}, 0o644), IsNil)

	units, err := update.ExecSwapper{}.AvailableUnits(dir)
	c.Assert(err, IsNil)
	c.Assert(units, HasLen, 1)
	c.Check(units[0].ID, Equals, "worker")
	c.Check(units[0].Path, Equals, filepath.Join(ebin, "worker.beam"))
}

func (s *hooksSuite) TestExecSwapperSwap(c *C) {
	swapper := update.ExecSwapper{SwapCommand: "true"}
	c.Check(swapper.Swap("worker", "/tmp/worker.beam"), IsNil)

	swapper = update.ExecSwapper{SwapCommand: "false"}
	c.Check(swapper.Swap("worker", "/tmp/worker.beam"), NotNil)
}
