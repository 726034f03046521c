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

package changeset_test

import (
	"testing"

	. "gopkg.in/check.v1"

	"github.com/Big-Cove/nerves-zero-downtime/internals/changeset"
)

func Test(t *testing.T) { TestingT(t) }

type resolveSuite struct{}

var _ = Suite(&resolveSuite{})

func loaded(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

func (s *resolveSuite) TestBasicResolution(c *C) {
	available := []changeset.Unit{
		{ID: "core_app_worker", Path: "/srv/update/lib/core_app-1.4.0/ebin/core_app_worker.beam"},
		{ID: "core_app_server", Path: "/srv/update/lib/core_app-1.4.0/ebin/core_app_server.beam"},
		{ID: "ui_render", Path: "/srv/update/lib/ui-0.9/ebin/ui_render.beam"},
	}
	entries, filtered := changeset.Resolve(available, loaded("core_app", "ui"))
	c.Check(filtered, Equals, 0)
	c.Check(entries, DeepEquals, []changeset.Entry{
		{UnitID: "core_app_worker", Source: "/srv/update/lib/core_app-1.4.0/ebin/core_app_worker.beam"},
		{UnitID: "core_app_server", Source: "/srv/update/lib/core_app-1.4.0/ebin/core_app_server.beam"},
		{UnitID: "ui_render", Source: "/srv/update/lib/ui-0.9/ebin/ui_render.beam"},
	})
}

func (s *resolveSuite) TestProtectedComponentNeverSelected(c *C) {
	// Even as the only available unit.
	available := []changeset.Unit{
		{ID: "lists", Path: "/srv/update/lib/stdlib-4.2/ebin/lists.beam"},
	}
	entries, filtered := changeset.Resolve(available, loaded("stdlib"))
	c.Check(entries, HasLen, 0)
	c.Check(filtered, Equals, 1)
}

func (s *resolveSuite) TestUnloadedComponentFiltered(c *C) {
	available := []changeset.Unit{
		{ID: "ghost_mod", Path: "/srv/update/lib/ghost-1.0/ebin/ghost_mod.beam"},
	}
	entries, filtered := changeset.Resolve(available, loaded("core_app"))
	c.Check(entries, HasLen, 0)
	c.Check(filtered, Equals, 1)
}

func (s *resolveSuite) TestProtectedIdentityFilteredFromAllowedComponent(c *C) {
	// Defense in depth: "supervisor" stays out even when shipped inside an
	// application component that is itself reloadable.
	available := []changeset.Unit{
		{ID: "supervisor", Path: "/srv/update/lib/core_app-2.0/ebin/supervisor.beam"},
		{ID: "core_app_worker", Path: "/srv/update/lib/core_app-2.0/ebin/core_app_worker.beam"},
	}
	entries, filtered := changeset.Resolve(available, loaded("core_app"))
	c.Assert(entries, HasLen, 1)
	c.Check(entries[0].UnitID, Equals, "core_app_worker")
	c.Check(filtered, Equals, 1)
}

func (s *resolveSuite) TestEmptyInputs(c *C) {
	entries, filtered := changeset.Resolve(nil, nil)
	c.Check(entries, HasLen, 0)
	c.Check(filtered, Equals, 0)
}

func (s *resolveSuite) TestOwningComponent(c *C) {
	for path, want := range map[string]string{
		"/srv/lib/core_app-1.4.0/ebin/m.beam": "core_app",
		"/srv/lib/my-app-2.0/ebin/m.beam":     "my-app",
		"/srv/lib/noversion/ebin/m.beam":      "noversion",
		"/srv/lib/flat-1.0/m.beam":            "flat",
	} {
		c.Check(changeset.OwningComponent(path), Equals, want, Commentf("path %q", path))
	}
}
