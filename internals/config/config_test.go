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

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	. "gopkg.in/check.v1"

	"github.com/Big-Cove/nerves-zero-downtime/internals/config"
)

func Test(t *testing.T) { TestingT(t) }

type configSuite struct{}

var _ = Suite(&configSuite{})

func (s *configSuite) TestDefaults(c *C) {
	cfg, err := config.Parse(nil)
	c.Assert(err, IsNil)
	c.Check(cfg.Dir, Equals, "/var/lib/nzd")
	c.Check(cfg.BootEnvPath, Equals, "/boot/nzd.env")
	c.Check(cfg.PostTimeout, Equals, 30*time.Second)
	c.Check(cfg.RebootDelay, Equals, time.Second)
	c.Check(cfg.SpaceThreshold, Equals, uint64(100*1024*1024))
	c.Check(cfg.HTTPAddress, Equals, "127.0.0.1:4000")
}

func (s *configSuite) TestParseOverrides(c *C) {
	cfg, err := config.Parse([]byte(`
dir: /tmp/nzd
http-address: ":4000"
post-timeout: 45s
smoke-test: /usr/bin/smoke --quick
`))
	c.Assert(err, IsNil)
	c.Check(cfg.Dir, Equals, "/tmp/nzd")
	c.Check(cfg.HTTPAddress, Equals, ":4000")
	c.Check(cfg.PostTimeout, Equals, 45*time.Second)
	c.Check(cfg.SmokeTest, Equals, "/usr/bin/smoke --quick")
	// Unset fields keep defaults.
	c.Check(cfg.MetadataPath, Equals, "/etc/nzd/release.meta")
}

func (s *configSuite) TestParseUnknownField(c *C) {
	_, err := config.Parse([]byte("no-such-field: 1\n"))
	c.Assert(err, ErrorMatches, "(?s)cannot parse config: .*not found.*")
}

func (s *configSuite) TestLoadMissingFile(c *C) {
	cfg, err := config.Load(filepath.Join(c.MkDir(), "missing.yaml"))
	c.Assert(err, IsNil)
	c.Check(cfg.Dir, Equals, "/var/lib/nzd")
}

func (s *configSuite) TestLoadFile(c *C) {
	path := filepath.Join(c.MkDir(), "nzd.yaml")
	c.Assert(os.WriteFile(path, []byte("health-url: http://localhost:8080/health\n"), 0o644), IsNil)
	cfg, err := config.Load(path)
	c.Assert(err, IsNil)
	c.Check(cfg.HealthURL, Equals, "http://localhost:8080/health")
}
