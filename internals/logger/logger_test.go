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

package logger_test

import (
	"bytes"
	"os"
	"testing"

	. "gopkg.in/check.v1"

	"github.com/Big-Cove/nerves-zero-downtime/internals/logger"
)

func Test(t *testing.T) { TestingT(t) }

type LogSuite struct {
	restore func()
}

var _ = Suite(&LogSuite{})

func (s *LogSuite) TearDownTest(c *C) {
	if s.restore != nil {
		s.restore()
		s.restore = nil
	}
}

func (s *LogSuite) TestNoticef(c *C) {
	var buf bytes.Buffer
	old := logger.SetLogger(logger.New(&buf, "[nzd] "))
	s.restore = func() { logger.SetLogger(old) }

	logger.Noticef("cannot do %s", "something")
	c.Check(buf.String(), Matches, `\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z \[nzd\] cannot do something\n`)
}

func (s *LogSuite) TestDebugfOff(c *C) {
	var buf bytes.Buffer
	old := logger.SetLogger(logger.New(&buf, ""))
	s.restore = func() { logger.SetLogger(old) }

	os.Unsetenv("NZD_DEBUG")
	logger.Debugf("invisible")
	c.Check(buf.String(), Equals, "")
}

func (s *LogSuite) TestDebugfOn(c *C) {
	var buf bytes.Buffer
	old := logger.SetLogger(logger.New(&buf, ""))
	s.restore = func() { logger.SetLogger(old) }

	os.Setenv("NZD_DEBUG", "1")
	defer os.Unsetenv("NZD_DEBUG")
	logger.Debugf("visible")
	c.Check(buf.String(), Matches, `(?s).*DEBUG visible\n`)
}

func (s *LogSuite) TestMockLogger(c *C) {
	buf, restore := logger.MockLogger("PREFIX: ")
	defer restore()

	logger.Noticef("hello %d", 42)
	c.Check(buf.String(), Matches, `(?s).*PREFIX: hello 42\n`)
}
