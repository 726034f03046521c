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

package fwmeta_test

import (
	"os"
	"path/filepath"
	"testing"

	. "gopkg.in/check.v1"

	"github.com/Big-Cove/nerves-zero-downtime/internals/fwmeta"
)

func Test(t *testing.T) { TestingT(t) }

type metadataSuite struct{}

var _ = Suite(&metadataSuite{})

const sampleMetadata = `
# generated by the firmware build
version=2.3.1
platform="rpi4"
architecture=arm
kernel_version=5.15.76
fdt_hash=ab12cd34
runtime_version=25.1.2
boot_config_hash=77aa88bb
native_libs=crypto_nif, zstd_nif
swap_capable=true
component.core_app=1.4.0
component.stdlib=4.2
future_key=ignored
`

func (s *metadataSuite) TestParse(c *C) {
	meta, err := fwmeta.Parse([]byte(sampleMetadata))
	c.Assert(err, IsNil)
	c.Check(meta.Version, Equals, "2.3.1")
	c.Check(meta.Platform, Equals, "rpi4")
	c.Check(meta.Architecture, Equals, "arm")
	c.Check(meta.KernelVersion, Equals, "5.15.76")
	c.Check(meta.DeviceTreeHash, Equals, "ab12cd34")
	c.Check(meta.RuntimeVersion, Equals, "25.1.2")
	c.Check(meta.BootConfigHash, Equals, "77aa88bb")
	c.Check(meta.NativeLibs, DeepEquals, []string{"crypto_nif", "zstd_nif"})
	c.Assert(meta.SwapCapable, NotNil)
	c.Check(*meta.SwapCapable, Equals, true)
	c.Check(meta.Components, DeepEquals, map[string]string{
		"core_app": "1.4.0",
		"stdlib":   "4.2",
	})
}

func (s *metadataSuite) TestParseErrors(c *C) {
	_, err := fwmeta.Parse([]byte("version 1.0"))
	c.Check(err, ErrorMatches, `cannot parse metadata line 1: no '=' in "version 1.0"`)

	_, err = fwmeta.Parse([]byte("swap_capable=maybe"))
	c.Check(err, ErrorMatches, `cannot parse metadata line 1: swap_capable must be true or false, got "maybe"`)
}

func (s *metadataSuite) TestParseEmpty(c *C) {
	meta, err := fwmeta.Parse(nil)
	c.Assert(err, IsNil)
	c.Check(meta.Version, Equals, "")
	c.Check(meta.SwapCapable, IsNil)
}

func (s *metadataSuite) TestParseFile(c *C) {
	path := filepath.Join(c.MkDir(), "meta.conf")
	c.Assert(os.WriteFile(path, []byte("version=9.9\n"), 0o644), IsNil)
	meta, err := fwmeta.ParseFile(path)
	c.Assert(err, IsNil)
	c.Check(meta.Version, Equals, "9.9")

	_, err = fwmeta.ParseFile(filepath.Join(c.MkDir(), "missing"))
	c.Check(err, ErrorMatches, "cannot read firmware metadata: .*")
}

type compatSuite struct{}

var _ = Suite(&compatSuite{})

func fullMeta() *fwmeta.Metadata {
	return &fwmeta.Metadata{
		Version:        "1.0.0",
		Platform:       "rpi4",
		Architecture:   "arm",
		KernelVersion:  "5.10",
		DeviceTreeHash: "aaaa",
		RuntimeVersion: "25.0",
		NativeLibs:     []string{"crypto_nif"},
		BootConfigHash: "bbbb",
		Components: map[string]string{
			"kernel":   "8.0",
			"stdlib":   "4.2",
			"core_app": "1.0",
		},
	}
}

func (s *compatSuite) TestIdenticalIsSwapSafe(c *C) {
	verdict := fwmeta.Analyze(fullMeta(), fullMeta())
	c.Check(verdict.SwapSafe(), Equals, true)
	c.Check(verdict.Reasons, HasLen, 0)
	c.Check(verdict.String(), Equals, "swap-safe")
}

func (s *compatSuite) TestSingleFieldChanges(c *C) {
	tests := []struct {
		mutate func(*fwmeta.Metadata)
		reason fwmeta.Reason
	}{
		{func(m *fwmeta.Metadata) { m.KernelVersion = "5.15" }, fwmeta.ReasonKernelChanged},
		{func(m *fwmeta.Metadata) { m.DeviceTreeHash = "cccc" }, fwmeta.ReasonDeviceTreeChanged},
		{func(m *fwmeta.Metadata) { m.RuntimeVersion = "26.0" }, fwmeta.ReasonRuntimeChanged},
		{func(m *fwmeta.Metadata) { m.NativeLibs = []string{"crypto_nif", "new_nif"} }, fwmeta.ReasonNativeLibChanged},
		{func(m *fwmeta.Metadata) { m.NativeLibs = []string{} }, fwmeta.ReasonNativeLibChanged},
		{func(m *fwmeta.Metadata) { m.BootConfigHash = "dddd" }, fwmeta.ReasonBootConfigChanged},
		{func(m *fwmeta.Metadata) { m.Components["stdlib"] = "5.0" }, fwmeta.ReasonCoreComponentChanged},
	}
	for i, t := range tests {
		candidate := fullMeta()
		t.mutate(candidate)
		verdict := fwmeta.Analyze(fullMeta(), candidate)
		c.Assert(verdict.Reasons, HasLen, 1, Commentf("case %d", i))
		c.Check(verdict.Reasons[0], Equals, t.reason, Commentf("case %d", i))
	}
}

func (s *compatSuite) TestNonCoreComponentIsSwapSafe(c *C) {
	candidate := fullMeta()
	candidate.Components["core_app"] = "2.0"
	verdict := fwmeta.Analyze(fullMeta(), candidate)
	c.Check(verdict.SwapSafe(), Equals, true)
}

func (s *compatSuite) TestMissingFieldsAssumedUnchanged(c *C) {
	candidate := fullMeta()
	candidate.KernelVersion = ""
	candidate.NativeLibs = nil
	candidate.Components = nil
	verdict := fwmeta.Analyze(fullMeta(), candidate)
	c.Check(verdict.SwapSafe(), Equals, true)

	current := &fwmeta.Metadata{}
	verdict = fwmeta.Analyze(current, fullMeta())
	c.Check(verdict.SwapSafe(), Equals, true)
}

func (s *compatSuite) TestReasonsAreStablyOrdered(c *C) {
	candidate := fullMeta()
	candidate.KernelVersion = "6.0"
	candidate.RuntimeVersion = "27.0"
	candidate.BootConfigHash = "eeee"
	candidate.Components["kernel"] = "9.0"
	verdict := fwmeta.Analyze(fullMeta(), candidate)
	c.Check(verdict.Reasons, DeepEquals, []fwmeta.Reason{
		fwmeta.ReasonKernelChanged,
		fwmeta.ReasonRuntimeChanged,
		fwmeta.ReasonBootConfigChanged,
		fwmeta.ReasonCoreComponentChanged,
	})
	c.Check(verdict.String(), Equals,
		"reboot required: kernel_version_changed, runtime_version_changed, boot_config_changed, core_component_changed")
}

type markerSuite struct{}

var _ = Suite(&markerSuite{})

func (s *markerSuite) TestParseMarker(c *C) {
	for _, t := range []struct {
		body     string
		eligible bool
		valid    bool
	}{
		{"true", true, true},
		{"true\n", true, true},
		{"false", false, true},
		{"false\n", false, true},
		{"yes", false, false},
		{"", false, false},
		{"true \n", false, false},
		{"True", false, false},
		{"true\n\n", false, false},
	} {
		eligible, valid := fwmeta.ParseMarker([]byte(t.body))
		c.Check(eligible, Equals, t.eligible, Commentf("body %q", t.body))
		c.Check(valid, Equals, t.valid, Commentf("body %q", t.body))
	}
}

func (s *markerSuite) TestReadMarker(c *C) {
	dir := c.MkDir()
	path := filepath.Join(dir, "swappable")

	// Missing file: not eligible.
	c.Check(fwmeta.ReadMarker(path), Equals, false)

	c.Assert(os.WriteFile(path, []byte("true\n"), 0o644), IsNil)
	c.Check(fwmeta.ReadMarker(path), Equals, true)

	c.Assert(os.WriteFile(path, []byte("yes\n"), 0o644), IsNil)
	c.Check(fwmeta.ReadMarker(path), Equals, false)
}
