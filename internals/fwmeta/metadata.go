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

// Package fwmeta reads metadata embedded in a firmware image and compares
// the running system against an update candidate to classify the update as
// hot-swappable or reboot-required.
package fwmeta

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// Metadata describes one firmware image. Instances are compared pairwise
// (current vs candidate); an empty field means the image did not declare the
// value.
type Metadata struct {
	Version        string
	Platform       string
	Architecture   string
	KernelVersion  string
	DeviceTreeHash string
	RuntimeVersion string
	NativeLibs     []string
	BootConfigHash string
	Components     map[string]string

	// SwapCapable is the image's explicit hot-swap declaration. nil means
	// the image did not say, which is treated as not swap-capable.
	SwapCapable *bool
}

// NativeLibSet returns the native library identifiers as a set.
func (m *Metadata) NativeLibSet() map[string]bool {
	set := make(map[string]bool, len(m.NativeLibs))
	for _, lib := range m.NativeLibs {
		set[lib] = true
	}
	return set
}

// Parse reads metadata in the firmware build's key=value line format.
// Values may be double-quoted. Unknown keys are ignored so newer images can
// add fields without breaking older updaters. Per-component versions use
// composite keys of the form "component.<name>".
func Parse(data []byte) (*Metadata, error) {
	meta := &Metadata{}
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("cannot parse metadata line %d: no '=' in %q", i+1, line)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
			value = value[1 : len(value)-1]
		}

		switch key {
		case "version":
			meta.Version = value
		case "platform":
			meta.Platform = value
		case "architecture":
			meta.Architecture = value
		case "kernel_version":
			meta.KernelVersion = value
		case "fdt_hash":
			meta.DeviceTreeHash = value
		case "runtime_version":
			meta.RuntimeVersion = value
		case "boot_config_hash":
			meta.BootConfigHash = value
		case "native_libs":
			meta.NativeLibs = splitList(value)
		case "swap_capable":
			switch value {
			case "true":
				t := true
				meta.SwapCapable = &t
			case "false":
				f := false
				meta.SwapCapable = &f
			default:
				return nil, fmt.Errorf("cannot parse metadata line %d: swap_capable must be true or false, got %q", i+1, value)
			}
		default:
			if name, found := strings.CutPrefix(key, "component."); found {
				if meta.Components == nil {
					meta.Components = make(map[string]string)
				}
				meta.Components[name] = value
			}
			// Unknown plain keys are ignored.
		}
	}
	return meta, nil
}

// ParseFile reads and parses a metadata file.
func ParseFile(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read firmware metadata: %w", err)
	}
	meta, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("cannot parse firmware metadata %s: %w", path, err)
	}
	return meta, nil
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}
	sort.Strings(items)
	return items
}
