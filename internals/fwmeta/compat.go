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

package fwmeta

import (
	"strings"
)

// Reason is a single cause for requiring a reboot.
type Reason string

const (
	ReasonKernelChanged        Reason = "kernel_version_changed"
	ReasonDeviceTreeChanged    Reason = "device_tree_changed"
	ReasonRuntimeChanged       Reason = "runtime_version_changed"
	ReasonNativeLibChanged     Reason = "native_library_changed"
	ReasonBootConfigChanged    Reason = "boot_config_changed"
	ReasonCoreComponentChanged Reason = "core_component_changed"
)

// coreComponents is the fixed short list of foundational runtime components
// whose version change always requires a reboot. The full component map is
// deliberately not inspected: application components are what hot swapping
// is for.
var coreComponents = []string{
	"kernel",
	"stdlib",
	"compiler",
	"sasl",
}

// Verdict is the result of comparing two metadata records. An empty reason
// set means the update is safe to hot-swap.
type Verdict struct {
	// Reasons lists reboot causes in fixed diagnostic order: kernel,
	// device tree, runtime, native libraries, boot config, core components.
	Reasons []Reason
}

// SwapSafe reports whether the update can be applied without a reboot.
func (v Verdict) SwapSafe() bool {
	return len(v.Reasons) == 0
}

func (v Verdict) String() string {
	if v.SwapSafe() {
		return "swap-safe"
	}
	parts := make([]string, len(v.Reasons))
	for i, r := range v.Reasons {
		parts[i] = string(r)
	}
	return "reboot required: " + strings.Join(parts, ", ")
}

// Analyze compares the current system's metadata against an update
// candidate's and returns the compatibility verdict.
//
// Each of the six checks is independent and contributes at most one reason.
// A field absent on either side cannot be compared and is assumed unchanged;
// the explicit swap-capable marker (which defaults to unsafe) is the
// backstop for images too old to carry comparison fields at all.
func Analyze(current, candidate *Metadata) Verdict {
	var reasons []Reason

	if fieldChanged(current.KernelVersion, candidate.KernelVersion) {
		reasons = append(reasons, ReasonKernelChanged)
	}
	if fieldChanged(current.DeviceTreeHash, candidate.DeviceTreeHash) {
		reasons = append(reasons, ReasonDeviceTreeChanged)
	}
	if fieldChanged(current.RuntimeVersion, candidate.RuntimeVersion) {
		reasons = append(reasons, ReasonRuntimeChanged)
	}
	if nativeLibsChanged(current, candidate) {
		reasons = append(reasons, ReasonNativeLibChanged)
	}
	if fieldChanged(current.BootConfigHash, candidate.BootConfigHash) {
		reasons = append(reasons, ReasonBootConfigChanged)
	}
	if coreComponentChanged(current.Components, candidate.Components) {
		reasons = append(reasons, ReasonCoreComponentChanged)
	}

	return Verdict{Reasons: reasons}
}

func fieldChanged(current, candidate string) bool {
	if current == "" || candidate == "" {
		// Cannot compare, assume unchanged.
		return false
	}
	return current != candidate
}

// nativeLibsChanged compares the *sets* of native library identifiers.
// Any difference, added or removed, means stale NIF/port code could be
// loaded into the running VM, so it is a reboot reason.
func nativeLibsChanged(current, candidate *Metadata) bool {
	if current.NativeLibs == nil || candidate.NativeLibs == nil {
		return false
	}
	curSet := current.NativeLibSet()
	candSet := candidate.NativeLibSet()
	if len(curSet) != len(candSet) {
		return true
	}
	for lib := range curSet {
		if !candSet[lib] {
			return true
		}
	}
	return false
}

func coreComponentChanged(current, candidate map[string]string) bool {
	if current == nil || candidate == nil {
		return false
	}
	for _, name := range coreComponents {
		cur, inCur := current[name]
		cand, inCand := candidate[name]
		if !inCur || !inCand {
			continue
		}
		if cur != cand {
			return true
		}
	}
	return false
}
