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

package update

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/canonical/x-go/strutil/shlex"

	"github.com/Big-Cove/nerves-zero-downtime/internals/changeset"
	"github.com/Big-Cove/nerves-zero-downtime/internals/fwmeta"
	"github.com/Big-Cove/nerves-zero-downtime/internals/osutil"
	"github.com/Big-Cove/nerves-zero-downtime/internals/partition"
)

const (
	// metaName is the metadata file at the root of a staged firmware
	// directory.
	metaName = "release.meta"
	// markerName is the standalone swap-eligibility marker, consulted when
	// the metadata does not carry the flag itself.
	markerName = "swap_capable"
)

// DirSource treats a firmware reference as a staged directory on disk,
// with the metadata file at its root and code units under lib/.
type DirSource struct{}

func (DirSource) Extract(ctx context.Context, ref string) (*fwmeta.Metadata, string, error) {
	if !osutil.IsDir(ref) {
		return nil, "", fmt.Errorf("staged firmware %q is not a directory", ref)
	}
	meta, err := fwmeta.ParseFile(filepath.Join(ref, metaName))
	if err != nil {
		return nil, "", err
	}
	if meta.SwapCapable == nil {
		eligible := fwmeta.ReadMarker(filepath.Join(ref, markerName))
		meta.SwapCapable = &eligible
	}
	return meta, ref, nil
}

// ExecWriter delegates the partition write to a device-specific command,
// run with the target partition and the staged directory as arguments.
type ExecWriter struct {
	Command string
}

func (w ExecWriter) Write(ctx context.Context, target partition.ID, dir string) error {
	args, err := shlex.Split(w.Command)
	if err != nil {
		return fmt.Errorf("cannot parse write command: %w", err)
	}
	args = append(args, string(target), dir)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return osutil.OutputErr(out, err)
	}
	return nil
}

// ExecSwapper delegates hot code loading to the device runtime: one command
// swaps a unit, another reports the loaded component names.
type ExecSwapper struct {
	SwapCommand   string
	LoadedCommand string
}

func (s ExecSwapper) LoadedUnits() (map[string]bool, error) {
	args, err := shlex.Split(s.LoadedCommand)
	if err != nil {
		return nil, fmt.Errorf("cannot parse loaded-units command: %w", err)
	}
	out, err := exec.Command(args[0], args[1:]...).Output()
	if err != nil {
		return nil, fmt.Errorf("cannot list loaded units: %w", err)
	}
	loaded := make(map[string]bool)
	for _, line := range strings.Split(string(out), "\n") {
		if name := strings.TrimSpace(line); name != "" {
			loaded[name] = true
		}
	}
	return loaded, nil
}

// AvailableUnits lists the compiled units under dir's lib/ tree, one
// component directory per version, units in its ebin subdirectory.
func (s ExecSwapper) AvailableUnits(dir string) ([]changeset.Unit, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "lib", "*", "ebin", "*.beam"))
	if err != nil {
		return nil, err
	}
	units := make([]changeset.Unit, 0, len(paths))
	for _, path := range paths {
		id := strings.TrimSuffix(filepath.Base(path), ".beam")
		units = append(units, changeset.Unit{ID: id, Path: path})
	}
	return units, nil
}

func (s ExecSwapper) Swap(unitID, source string) error {
	args, err := shlex.Split(s.SwapCommand)
	if err != nil {
		return fmt.Errorf("cannot parse swap command: %w", err)
	}
	args = append(args, unitID, source)
	if out, err := exec.Command(args[0], args[1:]...).CombinedOutput(); err != nil {
		return osutil.OutputErr(out, err)
	}
	return nil
}
