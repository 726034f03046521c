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

package osutil

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

var procMeminfo = "/proc/meminfo"

// FreeDiskSpace returns the number of bytes available to an unprivileged
// user on the filesystem containing path.
func FreeDiskSpace(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, fmt.Errorf("cannot statfs %q: %w", path, err)
	}
	return st.Bavail * uint64(st.Bsize), nil
}

// AvailableMemory returns the kernel's MemAvailable estimate in bytes.
func AvailableMemory() (uint64, error) {
	data, err := os.ReadFile(procMeminfo)
	if err != nil {
		return 0, err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "MemAvailable:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot parse MemAvailable: %w", err)
		}
		return kb * 1024, nil
	}
	return 0, fmt.Errorf("no MemAvailable field in %s", procMeminfo)
}

// MockProcMeminfo overrides the meminfo path for testing.
func MockProcMeminfo(path string) (restore func()) {
	old := procMeminfo
	procMeminfo = path
	return func() {
		procMeminfo = old
	}
}
