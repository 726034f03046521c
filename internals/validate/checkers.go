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

package validate

import (
	"context"
	"fmt"
	"net/http"
	"os/exec"

	"github.com/canonical/x-go/strutil/shlex"

	"github.com/Big-Cove/nerves-zero-downtime/internals/osutil"
)

// DefaultSpaceThreshold is the minimum free disk space required before an
// update may proceed.
const DefaultSpaceThreshold = 100 * 1024 * 1024

// DiskSpaceCheck verifies that the filesystem holding path has at least
// threshold bytes available. A zero threshold means DefaultSpaceThreshold.
func DiskSpaceCheck(path string, threshold uint64) Check {
	if threshold == 0 {
		threshold = DefaultSpaceThreshold
	}
	return Check{
		Name: "disk-space",
		Run: func(ctx context.Context) error {
			free, err := osutil.FreeDiskSpace(path)
			if err != nil {
				return err
			}
			if free < threshold {
				return fmt.Errorf("%d bytes available on %s, need at least %d", free, path, threshold)
			}
			return nil
		},
	}
}

// MemoryCheck verifies that at least threshold bytes of memory are
// available.
func MemoryCheck(threshold uint64) Check {
	return Check{
		Name: "memory",
		Run: func(ctx context.Context) error {
			available, err := osutil.AvailableMemory()
			if err != nil {
				return err
			}
			if available < threshold {
				return fmt.Errorf("%d bytes of memory available, need at least %d", available, threshold)
			}
			return nil
		},
	}
}

// ExecCheck runs a smoke-test command and requires it to exit zero. The
// command string is shell-split but not run through a shell.
func ExecCheck(name, command string) Check {
	return Check{
		Name: name,
		Run: func(ctx context.Context) error {
			args, err := shlex.Split(command)
			if err != nil {
				return fmt.Errorf("cannot parse check command: %v", err)
			}
			if len(args) == 0 {
				return fmt.Errorf("empty check command")
			}
			cmd := exec.CommandContext(ctx, args[0], args[1:]...)
			out, err := cmd.CombinedOutput()
			if err != nil {
				return osutil.OutputErr(out, err)
			}
			return nil
		},
	}
}

// HTTPCheck requires an HTTP GET on url to return a 20x status.
func HTTPCheck(name, url string) Check {
	return Check{
		Name: name,
		Run: func(ctx context.Context) error {
			request, err := http.NewRequestWithContext(ctx, "GET", url, nil)
			if err != nil {
				return err
			}
			response, err := http.DefaultClient.Do(request)
			if err != nil {
				return err
			}
			response.Body.Close()
			if response.StatusCode < 200 || response.StatusCode > 299 {
				return fmt.Errorf("received non-20x status code %d", response.StatusCode)
			}
			return nil
		},
	}
}
