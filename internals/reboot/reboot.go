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

// Package reboot schedules system reboots after a firmware update that
// cannot be applied by a live code swap.
package reboot

import (
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/Big-Cove/nerves-zero-downtime/internals/logger"
	"github.com/Big-Cove/nerves-zero-downtime/internals/osutil"
)

const rebootMsg = "reboot scheduled to finish firmware update"

type Mode int

const (
	// SystemdMode relies on a userspace shutdown command.
	SystemdMode Mode = iota + 1
	// SyscallMode issues the reboot syscall directly, for systems
	// without an init-provided shutdown.
	SyscallMode
)

var (
	rebootHandler = systemdModeReboot
	syscallSync   = syscall.Sync
	syscallReboot = syscall.Reboot
)

// SetMode configures how reboots are issued. The default is SystemdMode.
func SetMode(mode Mode) {
	switch mode {
	case SystemdMode:
		rebootHandler = systemdModeReboot
	case SyscallMode:
		rebootHandler = syscallModeReboot
	default:
		panic(fmt.Sprintf("unsupported reboot mode %v", mode))
	}
}

// systemdModeReboot assumes a userspace shutdown command exists.
func systemdModeReboot(delay time.Duration) error {
	if delay < 0 {
		delay = 0
	}
	mins := int64(delay / time.Minute)
	cmd := exec.Command("shutdown", "-r", fmt.Sprintf("+%d", mins), rebootMsg)
	if out, err := cmd.CombinedOutput(); err != nil {
		return osutil.OutputErr(out, err)
	}
	return nil
}

// syscallModeReboot reboots via direct kernel syscalls, immediately.
func syscallModeReboot(delay time.Duration) error {
	syscallSync()
	if err := syscallReboot(syscall.LINUX_REBOOT_CMD_RESTART); err != nil {
		return fmt.Errorf("cannot issue reboot syscall: %v", err)
	}
	return nil
}

// Scheduler defers a reboot so that in-flight work (an API response, a
// state file write) can finish first. A scheduled reboot can be cancelled
// until the timer fires.
type Scheduler struct {
	mu    sync.Mutex
	timer *time.Timer
}

// Schedule arms a reboot after delay. A previously scheduled reboot is
// replaced.
func (s *Scheduler) Schedule(delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	logger.Noticef("Rebooting in %v to finish firmware update", delay)
	s.timer = time.AfterFunc(delay, func() {
		if err := rebootHandler(0); err != nil {
			logger.Noticef("Cannot reboot: %v", err)
		}
	})
}

// Cancel stops a pending reboot, if any. It reports whether a reboot was
// pending.
func (s *Scheduler) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer == nil {
		return false
	}
	stopped := s.timer.Stop()
	s.timer = nil
	return stopped
}
