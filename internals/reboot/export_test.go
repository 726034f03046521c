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

package reboot

import "time"

// FakeHandler replaces the reboot handler for tests.
func FakeHandler(f func(delay time.Duration) error) (restore func()) {
	old := rebootHandler
	rebootHandler = f
	return func() {
		rebootHandler = old
	}
}

// FakeSyscallReboot replaces the reboot syscall for tests.
func FakeSyscallReboot(f func(cmd int) error) (restore func()) {
	old := syscallReboot
	syscallReboot = f
	return func() {
		syscallReboot = old
	}
}
