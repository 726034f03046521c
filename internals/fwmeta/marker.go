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
	"os"
	"strings"
)

// ParseMarker interprets the body of a swap-eligibility marker file. Only
// the exact bodies "true" and "false" (a single trailing newline is
// tolerated) are valid; anything else maps to not-eligible. Invalid content
// must never be read as permission to swap.
func ParseMarker(data []byte) (eligible bool, valid bool) {
	body := string(data)
	body = strings.TrimSuffix(body, "\n")
	switch body {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}

// ReadMarker reads the swap-eligibility marker at path. A missing file or
// invalid body both mean "reboot required".
func ReadMarker(path string) (eligible bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	eligible, valid := ParseMarker(data)
	return eligible && valid
}
