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

package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/canonical/go-flags"
)

const cmdStatusSummary = "Show the updater's current status"
const cmdStatusDescription = `
The status command displays the running firmware version, the partition
layout and the state of any update in progress.
`

type cmdStatus struct{}

func init() {
	AddCommand(&CmdInfo{
		Name:        "status",
		Summary:     cmdStatusSummary,
		Description: cmdStatusDescription,
		Builder:     func() flags.Commander { return &cmdStatus{} },
	})
}

func (cmd cmdStatus) Execute(args []string) error {
	if len(args) > 0 {
		return ErrExtraArgs
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	var status statusResult
	if err := newAPIClient(cfg.HTTPAddress).get("/v1/status", &status); err != nil {
		return err
	}
	w := tabwriter.NewWriter(Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintf(w, "current version\t%s\n", status.CurrentVersion)
	if status.StagedVersion != "" {
		fmt.Fprintf(w, "staged version\t%s\n", status.StagedVersion)
	}
	fmt.Fprintf(w, "booted partition\t%s\n", status.BootedPartition)
	fmt.Fprintf(w, "active partition\t%s\n", status.ActivePartition)
	fmt.Fprintf(w, "state\t%s\n", status.State)
	if status.LastSwap != nil {
		fmt.Fprintf(w, "last swap\t%s\n", status.LastSwap.Format("2006-01-02 15:04:05 MST"))
	}
	return w.Flush()
}
