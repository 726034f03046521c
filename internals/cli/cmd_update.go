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
	"strings"

	"github.com/canonical/go-flags"
)

const cmdUpdateSummary = "Apply a staged firmware update"
const cmdUpdateDescription = `
The update command applies the firmware staged at the given path. The daemon
decides between a live code swap and a reboot based on what changed; use
--force-reboot to skip the swap analysis, or --dry-run to see the decision
without applying anything.
`

type cmdUpdate struct {
	ForceReboot bool `long:"force-reboot"`
	DryRun      bool `long:"dry-run"`
	Positional  struct {
		Ref string `positional-arg-name:"<ref>" required:"1"`
	} `positional-args:"yes"`
}

func init() {
	AddCommand(&CmdInfo{
		Name:        "update",
		Summary:     cmdUpdateSummary,
		Description: cmdUpdateDescription,
		Builder:     func() flags.Commander { return &cmdUpdate{} },
	})
}

type updateResult struct {
	Status   string   `json:"status"`
	Strategy string   `json:"strategy"`
	Version  string   `json:"version"`
	Target   string   `json:"target"`
	Reasons  []string `json:"reasons"`
	Swapped  int      `json:"swapped"`
	Filtered int      `json:"filtered"`
}

func (cmd cmdUpdate) Execute(args []string) error {
	if len(args) > 0 {
		return ErrExtraArgs
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	payload := map[string]interface{}{
		"ref":          cmd.Positional.Ref,
		"force-reboot": cmd.ForceReboot,
		"dry-run":      cmd.DryRun,
	}
	var result updateResult
	if err := newAPIClient(cfg.HTTPAddress).post("/v1/update", payload, &result); err != nil {
		return err
	}
	switch result.Status {
	case "swapped":
		fmt.Fprintf(Stdout, "Updated to %s with a live swap (%d units swapped, %d filtered).\n",
			result.Version, result.Swapped, result.Filtered)
	case "rebooting":
		fmt.Fprintf(Stdout, "Firmware %s written to partition %s, system is about to reboot.\n",
			result.Version, result.Target)
	case "dry-run":
		fmt.Fprintf(Stdout, "Would update to %s via %s (target partition %s).\n",
			result.Version, result.Strategy, result.Target)
	default:
		fmt.Fprintf(Stdout, "Update finished with status %q.\n", result.Status)
	}
	if len(result.Reasons) > 0 {
		fmt.Fprintf(Stdout, "Reboot reasons: %s\n", strings.Join(result.Reasons, ", "))
	}
	return nil
}
