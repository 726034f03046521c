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

	"github.com/canonical/go-flags"
)

const cmdVersionSummary = "Show version details"
const cmdVersionDescription = `
The version command displays the versions of the running daemon and of the
nzd tool itself.
`

type cmdVersion struct {
	ClientOnly bool `long:"client"`
}

func init() {
	AddCommand(&CmdInfo{
		Name:        "version",
		Summary:     cmdVersionSummary,
		Description: cmdVersionDescription,
		Builder:     func() flags.Commander { return &cmdVersion{} },
	})
}

func (cmd cmdVersion) Execute(args []string) error {
	if len(args) > 0 {
		return ErrExtraArgs
	}
	fmt.Fprintf(Stdout, "client  %s\n", Version)
	if cmd.ClientOnly {
		return nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	var info struct {
		Version string `json:"version"`
	}
	if err := newAPIClient(cfg.HTTPAddress).get("/v1/system-info", &info); err != nil {
		fmt.Fprintf(Stdout, "daemon  unavailable (%v)\n", err)
		return nil
	}
	fmt.Fprintf(Stdout, "daemon  %s\n", info.Version)
	return nil
}
