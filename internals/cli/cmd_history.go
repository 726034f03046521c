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
	"time"

	"github.com/canonical/go-flags"
)

const cmdHistorySummary = "Show recent update history"
const cmdHistoryDescription = `
The history command lists the most recent firmware updates, newest first.
`

type cmdHistory struct{}

func init() {
	AddCommand(&CmdInfo{
		Name:        "history",
		Summary:     cmdHistorySummary,
		Description: cmdHistoryDescription,
		Builder:     func() flags.Commander { return &cmdHistory{} },
	})
}

type historyRecord struct {
	Time        time.Time `json:"time"`
	FromVersion string    `json:"from-version"`
	ToVersion   string    `json:"to-version"`
	Outcome     string    `json:"outcome"`
}

func (cmd cmdHistory) Execute(args []string) error {
	if len(args) > 0 {
		return ErrExtraArgs
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	var records []historyRecord
	if err := newAPIClient(cfg.HTTPAddress).get("/v1/history", &records); err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(Stdout, "No updates recorded.")
		return nil
	}
	w := tabwriter.NewWriter(Stdout, 0, 8, 2, ' ', 0)
	if isStdoutTTY {
		fmt.Fprintln(w, "Time\tFrom\tTo\tOutcome")
	}
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			r.Time.Format("2006-01-02 15:04:05"), r.FromVersion, r.ToVersion, r.Outcome)
	}
	return w.Flush()
}
