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

	"github.com/Big-Cove/nerves-zero-downtime/internals/bootenv"
	"github.com/Big-Cove/nerves-zero-downtime/internals/partition"
)

const cmdRotateSummary = "Show the next partition write target"
const cmdRotateDescription = `
The rotate command reads the boot environment and reports which partition
the next firmware update will be written to. With --simulate it prints the
partition sequence a series of updates would follow.
`

type cmdRotate struct {
	Simulate int `long:"simulate"`
}

func init() {
	AddCommand(&CmdInfo{
		Name:        "rotate",
		Summary:     cmdRotateSummary,
		Description: cmdRotateDescription,
		Builder:     func() flags.Commander { return &cmdRotate{} },
	})
}

func (cmd cmdRotate) Execute(args []string) error {
	if len(args) > 0 {
		return ErrExtraArgs
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	env := bootenv.NewFileEnv(cfg.BootEnvPath)
	booted, err := partition.Parse(env.Get(bootenv.KeyBootedPartition))
	if err != nil {
		return fmt.Errorf("cannot read booted partition: %w", err)
	}
	if cmd.Simulate > 0 {
		seq, err := partition.SimulateSequence(booted, cmd.Simulate)
		if err != nil {
			return err
		}
		labels := make([]string, len(seq))
		for i, id := range seq {
			labels[i] = string(id)
		}
		fmt.Fprintln(Stdout, strings.Join(labels, " -> "))
		return nil
	}
	active, err := partition.Parse(env.Get(bootenv.KeyActivePartition))
	if err != nil {
		return fmt.Errorf("cannot read active partition: %w", err)
	}
	validated := env.Get(bootenv.SlotKey(string(booted), "validated")) == "true"
	target, err := partition.NextWriteTarget(booted, active, validated)
	if err != nil {
		return err
	}
	fmt.Fprintf(Stdout, "booted %s, active %s, next write target %s\n", booted, active, target)
	return nil
}
