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
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/canonical/go-flags"

	"github.com/Big-Cove/nerves-zero-downtime/internals/bootenv"
	"github.com/Big-Cove/nerves-zero-downtime/internals/config"
	"github.com/Big-Cove/nerves-zero-downtime/internals/daemon"
	"github.com/Big-Cove/nerves-zero-downtime/internals/fwmeta"
	"github.com/Big-Cove/nerves-zero-downtime/internals/logger"
	"github.com/Big-Cove/nerves-zero-downtime/internals/partition"
	"github.com/Big-Cove/nerves-zero-downtime/internals/reboot"
	"github.com/Big-Cove/nerves-zero-downtime/internals/statefile"
	"github.com/Big-Cove/nerves-zero-downtime/internals/update"
	"github.com/Big-Cove/nerves-zero-downtime/internals/validate"
)

const cmdRunSummary = "Run the update daemon"
const cmdRunDescription = `
The run command starts the update daemon and serves its HTTP API until the
process is told to stop.
`

type cmdRun struct{}

func init() {
	AddCommand(&CmdInfo{
		Name:        "run",
		Summary:     cmdRunSummary,
		Description: cmdRunDescription,
		Builder:     func() flags.Commander { return &cmdRun{} },
	})
}

func (cmd cmdRun) Execute(args []string) error {
	if len(args) > 0 {
		return ErrExtraArgs
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.WriteCommand == "" {
		return fmt.Errorf("write-command must be configured")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("cannot create working directory: %w", err)
	}

	env := bootenv.NewFileEnv(cfg.BootEnvPath)
	state := statefile.NewStore(filepath.Join(cfg.Dir, "state.json"), func() (string, partition.ID) {
		running, _ := fwmeta.ParseFile(cfg.MetadataPath)
		version := ""
		if running != nil {
			version = running.Version
		}
		active, err := partition.Parse(env.Get(bootenv.KeyActivePartition))
		if err != nil {
			active = partition.A
		}
		return version, active
	})

	running, err := fwmeta.ParseFile(cfg.MetadataPath)
	if err != nil {
		logger.Noticef("Cannot read running firmware metadata: %v", err)
		running = &fwmeta.Metadata{}
	}

	if version, interrupted, err := update.CheckPendingSwap(env); err != nil {
		logger.Noticef("Cannot check pending swap marker: %v", err)
	} else if interrupted {
		logger.Noticef("Previous swap to version %q was interrupted", version)
	}

	gate := &validate.Gate{PostTimeout: cfg.PostTimeout}
	if err := update.CommitBoot(context.Background(), env, state, gate, postChecks(cfg)); err != nil {
		logger.Noticef("Cannot validate booted partition: %v", err)
	}

	orch := update.New(update.Setup{
		Env:    env,
		State:  state,
		Gate:   gate,
		Source: update.DirSource{},
		Writer: update.ExecWriter{Command: cfg.WriteCommand},
		Swapper: update.ExecSwapper{
			SwapCommand:   cfg.SwapCommand,
			LoadedCommand: cfg.LoadedUnitsCommand,
		},
		Reboot:      &reboot.Scheduler{},
		Running:     running,
		CurrentRoot: cfg.CurrentRoot,
		PreChecks:   preChecks(cfg),
		SwapChecks:  swapChecks(cfg),
		PostChecks:  postChecks(cfg),
		RebootDelay: cfg.RebootDelay,
	})

	d := daemon.New(daemon.Options{
		Address:      cfg.HTTPAddress,
		DefaultRef:   cfg.StagedPath,
		Version:      Version,
		Orchestrator: orch,
		State:        state,
		Env:          env,
	})
	if err := d.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Noticef("Exiting on %s signal.", sig)
	return d.Stop()
}

func preChecks(cfg *config.Config) []validate.Check {
	return []validate.Check{
		validate.DiskSpaceCheck(cfg.Dir, cfg.SpaceThreshold),
		validate.MemoryCheck(cfg.MemoryThreshold),
	}
}

func swapChecks(cfg *config.Config) []validate.Check {
	checks := []validate.Check{
		validate.DiskSpaceCheck(cfg.Dir, cfg.SpaceThreshold),
	}
	if cfg.HealthURL != "" {
		checks = append(checks, validate.HTTPCheck("health", cfg.HealthURL))
	}
	return checks
}

func postChecks(cfg *config.Config) []validate.Check {
	var checks []validate.Check
	if cfg.SmokeTest != "" {
		checks = append(checks, validate.ExecCheck("smoke-test", cfg.SmokeTest))
	}
	if cfg.HealthURL != "" {
		checks = append(checks, validate.HTTPCheck("health", cfg.HealthURL))
	}
	return checks
}
