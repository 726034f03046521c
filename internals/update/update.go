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

// Package update drives a firmware update end to end: extract the
// candidate's metadata, validate the system, pick between a live code
// swap and a reboot, write the inactive partition, and either swap the
// eligible code units into the running system or schedule the reboot.
//
// The partition write and boot-pointer update always happen before any
// swap attempt, so a failure at any later point leaves a bootable system:
// worst case the device reboots into the firmware it just wrote.
package update

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Big-Cove/nerves-zero-downtime/internals/bootenv"
	"github.com/Big-Cove/nerves-zero-downtime/internals/changeset"
	"github.com/Big-Cove/nerves-zero-downtime/internals/fwmeta"
	"github.com/Big-Cove/nerves-zero-downtime/internals/logger"
	"github.com/Big-Cove/nerves-zero-downtime/internals/partition"
	"github.com/Big-Cove/nerves-zero-downtime/internals/statefile"
	"github.com/Big-Cove/nerves-zero-downtime/internals/validate"
)

// ErrUpdateInFlight is returned when an update is requested while another
// one is still running. Updates are strictly single-flight.
var ErrUpdateInFlight = errors.New("another update is already in progress")

// RefError reports a failure caused by the firmware reference itself, as
// opposed to a fault in the device, so API callers can tell the two apart.
type RefError struct {
	Err error
}

func (e *RefError) Error() string { return e.Err.Error() }

func (e *RefError) Unwrap() error { return e.Err }

// Reboot causes reported by strategy selection beyond the metadata
// comparison ones declared in fwmeta.
const (
	ReasonForced         fwmeta.Reason = "forced"
	ReasonSystemDegraded fwmeta.Reason = "system_degraded"
	ReasonNotSwapCapable fwmeta.Reason = "not_swap_capable"
)

// State is a stage of the update pipeline, reported via progress events.
type State string

const (
	StateIdle               State = "idle"
	StateExtractingMetadata State = "extracting-metadata"
	StatePreValidating      State = "pre-validating"
	StateSelectingStrategy  State = "selecting-strategy"
	StateWritingPartition   State = "writing-partition"
	StateSwapping           State = "swapping"
	StateRebooting          State = "rebooting"
	StatePostValidating     State = "post-validating"
	StateCommitted          State = "committed"
	StateRollingBack        State = "rolling-back"
	StateFailed             State = "failed"
)

// Strategy is how the update will be applied.
type Strategy string

const (
	StrategySwap   Strategy = "swap"
	StrategyReboot Strategy = "reboot"
)

// Options modify how an update is applied.
type Options struct {
	// ForceReboot applies the update via reboot even if a swap would be
	// safe.
	ForceReboot bool

	// DryRun runs extraction, validation and strategy selection, then
	// stops before any side effect.
	DryRun bool
}

// Result reports the outcome of a completed Apply call.
type Result struct {
	Status   string       `json:"status"` // swapped, rebooting or dry-run
	Strategy Strategy     `json:"strategy"`
	Version  string       `json:"version"`
	Target   partition.ID `json:"target"`

	// Reasons says why a reboot strategy was chosen: the comparison codes
	// from fwmeta.Analyze, or one of ReasonForced, ReasonSystemDegraded
	// and ReasonNotSwapCapable.
	Reasons  []fwmeta.Reason `json:"reasons,omitempty"`
	Swapped  int             `json:"swapped,omitempty"`
	Filtered int             `json:"filtered,omitempty"`
}

// FirmwareSource stages an update image and exposes its contents.
type FirmwareSource interface {
	// Extract stages the firmware referred to by ref and returns its
	// metadata plus the directory holding its compiled code units.
	Extract(ctx context.Context, ref string) (*fwmeta.Metadata, string, error)
}

// PartitionWriter writes a staged firmware image to a boot partition.
type PartitionWriter interface {
	Write(ctx context.Context, target partition.ID, dir string) error
}

// CodeSwapProvider is the runtime's hot code loading interface.
type CodeSwapProvider interface {
	// LoadedUnits returns the component names currently loaded.
	LoadedUnits() (map[string]bool, error)
	// AvailableUnits lists the compiled code units under dir.
	AvailableUnits(dir string) ([]changeset.Unit, error)
	// Swap replaces the running unit with the compiled code at source.
	Swap(unitID, source string) error
}

// RebootScheduler defers a reboot so the caller's response can be sent
// before the system goes down.
type RebootScheduler interface {
	Schedule(delay time.Duration)
	Cancel() bool
}

// Orchestrator applies firmware updates. Construct with New.
type Orchestrator struct {
	cfg Setup

	applyMu sync.Mutex

	eventsMu sync.Mutex
	nextSub  int
	subs     map[int]chan Event
	state    State
}

// Setup carries the orchestrator's collaborators and tunables.
type Setup struct {
	Env     bootenv.Store
	State   *statefile.Store
	Gate    *validate.Gate
	Source  FirmwareSource
	Writer  PartitionWriter
	Swapper CodeSwapProvider
	Reboot  RebootScheduler

	// Running is the metadata of the currently running firmware.
	Running *fwmeta.Metadata

	// CurrentRoot holds the running firmware's code units, used to swap
	// units back during a rollback.
	CurrentRoot string

	// PreChecks must pass before anything is written.
	PreChecks []validate.Check

	// SwapChecks gate the swap strategy only: a failure downgrades the
	// update to a reboot instead of failing it.
	SwapChecks []validate.Check

	// PostChecks run after a swap, under the gate's post timeout.
	PostChecks []validate.Check

	// RebootDelay is how long a scheduled reboot is deferred.
	RebootDelay time.Duration
}

// New returns an orchestrator using the given collaborators.
func New(cfg Setup) *Orchestrator {
	if cfg.RebootDelay == 0 {
		cfg.RebootDelay = time.Second
	}
	if cfg.Gate == nil {
		cfg.Gate = &validate.Gate{}
	}
	return &Orchestrator{
		cfg:   cfg,
		subs:  make(map[int]chan Event),
		state: StateIdle,
	}
}

// State returns the pipeline's current stage.
func (o *Orchestrator) State() State {
	o.eventsMu.Lock()
	defer o.eventsMu.Unlock()
	return o.state
}

// Apply runs the full update pipeline for the firmware referred to by ref.
// Only one Apply may run at a time; a concurrent call fails with
// ErrUpdateInFlight.
func (o *Orchestrator) Apply(ctx context.Context, ref string, opts *Options) (*Result, error) {
	if opts == nil {
		opts = &Options{}
	}
	if !o.applyMu.TryLock() {
		return nil, ErrUpdateInFlight
	}
	defer o.applyMu.Unlock()

	start := time.Now()
	result, err := o.apply(ctx, ref, opts)
	if err != nil {
		o.transition(StateFailed, err.Error())
		observeUpdate("failed", time.Since(start))
		return nil, err
	}
	if !opts.DryRun {
		observeUpdate(result.Status, time.Since(start))
	}
	return result, nil
}

func (o *Orchestrator) apply(ctx context.Context, ref string, opts *Options) (*Result, error) {
	o.transition(StateExtractingMetadata, ref)
	meta, stagedDir, err := o.cfg.Source.Extract(ctx, ref)
	if err != nil {
		return nil, &RefError{fmt.Errorf("cannot extract firmware metadata: %w", err)}
	}
	logger.Noticef("Starting update to version %s", meta.Version)

	o.transition(StatePreValidating, meta.Version)
	if err := o.cfg.Gate.Run(ctx, "pre-update", o.cfg.PreChecks); err != nil {
		return nil, err
	}

	o.transition(StateSelectingStrategy, meta.Version)
	strategy, reasons := o.selectStrategy(ctx, meta, opts)
	logger.Noticef("Selected %s strategy for version %s", strategy, meta.Version)

	target, err := o.writeTarget()
	if err != nil {
		return nil, err
	}

	result := &Result{
		Strategy: strategy,
		Version:  meta.Version,
		Target:   target,
		Reasons:  reasons,
	}
	if opts.DryRun {
		result.Status = "dry-run"
		o.transition(StateIdle, "dry run finished")
		return result, nil
	}

	o.transition(StateWritingPartition, string(target))
	if err := o.cfg.Writer.Write(ctx, target, stagedDir); err != nil {
		return nil, fmt.Errorf("cannot write partition %q: %w", target, err)
	}
	originalActive := o.envGet(bootenv.KeyActivePartition)
	o.cfg.Env.Set(bootenv.KeyActivePartition, string(target))
	o.cfg.Env.Set(bootenv.SlotKey(string(target), "version"), meta.Version)
	o.cfg.Env.Set(bootenv.SlotKey(string(target), "validated"), "false")
	if err := o.cfg.Env.Save(); err != nil {
		return nil, fmt.Errorf("cannot update boot pointers: %w", err)
	}
	if err := o.cfg.State.SetStaged(meta.Version, target); err != nil {
		logger.Noticef("Cannot persist staged version: %v", err)
	}

	if strategy == StrategyReboot {
		o.transition(StateRebooting, meta.Version)
		o.recordOutcome(meta.Version, statefile.OutcomeRebooted)
		o.cfg.Reboot.Schedule(o.cfg.RebootDelay)
		result.Status = "rebooting"
		return result, nil
	}

	o.cfg.Env.Set(bootenv.KeyPendingSwap, "true")
	o.cfg.Env.Set(bootenv.KeyPendingVersion, meta.Version)
	if err := o.cfg.Env.Save(); err != nil {
		return nil, fmt.Errorf("cannot mark pending swap: %w", err)
	}

	o.transition(StateSwapping, meta.Version)
	swapped, filtered, err := o.swapAll(stagedDir)
	if err != nil {
		return nil, o.rollback(target, originalActive, err)
	}
	result.Swapped = swapped
	result.Filtered = filtered

	o.transition(StatePostValidating, meta.Version)
	if err := o.cfg.Gate.Post(ctx, o.cfg.PostChecks); err != nil {
		return nil, o.rollback(target, originalActive, err)
	}

	o.cfg.Env.Unset(bootenv.KeyPendingSwap)
	o.cfg.Env.Unset(bootenv.KeyPendingVersion)
	o.commitBootenv(target)
	if err := o.cfg.Env.Save(); err != nil {
		logger.Noticef("Cannot commit boot environment: %v", err)
	}

	o.transition(StateCommitted, meta.Version)
	o.recordOutcome(meta.Version, statefile.OutcomeSwapped)
	logger.Noticef("Update to version %s committed via live swap (%d units, %d filtered)",
		meta.Version, swapped, filtered)
	result.Status = "swapped"
	return result, nil
}

// selectStrategy decides between a live swap and a reboot. The checks are
// ordered: an earlier reason wins and later ones are not evaluated.
func (o *Orchestrator) selectStrategy(ctx context.Context, meta *fwmeta.Metadata, opts *Options) (Strategy, []fwmeta.Reason) {
	if opts.ForceReboot {
		return StrategyReboot, []fwmeta.Reason{ReasonForced}
	}
	verdict := fwmeta.Analyze(o.cfg.Running, meta)
	if !verdict.SwapSafe() {
		return StrategyReboot, verdict.Reasons
	}
	if err := o.cfg.Gate.Run(ctx, "swap-readiness", o.cfg.SwapChecks); err != nil {
		logger.Noticef("Swap readiness degraded, falling back to reboot: %v", err)
		return StrategyReboot, []fwmeta.Reason{ReasonSystemDegraded}
	}
	if meta.SwapCapable == nil || !*meta.SwapCapable {
		return StrategyReboot, []fwmeta.Reason{ReasonNotSwapCapable}
	}
	return StrategySwap, nil
}

// writeTarget computes the partition the update will be written to from
// the boot environment.
func (o *Orchestrator) writeTarget() (partition.ID, error) {
	booted, err := partition.Parse(o.envGet(bootenv.KeyBootedPartition))
	if err != nil {
		return "", fmt.Errorf("cannot read booted partition: %w", err)
	}
	active, err := partition.Parse(o.envGet(bootenv.KeyActivePartition))
	if err != nil {
		return "", fmt.Errorf("cannot read active partition: %w", err)
	}
	validated := o.envGet(bootenv.SlotKey(string(booted), "validated")) == "true"
	return partition.NextWriteTarget(booted, active, validated)
}

// swapAll resolves the eligible change set under dir and swaps each unit
// into the running system, stopping at the first failure.
func (o *Orchestrator) swapAll(dir string) (swapped, filtered int, err error) {
	loaded, err := o.cfg.Swapper.LoadedUnits()
	if err != nil {
		return 0, 0, fmt.Errorf("cannot list loaded units: %w", err)
	}
	available, err := o.cfg.Swapper.AvailableUnits(dir)
	if err != nil {
		return 0, 0, fmt.Errorf("cannot list available units: %w", err)
	}
	entries, filtered := changeset.Resolve(available, loaded)
	for _, entry := range entries {
		if err := o.cfg.Swapper.Swap(entry.UnitID, entry.Source); err != nil {
			return swapped, filtered, fmt.Errorf("cannot swap unit %q: %w", entry.UnitID, err)
		}
		swapped++
	}
	return swapped, filtered, nil
}

// rollback undoes a failed swap: the running system's own units are
// swapped back in and the boot pointers restored, so the device keeps
// running the old firmware. If the rollback itself fails, a reboot into
// the freshly written partition is the only way back to a known state.
func (o *Orchestrator) rollback(target partition.ID, originalActive string, cause error) error {
	o.transition(StateRollingBack, cause.Error())
	logger.Noticef("Update failed, rolling back: %v", cause)

	if err := o.swapBack(); err != nil {
		logger.Noticef("Rollback failed, scheduling reboot: %v", err)
		o.cfg.Reboot.Schedule(o.cfg.RebootDelay)
		// The staged record stays: the reboot lands on the partition the
		// update was written to.
		return fmt.Errorf("cannot roll back after %q: %w", cause, err)
	}

	o.cfg.Env.Set(bootenv.KeyActivePartition, originalActive)
	o.cfg.Env.Unset(bootenv.SlotKey(string(target), "version"))
	o.cfg.Env.Unset(bootenv.SlotKey(string(target), "validated"))
	o.cfg.Env.Unset(bootenv.KeyPendingSwap)
	o.cfg.Env.Unset(bootenv.KeyPendingVersion)
	if err := o.cfg.Env.Save(); err != nil {
		logger.Noticef("Cannot restore boot pointers: %v", err)
	}
	active, err := partition.Parse(originalActive)
	if err == nil {
		err = o.cfg.State.ClearStaged(active)
	}
	if err != nil {
		logger.Noticef("Cannot clear staged version: %v", err)
	}
	return cause
}

// swapBack re-resolves the change set against the running firmware's own
// code units and swaps them back in.
func (o *Orchestrator) swapBack() error {
	loaded, err := o.cfg.Swapper.LoadedUnits()
	if err != nil {
		return fmt.Errorf("cannot list loaded units: %w", err)
	}
	available, err := o.cfg.Swapper.AvailableUnits(o.cfg.CurrentRoot)
	if err != nil {
		return fmt.Errorf("cannot list units of running firmware: %w", err)
	}
	entries, _ := changeset.Resolve(available, loaded)
	for _, entry := range entries {
		if err := o.cfg.Swapper.Swap(entry.UnitID, entry.Source); err != nil {
			return fmt.Errorf("cannot swap unit %q back: %w", entry.UnitID, err)
		}
	}
	return nil
}

// commitBootenv marks the booted partition validated and mirrors the new
// version onto its slot keys, so the bootloader keeps preferring it.
func (o *Orchestrator) commitBootenv(target partition.ID) {
	booted, err := partition.Parse(o.envGet(bootenv.KeyBootedPartition))
	if err != nil {
		logger.Noticef("Cannot commit boot environment: %v", err)
		return
	}
	o.cfg.Env.Set(bootenv.SlotKey(string(booted), "validated"), "true")
	if v := o.envGet(bootenv.SlotKey(string(target), "version")); v != "" {
		o.cfg.Env.Set(bootenv.SlotKey(string(booted), "version"), v)
	}
}

// recordOutcome persists a history record. Persistence failure does not
// fail the update, the outcome is already effective.
func (o *Orchestrator) recordOutcome(version string, outcome statefile.Outcome) {
	if err := o.cfg.State.RecordUpdate(time.Now(), version, outcome); err != nil {
		logger.Noticef("Cannot record update outcome: %v", err)
	}
}

func (o *Orchestrator) envGet(key string) string {
	return o.cfg.Env.Get(key)
}

// CommitBoot marks the booted partition validated once the given checks
// pass, completing a reboot-applied update the way the swap path's commit
// completes a live swap. Until this runs the freshly booted slot carries
// validated=false and cannot serve as a rotation source, so the daemon
// calls it on every startup; a slot that is already validated is left
// alone and the checks are not run.
func CommitBoot(ctx context.Context, env bootenv.Store, state *statefile.Store, gate *validate.Gate, checks []validate.Check) error {
	booted, err := partition.Parse(env.Get(bootenv.KeyBootedPartition))
	if err != nil {
		return fmt.Errorf("cannot read booted partition: %w", err)
	}
	if env.Get(bootenv.SlotKey(string(booted), "validated")) == "true" {
		return nil
	}
	if gate == nil {
		gate = &validate.Gate{}
	}
	if err := gate.Run(ctx, "post-boot", checks); err != nil {
		return err
	}
	env.Set(bootenv.SlotKey(string(booted), "validated"), "true")
	if err := env.Save(); err != nil {
		return fmt.Errorf("cannot mark partition %q validated: %w", booted, err)
	}
	version := env.Get(bootenv.SlotKey(string(booted), "version"))
	logger.Noticef("Validated booted partition %s (version %q)", booted, version)
	if err := state.MarkBooted(version, booted); err != nil {
		return fmt.Errorf("cannot record booted version: %w", err)
	}
	return nil
}

// CheckPendingSwap inspects the boot environment for the marker left by a
// swap that never finished (the device lost power or crashed mid-swap).
// If found, the marker is cleared and the interrupted version returned.
func CheckPendingSwap(env bootenv.Store) (version string, interrupted bool, err error) {
	if env.Get(bootenv.KeyPendingSwap) != "true" {
		return "", false, nil
	}
	version = env.Get(bootenv.KeyPendingVersion)
	logger.Noticef("Detected interrupted swap to version %q", version)
	env.Unset(bootenv.KeyPendingSwap)
	env.Unset(bootenv.KeyPendingVersion)
	if err := env.Save(); err != nil {
		return version, true, fmt.Errorf("cannot clear pending swap marker: %w", err)
	}
	return version, true, nil
}
