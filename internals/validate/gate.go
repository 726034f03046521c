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

// Package validate runs ordered pre- and post-update condition checks.
//
// Checks run strictly in order and the phase short-circuits on the first
// failure. The post-update phase additionally runs under a bounded timeout
// on its own worker: when the deadline passes the phase fails with
// ErrTimeout no matter how many checks had already passed, and the in-flight
// check is abandoned rather than awaited.
package validate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gopkg.in/tomb.v2"

	"github.com/Big-Cove/nerves-zero-downtime/internals/logger"
)

// DefaultPostTimeout bounds the post-update phase.
const DefaultPostTimeout = 30 * time.Second

// ErrTimeout is returned when the post-update phase misses its deadline.
var ErrTimeout = errors.New("validation timed out")

// Check is a single named condition.
type Check struct {
	Name string
	Run  func(ctx context.Context) error
}

// Failure describes the first check that failed in a phase.
type Failure struct {
	Phase  string
	Check  string
	Reason error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s check %q failed: %v", f.Phase, f.Check, f.Reason)
}

func (f *Failure) Unwrap() error { return f.Reason }

// Gate executes validation phases.
type Gate struct {
	// PostTimeout bounds Post runs; zero means DefaultPostTimeout.
	PostTimeout time.Duration
}

// Run executes the checks in order, stopping at the first failure.
func (g *Gate) Run(ctx context.Context, phase string, checks []Check) error {
	for _, check := range checks {
		if err := ctx.Err(); err != nil {
			return err
		}
		logger.Debugf("Validation %s: running check %q", phase, check.Name)
		if err := check.Run(ctx); err != nil {
			logger.Noticef("Validation %s: check %q failed: %v", phase, check.Name, err)
			return &Failure{Phase: phase, Check: check.Name, Reason: err}
		}
	}
	return nil
}

// Post runs the post-update check suite under the gate's timeout. The suite
// runs on its own goroutine so that on timeout the caller returns
// immediately; the abandoned worker is cancelled via its context and reaped
// in the background.
func (g *Gate) Post(ctx context.Context, checks []Check) error {
	timeout := g.PostTimeout
	if timeout == 0 {
		timeout = DefaultPostTimeout
	}

	runCtx, cancel := context.WithCancel(ctx)
	var t tomb.Tomb
	t.Go(func() error {
		return g.Run(runCtx, "post-update", checks)
	})

	select {
	case <-t.Dead():
		cancel()
		return t.Err()
	case <-time.After(timeout):
		// Hard cancellation: partial progress is not honored.
		cancel()
		go func() {
			// Reap the worker once the in-flight check notices the cancel;
			// nobody waits on it.
			if err := t.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				logger.Debugf("Abandoned post-update check finished: %v", err)
			}
		}()
		return ErrTimeout
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}
