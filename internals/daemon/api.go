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

package daemon

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Big-Cove/nerves-zero-downtime/internals/bootenv"
	"github.com/Big-Cove/nerves-zero-downtime/internals/statefile"
	"github.com/Big-Cove/nerves-zero-downtime/internals/update"
)

// API is the list of supported commands, with their wrappers and handlers.
var API = []*Command{{
	Path: "/v1/system-info",
	GET:  v1SystemInfo,
}, {
	Path: "/v1/status",
	GET:  v1Status,
}, {
	Path: "/v1/history",
	GET:  v1History,
}, {
	Path: "/v1/update",
	POST: v1PostUpdate,
}, {
	Path: "/v1/notify",
	POST: v1PostNotify,
}, {
	Path: "/v1/events",
	GET:  v1GetEvents,
}}

func v1SystemInfo(c *Command, r *http.Request) Response {
	return SyncResponse(map[string]interface{}{
		"version": c.d.options.Version,
	})
}

type statusResult struct {
	CurrentVersion  string     `json:"current-version"`
	StagedVersion   string     `json:"staged-version,omitempty"`
	BootedPartition string     `json:"booted-partition"`
	ActivePartition string     `json:"active-partition"`
	State           string     `json:"state"`
	LastSwap        *time.Time `json:"last-successful-swap,omitempty"`
}

func v1Status(c *Command, r *http.Request) Response {
	st, err := c.d.options.State.Load()
	if err != nil {
		return InternalError("cannot load state: %v", err)
	}
	env := c.d.options.Env
	return SyncResponse(&statusResult{
		CurrentVersion:  st.CurrentVersion,
		StagedVersion:   st.StagedVersion,
		BootedPartition: env.Get(bootenv.KeyBootedPartition),
		ActivePartition: env.Get(bootenv.KeyActivePartition),
		State:           string(c.d.options.Orchestrator.State()),
		LastSwap:        st.LastSuccessfulSwap,
	})
}

func v1History(c *Command, r *http.Request) Response {
	st, err := c.d.options.State.Load()
	if err != nil {
		return InternalError("cannot load state: %v", err)
	}
	records := st.History
	if records == nil {
		records = []statefile.Record{}
	}
	return SyncResponse(records)
}

type updatePayload struct {
	Ref         string `json:"ref"`
	ForceReboot bool   `json:"force-reboot"`
	DryRun      bool   `json:"dry-run"`
}

func v1PostUpdate(c *Command, r *http.Request) Response {
	var payload updatePayload
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&payload); err != nil {
		return BadRequest("cannot decode request body: %v", err)
	}
	if payload.Ref == "" {
		return BadRequest(`invalid "ref": cannot be empty`)
	}
	return runUpdate(c, r, payload.Ref, &update.Options{
		ForceReboot: payload.ForceReboot,
		DryRun:      payload.DryRun,
	})
}

// v1PostNotify is the zero-argument trigger wired to the device's
// upload-completion hook: apply whatever was just staged.
func v1PostNotify(c *Command, r *http.Request) Response {
	ref := c.d.options.DefaultRef
	if ref == "" {
		return BadRequest("no default firmware reference configured")
	}
	return runUpdate(c, r, ref, &update.Options{})
}

func runUpdate(c *Command, r *http.Request, ref string, opts *update.Options) Response {
	result, err := c.d.options.Orchestrator.Apply(r.Context(), ref, opts)
	if err != nil {
		var refErr *update.RefError
		switch {
		case errors.Is(err, update.ErrUpdateInFlight):
			return Conflict("%v", err)
		case errors.As(err, &refErr):
			return BadRequest("cannot apply update: %v", err)
		default:
			return InternalError("cannot apply update: %v", err)
		}
	}
	return SyncResponse(result)
}
