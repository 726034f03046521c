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
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// apiClient is a thin client for the daemon's HTTP API.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(address string) *apiClient {
	return &apiClient{
		base: "http://" + address,
		// No overall timeout: an update request legitimately blocks for
		// the whole pipeline, including post-validation.
		http: &http.Client{},
	}
}

type apiEnvelope struct {
	Type   string          `json:"type"`
	Status int             `json:"status-code"`
	Result json.RawMessage `json:"result"`
}

type apiError struct {
	Message string `json:"message"`
}

func (c *apiClient) do(method, path string, payload, result interface{}) error {
	var body *bytes.Buffer
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(data)
	} else {
		body = &bytes.Buffer{}
	}
	req, err := http.NewRequest(method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	rsp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("cannot communicate with daemon: %w", err)
	}
	defer rsp.Body.Close()

	var envelope apiEnvelope
	if err := json.NewDecoder(rsp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("cannot decode daemon response: %w", err)
	}
	if envelope.Type == "error" {
		var apiErr apiError
		if err := json.Unmarshal(envelope.Result, &apiErr); err == nil && apiErr.Message != "" {
			return fmt.Errorf("%s", apiErr.Message)
		}
		return fmt.Errorf("daemon error (status %d)", envelope.Status)
	}
	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("cannot decode daemon response: %w", err)
		}
	}
	return nil
}

func (c *apiClient) get(path string, result interface{}) error {
	return c.do("GET", path, nil, result)
}

func (c *apiClient) post(path string, payload, result interface{}) error {
	return c.do("POST", path, payload, result)
}

// statusResult mirrors the daemon's /v1/status result.
type statusResult struct {
	CurrentVersion  string     `json:"current-version"`
	StagedVersion   string     `json:"staged-version"`
	BootedPartition string     `json:"booted-partition"`
	ActivePartition string     `json:"active-partition"`
	State           string     `json:"state"`
	LastSwap        *time.Time `json:"last-successful-swap"`
}
