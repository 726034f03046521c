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

// Package config loads the updater's configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the updater configuration. All fields have working defaults
// so an empty file (or none at all) yields a usable configuration.
type Config struct {
	// Dir is the updater's working directory, holding the state file and
	// staged update copies.
	Dir string `yaml:"dir"`

	// BootEnvPath is the boot-environment file shared with the bootloader.
	BootEnvPath string `yaml:"boot-env-path"`

	// MetadataPath is the metadata file of the currently running firmware.
	MetadataPath string `yaml:"metadata-path"`

	// HTTPAddress is the daemon's listen address, also used by the CLI
	// to reach a running daemon.
	HTTPAddress string `yaml:"http-address"`

	// StagedPath is the directory the upload hook stages new firmware in,
	// applied by the zero-argument notify trigger.
	StagedPath string `yaml:"staged-path"`

	// CurrentRoot holds the running firmware's code units, swapped back in
	// on rollback.
	CurrentRoot string `yaml:"current-root"`

	// WriteCommand writes a staged firmware directory to a partition. It
	// is run with the target partition and the directory as arguments.
	WriteCommand string `yaml:"write-command"`

	// SwapCommand swaps one code unit into the running system. It is run
	// with the unit ID and the compiled unit's path as arguments.
	SwapCommand string `yaml:"swap-command"`

	// LoadedUnitsCommand prints the loaded component names, one per line.
	LoadedUnitsCommand string `yaml:"loaded-units-command"`

	// SpaceThreshold is the minimum free disk space for updates, in bytes.
	SpaceThreshold uint64 `yaml:"space-threshold"`

	// MemoryThreshold is the minimum available memory for updates, in bytes.
	MemoryThreshold uint64 `yaml:"memory-threshold"`

	// PostTimeout bounds the post-update validation phase.
	PostTimeout time.Duration `yaml:"post-timeout"`

	// RebootDelay is how long a scheduled reboot is deferred so in-flight
	// responses can be delivered first.
	RebootDelay time.Duration `yaml:"reboot-delay"`

	// SmokeTest is an optional command run during post-update validation.
	SmokeTest string `yaml:"smoke-test"`

	// HealthURL is an optional HTTP endpoint checked before and after an
	// update.
	HealthURL string `yaml:"health-url"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Dir:             "/var/lib/nzd",
		BootEnvPath:     "/boot/nzd.env",
		MetadataPath:    "/etc/nzd/release.meta",
		HTTPAddress:     "127.0.0.1:4000",
		StagedPath:      "/var/lib/nzd/staged",
		CurrentRoot:     "/srv/firmware/current",
		SpaceThreshold:  100 * 1024 * 1024,
		MemoryThreshold: 32 * 1024 * 1024,
		PostTimeout:     30 * time.Second,
		RebootDelay:     time.Second,
	}
}

// Parse reads a configuration from YAML, applying defaults for unset
// fields. Unknown fields are an error, matching how the rest of the system
// treats configuration typos.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return cfg, nil
		}
		return nil, fmt.Errorf("cannot parse config: %w", err)
	}
	return cfg, nil
}

// Load reads the configuration file at path. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	return Parse(data)
}
