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

// Package cli implements the nzd command line tool.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/canonical/go-flags"
	"golang.org/x/term"

	"github.com/Big-Cove/nerves-zero-downtime/internals/config"
	"github.com/Big-Cove/nerves-zero-downtime/internals/logger"
)

var (
	Stdout io.Writer = os.Stdout
	Stderr io.Writer = os.Stderr
)

// defaultConfigPath is the config file used if $NZD_CONFIG is not set.
const defaultConfigPath = "/etc/nzd/nzd.yaml"

type options struct {
	Version func() `long:"version"`
}

var optionsData options

// ErrExtraArgs is returned if extra arguments to a command are found.
var ErrExtraArgs = fmt.Errorf("too many arguments for command")

// CmdInfo holds information needed by the CLI to execute commands and
// populate entries in the help manual.
type CmdInfo struct {
	// Name of the command.
	Name string

	// Summary is a single-line help string shown in the help manual.
	Summary string

	// Description contains exhaustive documentation about the command.
	Description string

	// Builder is a function that creates a new instance of the command
	// struct containing an Execute(args []string) implementation.
	Builder func() flags.Commander
}

// commands holds information about all commands.
var commands []*CmdInfo

// AddCommand replaces parser.addCommand() in a way that is compatible with
// re-constructing a pristine parser.
func AddCommand(info *CmdInfo) {
	commands = append(commands, info)
}

const longDescription = `
The nzd tool keeps embedded devices updatable without downtime: it decides
between a live code swap and a full reboot, manages the A/B/C boot
partitions, and validates the system before and after every update.
`

// Parser creates and populates a fresh parser.
// Since commands have local state a fresh parser is required to isolate
// tests from each other.
func Parser() *flags.Parser {
	optionsData.Version = func() {
		fmt.Fprintln(Stdout, Version)
		panic(&exitStatus{0})
	}
	parser := flags.NewParser(&optionsData, flags.Options(flags.PassDoubleDash))
	parser.ShortDescription = "Zero-downtime firmware update tool"
	parser.LongDescription = strings.TrimSpace(longDescription)
	parser.Usage = "<command> [options]"
	if version := parser.FindOptionByLongName("version"); version != nil {
		version.Description = "Print the version and exit"
		version.Hidden = true
	}
	for _, c := range commands {
		obj := c.Builder()
		_, err := parser.AddCommand(c.Name, c.Summary, strings.TrimSpace(c.Description), obj)
		if err != nil {
			logger.Panicf("cannot add command %q: %v", c.Name, err)
		}
	}
	return parser
}

var (
	isStdoutTTY = term.IsTerminal(1)
	osExit      = os.Exit
)

// loadConfig reads the config file named by $NZD_CONFIG, falling back to
// the system default path.
func loadConfig() (*config.Config, error) {
	path := os.Getenv("NZD_CONFIG")
	if path == "" {
		path = defaultConfigPath
	}
	return config.Load(path)
}

// exitStatus can be used in panic(&exitStatus{code}) to cause the main
// function to exit with a given exit code, for the rare cases when you
// want to return an exit code other than 0 or 1, or when an error return
// is not possible.
type exitStatus struct {
	code int
}

func (e *exitStatus) Error() string {
	return fmt.Sprintf("internal error: exitStatus{%d} being handled as normal error", e.code)
}

func Run() error {
	defer func() {
		if v := recover(); v != nil {
			if e, ok := v.(*exitStatus); ok {
				osExit(e.code)
			}
			panic(v)
		}
	}()

	logger.SetLogger(logger.New(os.Stderr, "[nzd] "))

	parser := Parser()
	_, err := parser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); ok {
			switch e.Type {
			case flags.ErrCommandRequired:
				parser.WriteHelp(Stdout)
				return nil
			case flags.ErrHelp:
				parser.WriteHelp(Stdout)
				return nil
			case flags.ErrUnknownCommand:
				return fmt.Errorf("unknown command %q, see 'nzd --help'", os.Args[1])
			}
		}
		return err
	}
	return nil
}
