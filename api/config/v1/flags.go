/*
 * Copyright (c) 2024, NVIDIA CORPORATION.  All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package v1

import (
	"fmt"

	cli "github.com/urfave/cli/v2"
)

// ptr returns a reference to whatever value is passed into it.
func ptr[T any](x T) *T {
	return &x
}

// updateFromCLIFlag conditionally updates the config flag at 'pflag' to the
// value of the CLI flag with name 'flagName'.
func updateFromCLIFlag[T any](pflag **T, c *cli.Context, flagName string) {
	if c.IsSet(flagName) || *pflag == (*T)(nil) {
		switch flag := any(pflag).(type) {
		case **string:
			*flag = ptr(c.String(flagName))
		case **bool:
			*flag = ptr(c.Bool(flagName))
		case **Duration:
			if v, ok := c.Generic(flagName).(*DurationValue); ok {
				*flag = ptr(*v.Value)
			} else {
				*flag = ptr(Duration(c.Duration(flagName)))
			}
		default:
			panic(fmt.Errorf("unsupported flag type for %v: %T", flagName, flag))
		}
	}
}

// Flags holds the full list of flags used to configure the inspector.
type Flags struct {
	CommandLineFlags
}

// CommandLineFlags holds the list of command line flags used to configure the
// inspector.
type CommandLineFlags struct {
	FailOnInitError *bool     `json:"failOnInitError"           yaml:"failOnInitError"`
	DriverRoot      *string   `json:"driverRoot,omitempty"      yaml:"driverRoot,omitempty"`
	LibraryPath     *string   `json:"nvmlLibraryPath,omitempty" yaml:"nvmlLibraryPath,omitempty"`
	WaitForDriver   *bool     `json:"waitForDriver"             yaml:"waitForDriver"`
	Oneshot         *bool     `json:"oneshot"                   yaml:"oneshot"`
	NoTimestamp     *bool     `json:"noTimestamp"               yaml:"noTimestamp"`
	SleepInterval   *Duration `json:"sleepInterval"             yaml:"sleepInterval"`
	OutputFile      *string   `json:"outputFile"                yaml:"outputFile"`
}

// UpdateFromCLIFlags updates Flags from settings in the cli Flags if they are set.
func (f *Flags) UpdateFromCLIFlags(c *cli.Context, flags []cli.Flag) {
	for _, flag := range flags {
		for _, n := range flag.Names() {
			switch n {
			case FlagFailOnInitError:
				updateFromCLIFlag(&f.FailOnInitError, c, n)
			case FlagDriverRoot:
				updateFromCLIFlag(&f.DriverRoot, c, n)
			case FlagLibraryPath:
				updateFromCLIFlag(&f.LibraryPath, c, n)
			case FlagWaitForDriver:
				updateFromCLIFlag(&f.WaitForDriver, c, n)
			case FlagOneshot:
				updateFromCLIFlag(&f.Oneshot, c, n)
			case FlagNoTimestamp:
				updateFromCLIFlag(&f.NoTimestamp, c, n)
			case FlagSleepInterval:
				updateFromCLIFlag(&f.SleepInterval, c, n)
			case FlagOutputFile:
				updateFromCLIFlag(&f.OutputFile, c, n)
			}
		}
	}
}
