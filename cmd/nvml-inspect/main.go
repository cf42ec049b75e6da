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

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	nvinfo "github.com/NVIDIA/go-nvlib/pkg/nvlib/info"

	spec "github.com/NVIDIA/go-nvmlwrap/api/config/v1"
	"github.com/NVIDIA/go-nvmlwrap/internal/info"
	"github.com/NVIDIA/go-nvmlwrap/internal/watch"
	"github.com/NVIDIA/go-nvmlwrap/pkg/nvmlwrap"
)

// Config represents a collection of config options for the inspector.
type Config struct {
	configFile string

	// flags stores the CLI flags for later processing.
	flags []cli.Flag
}

func main() {
	config := &Config{}

	c := cli.NewApp()
	c.Name = "NVML Inspect"
	c.Usage = "report driver, device and CPU affinity details for NVIDIA GPUs"
	c.Version = info.GetVersionString("toolkit: " + nvmlwrap.ToolkitVersion())
	c.Action = func(ctx *cli.Context) error {
		return start(ctx, config)
	}

	config.flags = []cli.Flag{
		&cli.BoolFlag{
			Name:    spec.FlagFailOnInitError,
			Value:   true,
			Usage:   "fail if an error is encountered during initialization, otherwise block indefinitely",
			EnvVars: []string{"FAIL_ON_INIT_ERROR"},
		},
		&cli.StringFlag{
			Name:    spec.FlagDriverRoot,
			Value:   spec.DefaultDriverRoot,
			Usage:   "the root path for the NVIDIA driver installation (typical values are '/' or '/run/nvidia/driver')",
			EnvVars: []string{"NVIDIA_DRIVER_ROOT", "DRIVER_ROOT"},
		},
		&cli.StringFlag{
			Name:    spec.FlagLibraryPath,
			Usage:   "an explicit path to the NVML shared library; overrides discovery under --driver-root",
			EnvVars: []string{"NVML_LIBRARY_PATH"},
		},
		&cli.BoolFlag{
			Name:    spec.FlagWaitForDriver,
			Value:   false,
			Usage:   "wait for the NVML shared library to appear instead of failing when it is absent",
			EnvVars: []string{"WAIT_FOR_DRIVER"},
		},
		&cli.BoolFlag{
			Name:    spec.FlagOneshot,
			Value:   false,
			Usage:   "report once and exit",
			EnvVars: []string{"ONESHOT"},
		},
		&cli.BoolFlag{
			Name:    spec.FlagNoTimestamp,
			Value:   false,
			Usage:   "do not add a timestamp to the report",
			EnvVars: []string{"NO_TIMESTAMP"},
		},
		&cli.GenericFlag{
			Name:    spec.FlagSleepInterval,
			Value:   spec.NewDurationValue(60 * time.Second),
			Usage:   "time to sleep between reports; accepts 'infinite'",
			EnvVars: []string{"SLEEP_INTERVAL"},
		},
		&cli.StringFlag{
			Name:    spec.FlagOutputFile,
			Aliases: []string{"output", "o"},
			Value:   spec.DefaultOutputFile,
			Usage:   "the file to write the report to; writes to stdout when empty",
			EnvVars: []string{"OUTPUT_FILE"},
		},
		&cli.StringFlag{
			Name:        spec.FlagConfigFile,
			Usage:       "the path to a config file as an alternative to command line options or environment variables",
			Destination: &config.configFile,
			EnvVars:     []string{"CONFIG_FILE"},
		},
	}

	c.Flags = config.flags

	if err := c.Run(os.Args); err != nil {
		klog.Error(err)
		os.Exit(1)
	}
}

// loadConfig loads the config from the config file and CLI flags.
func (cfg *Config) loadConfig(c *cli.Context) (*spec.Config, error) {
	config, err := spec.NewConfig(c, cfg.flags)
	if err != nil {
		return nil, fmt.Errorf("unable to finalize config: %v", err)
	}
	return config, nil
}

func start(c *cli.Context, cfg *Config) error {
	defer func() {
		klog.Info("Exiting")
	}()

	klog.Info("Starting OS watcher.")
	sigs := watch.Signals(syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	for {
		klog.Info("Loading configuration.")
		config, err := cfg.loadConfig(c)
		if err != nil {
			return fmt.Errorf("unable to load config: %v", err)
		}

		configJSON, err := json.MarshalIndent(config, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config to JSON: %v", err)
		}
		klog.Infof("\nRunning with config:\n%v", string(configJSON))

		libraryPath := resolveLibraryPath(config)
		klog.Infof("Using NVML library path: %v", libraryPath)

		if config.Flags.WaitForDriver != nil && *config.Flags.WaitForDriver {
			if err := waitForLibrary(libraryPath, sigs); err != nil {
				return err
			}
		}

		if hasNvml, reason := nvinfo.New().HasNvml(); !hasNvml {
			klog.Warningf("NVML not detected on this platform: %v", reason)
		}

		i := &inspector{
			config:   config,
			lib:      nvmlwrap.New(nvmlwrap.WithLibraryPath(libraryPath)),
			procRoot: "/proc",
			stdout:   os.Stdout,
		}

		klog.Info("Start running")
		restart, err := i.run(sigs)
		if err != nil {
			return err
		}

		if !restart {
			return nil
		}
	}
}

// resolveLibraryPath picks the NVML library location: an explicit path wins,
// otherwise the library is searched for under the driver root.
func resolveLibraryPath(config *spec.Config) string {
	if config.Flags.LibraryPath != nil && *config.Flags.LibraryPath != "" {
		return *config.Flags.LibraryPath
	}
	driverRoot := spec.DefaultDriverRoot
	if config.Flags.DriverRoot != nil && *config.Flags.DriverRoot != "" {
		driverRoot = *config.Flags.DriverRoot
	}
	return root(driverRoot).tryResolveLibrary(spec.DefaultLibraryName)
}
