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
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"k8s.io/klog/v2"

	spec "github.com/NVIDIA/go-nvmlwrap/api/config/v1"
	"github.com/NVIDIA/go-nvmlwrap/internal/affinity"
	"github.com/NVIDIA/go-nvmlwrap/internal/watch"
	"github.com/NVIDIA/go-nvmlwrap/pkg/nvmlwrap"
)

type inspector struct {
	config   *spec.Config
	lib      *nvmlwrap.Lib
	procRoot string
	stdout   io.Writer
}

// deviceReport holds the per-device portion of a report.
type deviceReport struct {
	index             int
	brand             string
	computeCapability string
	cpuAffinity       string
}

// report is one snapshot of the driver and device state.
type report struct {
	timestamp      string
	driverVersion  string
	toolkitVersion string
	cuda11         bool
	devices        []deviceReport
}

// run produces reports until told to stop. It returns true if the caller
// should reload the config and run again.
func (i *inspector) run(sigs chan os.Signal) (bool, error) {
	sleepInterval := 60 * time.Second
	if i.config.Flags.SleepInterval != nil {
		sleepInterval = time.Duration(*i.config.Flags.SleepInterval)
	}

rerun:
	r, err := i.snapshot()
	if err != nil {
		if !errors.Is(err, nvmlwrap.ErrLibraryNotFound) && !errors.Is(err, nvmlwrap.ErrSymbolMissing) {
			return false, err
		}
		// A host without the management stack is a supported configuration;
		// report nothing rather than fail, unless told otherwise.
		klog.Warningf("NVML unavailable: %v", err)
		if i.config.Flags.FailOnInitError != nil && *i.config.Flags.FailOnInitError {
			return false, fmt.Errorf("failed to initialize NVML: %w", err)
		}
		klog.Warning("Continuing without GPU support. Waiting indefinitely.")
		for s := range sigs {
			if s == syscall.SIGHUP {
				klog.Info("Received SIGHUP, restarting.")
				return true, nil
			}
			klog.Infof("Received signal %v, shutting down.", s)
			return false, nil
		}
		return false, nil
	}

	if err := i.output(r); err != nil {
		return false, err
	}

	if i.config.Flags.Oneshot != nil && *i.config.Flags.Oneshot {
		return false, nil
	}

	klog.Info("Sleeping for ", sleepInterval)
	rerunTimeout := time.After(sleepInterval)

	for {
		select {
		case <-rerunTimeout:
			goto rerun

		// On SIGHUP trigger a reload of the config. On all other signals,
		// exit the loop and exit the program.
		case s := <-sigs:
			switch s {
			case syscall.SIGHUP:
				klog.Info("Received SIGHUP, restarting.")
				return true, nil
			default:
				klog.Infof("Received signal %v, shutting down.", s)
				return false, nil
			}
		}
	}
}

// snapshot resolves the library if needed and collects one report.
func (i *inspector) snapshot() (*report, error) {
	if err := i.lib.ResolveSymbols(); err != nil {
		return nil, err
	}

	if err := i.lib.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize NVML: %w", err)
	}
	defer func() {
		if err := i.lib.Shutdown(); err != nil {
			klog.Warningf("Error shutting down NVML: %v", err)
		}
	}()

	driverVersion, err := i.lib.SystemGetDriverVersion(spec.DefaultDriverVersionBufferLength)
	if err != nil {
		return nil, fmt.Errorf("error getting driver version: %w", err)
	}

	r := &report{
		driverVersion:  driverVersion,
		toolkitVersion: nvmlwrap.ToolkitVersion(),
		cuda11:         i.lib.HasCuda11Functions(),
	}
	if i.config.Flags.NoTimestamp == nil || !*i.config.Flags.NoTimestamp {
		r.timestamp = fmt.Sprintf("%d", time.Now().Unix())
	}

	r.devices, err = i.devices()
	if err != nil {
		return nil, err
	}

	return r, nil
}

// devices enumerates the visible devices. With the CUDA 11 symbol tier the
// device count is queried up front; the legacy surface has no count call, so
// enumeration probes increasing indices until the driver rejects one.
func (i *inspector) devices() ([]deviceReport, error) {
	cpuSetSize := i.cpuSetSize()

	if i.lib.HasCuda11Functions() {
		count, err := i.lib.DeviceGetCountV2()
		if err != nil {
			return nil, fmt.Errorf("error getting device count: %w", err)
		}
		var reports []deviceReport
		for index := 0; index < count; index++ {
			device, err := i.lib.DeviceGetHandleByIndexV2(index)
			if err != nil {
				return nil, fmt.Errorf("error getting handle for device %d: %w", index, err)
			}
			reports = append(reports, i.describe(index, device, cpuSetSize))
		}
		return reports, nil
	}

	var reports []deviceReport
	for index := 0; ; index++ {
		device, err := i.lib.DeviceGetHandleByIndex(index)
		if errors.Is(err, nvmlwrap.ErrInvalidDevice) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error getting handle for device %d: %w", index, err)
		}
		reports = append(reports, i.describe(index, device, cpuSetSize))
	}
	return reports, nil
}

// cpuSetSize returns the number of affinity mask words covering the host's
// CPUs, or 0 when the processor inventory cannot be read.
func (i *inspector) cpuSetSize() int {
	cpus, err := affinity.CPUCount(i.procRoot)
	if err != nil {
		klog.Warningf("Could not determine CPU count; skipping affinity queries: %v", err)
		return 0
	}
	return affinity.WordsForCPUs(cpus)
}

// describe collects the per-device fields. Queries the driver does not
// support are left empty rather than failing the report.
func (i *inspector) describe(index int, device nvmlwrap.Device, cpuSetSize int) deviceReport {
	r := deviceReport{index: index}

	if i.lib.HasCuda11Functions() {
		brand, err := i.lib.DeviceGetBrand(device)
		if err != nil {
			klog.Warningf("Error getting brand for device %d: %v", index, err)
		} else {
			r.brand = nvmlwrap.BrandString(brand)
		}

		major, minor, err := i.lib.DeviceGetCudaComputeCapability(device)
		if err != nil {
			klog.Warningf("Error getting compute capability for device %d: %v", index, err)
		} else {
			r.computeCapability = fmt.Sprintf("%d.%d", major, minor)
		}
	}

	if cpuSetSize > 0 {
		mask, err := i.deviceCPUAffinity(device, cpuSetSize)
		if errors.Is(err, nvmlwrap.ErrNotSupported) {
			klog.V(2).Infof("CPU affinity not supported for device %d", index)
		} else if err != nil {
			klog.Warningf("Error getting CPU affinity for device %d: %v", index, err)
		} else {
			r.cpuAffinity = affinity.String(affinity.CPUs(mask))
		}
	}

	return r
}

// deviceCPUAffinity prefers the NUMA-scoped query when the CUDA 11 tier is
// available and falls back to the process-wide mask otherwise.
func (i *inspector) deviceCPUAffinity(device nvmlwrap.Device, cpuSetSize int) ([]uint, error) {
	if i.lib.HasCuda11Functions() {
		return i.lib.DeviceGetCpuAffinityWithinScope(device, cpuSetSize, nvmlwrap.AffinityScopeNode)
	}
	return i.lib.DeviceGetCpuAffinity(device, cpuSetSize)
}

// render flattens a report into sorted key=value lines.
func (r *report) render() string {
	values := map[string]string{
		"nvml.driver-version":  r.driverVersion,
		"nvml.toolkit-version": r.toolkitVersion,
		"nvml.cuda11":          fmt.Sprintf("%t", r.cuda11),
		"gpu.count":            fmt.Sprintf("%d", len(r.devices)),
	}
	if r.timestamp != "" {
		values["nvml.timestamp"] = r.timestamp
	}
	for _, d := range r.devices {
		prefix := fmt.Sprintf("gpu.%d.", d.index)
		if d.brand != "" {
			values[prefix+"brand"] = d.brand
		}
		if d.computeCapability != "" {
			values[prefix+"compute-capability"] = d.computeCapability
		}
		if d.cpuAffinity != "" {
			values[prefix+"cpu-affinity"] = d.cpuAffinity
		}
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(values[k])
		sb.WriteString("\n")
	}
	return sb.String()
}

// output writes the report to the configured output file, or stdout when no
// file is configured.
func (i *inspector) output(r *report) error {
	contents := r.render()

	if i.config.Flags.OutputFile == nil || *i.config.Flags.OutputFile == "" {
		_, err := fmt.Fprint(i.stdout, contents)
		return err
	}
	return writeFileAtomically(*i.config.Flags.OutputFile, []byte(contents), 0644)
}

// writeFileAtomically stages the contents in a sibling temporary file and
// renames it over the destination so that readers never observe a partial
// report.
func writeFileAtomically(path string, contents []byte, perm os.FileMode) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to retrieve absolute path of output file: %v", err)
	}

	absDir := filepath.Dir(absPath)

	tmpFile, err := os.CreateTemp(absDir, "nvml-inspect-")
	if err != nil {
		return fmt.Errorf("fail to create temporary output file: %v", err)
	}
	defer func() {
		if err != nil {
			tmpFile.Close()
			os.Remove(tmpFile.Name())
		}
	}()

	err = os.WriteFile(tmpFile.Name(), contents, perm)
	if err != nil {
		return fmt.Errorf("error writing temporary file '%v': %v", tmpFile.Name(), err)
	}

	err = os.Rename(tmpFile.Name(), absPath)
	if err != nil {
		return fmt.Errorf("error moving temporary file to '%v': %v", absPath, err)
	}

	err = os.Chmod(absPath, perm)
	if err != nil {
		return fmt.Errorf("error setting permissions on '%v': %v", absPath, err)
	}

	return nil
}

// waitForLibrary blocks until the library file exists, watching its parent
// directory for creation events. A termination signal aborts the wait.
func waitForLibrary(libraryPath string, sigs chan os.Signal) error {
	if _, err := os.Stat(libraryPath); err == nil {
		return nil
	}

	dir := filepath.Dir(libraryPath)
	klog.Infof("Waiting for %v to appear.", libraryPath)

	watcher, err := watch.Files(dir)
	if err != nil {
		return fmt.Errorf("failed to watch %v: %w", dir, err)
	}
	defer watcher.Close()

	// Check again after the watch is established to close the window between
	// the initial stat and the first event.
	if _, err := os.Stat(libraryPath); err == nil {
		return nil
	}

	for {
		select {
		case event := <-watcher.Events:
			if event.Name == libraryPath && event.Op&fsnotify.Create == fsnotify.Create {
				klog.Infof("inotify: %v created.", libraryPath)
				return nil
			}
		case err := <-watcher.Errors:
			klog.Warningf("inotify: %v", err)
		case s := <-sigs:
			return fmt.Errorf("received signal %v while waiting for %v", s, libraryPath)
		}
	}
}
