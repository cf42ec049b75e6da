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

package nvmlwrap

import (
	"fmt"
)

// Init forwards to nvmlInit. ResolveSymbols must have succeeded first.
func (l *Lib) Init() error {
	if err := l.ready("nvmlInit"); err != nil {
		return err
	}
	return errorFrom("nvmlInit", l.nvml.Init())
}

// Shutdown forwards to nvmlShutdown. The resolved symbol tables remain valid
// afterwards; only the vendor library's global state is torn down.
func (l *Lib) Shutdown() error {
	if err := l.ready("nvmlShutdown"); err != nil {
		return err
	}
	return errorFrom("nvmlShutdown", l.nvml.Shutdown())
}

// DeviceGetHandleByPciBusId returns the device with the given PCI bus ID
// ("domain:bus:device.function", e.g. "0000:65:00.0").
func (l *Lib) DeviceGetHandleByPciBusId(busID string) (Device, error) {
	if err := l.ready("nvmlDeviceGetHandleByPciBusId"); err != nil {
		return Device{}, err
	}
	handle, ret := l.nvml.DeviceGetHandleByPciBusId(busID)
	if err := errorFrom("nvmlDeviceGetHandleByPciBusId", ret); err != nil {
		return Device{}, err
	}
	return Device{handle: handle}, nil
}

// DeviceGetHandleByIndex returns the device at the given enumeration index.
func (l *Lib) DeviceGetHandleByIndex(index int) (Device, error) {
	if err := l.ready("nvmlDeviceGetHandleByIndex"); err != nil {
		return Device{}, err
	}
	handle, ret := l.nvml.DeviceGetHandleByIndex(index)
	if err := errorFrom("nvmlDeviceGetHandleByIndex", ret); err != nil {
		return Device{}, err
	}
	return Device{handle: handle}, nil
}

// DeviceGetIndex returns the enumeration index of the given device.
func (l *Lib) DeviceGetIndex(device Device) (int, error) {
	if err := l.ready("nvmlDeviceGetIndex"); err != nil {
		return 0, err
	}
	index, ret := l.nvml.DeviceGetIndex(device.handle)
	if err := errorFrom("nvmlDeviceGetIndex", ret); err != nil {
		return 0, err
	}
	return index, nil
}

// DeviceSetCpuAffinity binds the calling process to the CPUs local to the
// given device's NUMA node.
func (l *Lib) DeviceSetCpuAffinity(device Device) error {
	if err := l.ready("nvmlDeviceSetCpuAffinity"); err != nil {
		return err
	}
	return errorFrom("nvmlDeviceSetCpuAffinity", l.nvml.DeviceSetCpuAffinity(device.handle))
}

// DeviceClearCpuAffinity removes the affinity binding established by
// DeviceSetCpuAffinity.
func (l *Lib) DeviceClearCpuAffinity(device Device) error {
	if err := l.ready("nvmlDeviceClearCpuAffinity"); err != nil {
		return err
	}
	return errorFrom("nvmlDeviceClearCpuAffinity", l.nvml.DeviceClearCpuAffinity(device.handle))
}

// DeviceGetCpuAffinity returns the ideal CPU affinity bitmask for the device
// as cpuSetSize 64-bit words. The slice is owned by the caller.
func (l *Lib) DeviceGetCpuAffinity(device Device, cpuSetSize int) ([]uint, error) {
	if err := l.ready("nvmlDeviceGetCpuAffinity"); err != nil {
		return nil, err
	}
	cpuSet, ret := l.nvml.DeviceGetCpuAffinity(device.handle, cpuSetSize)
	if err := errorFrom("nvmlDeviceGetCpuAffinity", ret); err != nil {
		return nil, err
	}
	return cpuSet, nil
}

// SystemGetDriverVersion returns the driver version string. bufferLength
// mirrors the underlying contract: a version string that does not fit in
// bufferLength bytes (including the terminator) fails with ErrBufferTooSmall.
func (l *Lib) SystemGetDriverVersion(bufferLength int) (string, error) {
	if err := l.ready("nvmlSystemGetDriverVersion"); err != nil {
		return "", err
	}
	version, ret := l.nvml.SystemGetDriverVersion()
	if err := errorFrom("nvmlSystemGetDriverVersion", ret); err != nil {
		return "", err
	}
	if len(version)+1 > bufferLength {
		return "", fmt.Errorf("driver version %q needs %d bytes, have %d: %w", version, len(version)+1, bufferLength, ErrBufferTooSmall)
	}
	return version, nil
}

// DeviceGetCpuAffinityWithinScope returns the device's CPU affinity bitmask
// restricted to the given locality scope. Part of the CUDA 11 tier.
func (l *Lib) DeviceGetCpuAffinityWithinScope(device Device, cpuSetSize int, scope AffinityScope) ([]uint, error) {
	if err := l.readyCuda11("nvmlDeviceGetCpuAffinityWithinScope"); err != nil {
		return nil, err
	}
	cpuSet, ret := l.nvml.DeviceGetCpuAffinityWithinScope(device.handle, cpuSetSize, scope)
	if err := errorFrom("nvmlDeviceGetCpuAffinityWithinScope", ret); err != nil {
		return nil, err
	}
	return cpuSet, nil
}

// DeviceGetBrand returns the product brand of the device. Part of the
// CUDA 11 tier.
func (l *Lib) DeviceGetBrand(device Device) (Brand, error) {
	if err := l.readyCuda11("nvmlDeviceGetBrand"); err != nil {
		return 0, err
	}
	brand, ret := l.nvml.DeviceGetBrand(device.handle)
	if err := errorFrom("nvmlDeviceGetBrand", ret); err != nil {
		return 0, err
	}
	return brand, nil
}

// DeviceGetCountV2 returns the number of devices visible to the driver.
// Part of the CUDA 11 tier.
func (l *Lib) DeviceGetCountV2() (int, error) {
	if err := l.readyCuda11("nvmlDeviceGetCount_v2"); err != nil {
		return 0, err
	}
	count, ret := l.nvml.DeviceGetCount()
	if err := errorFrom("nvmlDeviceGetCount_v2", ret); err != nil {
		return 0, err
	}
	return count, nil
}

// DeviceGetHandleByIndexV2 returns the device at the given index using the
// v2 entry point. Part of the CUDA 11 tier.
func (l *Lib) DeviceGetHandleByIndexV2(index int) (Device, error) {
	if err := l.readyCuda11("nvmlDeviceGetHandleByIndex_v2"); err != nil {
		return Device{}, err
	}
	handle, ret := l.nvml.DeviceGetHandleByIndex(index)
	if err := errorFrom("nvmlDeviceGetHandleByIndex_v2", ret); err != nil {
		return Device{}, err
	}
	return Device{handle: handle}, nil
}

// DeviceGetCudaComputeCapability returns the device's CUDA compute
// capability. Part of the CUDA 11 tier.
func (l *Lib) DeviceGetCudaComputeCapability(device Device) (int, int, error) {
	if err := l.readyCuda11("nvmlDeviceGetCudaComputeCapability"); err != nil {
		return 0, 0, err
	}
	major, minor, ret := l.nvml.DeviceGetCudaComputeCapability(device.handle)
	if err := errorFrom("nvmlDeviceGetCudaComputeCapability", ret); err != nil {
		return 0, 0, err
	}
	return major, minor, nil
}
