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

// libnvmlwrap is the process-wide instance backing the package-level API.
// Embedding callers that do not need custom options use these functions
// directly; no raw library or symbol state leaks out of it.
var libnvmlwrap = New()

// IsInitialized reports whether the process-wide instance has resolved its
// symbols.
func IsInitialized() bool {
	return libnvmlwrap.IsInitialized()
}

// ResolveSymbols resolves the process-wide instance. See Lib.ResolveSymbols.
func ResolveSymbols() error {
	return libnvmlwrap.ResolveSymbols()
}

// HasCuda11Functions reports whether the process-wide instance resolved the
// CUDA 11 symbol tier.
func HasCuda11Functions() bool {
	return libnvmlwrap.HasCuda11Functions()
}

// Init forwards to nvmlInit on the process-wide instance.
func Init() error {
	return libnvmlwrap.Init()
}

// Shutdown forwards to nvmlShutdown on the process-wide instance.
func Shutdown() error {
	return libnvmlwrap.Shutdown()
}

// DeviceGetHandleByPciBusId calls the process-wide instance.
func DeviceGetHandleByPciBusId(busID string) (Device, error) {
	return libnvmlwrap.DeviceGetHandleByPciBusId(busID)
}

// DeviceGetHandleByIndex calls the process-wide instance.
func DeviceGetHandleByIndex(index int) (Device, error) {
	return libnvmlwrap.DeviceGetHandleByIndex(index)
}

// DeviceGetIndex calls the process-wide instance.
func DeviceGetIndex(device Device) (int, error) {
	return libnvmlwrap.DeviceGetIndex(device)
}

// DeviceSetCpuAffinity calls the process-wide instance.
func DeviceSetCpuAffinity(device Device) error {
	return libnvmlwrap.DeviceSetCpuAffinity(device)
}

// DeviceClearCpuAffinity calls the process-wide instance.
func DeviceClearCpuAffinity(device Device) error {
	return libnvmlwrap.DeviceClearCpuAffinity(device)
}

// DeviceGetCpuAffinity calls the process-wide instance.
func DeviceGetCpuAffinity(device Device, cpuSetSize int) ([]uint, error) {
	return libnvmlwrap.DeviceGetCpuAffinity(device, cpuSetSize)
}

// SystemGetDriverVersion calls the process-wide instance.
func SystemGetDriverVersion(bufferLength int) (string, error) {
	return libnvmlwrap.SystemGetDriverVersion(bufferLength)
}

// DeviceGetCpuAffinityWithinScope calls the process-wide instance.
func DeviceGetCpuAffinityWithinScope(device Device, cpuSetSize int, scope AffinityScope) ([]uint, error) {
	return libnvmlwrap.DeviceGetCpuAffinityWithinScope(device, cpuSetSize, scope)
}

// DeviceGetBrand calls the process-wide instance.
func DeviceGetBrand(device Device) (Brand, error) {
	return libnvmlwrap.DeviceGetBrand(device)
}

// DeviceGetCountV2 calls the process-wide instance.
func DeviceGetCountV2() (int, error) {
	return libnvmlwrap.DeviceGetCountV2()
}

// DeviceGetHandleByIndexV2 calls the process-wide instance.
func DeviceGetHandleByIndexV2(index int) (Device, error) {
	return libnvmlwrap.DeviceGetHandleByIndexV2(index)
}

// DeviceGetCudaComputeCapability calls the process-wide instance.
func DeviceGetCudaComputeCapability(device Device) (int, int, error) {
	return libnvmlwrap.DeviceGetCudaComputeCapability(device)
}
