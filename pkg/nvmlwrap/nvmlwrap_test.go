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
	"sync"
	"testing"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
	nvmlmock "github.com/NVIDIA/go-nvml/pkg/nvml/mock"
	"github.com/stretchr/testify/require"
)

// fakeDynamicLibrary stands in for the dlopen handle during tests.
type fakeDynamicLibrary struct {
	openErr error
	missing map[string]bool
	opens   int
	lookups []string
}

func (f *fakeDynamicLibrary) Open() error {
	f.opens++
	return f.openErr
}

func (f *fakeDynamicLibrary) Close() error {
	return nil
}

func (f *fakeDynamicLibrary) Lookup(symbol string) error {
	f.lookups = append(f.lookups, symbol)
	if f.missing[symbol] {
		return fmt.Errorf("symbol %q not found", symbol)
	}
	return nil
}

func (f *fakeDynamicLibrary) lookedUp(symbol string) bool {
	for _, s := range f.lookups {
		if s == symbol {
			return true
		}
	}
	return false
}

func newTestLib(fake *fakeDynamicLibrary, nvmllib nvml.Interface, toolkit string) *Lib {
	if nvmllib == nil {
		// An empty mock panics on any call, which is exactly what we want
		// when asserting that no forwarding happens.
		nvmllib = &nvmlmock.Interface{}
	}
	return New(
		WithDynamicLibrary(fake),
		WithNvmlLib(nvmllib),
		WithToolkitVersion(toolkit),
	)
}

func TestResolveSymbols(t *testing.T) {
	testCases := []struct {
		description   string
		openErr       error
		missing       []string
		toolkit       string
		expectedErr   error
		expectedInit  bool
		expectedCuda1 bool
	}{
		{
			description:   "all symbols present",
			toolkit:       "12.2",
			expectedInit:  true,
			expectedCuda1: true,
		},
		{
			description: "library absent",
			openErr:     fmt.Errorf("libnvidia-ml.so.1: cannot open shared object file"),
			toolkit:     "12.2",
			expectedErr: ErrLibraryNotFound,
		},
		{
			description: "mandatory symbol missing",
			missing:     []string{"nvmlDeviceGetHandleByIndex"},
			toolkit:     "12.2",
			expectedErr: ErrSymbolMissing,
		},
		{
			description:   "optional symbol missing still resolves",
			missing:       []string{"nvmlDeviceGetCpuAffinity"},
			toolkit:       "12.2",
			expectedInit:  true,
			expectedCuda1: true,
		},
		{
			description:  "gated symbol missing still resolves without cuda 11 tier",
			missing:      []string{"nvmlDeviceGetBrand"},
			toolkit:      "12.2",
			expectedInit: true,
		},
		{
			description:  "toolkit below threshold skips the gated tier",
			toolkit:      "10.2",
			expectedInit: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			fake := &fakeDynamicLibrary{openErr: tc.openErr, missing: map[string]bool{}}
			for _, s := range tc.missing {
				fake.missing[s] = true
			}

			lib := newTestLib(fake, nil, tc.toolkit)
			err := lib.ResolveSymbols()

			if tc.expectedErr != nil {
				require.ErrorIs(t, err, tc.expectedErr)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, tc.expectedInit, lib.IsInitialized())
			require.Equal(t, tc.expectedCuda1, lib.HasCuda11Functions())
		})
	}
}

func TestResolveSymbolsIdempotent(t *testing.T) {
	fake := &fakeDynamicLibrary{}
	lib := newTestLib(fake, nil, "12.2")

	require.NoError(t, lib.ResolveSymbols())
	lookups := len(fake.lookups)

	require.NoError(t, lib.ResolveSymbols())
	require.Equal(t, 1, fake.opens)
	require.Equal(t, lookups, len(fake.lookups))
}

func TestResolveSymbolsFailureIsPermanent(t *testing.T) {
	fake := &fakeDynamicLibrary{openErr: fmt.Errorf("no such file")}
	lib := newTestLib(fake, nil, "12.2")

	first := lib.ResolveSymbols()
	require.ErrorIs(t, first, ErrLibraryNotFound)

	second := lib.ResolveSymbols()
	require.ErrorIs(t, second, ErrLibraryNotFound)
	require.Equal(t, first, second)
	require.Equal(t, 1, fake.opens)
	require.False(t, lib.IsInitialized())
}

func TestResolveSymbolsConcurrent(t *testing.T) {
	fake := &fakeDynamicLibrary{}
	lib := newTestLib(fake, nil, "12.2")

	var wg sync.WaitGroup
	errs := make([]error, 16)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = lib.ResolveSymbols()
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 1, fake.opens)
	require.True(t, lib.IsInitialized())
}

func TestWrappersBeforeResolveReturnNotInitialized(t *testing.T) {
	// The empty nvml mock panics if any call forwards, so these assertions
	// also prove that nothing is dereferenced before resolution.
	lib := newTestLib(&fakeDynamicLibrary{}, &nvmlmock.Interface{}, "12.2")

	require.False(t, lib.IsInitialized())
	require.False(t, lib.HasCuda11Functions())

	require.ErrorIs(t, lib.Init(), ErrNotInitialized)
	require.ErrorIs(t, lib.Shutdown(), ErrNotInitialized)

	_, err := lib.DeviceGetHandleByIndex(0)
	require.ErrorIs(t, err, ErrNotInitialized)
	_, err = lib.DeviceGetHandleByPciBusId("0000:65:00.0")
	require.ErrorIs(t, err, ErrNotInitialized)
	_, err = lib.DeviceGetIndex(Device{})
	require.ErrorIs(t, err, ErrNotInitialized)
	require.ErrorIs(t, lib.DeviceSetCpuAffinity(Device{}), ErrNotInitialized)
	require.ErrorIs(t, lib.DeviceClearCpuAffinity(Device{}), ErrNotInitialized)
	_, err = lib.DeviceGetCpuAffinity(Device{}, 1)
	require.ErrorIs(t, err, ErrNotInitialized)
	_, err = lib.SystemGetDriverVersion(80)
	require.ErrorIs(t, err, ErrNotInitialized)
	_, err = lib.DeviceGetBrand(Device{})
	require.ErrorIs(t, err, ErrNotInitialized)
	_, err = lib.DeviceGetCountV2()
	require.ErrorIs(t, err, ErrNotInitialized)
	_, err = lib.DeviceGetHandleByIndexV2(0)
	require.ErrorIs(t, err, ErrNotInitialized)
	_, _, err = lib.DeviceGetCudaComputeCapability(Device{})
	require.ErrorIs(t, err, ErrNotInitialized)
	_, err = lib.DeviceGetCpuAffinityWithinScope(Device{}, 1, AffinityScopeNode)
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestForwarding(t *testing.T) {
	handle := &nvmlmock.Device{}
	var receivedHandle nvml.Device

	mocklib := &nvmlmock.Interface{
		InitFunc:     func() nvml.Return { return nvml.SUCCESS },
		ShutdownFunc: func() nvml.Return { return nvml.SUCCESS },
		DeviceGetHandleByIndexFunc: func(index int) (nvml.Device, nvml.Return) {
			if index != 2 {
				return nil, nvml.ERROR_INVALID_ARGUMENT
			}
			return handle, nvml.SUCCESS
		},
		DeviceGetHandleByPciBusIdFunc: func(busID string) (nvml.Device, nvml.Return) {
			if busID != "0000:65:00.0" {
				return nil, nvml.ERROR_NOT_FOUND
			}
			return handle, nvml.SUCCESS
		},
		DeviceGetIndexFunc: func(d nvml.Device) (int, nvml.Return) {
			receivedHandle = d
			return 2, nvml.SUCCESS
		},
		DeviceSetCpuAffinityFunc: func(d nvml.Device) nvml.Return {
			return nvml.SUCCESS
		},
		DeviceClearCpuAffinityFunc: func(d nvml.Device) nvml.Return {
			return nvml.SUCCESS
		},
		DeviceGetCpuAffinityFunc: func(d nvml.Device, size int) ([]uint, nvml.Return) {
			return make([]uint, size), nvml.SUCCESS
		},
		SystemGetDriverVersionFunc: func() (string, nvml.Return) {
			return "535.104.05", nvml.SUCCESS
		},
		DeviceGetBrandFunc: func(d nvml.Device) (nvml.BrandType, nvml.Return) {
			return nvml.BRAND_TESLA, nvml.SUCCESS
		},
		DeviceGetCountFunc: func() (int, nvml.Return) {
			return 4, nvml.SUCCESS
		},
		DeviceGetCudaComputeCapabilityFunc: func(d nvml.Device) (int, int, nvml.Return) {
			return 8, 0, nvml.SUCCESS
		},
		DeviceGetCpuAffinityWithinScopeFunc: func(d nvml.Device, size int, scope nvml.AffinityScope) ([]uint, nvml.Return) {
			return make([]uint, size), nvml.SUCCESS
		},
	}

	lib := newTestLib(&fakeDynamicLibrary{}, mocklib, "12.2")
	require.NoError(t, lib.ResolveSymbols())

	require.NoError(t, lib.Init())

	device, err := lib.DeviceGetHandleByIndex(2)
	require.NoError(t, err)

	index, err := lib.DeviceGetIndex(device)
	require.NoError(t, err)
	require.Equal(t, 2, index)
	require.Equal(t, nvml.Device(handle), receivedHandle)

	_, err = lib.DeviceGetHandleByIndex(7)
	require.ErrorIs(t, err, ErrInvalidDevice)

	byBus, err := lib.DeviceGetHandleByPciBusId("0000:65:00.0")
	require.NoError(t, err)
	require.Equal(t, device, byBus)

	_, err = lib.DeviceGetHandleByPciBusId("0000:ff:00.0")
	require.ErrorIs(t, err, ErrInvalidDevice)

	require.NoError(t, lib.DeviceSetCpuAffinity(device))
	require.NoError(t, lib.DeviceClearCpuAffinity(device))

	cpuSet, err := lib.DeviceGetCpuAffinity(device, 2)
	require.NoError(t, err)
	require.Len(t, cpuSet, 2)

	version, err := lib.SystemGetDriverVersion(80)
	require.NoError(t, err)
	require.Equal(t, "535.104.05", version)

	_, err = lib.SystemGetDriverVersion(8)
	require.ErrorIs(t, err, ErrBufferTooSmall)

	brand, err := lib.DeviceGetBrand(device)
	require.NoError(t, err)
	require.Equal(t, nvml.BRAND_TESLA, brand)

	count, err := lib.DeviceGetCountV2()
	require.NoError(t, err)
	require.Equal(t, 4, count)

	v2, err := lib.DeviceGetHandleByIndexV2(2)
	require.NoError(t, err)
	require.Equal(t, device, v2)

	major, minor, err := lib.DeviceGetCudaComputeCapability(device)
	require.NoError(t, err)
	require.Equal(t, 8, major)
	require.Equal(t, 0, minor)

	scoped, err := lib.DeviceGetCpuAffinityWithinScope(device, 2, AffinityScopeSocket)
	require.NoError(t, err)
	require.Len(t, scoped, 2)

	require.NoError(t, lib.Shutdown())
}

func TestOptionalSymbolMissing(t *testing.T) {
	fake := &fakeDynamicLibrary{missing: map[string]bool{
		"nvmlDeviceGetCpuAffinity": true,
	}}
	mocklib := &nvmlmock.Interface{
		DeviceSetCpuAffinityFunc: func(d nvml.Device) nvml.Return { return nvml.SUCCESS },
	}

	lib := newTestLib(fake, mocklib, "12.2")
	require.NoError(t, lib.ResolveSymbols())

	_, err := lib.DeviceGetCpuAffinity(Device{}, 1)
	require.ErrorIs(t, err, ErrNotSupported)

	// Siblings with resolved symbols keep working.
	require.NoError(t, lib.DeviceSetCpuAffinity(Device{}))
}

func TestGatedTierIsAllOrNothing(t *testing.T) {
	fake := &fakeDynamicLibrary{missing: map[string]bool{
		"nvmlDeviceGetCount_v2": true,
	}}
	lib := newTestLib(fake, nil, "12.2")
	require.NoError(t, lib.ResolveSymbols())
	require.False(t, lib.HasCuda11Functions())

	// Even the gated symbols that did resolve report not supported.
	_, err := lib.DeviceGetBrand(Device{})
	require.ErrorIs(t, err, ErrNotSupported)
	_, err = lib.DeviceGetCountV2()
	require.ErrorIs(t, err, ErrNotSupported)
	_, err = lib.DeviceGetHandleByIndexV2(0)
	require.ErrorIs(t, err, ErrNotSupported)
	_, _, err = lib.DeviceGetCudaComputeCapability(Device{})
	require.ErrorIs(t, err, ErrNotSupported)
	_, err = lib.DeviceGetCpuAffinityWithinScope(Device{}, 1, AffinityScopeNode)
	require.ErrorIs(t, err, ErrNotSupported)
}

func TestLowToolkitNeverProbesGatedSymbols(t *testing.T) {
	fake := &fakeDynamicLibrary{}
	lib := newTestLib(fake, nil, "10.2")
	require.NoError(t, lib.ResolveSymbols())

	for _, symbol := range cuda11Symbols {
		require.False(t, fake.lookedUp(symbol), "symbol %s must not be probed below the toolkit threshold", symbol)
	}
	require.False(t, lib.HasCuda11Functions())

	_, err := lib.DeviceGetBrand(Device{})
	require.ErrorIs(t, err, ErrNotSupported)
}

func TestReturnErrorPassthrough(t *testing.T) {
	mocklib := &nvmlmock.Interface{
		InitFunc: func() nvml.Return { return nvml.ERROR_NO_PERMISSION },
	}
	lib := newTestLib(&fakeDynamicLibrary{}, mocklib, "12.2")
	require.NoError(t, lib.ResolveSymbols())

	err := lib.Init()
	require.Error(t, err)

	var retErr *ReturnError
	require.ErrorAs(t, err, &retErr)
	require.Equal(t, nvml.ERROR_NO_PERMISSION, retErr.Return())
}
