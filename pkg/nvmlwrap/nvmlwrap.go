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

// Package nvmlwrap provides a lazily resolved binding to the NVML shared
// library for components that must run on hosts with or without the NVIDIA
// management stack installed. The library and its symbols are resolved on
// first use; every wrapper reports a typed error instead of touching an
// unresolved symbol.
package nvmlwrap

import (
	"fmt"
	"sync"

	"github.com/NVIDIA/go-nvml/pkg/dl"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"k8s.io/klog/v2"
)

const (
	defaultLibraryName      = "libnvidia-ml.so.1"
	defaultLibraryLoadFlags = dl.RTLD_LAZY | dl.RTLD_GLOBAL
)

// Symbols that must be present for ResolveSymbols to succeed.
var mandatorySymbols = []string{
	"nvmlInit",
	"nvmlShutdown",
	"nvmlDeviceGetHandleByPciBusId",
	"nvmlDeviceGetHandleByIndex",
	"nvmlDeviceGetIndex",
	"nvmlSystemGetDriverVersion",
}

// Symbols that may be absent from older driver builds. A missing optional
// symbol does not fail resolution; the corresponding wrapper reports
// ErrNotSupported instead.
var optionalSymbols = []string{
	"nvmlDeviceSetCpuAffinity",
	"nvmlDeviceClearCpuAffinity",
	"nvmlDeviceGetCpuAffinity",
}

// Symbols only probed when the compiled-in toolkit version is at least 11.0.
// The tier is all-or-nothing: if any of these is missing, HasCuda11Functions
// reports false and every wrapper in the tier returns ErrNotSupported.
var cuda11Symbols = []string{
	"nvmlDeviceGetCpuAffinityWithinScope",
	"nvmlDeviceGetBrand",
	"nvmlDeviceGetCount_v2",
	"nvmlDeviceGetHandleByIndex_v2",
	"nvmlDeviceGetCudaComputeCapability",
}

// dynamicLibrary abstracts the underlying shared library handle so that
// symbol resolution can be exercised in tests without a driver installation.
type dynamicLibrary interface {
	Open() error
	Close() error
	Lookup(string) error
}

// Lib resolves and dispatches calls into the NVML shared library.
//
// The zero value is not usable; construct instances with New. A Lib moves
// through the states unresolved -> resolved or unresolved -> failed, and a
// failed resolution is cached for the remaining lifetime of the process:
// later ResolveSymbols calls return the original error without touching the
// dynamic loader again.
type Lib struct {
	sync.Mutex
	path    string
	toolkit string
	nvml    nvml.Interface
	dl      dynamicLibrary

	resolved   bool
	resolveErr error
	caps       map[string]bool
	hasCuda11  bool
}

// Option configures a Lib.
type Option func(*Lib)

// WithLibraryPath overrides the name or path used to locate the NVML shared
// library.
func WithLibraryPath(path string) Option {
	return func(l *Lib) {
		l.path = path
	}
}

// WithNvmlLib overrides the underlying NVML bindings. Used in tests.
func WithNvmlLib(nvmllib nvml.Interface) Option {
	return func(l *Lib) {
		l.nvml = nvmllib
	}
}

// WithDynamicLibrary overrides the handle used for symbol probing. Used in
// tests.
func WithDynamicLibrary(d dynamicLibrary) Option {
	return func(l *Lib) {
		l.dl = d
	}
}

// WithToolkitVersion overrides the compiled-in toolkit version used to gate
// the CUDA 11 symbol tier.
func WithToolkitVersion(version string) Option {
	return func(l *Lib) {
		l.toolkit = version
	}
}

// New creates a Lib against the given options. No loading happens until
// ResolveSymbols is called.
func New(opts ...Option) *Lib {
	l := &Lib{
		toolkit: toolkitVersion,
		caps:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.path == "" {
		l.path = defaultLibraryName
	}
	if l.nvml == nil {
		l.nvml = nvml.New(nvml.WithLibraryPath(l.path))
	}
	if l.dl == nil {
		l.dl = dl.New(l.path, defaultLibraryLoadFlags)
	}
	return l
}

// IsInitialized reports whether symbol resolution has already succeeded.
func (l *Lib) IsInitialized() bool {
	l.Lock()
	defer l.Unlock()
	return l.resolved
}

// HasCuda11Functions reports whether the CUDA 11 symbol tier resolved in
// full. Callers use this to branch between legacy and modern code paths
// without risking a call into an unresolved symbol.
func (l *Lib) HasCuda11Functions() bool {
	l.Lock()
	defer l.Unlock()
	return l.resolved && l.hasCuda11
}

// ResolveSymbols opens the NVML shared library and resolves the symbol
// tables. It is idempotent and safe for concurrent use: exactly one caller
// performs the load, and every caller observes the same outcome. A failed
// resolution is permanent for this process; restart to retry.
func (l *Lib) ResolveSymbols() error {
	l.Lock()
	defer l.Unlock()

	if l.resolved {
		return nil
	}
	if l.resolveErr != nil {
		return l.resolveErr
	}

	if err := l.resolve(); err != nil {
		l.resolveErr = err
		return err
	}
	l.resolved = true
	return nil
}

// resolve performs the actual load and lookup sequence. Called with the lock
// held, at most once per process unless it never ran.
func (l *Lib) resolve() error {
	if err := l.dl.Open(); err != nil {
		return fmt.Errorf("error opening %s: %v: %w", l.path, err, ErrLibraryNotFound)
	}
	// The handle stays open for the remainder of the process; the OS unloads
	// it at exit.

	for _, symbol := range mandatorySymbols {
		if err := l.dl.Lookup(symbol); err != nil {
			return fmt.Errorf("error resolving %s: %v: %w", symbol, err, ErrSymbolMissing)
		}
		l.caps[symbol] = true
	}

	for _, symbol := range optionalSymbols {
		err := l.dl.Lookup(symbol)
		l.caps[symbol] = err == nil
		if err != nil {
			klog.Warningf("Optional NVML symbol %s not found; dependent calls will report not supported", symbol)
		}
	}

	if cudaMajor(l.toolkit) >= 11 {
		l.hasCuda11 = true
		for _, symbol := range cuda11Symbols {
			err := l.dl.Lookup(symbol)
			l.caps[symbol] = err == nil
			if err != nil {
				l.hasCuda11 = false
			}
		}
		if !l.hasCuda11 {
			klog.Warning("CUDA 11 NVML symbol set incomplete; falling back to the legacy API surface")
		}
	}

	return nil
}

// ready gates a wrapper call on successful resolution and on the presence of
// the symbol backing it.
func (l *Lib) ready(symbol string) error {
	l.Lock()
	defer l.Unlock()
	if !l.resolved {
		return fmt.Errorf("%s: symbols not resolved: %w", symbol, ErrNotInitialized)
	}
	if !l.caps[symbol] {
		return fmt.Errorf("%s: %w", symbol, ErrNotSupported)
	}
	return nil
}

// readyCuda11 gates a wrapper in the version-gated tier. The tier is surfaced
// all-or-nothing, so a partially resolved tier reports ErrNotSupported even
// for the symbols that did resolve.
func (l *Lib) readyCuda11(symbol string) error {
	l.Lock()
	defer l.Unlock()
	if !l.resolved {
		return fmt.Errorf("%s: symbols not resolved: %w", symbol, ErrNotInitialized)
	}
	if !l.hasCuda11 {
		return fmt.Errorf("%s: %w", symbol, ErrNotSupported)
	}
	return nil
}
