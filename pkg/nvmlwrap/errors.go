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
	"errors"
	"fmt"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// Error kinds reported by the binding layer. Callers are expected to treat
// ErrNotSupported and ErrSymbolMissing as capability-detection signals and
// ErrLibraryNotFound as "no management stack on this host", not as fatal
// conditions.
var (
	// ErrLibraryNotFound indicates the NVML shared library could not be
	// located or opened on this host.
	ErrLibraryNotFound = errors.New("NVML library not found")

	// ErrSymbolMissing indicates a mandatory symbol is absent from the
	// loaded library.
	ErrSymbolMissing = errors.New("NVML symbol missing")

	// ErrNotInitialized indicates a wrapper was called before ResolveSymbols
	// succeeded.
	ErrNotInitialized = errors.New("NVML bindings not initialized")

	// ErrNotSupported indicates the resolved library lacks the symbol
	// backing the call, or the call reported not-supported for the device.
	ErrNotSupported = errors.New("not supported")

	// ErrInvalidDevice indicates the underlying call rejected the device
	// identifier.
	ErrInvalidDevice = errors.New("invalid device")

	// ErrBufferTooSmall indicates the caller-supplied buffer length cannot
	// hold the result.
	ErrBufferTooSmall = errors.New("buffer too small")
)

// ReturnError carries a raw NVML status through the error chain. Its Unwrap
// maps well-known statuses onto the sentinel kinds above so callers can use
// errors.Is without inspecting the code, while Return keeps the passthrough
// status available.
type ReturnError struct {
	Op  string
	Ret nvml.Return
}

func (e *ReturnError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, nvml.ErrorString(e.Ret))
}

func (e *ReturnError) Unwrap() error {
	return kindOf(e.Ret)
}

// Return exposes the raw vendor status for callers that need it.
func (e *ReturnError) Return() nvml.Return {
	return e.Ret
}

// kindOf maps an NVML status onto the shared error kinds. Statuses with no
// mapping (permission denied, driver not loaded, ...) pass through untyped.
func kindOf(ret nvml.Return) error {
	switch ret {
	case nvml.ERROR_UNINITIALIZED:
		return ErrNotInitialized
	case nvml.ERROR_INVALID_ARGUMENT, nvml.ERROR_NOT_FOUND:
		return ErrInvalidDevice
	case nvml.ERROR_NOT_SUPPORTED, nvml.ERROR_FUNCTION_NOT_FOUND:
		return ErrNotSupported
	case nvml.ERROR_INSUFFICIENT_SIZE:
		return ErrBufferTooSmall
	case nvml.ERROR_LIBRARY_NOT_FOUND:
		return ErrLibraryNotFound
	}
	return nil
}

// errorFrom converts an NVML status into an error, or nil on success.
func errorFrom(op string, ret nvml.Return) error {
	if ret == nvml.SUCCESS {
		return nil
	}
	return &ReturnError{Op: op, Ret: ret}
}
