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

// Defaults applied when neither the command line, the environment, nor a
// config file provides a value.
const (
	DefaultDriverRoot    = "/"
	DefaultLibraryName   = "libnvidia-ml.so.1"
	DefaultSleepInterval = "60s"
	DefaultOutputFile    = ""

	// DefaultDriverVersionBufferLength matches the buffer size the vendor
	// headers prescribe for driver version queries.
	DefaultDriverVersionBufferLength = 80
)

// Command line flag names.
const (
	FlagFailOnInitError = "fail-on-init-error"
	FlagDriverRoot      = "driver-root"
	FlagLibraryPath     = "nvml-library-path"
	FlagWaitForDriver   = "wait-for-driver"
	FlagOneshot         = "oneshot"
	FlagNoTimestamp     = "no-timestamp"
	FlagSleepInterval   = "sleep-interval"
	FlagOutputFile      = "output-file"
	FlagConfigFile      = "config-file"
)
