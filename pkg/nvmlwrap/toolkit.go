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
	"strconv"
	"strings"
)

// toolkitVersion is the CUDA toolkit version this tree is built against.
// It gates which optional symbol tier is attempted during resolution and
// can be overridden with go build's -X option in the Makefile.
var toolkitVersion = "12.2"

// ToolkitVersion returns the compiled-in toolkit version string.
func ToolkitVersion() string {
	return toolkitVersion
}

// cudaMajor extracts the major component from a toolkit version string such
// as "11.4". Unparseable input yields 0, which disables the gated tier.
func cudaMajor(version string) int {
	major, _, _ := strings.Cut(version, ".")
	n, err := strconv.Atoi(strings.TrimSpace(major))
	if err != nil {
		return 0
	}
	return n
}
