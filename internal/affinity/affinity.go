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

// Package affinity converts the CPU affinity bitmasks reported by the
// management library into CPU lists and sizes the query buffers from the
// host's processor inventory.
package affinity

import (
	"fmt"
	"sort"
	"strings"

	"github.com/prometheus/procfs"
)

const bitsPerWord = 64

// CPUCount returns the number of logical CPUs listed in procfs under the
// given root (normally "/proc").
func CPUCount(procRoot string) (int, error) {
	fs, err := procfs.NewFS(procRoot)
	if err != nil {
		return 0, fmt.Errorf("error opening procfs at %s: %w", procRoot, err)
	}
	info, err := fs.CPUInfo()
	if err != nil {
		return 0, fmt.Errorf("error reading cpuinfo: %w", err)
	}
	if len(info) == 0 {
		return 0, fmt.Errorf("no processors listed in %s/cpuinfo", procRoot)
	}
	return len(info), nil
}

// WordsForCPUs returns the number of 64-bit mask words needed to cover the
// given CPU count.
func WordsForCPUs(cpus int) int {
	if cpus <= 0 {
		return 0
	}
	return (cpus + bitsPerWord - 1) / bitsPerWord
}

// CPUs expands an affinity bitmask into the sorted list of set CPU indices.
// Word i covers CPUs [i*64, i*64+63], lowest bit first.
func CPUs(mask []uint) []int {
	var cpus []int
	for word, bits := range mask {
		for bit := 0; bit < bitsPerWord; bit++ {
			if bits&(1<<uint(bit)) != 0 {
				cpus = append(cpus, word*bitsPerWord+bit)
			}
		}
	}
	sort.Ints(cpus)
	return cpus
}

// String renders a CPU index list in the kernel's cpulist format, collapsing
// runs into ranges ("0-3,8-11").
func String(cpus []int) string {
	if len(cpus) == 0 {
		return ""
	}
	sorted := make([]int, len(cpus))
	copy(sorted, cpus)
	sort.Ints(sorted)

	var parts []string
	start := sorted[0]
	prev := sorted[0]
	flush := func(end int) {
		if start == end {
			parts = append(parts, fmt.Sprintf("%d", start))
			return
		}
		parts = append(parts, fmt.Sprintf("%d-%d", start, end))
	}
	for _, cpu := range sorted[1:] {
		if cpu == prev || cpu == prev+1 {
			prev = cpu
			continue
		}
		flush(prev)
		start = cpu
		prev = cpu
	}
	flush(prev)
	return strings.Join(parts, ",")
}
