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
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// Device is an opaque, copyable identifier for a physical GPU as reported by
// NVML. The binding layer never interprets or frees it; it is only passed
// back into wrapper calls.
type Device struct {
	handle nvml.Device
}

// AffinityScope selects the locality domain for the scoped CPU affinity
// query.
type AffinityScope = nvml.AffinityScope

// Affinity scopes accepted by DeviceGetCpuAffinityWithinScope.
const (
	AffinityScopeNode   = nvml.AFFINITY_SCOPE_NODE
	AffinityScopeSocket = nvml.AFFINITY_SCOPE_SOCKET
)

// Brand identifies the product brand of a device.
type Brand = nvml.BrandType

var brandNames = map[Brand]string{
	nvml.BRAND_QUADRO:              "Quadro",
	nvml.BRAND_TESLA:               "Tesla",
	nvml.BRAND_NVS:                 "NVS",
	nvml.BRAND_GRID:                "Grid",
	nvml.BRAND_GEFORCE:             "GeForce",
	nvml.BRAND_TITAN:               "Titan",
	nvml.BRAND_NVIDIA_VAPPS:        "NvidiaVApps",
	nvml.BRAND_NVIDIA_VPC:          "NvidiaVPC",
	nvml.BRAND_NVIDIA_VCS:          "NvidiaVCS",
	nvml.BRAND_NVIDIA_VWS:          "NvidiaVWS",
	nvml.BRAND_NVIDIA_CLOUD_GAMING: "NvidiaCloudGaming",
	nvml.BRAND_QUADRO_RTX:          "QuadroRTX",
	nvml.BRAND_NVIDIA_RTX:          "NvidiaRTX",
	nvml.BRAND_NVIDIA:              "Nvidia",
	nvml.BRAND_GEFORCE_RTX:         "GeForceRTX",
	nvml.BRAND_TITAN_RTX:           "TitanRTX",
}

// BrandString returns the display name for a brand, or "Unknown" for values
// the binding does not recognize.
func BrandString(b Brand) string {
	if name, ok := brandNames[b]; ok {
		return name
	}
	return "Unknown"
}
