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

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDurationValue(t *testing.T) {
	v := NewDurationValue(60 * time.Second)
	require.Equal(t, "1m0s", v.String())

	require.NoError(t, v.Set("infinite"))
	require.True(t, v.Value.IsInfinite())
	require.Equal(t, "infinite", v.String())

	require.NoError(t, v.Set("5s"))
	require.Equal(t, Duration(5*time.Second), *v.Value)

	require.Error(t, v.Set("not-a-duration"))
}
