/*
 *
 * Copyright 2026 the mlos-shm authors.
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
 *
 */

package mlosctx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterSettingsAssemblyRequestRoundTrip(t *testing.T) {
	want := RegisterSettingsAssemblyRequest{AssemblyIndex: 12}
	got, ok := UnmarshalRegisterSettingsAssemblyRequest(want.Marshal())
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestRegisterSharedConfigMemoryRegionRequestRoundTrip(t *testing.T) {
	want := RegisterSharedConfigMemoryRegionRequest{RegionType: 2, RegionIndex: 5}
	got, ok := UnmarshalRegisterSharedConfigMemoryRegionRequest(want.Marshal())
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestUnmarshalRejectsTruncatedPayload(t *testing.T) {
	_, ok := UnmarshalRegisterSettingsAssemblyRequest([]byte{1, 2})
	assert.False(t, ok)

	_, ok = UnmarshalRegisterSharedConfigMemoryRegionRequest([]byte{1, 2, 3})
	assert.False(t, ok)
}

func TestRegisteredSettingsAssemblyConfigMarshalUnmarshal(t *testing.T) {
	rec := &RegisteredSettingsAssemblyConfig{
		AssemblyIndex:          3,
		DispatchTableBaseIndex: 100,
		FileName:               "component.dll",
	}
	assert.Equal(t, uint32(1), rec.CodegenTypeIndex())
	assert.Equal(t, []byte("component.dll"), rec.Key())

	var into RegisteredSettingsAssemblyConfig
	require.NoError(t, into.Unmarshal(rec.Marshal()))
	assert.Equal(t, rec.AssemblyIndex, into.AssemblyIndex)
	assert.Equal(t, rec.DispatchTableBaseIndex, into.DispatchTableBaseIndex)
}

func TestCoreDispatchTableRoutesByCodegenTypeIndex(t *testing.T) {
	var gotAssembly RegisterSettingsAssemblyRequest
	var gotRegion RegisterSharedConfigMemoryRegionRequest
	var terminated bool

	table := CoreDispatchTable(
		func(m RegisterSettingsAssemblyRequest) bool { gotAssembly = m; return true },
		func(m RegisterSharedConfigMemoryRegionRequest) bool { gotRegion = m; return true },
		func() bool { terminated = true; return true },
	)
	require.Len(t, table, 3)

	assert.True(t, table[0].Handler(RegisterSettingsAssemblyRequest{AssemblyIndex: 9}.Marshal(), 0))
	assert.Equal(t, uint32(9), gotAssembly.AssemblyIndex)

	assert.True(t, table[1].Handler(RegisterSharedConfigMemoryRegionRequest{RegionType: 1, RegionIndex: 2}.Marshal(), 0))
	assert.Equal(t, uint32(1), gotRegion.RegionType)

	assert.True(t, table[2].Handler(nil, 0))
	assert.True(t, terminated)
}
