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

package shm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobalRegionInitAndOpenRoundTrip(t *testing.T) {
	mem := make([]byte, DefaultRegionSize)

	g, err := InitGlobalRegion(mem, 16)
	require.NoError(t, err)

	assert.Equal(t, uint32(0), g.AttachedProcessCount())
	assert.Equal(t, uint32(1), g.RegisteredSettingsAssemblyCount(), "assembly 0 is implicitly the core's own")

	assert.Equal(t, uint32(1), g.IncrementAttachedProcesses())
	assert.Equal(t, uint32(0), g.DecrementAttachedProcesses())

	idx := g.NextSettingsAssemblyIndex()
	assert.Equal(t, uint32(1), idx)
	assert.Equal(t, uint32(2), g.RegisteredSettingsAssemblyCount())

	reopened, err := OpenGlobalRegion(mem)
	require.NoError(t, err)
	assert.Equal(t, g.RegisteredSettingsAssemblyCount(), reopened.RegisteredSettingsAssemblyCount())
}

func TestGlobalRegionChannelSyncBlocksAreIndependent(t *testing.T) {
	mem := make([]byte, DefaultRegionSize)
	g, err := InitGlobalRegion(mem, 16)
	require.NoError(t, err)

	control := g.ControlChannelSync()
	feedback := g.FeedbackChannelSync()

	control.CompareAndSwapWrite(0, 40)
	assert.Equal(t, uint32(40), control.WritePosition())
	assert.Equal(t, uint32(0), feedback.WritePosition(), "the two channels' sync blocks must not alias")
}

func TestOpenGlobalRegionRejectsUninitializedMemory(t *testing.T) {
	mem := make([]byte, DefaultRegionSize)
	_, err := OpenGlobalRegion(mem)
	assert.ErrorIs(t, err, ErrNotFound)
}
