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

func TestArenaAllocateBumpsFreeOffsetAndChains(t *testing.T) {
	mem := make([]byte, 4096)
	arena := NewArena(mem)

	assert.Equal(t, uint32(0), arena.AllocationCount())
	assert.Equal(t, uint64(arenaHeaderSize), arena.FreeOffset())

	off1, err := arena.Allocate(10)
	require.NoError(t, err)
	off2, err := arena.Allocate(10)
	require.NoError(t, err)

	assert.NotEqual(t, off1, off2)
	assert.Equal(t, uint32(2), arena.AllocationCount())
	assert.Greater(t, arena.FreeOffset(), uint64(arenaHeaderSize))

	var visited []uint64
	arena.WalkAllocations(func(payloadOffset uint64) {
		visited = append(visited, payloadOffset)
	})
	assert.Equal(t, []uint64{off1, off2}, visited)
}

func TestArenaAllocateOutOfMemory(t *testing.T) {
	mem := make([]byte, arenaHeaderSize+64)
	arena := NewArena(mem)

	_, err := arena.Allocate(1)
	require.NoError(t, err)

	_, err = arena.Allocate(1024)
	assert.ErrorIs(t, err, ErrOutOfMemory)
}

func TestOpenArenaReattachesToExistingAllocations(t *testing.T) {
	mem := make([]byte, 4096)
	arena := NewArena(mem)
	off, err := arena.Allocate(32)
	require.NoError(t, err)

	reopened := OpenArena(mem)
	assert.Equal(t, arena.AllocationCount(), reopened.AllocationCount())
	assert.Equal(t, arena.FreeOffset(), reopened.FreeOffset())

	var visited []uint64
	reopened.WalkAllocations(func(payloadOffset uint64) { visited = append(visited, payloadOffset) })
	assert.Equal(t, []uint64{off}, visited)
}
