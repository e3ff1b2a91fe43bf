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
	"sync/atomic"
)

// allocationEntrySize is sizeof(AllocationEntry): the doubly-linked chain
// header that precedes every allocation. 16 bytes: two u64 offsets.
const allocationEntrySize = 16

// arenaHeaderSize is sizeof the ArenaHeader itself, aligned to 64 bytes like
// every other allocation.
const arenaHeaderSize = 64

// allocationEntry is the doubly-linked-list node written immediately before
// every allocation's payload, so the set of live allocations is walkable
// from either end.
type allocationEntry struct {
	prevOffset uint64
	nextOffset uint64
}

func allocationEntryAt(buf byteBuffer, offset uint64) *allocationEntry {
	return (*allocationEntry)(buf.ptr(offset))
}

// arenaHeader is the bump-allocator's own bookkeeping block: offset to
// itself, end of the usable region, current free offset, allocation
// count, and the offset of the most recently made allocation (the tail of
// the chain).
type arenaHeader struct {
	selfOffset      uint64
	endOffset       uint64
	freeOffset      uint64
	allocationCount uint32
	_               uint32
	lastAllocOffset uint64
	firstAllocOffset uint64
	_               [16]byte // pad to 64 bytes
}

// ArenaAllocator is a single-threaded bump allocator embedded at a fixed
// offset inside some larger shared-memory region. Callers are expected to
// serialize calls to Allocate the same way a single writer-owned
// dictionary does (see DESIGN.md).
type ArenaAllocator struct {
	buf        byteBuffer
	baseOffset uint64 // offset, within buf, where the arena header lives
}

// NewArena initializes a fresh arena occupying the entirety of mem, with its
// header at the start.
func NewArena(mem []byte) *ArenaAllocator {
	buf := newByteBuffer(mem)
	h := (*arenaHeader)(buf.ptr(0))
	atomic.StoreUint64(&h.selfOffset, 0)
	atomic.StoreUint64(&h.endOffset, uint64(len(mem)))
	atomic.StoreUint64(&h.freeOffset, arenaHeaderSize)
	atomic.StoreUint32(&h.allocationCount, 0)
	atomic.StoreUint64(&h.lastAllocOffset, 0)
	atomic.StoreUint64(&h.firstAllocOffset, 0)
	return &ArenaAllocator{buf: buf}
}

// OpenArena attaches to an arena previously created by NewArena in the same
// bytes.
func OpenArena(mem []byte) *ArenaAllocator {
	return &ArenaAllocator{buf: newByteBuffer(mem)}
}

func (a *ArenaAllocator) header() *arenaHeader {
	return (*arenaHeader)(a.buf.ptr(a.baseOffset))
}

// EndOffset returns the end of the arena's usable space.
func (a *ArenaAllocator) EndOffset() uint64 { return atomic.LoadUint64(&a.header().endOffset) }

// FreeOffset returns the current bump pointer.
func (a *ArenaAllocator) FreeOffset() uint64 { return atomic.LoadUint64(&a.header().freeOffset) }

// AllocationCount returns how many allocations have been made.
func (a *ArenaAllocator) AllocationCount() uint32 {
	return atomic.LoadUint32(&a.header().allocationCount)
}

// Allocate rounds size+sizeof(AllocationEntry) up to a 64-byte multiple,
// bumps the free offset, links the new allocation into the chain, and
// returns the offset of the payload (just past the entry header). Fails
// with ErrOutOfMemory if the arena is exhausted. Not safe for concurrent
// callers: only the owning process mutates an arena.
func (a *ArenaAllocator) Allocate(size uint64) (uint64, error) {
	h := a.header()
	rounded := alignUp(size+allocationEntrySize, 64)

	free := atomic.LoadUint64(&h.freeOffset)
	end := atomic.LoadUint64(&h.endOffset)
	if free+rounded > end {
		return 0, ErrOutOfMemory
	}

	entryOffset := free
	newFree := free + rounded

	prevLast := atomic.LoadUint64(&h.lastAllocOffset)
	count := atomic.LoadUint32(&h.allocationCount)

	entry := allocationEntryAt(a.buf, a.baseOffset+entryOffset)
	entry.prevOffset = prevLast
	entry.nextOffset = 0

	if count > 0 {
		prevEntry := allocationEntryAt(a.buf, a.baseOffset+prevLast)
		prevEntry.nextOffset = entryOffset
	} else {
		atomic.StoreUint64(&h.firstAllocOffset, entryOffset)
	}

	atomic.StoreUint64(&h.freeOffset, newFree)
	atomic.StoreUint64(&h.lastAllocOffset, entryOffset)
	atomic.AddUint32(&h.allocationCount, 1)

	return entryOffset + allocationEntrySize, nil
}

// WalkAllocations calls fn with the payload offset of every live allocation,
// oldest first, by following the chain from firstAllocOffset. Used by
// diagnostics and tests; never called on the hot path.
func (a *ArenaAllocator) WalkAllocations(fn func(payloadOffset uint64)) {
	h := a.header()
	if atomic.LoadUint32(&h.allocationCount) == 0 {
		return
	}
	cur := atomic.LoadUint64(&h.firstAllocOffset)
	for {
		fn(cur + allocationEntrySize)
		entry := allocationEntryAt(a.buf, a.baseOffset+cur)
		if entry.nextOffset == 0 {
			return
		}
		cur = entry.nextOffset
	}
}
