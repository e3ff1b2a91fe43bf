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
	"fmt"
	"sync/atomic"
	"unsafe"
)

// RegionSignature is written once at region creation and never mutated.
const RegionSignature uint32 = 0x67676767

// RegionType identifies which of the four standard regions a header
// describes.
type RegionType uint32

const (
	RegionTypeGlobal RegionType = iota
	RegionTypeControlChannel
	RegionTypeFeedbackChannel
	RegionTypeSharedConfig
)

func (t RegionType) String() string {
	switch t {
	case RegionTypeGlobal:
		return "Global"
	case RegionTypeControlChannel:
		return "ControlChannel"
	case RegionTypeFeedbackChannel:
		return "FeedbackChannel"
	case RegionTypeSharedConfig:
		return "SharedConfig"
	default:
		return fmt.Sprintf("RegionType(%d)", uint32(t))
	}
}

// RegionID identifies one region instance: its type and an index among
// regions of that type (almost always 0; the index exists so a future
// multi-instance region of the same type round-trips through the
// dictionary the same way a single one does).
type RegionID struct {
	Type  RegionType
	Index uint32
}

// regionHeaderSize is the fixed size, in bytes, of every region header. It is
// sized generously (64B) so header fields can grow without shifting the
// payload that follows; RegionHeader itself uses far fewer bytes.
const regionHeaderSize = 64

// RegionHeader is the first bytes of every shared region.
// Fields after Signature/Size are mutable only by the creator during
// initialization; after that, Signature and Size are invariant for the
// region's lifetime.
type RegionHeader struct {
	signature      uint32
	_              uint32 // padding to align 64-bit fields
	size           uint64
	regionType     uint32
	regionIndex    uint32
	codegenTypeIdx uint32
	_              uint32
	reserved       [24]byte
}

func regionHeaderAt(base unsafe.Pointer) *RegionHeader {
	return (*RegionHeader)(base)
}

// InitRegionHeader writes the header once at creation time.
func InitRegionHeader(base unsafe.Pointer, id RegionID, size uint64, codegenTypeIdx uint32) {
	h := regionHeaderAt(base)
	atomic.StoreUint32(&h.regionType, uint32(id.Type))
	atomic.StoreUint32(&h.regionIndex, id.Index)
	atomic.StoreUint32(&h.codegenTypeIdx, codegenTypeIdx)
	atomic.StoreUint64(&h.size, size)
	// Signature written last: its presence is what Valid (and so
	// OpenGlobalRegion) treats as "this region has been initialized."
	atomic.StoreUint32(&h.signature, RegionSignature)
}

func (h *RegionHeader) Signature() uint32 { return atomic.LoadUint32(&h.signature) }
func (h *RegionHeader) Size() uint64      { return atomic.LoadUint64(&h.size) }
func (h *RegionHeader) RegionID() RegionID {
	return RegionID{
		Type:  RegionType(atomic.LoadUint32(&h.regionType)),
		Index: atomic.LoadUint32(&h.regionIndex),
	}
}
func (h *RegionHeader) CodegenTypeIndex() uint32 { return atomic.LoadUint32(&h.codegenTypeIdx) }

// Valid reports whether the header looks initialized.
func (h *RegionHeader) Valid() bool { return h.Signature() == RegionSignature }

// channelSyncSize is the fixed size of one ChannelSync block, used to lay out
// the array of them inside the global region.
const channelSyncSize = 32

// ChannelSync is the atomic control block for one channel, living inside the
// global region. Six atomic u32 fields.
type ChannelSync struct {
	writePosition      uint32
	readPosition       uint32
	freePosition       uint32
	activeReaderCount  uint32
	readersInWaitCount uint32
	terminateChannel   uint32
	_                  [8]byte // pad to 32 bytes
}

func channelSyncAt(base unsafe.Pointer, offset uint64) *ChannelSync {
	return (*ChannelSync)(unsafe.Pointer(uintptr(base) + uintptr(offset)))
}

func (c *ChannelSync) WritePosition() uint32 { return atomic.LoadUint32(&c.writePosition) }
func (c *ChannelSync) ReadPosition() uint32  { return atomic.LoadUint32(&c.readPosition) }
func (c *ChannelSync) FreePosition() uint32  { return atomic.LoadUint32(&c.freePosition) }

func (c *ChannelSync) CompareAndSwapWrite(old, new uint32) bool {
	return atomic.CompareAndSwapUint32(&c.writePosition, old, new)
}
func (c *ChannelSync) CompareAndSwapRead(old, new uint32) bool {
	return atomic.CompareAndSwapUint32(&c.readPosition, old, new)
}
func (c *ChannelSync) CompareAndSwapFree(old, new uint32) bool {
	return atomic.CompareAndSwapUint32(&c.freePosition, old, new)
}

// storeReadPosition is an unconditional store used only by restart
// recovery, which runs single-threaded before any reader goroutine is
// started and therefore needs no CAS.
func (c *ChannelSync) storeReadPosition(v uint32) {
	atomic.StoreUint32(&c.readPosition, v)
}

func (c *ChannelSync) ActiveReaderCount() uint32 {
	return atomic.LoadUint32(&c.activeReaderCount)
}
func (c *ChannelSync) IncrementActiveReaders() uint32 {
	return atomic.AddUint32(&c.activeReaderCount, 1)
}
func (c *ChannelSync) DecrementActiveReaders() uint32 {
	return atomic.AddUint32(&c.activeReaderCount, ^uint32(0))
}

func (c *ChannelSync) ReadersInWaitCount() uint32 {
	return atomic.LoadUint32(&c.readersInWaitCount)
}
func (c *ChannelSync) IncrementReadersInWait() uint32 {
	return atomic.AddUint32(&c.readersInWaitCount, 1)
}
func (c *ChannelSync) DecrementReadersInWait() uint32 {
	return atomic.AddUint32(&c.readersInWaitCount, ^uint32(0))
}

func (c *ChannelSync) Terminated() bool {
	return atomic.LoadUint32(&c.terminateChannel) != 0
}
func (c *ChannelSync) SetTerminated() {
	atomic.StoreUint32(&c.terminateChannel, 1)
}

// Reset zeroes a ChannelSync block back to its just-created state. Used by
// InitGlobalRegion when laying out a freshly created global region.
func (c *ChannelSync) Reset() {
	atomic.StoreUint32(&c.writePosition, 0)
	atomic.StoreUint32(&c.readPosition, 0)
	atomic.StoreUint32(&c.freePosition, 0)
	atomic.StoreUint32(&c.activeReaderCount, 0)
	atomic.StoreUint32(&c.readersInWaitCount, 0)
	atomic.StoreUint32(&c.terminateChannel, 0)
}
