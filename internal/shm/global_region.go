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

// Global region layout:
//
//	[0, regionHeaderSize)                     RegionHeader
//	[regionHeaderSize, +4)                    attachedProcessCount   (atomic u32)
//	[+4, +4)                                  totalRegionIndexCount  (atomic u32)
//	[+4, +4)                                  registeredAssemblyCount (atomic u32, init 1)
//	[+4, +4)                                  padding to 8-byte align
//	[aligned, +channelSyncSize)                control channel ChannelSync
//	[+channelSyncSize, +channelSyncSize)       feedback channel ChannelSync
//	[..., end)                                 directory dictionary arena
const (
	globalCountersOffset    = regionHeaderSize
	globalCountersSize      = 4 * 4 // three counters + 4 bytes padding
	globalControlSyncOffset = globalCountersOffset + globalCountersSize
	globalFeedbackSyncOffset = globalControlSyncOffset + channelSyncSize
	globalDictionaryOffset  = globalFeedbackSyncOffset + channelSyncSize
)

// GlobalRegion is a typed view over the global region's well-known prefix:
// process/assembly bookkeeping counters, the two channels' sync blocks, and
// the directory dictionary used to publish named resources.
type GlobalRegion struct {
	buf        byteBuffer
	Dictionary *SharedConfigDictionary
}

// InitGlobalRegion lays out a freshly-created global region: writes the
// region header, zeroes the counters (bumping registeredAssemblyCount to 1,
// "because the core's own settings are implicitly assembly 0"), and creates
// the directory dictionary in the remaining space.
func InitGlobalRegion(mem []byte, dictionarySlots int) (*GlobalRegion, error) {
	buf := newByteBuffer(mem)
	InitRegionHeader(buf.base, RegionID{Type: RegionTypeGlobal}, buf.size, 0)

	atomic.StoreUint32((*uint32)(buf.ptr(globalCountersOffset)), 0)   // attached process count
	atomic.StoreUint32((*uint32)(buf.ptr(globalCountersOffset+4)), 0) // total region index count
	atomic.StoreUint32((*uint32)(buf.ptr(globalCountersOffset+8)), 1) // registered settings assembly count

	channelSyncAt(buf.base, globalControlSyncOffset).Reset()
	channelSyncAt(buf.base, globalFeedbackSyncOffset).Reset()

	dict, err := NewSharedConfigDictionary(mem[globalDictionaryOffset:], dictionarySlots)
	if err != nil {
		return nil, err
	}
	return &GlobalRegion{buf: buf, Dictionary: dict}, nil
}

// OpenGlobalRegion attaches to an already-initialized global region.
func OpenGlobalRegion(mem []byte) (*GlobalRegion, error) {
	buf := newByteBuffer(mem)
	if !regionHeaderAt(buf.base).Valid() {
		return nil, ErrNotFound
	}
	dict, err := OpenSharedConfigDictionary(mem[globalDictionaryOffset:])
	if err != nil {
		return nil, err
	}
	return &GlobalRegion{buf: buf, Dictionary: dict}, nil
}

func (g *GlobalRegion) attachedProcessCountPtr() *uint32 {
	return (*uint32)(g.buf.ptr(globalCountersOffset))
}
func (g *GlobalRegion) totalRegionIndexCountPtr() *uint32 {
	return (*uint32)(g.buf.ptr(globalCountersOffset + 4))
}
func (g *GlobalRegion) registeredAssemblyCountPtr() *uint32 {
	return (*uint32)(g.buf.ptr(globalCountersOffset + 8))
}

// AttachedProcessCount returns the number of processes currently attached to
// this set of regions.
func (g *GlobalRegion) AttachedProcessCount() uint32 {
	return atomic.LoadUint32(g.attachedProcessCountPtr())
}

// IncrementAttachedProcesses bumps the attached-process counter on a
// successful bootstrap attach and returns the new value.
func (g *GlobalRegion) IncrementAttachedProcesses() uint32 {
	return atomic.AddUint32(g.attachedProcessCountPtr(), 1)
}

// DecrementAttachedProcesses drops the counter on detach, returning the new
// value; the caller performs cleanup when this reaches zero.
func (g *GlobalRegion) DecrementAttachedProcesses() uint32 {
	return atomic.AddUint32(g.attachedProcessCountPtr(), ^uint32(0))
}

// NextRegionIndex hands out a fresh region index for a new (type, index)
// pair, used when registering a shared-config memory region for a
// component that needs one beyond the four standard regions.
func (g *GlobalRegion) NextRegionIndex() uint32 {
	return atomic.AddUint32(g.totalRegionIndexCountPtr(), 1)
}

// RegisteredSettingsAssemblyCount returns the number of settings assemblies
// registered so far (starts at 1: the core's own assembly 0).
func (g *GlobalRegion) RegisteredSettingsAssemblyCount() uint32 {
	return atomic.LoadUint32(g.registeredAssemblyCountPtr())
}

// NextSettingsAssemblyIndex reserves the next settings-assembly index: the
// value just before the bump, since the core's own assembly already
// occupies index 0 and the counter starts at 1.
func (g *GlobalRegion) NextSettingsAssemblyIndex() uint32 {
	return atomic.AddUint32(g.registeredAssemblyCountPtr(), 1) - 1
}

// ControlChannelSync returns the ChannelSync block for the control channel.
func (g *GlobalRegion) ControlChannelSync() *ChannelSync {
	return channelSyncAt(g.buf.base, globalControlSyncOffset)
}

// FeedbackChannelSync returns the ChannelSync block for the feedback
// channel.
func (g *GlobalRegion) FeedbackChannelSync() *ChannelSync {
	return channelSyncAt(g.buf.base, globalFeedbackSyncOffset)
}
