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
	"context"
	"fmt"
)

// ErrFrameTooLarge is returned by Send when a message cannot possibly fit
// in the channel's ring buffer regardless of current occupancy.
var ErrFrameTooLarge = fmt.Errorf("shm: frame exceeds channel capacity")

// SharedChannel is a lock-free multi-producer/multi-consumer ring buffer: a
// ChannelSync control block (living in the global region) paired with a
// power-of-two ring buffer and a WakePolicy that customizes invalid-frame
// and sleep/wake behavior per channel flavor.
type SharedChannel struct {
	sync   *ChannelSync
	buf    byteBuffer
	size   uint32
	margin uint32
	policy WakePolicy
}

// NewSharedChannel builds a channel view over sync and buffer. buffer's
// length is rounded down to the largest power of two that fits; it must
// still exceed frameHeaderSize afterward.
func NewSharedChannel(sync *ChannelSync, buffer []byte, policy WakePolicy) (*SharedChannel, error) {
	size := PrevPowerOfTwo(uint64(len(buffer)))
	if size <= frameHeaderSize {
		return nil, fmt.Errorf("shm: channel buffer of %d bytes too small", len(buffer))
	}
	return &SharedChannel{
		sync:   sync,
		buf:    newByteBuffer(buffer[:size]),
		size:   uint32(size),
		margin: uint32(size) - frameHeaderSize,
		policy: policy,
	}, nil
}

func (c *SharedChannel) offsetInBuffer(pos uint32) uint32 {
	return pos & (c.size - 1)
}

// writeRegion describes a reservation handed back by acquireWriteRegion.
type writeRegion struct {
	offset   uint32
	reserved uint32 // bytes actually reserved, >= the requested frame length
	filler   bool   // true if this reservation must be written as a filler and discarded
}

// acquireWriteRegion reserves frameLen bytes of ring space starting at the
// current write_position, spinning on advance_free when the ring is full
// and bailing out with ErrChannelTerminated if the channel was torn down
// while waiting.
//
// Two cases beyond a plain reservation are handled inline, since frames
// never straddle the buffer's physical end:
//   - the reservation itself would run past the end of the buffer: the
//     whole reservation is handed back as a filler, and the caller is
//     expected to retry for the real frame (its next acquire naturally
//     wraps to offset 0 via modular arithmetic).
//   - the reservation fits, but what follows it lands within the final
//     frameHeaderSize bytes of the buffer (too small to ever hold a valid
//     frame header): the reservation absorbs that dead zone, so the frame's
//     own declared length runs all the way to the buffer's end instead of
//     leaving an unfillable gap.
func (c *SharedChannel) acquireWriteRegion(frameLen uint32) (writeRegion, error) {
	for {
		free := c.sync.FreePosition()
		write := c.sync.WritePosition()

		if frameLen > c.margin || posDelta(free, write) > c.margin-frameLen {
			if c.sync.Terminated() {
				return writeRegion{}, ErrChannelTerminated
			}
			c.advanceFree()
			continue
		}

		offset := c.offsetInBuffer(write)

		if offset+frameLen > c.size {
			fillerLen := c.size - offset
			next := write + fillerLen
			if !c.sync.CompareAndSwapWrite(write, next) {
				continue
			}
			return writeRegion{offset: offset, reserved: fillerLen, filler: true}, nil
		}

		reserved := frameLen
		nextOff := offset + reserved
		if nextOff != c.size && c.size-nextOff < frameHeaderSize {
			reserved = c.size - offset
		}

		next := write + reserved
		if !c.sync.CompareAndSwapWrite(write, next) {
			continue
		}
		return writeRegion{offset: offset, reserved: reserved}, nil
	}
}

// Send reserves space, writes the frame in its mid-write/complete
// two-phase, and wakes any sleeping readers. Returns ErrChannelTerminated
// (a quiet sentinel, not logged as an error) if the channel was torn down
// before the message could be written.
func (c *SharedChannel) Send(codegenTypeIdx uint32, codegenTypeHash uint64, payload []byte) error {
	frameLen := align4(frameHeaderSize + uint32(len(payload)))
	if frameLen > c.margin {
		return ErrFrameTooLarge
	}

	for {
		region, err := c.acquireWriteRegion(frameLen)
		if err != nil {
			return err
		}
		if region.filler {
			c.writeFiller(region.offset, region.reserved)
			continue
		}
		c.writeFrame(region.offset, region.reserved, codegenTypeIdx, codegenTypeHash, payload)
		break
	}

	if c.sync.ReadersInWaitCount() > 0 {
		return c.policy.NotifyExternalReader()
	}
	return nil
}

func (c *SharedChannel) writeFiller(offset, length uint32) {
	hdr := frameHeaderAt(c.buf, uint64(offset))
	hdr.StoreLength(int32(length) | 1)
	hdr.SetCodegenTypeIndex(0)
	hdr.SetCodegenTypeHash(0)
	hdr.StoreLength(int32(length))
}

func (c *SharedChannel) writeFrame(offset, reserved uint32, codegenTypeIdx uint32, codegenTypeHash uint64, payload []byte) {
	hdr := frameHeaderAt(c.buf, uint64(offset))
	hdr.StoreLength(int32(reserved) | 1) // mid-write: payload not yet valid
	hdr.SetCodegenTypeIndex(codegenTypeIdx)
	hdr.SetCodegenTypeHash(codegenTypeHash)
	dst := c.payloadSlice(offset, reserved)
	copy(dst, payload)
	for i := len(payload); i < len(dst); i++ {
		dst[i] = 0 // align4 padding and any look-ahead dead-zone absorption
	}
	hdr.StoreLength(int32(reserved)) // complete: release
}

func (c *SharedChannel) payloadSlice(offset, frameLength uint32) []byte {
	start := uint64(offset) + frameHeaderSize
	length := uint64(frameLength) - frameHeaderSize
	return unsafeSlice(c.buf.ptr(start), int(length))
}

// advanceFree walks the reclaim-ready prefix starting at free_position,
// bumping it past every frame a reader has already cleared, and stops at
// the first frame that isn't reclaim-ready yet.
func (c *SharedChannel) advanceFree() {
	for {
		free := c.sync.FreePosition()
		read := c.sync.ReadPosition()
		if free == read {
			return
		}
		offset := c.offsetInBuffer(free)
		hdr := frameHeaderAt(c.buf, uint64(offset))
		length := hdr.Length()
		if length >= 0 {
			return
		}
		next := free + frameLen(length)
		if !c.sync.CompareAndSwapFree(free, next) {
			continue // another writer already advanced it; re-read and retry
		}
	}
}

// ProcessMessages is the reader loop. It increments active_reader_count
// for its duration, dispatches frames against table until the channel is
// terminated or ctx is canceled, and decrements the counter on the way
// out. ctx cancellation is an addition beyond the core wire protocol
// (terminate_channel is the only cancellation the protocol itself
// defines); it exists so callers get the same graceful-shutdown idiom the
// rest of the codebase uses for blocking calls.
func (c *SharedChannel) ProcessMessages(ctx context.Context, table DispatchTable) error {
	c.sync.IncrementActiveReaders()
	defer c.sync.DecrementActiveReaders()

	for {
		offset, frameLength, ok, err := c.waitForFrame(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		c.dispatchFrame(offset, frameLength, table)
	}
}

// waitForFrame blocks until a frame is ready to read. ok is false once the
// channel has been observed terminated with nothing left to read.
func (c *SharedChannel) waitForFrame(ctx context.Context) (offset uint32, frameLength uint32, ok bool, err error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, 0, false, err
		}

		read := c.sync.ReadPosition()
		off := c.offsetInBuffer(read)
		hdr := frameHeaderAt(c.buf, uint64(off))
		length := hdr.Length()

		if length > 0 {
			fl := frameLen(length)
			next := read + fl
			if !c.sync.CompareAndSwapRead(read, next) {
				continue
			}
			for hdr.Length()&1 == 1 {
				// spin until the writer clears the mid-write bit
			}
			return off, fl, true, nil
		}

		if c.sync.Terminated() {
			return 0, 0, false, nil
		}

		c.sync.IncrementReadersInWait()
		stillEmpty := hdr.Length() <= 0
		if stillEmpty {
			if err := c.policy.WaitForFrame(); err != nil {
				c.sync.DecrementReadersInWait()
				return 0, 0, false, err
			}
		}
		c.sync.DecrementReadersInWait()
	}
}

// dispatchFrame looks up and invokes the handler for one frame.
// codegen_type_index is 1-based (0 is reserved for filler frames); the
// dispatch table is indexed by codegen_type_index-1.
func (c *SharedChannel) dispatchFrame(offset, frameLength uint32, table DispatchTable) {
	hdr := frameHeaderAt(c.buf, uint64(offset))
	typeIdx := hdr.CodegenTypeIndex()

	switch {
	case typeIdx == 0:
		// filler frame: nothing to dispatch.
	case int(typeIdx) > len(table) || table[typeIdx-1].ExpectedHash != hdr.CodegenTypeHash():
		c.policy.OnInvalidFrame(typeIdx)
	default:
		payload := c.payloadSlice(offset, frameLength)
		if !table[typeIdx-1].Handler(payload, frameLength) {
			c.policy.OnInvalidFrame(typeIdx)
		}
	}

	clearPayload(c.payloadSlice(offset, frameLength))
	hdr.StoreLength(-int32(frameLength))
}

func clearPayload(payload []byte) {
	for i := range payload {
		payload[i] = 0
	}
}

// InitializeChannel is restart recovery, run by a newly attaching owner
// before any reader goroutine starts. It reclaims any
// frames a dead reader already finished with, turns any frame left
// mid-write or already-dispatched-but-unreclaimed into a cleared filler
// frame (codegen_type_index 0) of the same length so readers skip it, and
// rewinds read_position to free_position so the complete frames after it
// get reprocessed.
func InitializeChannel(c *SharedChannel) {
	c.advanceFree()

	free := c.sync.FreePosition()
	write := c.sync.WritePosition()

	pos := free
	for pos != write {
		offset := c.offsetInBuffer(pos)
		hdr := frameHeaderAt(c.buf, uint64(offset))
		length := hdr.Length()
		fl := frameLen(length)

		if length < 0 || length&1 == 1 {
			clearPayload(c.payloadSlice(offset, fl))
			hdr.SetCodegenTypeIndex(0)
			hdr.SetCodegenTypeHash(0)
			hdr.StoreLength(int32(fl))
		}

		if fl == 0 {
			// A slot can only be virgin here if a writer's write_position
			// CAS succeeded but it crashed before storing any header
			// bytes at all; there is no recorded length to recover, so
			// the best we can do is skip past the minimum possible frame
			// and let the next real write overwrite whatever garbage
			// remains beyond it.
			fl = frameHeaderSize
		}
		pos += fl
	}

	c.sync.storeReadPosition(free)
}
