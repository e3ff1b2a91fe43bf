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
	"bytes"
	"hash/fnv"
	"sync/atomic"
)

// sharedConfigHeaderSize is sizeof(SharedConfigHeader): 32 bytes holding
// config_id, codegen_type_index, and — resolving an ambiguity left
// unenforced upstream (see DESIGN.md open question #2) — a key hash used
// to short-circuit the linear-probe equality check before falling back to
// a full key-bytes comparison.
const sharedConfigHeaderSize = 32

// defaultDictionarySlots is the dictionary's default slot count.
const defaultDictionarySlots = 2048

// dictFirstAllocationPayloadOffset is where the slots UIntArray's payload
// always lands: it is unconditionally the dictionary's first arena
// allocation, so re-attaching processes can find it without any extra
// bookkeeping field.
const dictFirstAllocationPayloadOffset = arenaHeaderSize + allocationEntrySize

// sharedConfigHeader is the fixed-size record header preceding every
// dictionary entry's payload.
type sharedConfigHeader struct {
	configID       uint32
	codegenTypeIdx uint32
	keyHash        uint64
	_              [16]byte
}

func sharedConfigHeaderAt(buf byteBuffer, offset uint64) *sharedConfigHeader {
	return (*sharedConfigHeader)(buf.ptr(offset))
}

func (h *sharedConfigHeader) ConfigID() uint32         { return atomic.LoadUint32(&h.configID) }
func (h *sharedConfigHeader) SetConfigID(v uint32)     { atomic.StoreUint32(&h.configID, v) }
func (h *sharedConfigHeader) CodegenTypeIndex() uint32 { return atomic.LoadUint32(&h.codegenTypeIdx) }
func (h *sharedConfigHeader) SetCodegenTypeIndex(v uint32) {
	atomic.StoreUint32(&h.codegenTypeIdx, v)
}
func (h *sharedConfigHeader) KeyHash() uint64     { return atomic.LoadUint64(&h.keyHash) }
func (h *sharedConfigHeader) SetKeyHash(v uint64) { atomic.StoreUint64(&h.keyHash, v) }

// ConfigRecord is the interface a codegen-produced config type implements so
// the dictionary can store, find, and refresh it without knowing its wire
// shape.
type ConfigRecord interface {
	// CodegenTypeIndex identifies the wire type of this record.
	CodegenTypeIndex() uint32
	// Key returns the bytes that identify this record for lookup/equality.
	Key() []byte
	// Marshal serializes the record's payload (excluding the dictionary's
	// own header and key bytes).
	Marshal() []byte
	// Unmarshal overwrites the record's fields from a previously-Marshaled
	// payload; used to copy shared state into the caller's local copy.
	Unmarshal(payload []byte) error
}

// LookupResult distinguishes "found" from "not found" without overloading
// the error channel for a non-error outcome.
type LookupResult int

const (
	Found LookupResult = iota
	NotFound
)

// CreateOrUpdateResult distinguishes the two non-error outcomes of
// CreateOrUpdate.
type CreateOrUpdateResult int

const (
	Created CreateOrUpdateResult = iota
	Existing
)

// SharedConfigDictionary is an open-addressed hash table of
// {codegen-type-id, key-hash} -> offset-to-record.
type SharedConfigDictionary struct {
	buf         byteBuffer
	arena       *ArenaAllocator
	slotsOffset uint64
	slotCount   uint64
}

// NewSharedConfigDictionary creates a fresh dictionary with the given slot
// count (0 selects the default of 2048) in mem, which must be large enough
// to hold the arena header plus the slots array.
func NewSharedConfigDictionary(mem []byte, slotCount int) (*SharedConfigDictionary, error) {
	if slotCount <= 0 {
		slotCount = defaultDictionarySlots
	}
	arena := NewArena(mem)
	slotsBytes := 8 + uint64(slotCount)*8
	offset, err := arena.Allocate(slotsBytes)
	if err != nil {
		return nil, err
	}
	buf := newByteBuffer(mem)
	atomic.StoreUint64((*uint64)(buf.ptr(offset)), uint64(slotCount))
	for i := 0; i < slotCount; i++ {
		atomic.StoreUint64((*uint64)(buf.ptr(offset+8+uint64(i)*8)), 0)
	}
	return &SharedConfigDictionary{buf: buf, arena: arena, slotsOffset: offset, slotCount: uint64(slotCount)}, nil
}

// OpenSharedConfigDictionary attaches to a dictionary previously created by
// NewSharedConfigDictionary in the same bytes.
func OpenSharedConfigDictionary(mem []byte) (*SharedConfigDictionary, error) {
	arena := OpenArena(mem)
	buf := newByteBuffer(mem)
	slotCount := atomic.LoadUint64((*uint64)(buf.ptr(dictFirstAllocationPayloadOffset)))
	if slotCount == 0 {
		return nil, ErrNotFound
	}
	return &SharedConfigDictionary{
		buf:         buf,
		arena:       arena,
		slotsOffset: dictFirstAllocationPayloadOffset,
		slotCount:   slotCount,
	}, nil
}

// SlotCount returns the fixed number of slots this dictionary was created
// with.
func (d *SharedConfigDictionary) SlotCount() uint64 { return d.slotCount }

func (d *SharedConfigDictionary) slotPtr(idx uint64) *uint64 {
	return (*uint64)(d.buf.ptr(d.slotsOffset + 8 + idx*8))
}

// HashKey computes the FNV-1a hash used for probing.
func HashKey(key []byte) uint64 {
	h := fnv.New64a()
	h.Write(key)
	return h.Sum64()
}

// waitPublished spins until the record's config_id becomes nonzero, the
// reader-side retry a record observed mid-serialization requires.
func (d *SharedConfigDictionary) waitPublished(hdr *sharedConfigHeader) {
	for hdr.ConfigID() == 0 {
		// Single-writer-per-key discipline (DESIGN.md open question #1)
		// means this should never actually spin in practice; it exists for
		// the torn-read window a concurrent reader could otherwise observe.
	}
}

func (d *SharedConfigDictionary) keyBytesAt(recordOffset uint64) []byte {
	keyLen := *(*uint32)(d.buf.ptr(recordOffset + sharedConfigHeaderSize))
	start := recordOffset + sharedConfigHeaderSize + 4
	return asSlice(d.buf, start, uint64(keyLen))
}

func (d *SharedConfigDictionary) payloadBytesAt(recordOffset uint64, keyLen uint32, payloadLen uint64) []byte {
	start := recordOffset + sharedConfigHeaderSize + 4 + uint64(alignUp(uint64(keyLen), 4))
	return asSlice(d.buf, start, payloadLen)
}

func asSlice(buf byteBuffer, offset, length uint64) []byte {
	if length == 0 {
		return nil
	}
	return unsafeSlice(buf.ptr(offset), int(length))
}

// createRecord allocates and fully writes a new record, storing config_id
// last so the record only becomes "published" once every other field is in
// place.
func (d *SharedConfigDictionary) createRecord(rec ConfigRecord, keyHash uint64) (uint64, error) {
	key := rec.Key()
	payload := rec.Marshal()
	keyArea := alignUp(uint64(len(key)), 4)
	total := sharedConfigHeaderSize + 4 + keyArea + uint64(len(payload))

	off, err := d.arena.Allocate(total)
	if err != nil {
		return 0, err
	}

	hdr := sharedConfigHeaderAt(d.buf, off)
	hdr.SetCodegenTypeIndex(rec.CodegenTypeIndex())
	hdr.SetKeyHash(keyHash)

	*(*uint32)(d.buf.ptr(off + sharedConfigHeaderSize)) = uint32(len(key))
	copy(asSlice(d.buf, off+sharedConfigHeaderSize+4, uint64(len(key))), key)
	if len(payload) > 0 {
		copy(asSlice(d.buf, off+sharedConfigHeaderSize+4+keyArea, uint64(len(payload))), payload)
	}

	// config_id written last: publishes the record.
	hdr.SetConfigID(1)

	return off, nil
}

// CreateOrUpdate probes for an existing record with a matching (type, key);
// binds to it and copies shared state into rec if found, otherwise
// allocates and publishes rec as the canonical record.
func (d *SharedConfigDictionary) CreateOrUpdate(rec ConfigRecord) (offset uint64, result CreateOrUpdateResult, err error) {
	key := rec.Key()
	h := HashKey(key)
	idx := h % d.slotCount

	for probe := uint64(0); probe < d.slotCount; probe++ {
		slot := d.slotPtr(idx)
		raw := atomic.LoadUint64(slot)

		if raw == 0 {
			off, err := d.createRecord(rec, h)
			if err != nil {
				return 0, Created, err
			}
			atomic.StoreUint64(slot, off)
			return off, Created, nil
		}

		hdr := sharedConfigHeaderAt(d.buf, raw)
		if hdr.CodegenTypeIndex() == rec.CodegenTypeIndex() && hdr.KeyHash() == h {
			storedKey := d.keyBytesAt(raw)
			if bytes.Equal(storedKey, key) {
				d.waitPublished(hdr)
				keyLen := uint32(len(storedKey))
				payload := d.payloadBytesAt(raw, keyLen, payloadLenAt(raw, keyLen, d))
				if err := rec.Unmarshal(payload); err != nil {
					return raw, Existing, err
				}
				return raw, Existing, nil
			}
		}

		idx = (idx + 1) % d.slotCount
	}
	return 0, Created, ErrOutOfMemory
}

// payloadLenAt has no stored length field for the payload itself (the
// arena's rounding swallows any trailing pad), so callers that need exact
// payload bytes must know their own wire length; this helper exists so
// CreateOrUpdate/Lookup can hand Unmarshal a slice at least as long as the
// record's remaining allocation. Types with a self-delimiting wire format
// (the only kind ConfigRecord is meant for) ignore any trailing bytes.
func payloadLenAt(recordOffset uint64, keyLen uint32, d *SharedConfigDictionary) uint64 {
	// The returned length runs from just past the key area to the end of the
	// arena, not of this record: neither the record nor its allocation entry
	// stores a payload length, so callers get the real payload followed by
	// padding and any later records, and rely on a self-delimiting Unmarshal.
	keyArea := alignUp(uint64(keyLen), 4)
	start := recordOffset + sharedConfigHeaderSize + 4 + keyArea
	if start >= d.arena.EndOffset() {
		return 0
	}
	return d.arena.EndOffset() - start
}

// Lookup runs the same probing as CreateOrUpdate, but never mutates the
// dictionary.
func (d *SharedConfigDictionary) Lookup(codegenTypeIdx uint32, key []byte) (offset uint64, result LookupResult) {
	h := HashKey(key)
	idx := h % d.slotCount

	for probe := uint64(0); probe < d.slotCount; probe++ {
		slot := d.slotPtr(idx)
		raw := atomic.LoadUint64(slot)
		if raw == 0 {
			return 0, NotFound
		}
		hdr := sharedConfigHeaderAt(d.buf, raw)
		if hdr.CodegenTypeIndex() == codegenTypeIdx && hdr.KeyHash() == h {
			if bytes.Equal(d.keyBytesAt(raw), key) {
				return raw, Found
			}
		}
		idx = (idx + 1) % d.slotCount
	}
	return 0, NotFound
}

// CountEmptySlots walks every slot and reports how many are unused; exposed
// for tests exercising the "slot_count-1 slots remain empty" scenario.
func (d *SharedConfigDictionary) CountEmptySlots() uint64 {
	var empty uint64
	for i := uint64(0); i < d.slotCount; i++ {
		if atomic.LoadUint64(d.slotPtr(i)) == 0 {
			empty++
		}
	}
	return empty
}
