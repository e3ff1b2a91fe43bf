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

import "unsafe"

// byteBuffer wraps a raw pointer into a mapped shared-memory region plus
// its length. It never holds a typed Go pointer into shared memory: every
// accessor recomputes an address from (base, offset) on demand instead of
// caching a *T across calls.
type byteBuffer struct {
	base unsafe.Pointer
	size uint64
}

func newByteBuffer(mem []byte) byteBuffer {
	if len(mem) == 0 {
		return byteBuffer{}
	}
	return byteBuffer{base: unsafe.Pointer(&mem[0]), size: uint64(len(mem))}
}

func (b byteBuffer) ptr(offset uint64) unsafe.Pointer {
	return unsafe.Pointer(uintptr(b.base) + uintptr(offset))
}

// unsafeSlice builds a []byte view of length bytes starting at ptr, without
// copying. Used when a shared-memory region must be handed to code that
// wants a normal slice (hashing, equality, (un)marshaling).
func unsafeSlice(ptr unsafe.Pointer, length int) []byte {
	return unsafe.Slice((*byte)(ptr), length)
}

// IsPowerOfTwo reports whether n is a nonzero power of two.
func IsPowerOfTwo(n uint64) bool {
	return n > 0 && n&(n-1) == 0
}

// NextPowerOfTwo returns the smallest power of two >= n (1 if n == 0).
func NextPowerOfTwo(n uint64) uint64 {
	if n == 0 {
		return 1
	}
	if IsPowerOfTwo(n) {
		return n
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	n++
	return n
}

// PrevPowerOfTwo returns the largest power of two <= n (0 if n == 0). Used
// to round a requested channel capacity down to the largest power of two
// that fits it.
func PrevPowerOfTwo(n uint64) uint64 {
	if n == 0 {
		return 0
	}
	p := NextPowerOfTwo(n + 1)
	return p / 2
}

// alignUp rounds size up to the next multiple of align, which must itself
// be a power of two.
func alignUp(size, align uint64) uint64 {
	return (size + align - 1) &^ (align - 1)
}

// align4 rounds up to a 4-byte boundary, used for frame padding.
func align4(size uint32) uint32 {
	return (size + 3) &^ 3
}

// posDelta computes b-a as an unsigned 32-bit modular difference, which is
// the wraparound-safe arithmetic the ChannelSync position counters rely on:
// as long as the true distance between a and b never exceeds 2^31, wrapping
// subtraction yields the correct forward distance even after either counter
// has wrapped past 2^32.
func posDelta(a, b uint32) uint32 {
	return b - a
}
