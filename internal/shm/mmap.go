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

// SharedMemoryMap owns a single mmap'd shared memory segment.
// Platform-specific constructors (mmap_linux.go / mmap_stub.go) fill in
// Mem; everything else building on top of it only ever sees the resulting
// []byte.
type SharedMemoryMap struct {
	Mem  []byte
	Path string
	fd   int
}

// Size returns the mapped region's length in bytes.
func (m *SharedMemoryMap) Size() uint64 { return uint64(len(m.Mem)) }

// Fd returns the descriptor backing this mapping, or -1 if none was kept
// open (named regions close their file handle after mmap'ing it; only
// anonymous regions, meant to be handed off via FdExchange, keep one).
func (m *SharedMemoryMap) Fd() int { return m.fd }
