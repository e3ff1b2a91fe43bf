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

// NamedSemaphore is the sleep/wake primitive for channel readers: a pure
// wakeup signal, never a source of truth. Callers always re-check channel
// state after waking rather than trusting anything about the semaphore's
// internal value.
//
// No portable cgo-free Go binding for POSIX sem_open exists, so this is
// backed by a named-shared-memory word and the shared (non-private)
// FUTEX_WAIT / FUTEX_WAKE futex operations directly, as a general-purpose type
// rather than embedded only in one ring implementation.
type NamedSemaphore struct {
	mm   *SharedMemoryMap
	word *uint32
	name string
}

// Name returns the semaphore's shared-memory name.
func (s *NamedSemaphore) Name() string { return s.name }
