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

// DispatchEntry binds one codegen type index to its expected content hash
// and the handler that deserializes and processes a frame's payload: the
// reader checks codegen_type_hash matches the dispatch table's expected
// hash before calling the handler.
type DispatchEntry struct {
	ExpectedHash uint64
	// Handler receives the frame's payload bytes and its full frame length
	// (for variable-length verification). A false return is treated the
	// same as an invalid frame.
	Handler func(payload []byte, frameLen uint32) bool
}

// DispatchTable is the reader's view of known codegen types, indexed by
// codegen_type_index-1: entry 0 serves codegen_type_index 1, since
// codegen_type_index 0 is reserved for filler frames.
type DispatchTable []DispatchEntry

// WakePolicy customizes what a SharedChannel does at two channel-flavor
// specific points: how to react to an invalid frame, and how to put a
// reader to sleep/wake it.
//
// The in-process test channel panics on an invalid frame ("fail loudly in
// tests, degrade gracefully in production"); the real inter-process
// channel swallows and clears it instead.
type WakePolicy interface {
	// OnInvalidFrame is called when a frame's codegen_type_index is out of
	// range, its hash doesn't match, or its handler rejected it.
	OnInvalidFrame(codegenTypeIdx uint32)
	// NotifyExternalReader wakes any OS-level waiters blocked in
	// WaitForFrame. Called only when readers_in_wait_count > 0.
	NotifyExternalReader() error
	// WaitForFrame blocks the calling reader until woken by a writer's
	// NotifyExternalReader, or returns immediately if the policy has no
	// OS-level primitive (the in-process test channel), in which case the
	// reader busy-retries.
	WaitForFrame() error
}

// PanicWakePolicy is the in-process test WakePolicy: it never blocks
// (WaitForFrame spins the caller back into the retry loop immediately) and
// panics on any invalid frame, so a bad dispatch table registration fails a
// test loudly instead of silently dropping messages.
type PanicWakePolicy struct{}

func (PanicWakePolicy) OnInvalidFrame(codegenTypeIdx uint32) {
	panic("shm: invalid frame dispatched to in-process test channel")
}
func (PanicWakePolicy) NotifyExternalReader() error { return nil }
func (PanicWakePolicy) WaitForFrame() error         { return nil }
