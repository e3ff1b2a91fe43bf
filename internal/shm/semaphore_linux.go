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

//go:build linux

package shm

import (
	"fmt"
	"sync/atomic"
	"syscall"
	"unsafe"
)

// Linux futex operations, shared (non-private) variants: the word lives in
// a MAP_SHARED mapping that other processes, or other mappings in this
// process, wait on and wake through, so the kernel must key the futex by
// the backing page rather than by one address space.
const (
	futexOpWait = 0 // FUTEX_WAIT
	futexOpWake = 1 // FUTEX_WAKE
)

// futexWait blocks while *addr == val. Must only be called when the caller
// has just observed that equality; re-checks atomically right before
// entering the syscall to close the lost-wakeup window between the
// caller's load and the kernel's.
func futexWait(addr *uint32, val uint32) error {
	if atomic.LoadUint32(addr) != val {
		return nil
	}
	_, _, errno := syscall.RawSyscall6(
		syscall.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		futexOpWait,
		uintptr(val),
		0, 0, 0,
	)
	switch errno {
	case 0, syscall.EAGAIN, syscall.EINTR:
		return nil
	default:
		return fmt.Errorf("%w: futex wait: %v", ErrIO, errno)
	}
}

// futexWake wakes up to n waiters blocked on addr.
func futexWake(addr *uint32, n int) error {
	_, _, errno := syscall.RawSyscall6(
		syscall.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		futexOpWake,
		uintptr(n),
		0, 0, 0,
	)
	if errno != 0 {
		return fmt.Errorf("%w: futex wake: %v", ErrIO, errno)
	}
	return nil
}

// CreateOrOpenSemaphore creates or attaches a named futex word: it lives at
// the start of its own small named shared-memory segment so it is visible
// to any process that opens the same name.
func CreateOrOpenSemaphore(name string) (*NamedSemaphore, error) {
	mm, _, err := CreateOrOpen("sem."+name, 64)
	if err != nil {
		return nil, err
	}
	return &NamedSemaphore{mm: mm, word: (*uint32)(unsafe.Pointer(&mm.Mem[0])), name: name}, nil
}

// Signal bumps the word and wakes exactly one waiter. Termination fan-out
// (waking every blocked reader) is done by the caller invoking Signal once
// per outstanding waiter.
func (s *NamedSemaphore) Signal() error {
	atomic.AddUint32(s.word, 1)
	return futexWake(s.word, 1)
}

// Wait blocks until Signal changes the word. May return spuriously;
// callers always re-check their own condition afterward since the word
// carries no state of its own.
func (s *NamedSemaphore) Wait() error {
	val := atomic.LoadUint32(s.word)
	return futexWait(s.word, val)
}

// Close unmaps the segment, optionally unlinking the backing name.
func (s *NamedSemaphore) Close(cleanup bool) error {
	return s.mm.Close(cleanup)
}
