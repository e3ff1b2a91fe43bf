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

//go:build !linux

package shm

// CreateNew is unsupported on non-Linux hosts; this module's fd-passing
// and futex primitives are Linux-only.
func CreateNew(name string, size uint64) (*SharedMemoryMap, error) { return nil, ErrUnsupported }

func CreateOrOpen(name string, size uint64) (*SharedMemoryMap, bool, error) {
	return nil, false, ErrUnsupported
}

func OpenExisting(name string) (*SharedMemoryMap, error) { return nil, ErrUnsupported }

func CreateAnonymous(id string, size uint64) (*SharedMemoryMap, error) { return nil, ErrUnsupported }

func OpenFromDescriptor(fd int) (*SharedMemoryMap, error) { return nil, ErrUnsupported }

func (m *SharedMemoryMap) Close(cleanupOnClose bool) error { return ErrUnsupported }
